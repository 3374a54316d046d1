package segmentation

import (
	"cmp"
	"slices"

	"mart-segments/internal/models"
)

// AllItemTypes disables the visualization filter.
const AllItemTypes = "All"

func ComputeOverview(records []models.Transaction) models.Overview {
	products := make(map[string]struct{})
	stores := make(map[string]struct{})
	ov := models.Overview{Records: len(records)}
	for _, tx := range records {
		products[tx.ItemID] = struct{}{}
		stores[tx.OutletID] = struct{}{}
		ov.TotalSales += tx.ItemOutletSales
	}
	ov.Products = len(products)
	ov.Stores = len(stores)
	return ov
}

// ComputeClusterStats summarizes products per cluster, one row for each of
// the k clusters in label order.
func ComputeClusterStats(products []models.ProductFeatures, k int) []models.ClusterStats {
	stats := make([]models.ClusterStats, k)
	typeCounts := make([]map[string]int, k)
	for c := range stats {
		stats[c].Cluster = c
		typeCounts[c] = make(map[string]int)
	}
	storeSums := make([]float64, k)
	for _, p := range products {
		if p.Cluster < 0 || p.Cluster >= k {
			continue
		}
		s := &stats[p.Cluster]
		s.NumProducts++
		s.SumTotalSales += p.TotalSales
		s.AvgMRP += p.AvgMRP
		storeSums[p.Cluster] += float64(p.NumStores)
		typeCounts[p.Cluster][p.ItemType]++
	}
	for c := range stats {
		s := &stats[c]
		if s.NumProducts == 0 {
			continue
		}
		n := float64(s.NumProducts)
		s.AvgTotalSales = s.SumTotalSales / n
		s.AvgMRP /= n
		s.AvgNumStores = storeSums[c] / n
		s.MostCommonType = mode(typeCounts[c])
	}
	return stats
}

// mode returns the most frequent key; ties go to the smallest key.
func mode(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	best, bestN := "", 0
	for _, key := range keys {
		if counts[key] > bestN {
			best, bestN = key, counts[key]
		}
	}
	return best
}

// ComputeTypeDistribution counts products per (cluster, item type) and
// expresses each count as a share of its cluster.
func ComputeTypeDistribution(products []models.ProductFeatures) []models.TypeShare {
	type key struct {
		cluster  int
		itemType string
	}
	counts := make(map[key]int)
	sizes := make(map[int]int)
	for _, p := range products {
		counts[key{p.Cluster, p.ItemType}]++
		sizes[p.Cluster]++
	}
	out := make([]models.TypeShare, 0, len(counts))
	for k, n := range counts {
		out = append(out, models.TypeShare{
			Cluster:  k.cluster,
			ItemType: k.itemType,
			Count:    n,
			Pct:      float64(n) / float64(sizes[k.cluster]) * 100,
		})
	}
	slices.SortFunc(out, func(a, b models.TypeShare) int {
		return cmp.Or(cmp.Compare(a.Cluster, b.Cluster), cmp.Compare(b.Count, a.Count), cmp.Compare(a.ItemType, b.ItemType))
	})
	return out
}

// ComputeStoreTypeMix aggregates labeled sales by (outlet type, cluster).
func ComputeStoreTypeMix(joined []models.LabeledTransaction) []models.StoreTypeMix {
	type key struct {
		outletType string
		cluster    int
	}
	sales := make(map[key]float64)
	products := make(map[key]map[string]struct{})
	typeTotals := make(map[string]float64)
	for _, tx := range joined {
		if !tx.Labeled {
			continue
		}
		k := key{tx.OutletType, tx.Cluster}
		if products[k] == nil {
			products[k] = make(map[string]struct{})
		}
		sales[k] += tx.ItemOutletSales
		products[k][tx.ItemID] = struct{}{}
		typeTotals[tx.OutletType] += tx.ItemOutletSales
	}
	out := make([]models.StoreTypeMix, 0, len(sales))
	for k, s := range sales {
		row := models.StoreTypeMix{
			OutletType:     k.outletType,
			Cluster:        k.cluster,
			Sales:          s,
			UniqueProducts: len(products[k]),
		}
		if t := typeTotals[k.outletType]; t > 0 {
			row.PctSales = s / t * 100
		}
		out = append(out, row)
	}
	slices.SortFunc(out, func(a, b models.StoreTypeMix) int {
		return cmp.Or(cmp.Compare(a.OutletType, b.OutletType), cmp.Compare(a.Cluster, b.Cluster))
	})
	return out
}

// FilterByItemType scopes products for display. An empty filter or
// AllItemTypes returns products unchanged.
func FilterByItemType(products []models.ProductFeatures, itemType string) []models.ProductFeatures {
	if itemType == "" || itemType == AllItemTypes {
		return products
	}
	out := make([]models.ProductFeatures, 0)
	for _, p := range products {
		if p.ItemType == itemType {
			out = append(out, p)
		}
	}
	return out
}
