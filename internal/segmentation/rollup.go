package segmentation

import (
	"cmp"
	"slices"

	"mart-segments/internal/models"
)

// JoinClusters left-joins product labels onto every record. Records whose
// product has no label are kept with Labeled=false.
func JoinClusters(records []models.Transaction, products []models.ProductFeatures) []models.LabeledTransaction {
	labels := make(map[string]int, len(products))
	for _, p := range products {
		labels[p.ItemID] = p.Cluster
	}
	out := make([]models.LabeledTransaction, len(records))
	for i, tx := range records {
		c, ok := labels[tx.ItemID]
		out[i] = models.LabeledTransaction{Transaction: tx, Cluster: c, Labeled: ok}
	}
	return out
}

type storeClusterKey struct {
	store   string
	cluster int
}

type storeClusterAgg struct {
	sales    float64
	mrp      float64
	n        int
	products map[string]struct{}
}

// BuildStoreClusterSummary aggregates labeled records by (store, cluster).
// Only observed pairs get a row. Percentages are relative to the store's
// labeled sales so they sum to 100 per store.
func BuildStoreClusterSummary(joined []models.LabeledTransaction) []models.StoreClusterSummary {
	groups := make(map[storeClusterKey]*storeClusterAgg)
	storeTotals := make(map[string]float64)
	for _, tx := range joined {
		if !tx.Labeled {
			continue
		}
		key := storeClusterKey{tx.OutletID, tx.Cluster}
		g := groups[key]
		if g == nil {
			g = &storeClusterAgg{products: make(map[string]struct{})}
			groups[key] = g
		}
		g.sales += tx.ItemOutletSales
		g.mrp += tx.ItemMRP
		g.n++
		g.products[tx.ItemID] = struct{}{}
		storeTotals[tx.OutletID] += tx.ItemOutletSales
	}

	out := make([]models.StoreClusterSummary, 0, len(groups))
	for key, g := range groups {
		total := storeTotals[key.store]
		row := models.StoreClusterSummary{
			OutletID:           key.store,
			Cluster:            key.cluster,
			TotalSalesCluster:  g.sales,
			AvgSalesPerProduct: g.sales / float64(g.n),
			NumRecords:         g.n,
			NumUniqueProducts:  len(g.products),
			AvgMRP:             g.mrp / float64(g.n),
			StoreTotalSales:    total,
		}
		if total > 0 {
			row.PctSalesFromCluster = g.sales / total * 100
		}
		out = append(out, row)
	}
	slices.SortFunc(out, func(a, b models.StoreClusterSummary) int {
		return cmp.Or(cmp.Compare(a.OutletID, b.OutletID), cmp.Compare(a.Cluster, b.Cluster))
	})
	return out
}

// BuildStoreSummary produces one row per store with store attributes taken
// from its first record and a k-wide sales-mix vector pivoted from
// clusters. Pairs absent from clusters are zero.
func BuildStoreSummary(joined []models.LabeledTransaction, clusters []models.StoreClusterSummary, k int) []models.StoreSummary {
	rows := make(map[string]*models.StoreSummary)
	products := make(map[string]map[string]struct{})
	for _, tx := range joined {
		s := rows[tx.OutletID]
		if s == nil {
			s = &models.StoreSummary{
				OutletID:       tx.OutletID,
				OutletType:     tx.OutletType,
				OutletSize:     tx.OutletSize,
				OutletLocation: tx.OutletLocation,
				OutletYear:     tx.OutletYear,
				PctCluster:     make([]float64, k),
			}
			rows[tx.OutletID] = s
			products[tx.OutletID] = make(map[string]struct{})
		}
		s.TotalSales += tx.ItemOutletSales
		products[tx.OutletID][tx.ItemID] = struct{}{}
		if !tx.Labeled {
			s.UnlabeledRecords++
		}
	}

	for _, c := range clusters {
		if s := rows[c.OutletID]; s != nil && c.Cluster >= 0 && c.Cluster < k {
			s.PctCluster[c.Cluster] = c.PctSalesFromCluster
		}
	}

	out := make([]models.StoreSummary, 0, len(rows))
	for id, s := range rows {
		s.NumUniqueProducts = len(products[id])
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b models.StoreSummary) int {
		return cmp.Compare(a.OutletID, b.OutletID)
	})
	return out
}
