package segmentation

import (
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"

	"mart-segments/internal/errors"
	"mart-segments/internal/models"
)

// Vocabulary is a sorted set of category values; a value's code is its index.
// Sorting makes the code assignment independent of input order.
type Vocabulary []string

func NewVocabulary(values []string) Vocabulary {
	v := slices.Clone(values)
	slices.Sort(v)
	return Vocabulary(slices.Compact(v))
}

func (v Vocabulary) Code(value string) (int, bool) {
	i := sort.SearchStrings(v, value)
	if i < len(v) && v[i] == value {
		return i, true
	}
	return 0, false
}

type FeatureTable struct {
	Products    []models.ProductFeatures `json:"products"`
	ItemTypes   Vocabulary               `json:"item_types"`
	FatContents Vocabulary               `json:"fat_contents"`
	// Conflicts lists products whose item type or fat content differs across
	// records; the first observed value is kept for them.
	Conflicts      []string `json:"conflicts,omitempty"`
	ImputedByType  int      `json:"imputed_by_type"`
	ImputedGlobal  int      `json:"imputed_global"`
	GlobalMedianWt float64  `json:"global_median_weight"`
}

type productAgg struct {
	sales     []float64
	mrpSum    float64
	weightSum float64
	weightN   int
	visSum    float64
	stores    map[string]struct{}
	itemType  string
	fat       string
	conflict  bool
}

// BuildFeatures aggregates normalized records into one feature row per
// product, sorted by product identifier.
func BuildFeatures(records []models.Transaction) (*FeatureTable, error) {
	if len(records) == 0 {
		return nil, errors.Schema("cannot build product features").With("no transaction records")
	}

	groups := make(map[string]*productAgg)
	for _, tx := range records {
		g := groups[tx.ItemID]
		if g == nil {
			g = &productAgg{
				stores:   make(map[string]struct{}),
				itemType: tx.ItemType,
				fat:      tx.ItemFatContent,
			}
			groups[tx.ItemID] = g
		} else if g.itemType != tx.ItemType || g.fat != tx.ItemFatContent {
			g.conflict = true
		}
		g.sales = append(g.sales, tx.ItemOutletSales)
		g.mrpSum += tx.ItemMRP
		g.visSum += tx.ItemVisibility
		if tx.ItemWeight.Valid {
			g.weightSum += tx.ItemWeight.Value
			g.weightN++
		}
		g.stores[tx.OutletID] = struct{}{}
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	table := &FeatureTable{Products: make([]models.ProductFeatures, len(ids))}
	weights := make([]models.OptFloat, len(ids))
	var itemTypes, fats []string

	for i, id := range ids {
		g := groups[id]
		n := float64(len(g.sales))
		p := models.ProductFeatures{
			ItemID:          id,
			NumStoreRecords: len(g.sales),
			AvgMRP:          g.mrpSum / n,
			AvgVisibility:   g.visSum / n,
			NumStores:       len(g.stores),
			ItemType:        g.itemType,
			ItemFatContent:  g.fat,
		}
		for _, s := range g.sales {
			p.TotalSales += s
		}
		p.AvgSalesPerStore = p.TotalSales / n
		// Sample std is undefined for one record; such products count as perfectly stable.
		if len(g.sales) > 1 {
			p.StdSales = stat.StdDev(g.sales, nil)
		}
		if g.weightN > 0 {
			weights[i] = models.Float(g.weightSum / float64(g.weightN))
		}
		if g.conflict {
			table.Conflicts = append(table.Conflicts, id)
		}
		table.Products[i] = p
		itemTypes = append(itemTypes, p.ItemType)
		fats = append(fats, p.ItemFatContent)
	}

	if err := table.imputeWeights(weights); err != nil {
		return nil, err
	}

	table.ItemTypes = NewVocabulary(itemTypes)
	table.FatContents = NewVocabulary(fats)
	for i := range table.Products {
		p := &table.Products[i]
		p.ItemTypeEncoded, _ = table.ItemTypes.Code(p.ItemType)
		p.ItemFatContentEncoded, _ = table.FatContents.Code(p.ItemFatContent)
		p.SalesStability = p.StdSales / (p.AvgSalesPerStore + 1)
		p.PricePerUnitWeight = p.AvgMRP / (p.AvgWeight + 1)
	}

	return table, nil
}

// imputeWeights fills missing mean weights with the median of the product's
// item-type group, then with the median over all products.
func (t *FeatureTable) imputeWeights(weights []models.OptFloat) error {
	byType := make(map[string][]float64)
	for i, w := range weights {
		if w.Valid {
			byType[t.Products[i].ItemType] = append(byType[t.Products[i].ItemType], w.Value)
		}
	}
	typeMedian := make(map[string]float64, len(byType))
	for typ, vals := range byType {
		typeMedian[typ] = median(vals)
	}

	var known []float64
	for i := range weights {
		if !weights[i].Valid {
			if m, ok := typeMedian[t.Products[i].ItemType]; ok {
				weights[i] = models.Float(m)
				t.ImputedByType++
			} else {
				continue
			}
		}
		known = append(known, weights[i].Value)
	}

	if len(known) == 0 {
		return errors.Schema("global median weight is undefined").With("no Item_Weight observations in the dataset")
	}
	t.GlobalMedianWt = median(known)

	for i, w := range weights {
		if !w.Valid {
			weights[i] = models.Float(t.GlobalMedianWt)
			t.ImputedGlobal++
		}
		t.Products[i].AvgWeight = weights[i].Value
	}
	return nil
}

// median averages the two middle values for even-length input.
func median(vals []float64) float64 {
	s := slices.Clone(vals)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
