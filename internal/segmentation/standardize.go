package segmentation

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"mart-segments/internal/errors"
	"mart-segments/internal/models"
)

// FeatureColumns are the clustering inputs, in matrix column order.
var FeatureColumns = []string{
	"Total_Sales",
	"Avg_Sales_Per_Store",
	"Num_Stores",
	"Avg_MRP",
	"Avg_Weight",
	"Avg_Visibility",
	"Item_Type_Encoded",
	"Item_Fat_Content_Encoded",
	"Sales_Stability",
	"Price_Per_Unit_Weight",
}

func featureVector(p models.ProductFeatures) []float64 {
	return []float64{
		p.TotalSales,
		p.AvgSalesPerStore,
		float64(p.NumStores),
		p.AvgMRP,
		p.AvgWeight,
		p.AvgVisibility,
		float64(p.ItemTypeEncoded),
		float64(p.ItemFatContentEncoded),
		p.SalesStability,
		p.PricePerUnitWeight,
	}
}

// Matrix holds standardized feature rows (one per product, same order as the
// feature table) and the statistics used to produce them.
type Matrix struct {
	Rows   [][]float64 `json:"-"`
	Means  []float64   `json:"means"`
	Scales []float64   `json:"scales"`
}

func (m *Matrix) Len() int { return len(m.Rows) }

// Standardize rescales every feature column to zero mean and unit population
// variance using statistics from products alone.
func Standardize(products []models.ProductFeatures) (*Matrix, error) {
	if len(products) < 2 {
		return nil, errors.Degenerate("too few products to cluster").With("%d distinct product(s), need at least 2", len(products))
	}

	raw := make([][]float64, len(products))
	for i, p := range products {
		raw[i] = featureVector(p)
	}

	d := len(FeatureColumns)
	m := &Matrix{
		Rows:   make([][]float64, len(products)),
		Means:  make([]float64, d),
		Scales: make([]float64, d),
	}
	col := make([]float64, len(products))
	for j := 0; j < d; j++ {
		for i := range raw {
			col[i] = raw[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std <= 1e-12*math.Max(1, math.Abs(mean)) {
			return nil, errors.Degenerate("feature column has zero variance").
				With("column %s is constant across all %d products", FeatureColumns[j], len(products))
		}
		m.Means[j] = mean
		m.Scales[j] = std
	}

	for i, r := range raw {
		row := make([]float64, d)
		for j, v := range r {
			row[j] = (v - m.Means[j]) / m.Scales[j]
		}
		m.Rows[i] = row
	}
	return m, nil
}
