package segmentation

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"mart-segments/internal/config"
	"mart-segments/internal/errors"
	"mart-segments/internal/models"
)

// ValidateK rejects cluster counts outside the supported override range.
func ValidateK(k int) error {
	if k < config.MinClusters || k > config.MaxClusters {
		return errors.InvalidClusterCount(k, config.MinClusters, config.MaxClusters)
	}
	return nil
}

// Assign fits k clusters over m and writes each label into the matching
// product row. products must be in the same order as m.Rows. The slice is
// modified in place.
func Assign(ctx context.Context, products []models.ProductFeatures, m *Matrix, k int, p config.PipelineConfig) (*KMeansResult, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	if len(products) != m.Len() {
		return nil, fmt.Errorf("assign: %d products but %d matrix rows", len(products), m.Len())
	}
	if k > m.Len() {
		return nil, errors.Degenerate("more clusters than products").With("k=%d, %d products", k, m.Len())
	}

	res, err := KMeans(ctx, m.Rows, k, kmeansOptions(p))
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Cluster = res.Labels[i]
	}
	return res, nil
}

// Project returns the coordinates of every row along the first dims
// principal directions of m. Each direction's sign is fixed so that its
// largest-magnitude loading is positive. Missing directions (fewer rows
// than dims) are zero.
func Project(m *Matrix, dims int) ([][]float64, error) {
	if dims < 1 {
		return nil, fmt.Errorf("project: dims must be positive, got %d", dims)
	}
	n, d := m.Len(), len(FeatureColumns)
	x := mat.NewDense(n, d, nil)
	for i, r := range m.Rows {
		x.SetRow(i, r)
	}

	var pc stat.PC
	if !pc.PrincipalComponents(x, nil) {
		return nil, fmt.Errorf("project: principal component decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	_, avail := vecs.Dims()
	use := min(dims, avail)

	centered := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, x)
		mean := stat.Mean(col, nil)
		for i := range col {
			centered.Set(i, j, col[i]-mean)
		}
	}

	basis := mat.NewDense(d, use, nil)
	for c := 0; c < use; c++ {
		v := mat.Col(nil, c, &vecs)
		orientSign(v)
		basis.SetCol(c, v)
	}

	var proj mat.Dense
	proj.Mul(centered, basis)

	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, dims)
		for c := 0; c < use; c++ {
			row[c] = proj.At(i, c)
		}
		out[i] = row
	}
	return out, nil
}

func orientSign(v []float64) {
	big := 0
	for i := range v {
		if math.Abs(v[i]) > math.Abs(v[big]) {
			big = i
		}
	}
	if v[big] < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
}
