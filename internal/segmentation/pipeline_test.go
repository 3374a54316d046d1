package segmentation

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mart-segments/internal/config"
	"mart-segments/internal/errors"
	"mart-segments/internal/models"
	"mart-segments/internal/synth"
)

func syntheticRecords(t *testing.T) []models.Transaction {
	t.Helper()
	opts := synth.DefaultOptions()
	opts.Products = 120
	opts.Stores = 8
	records := synth.Generate(7, opts)
	require.NotEmpty(t, records)
	return records
}

func testOptions() Options {
	p := config.DefaultPipeline()
	p.Restarts = 4
	return Options{Pipeline: p, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()
	records := syntheticRecords(t)
	opts := testOptions()

	prep, err := Prepare(ctx, records, opts)
	require.NoError(t, err)
	require.NotNil(t, prep.Selection)
	assert.GreaterOrEqual(t, prep.Selection.K, config.MinClusters)
	assert.LessOrEqual(t, prep.Selection.K, config.MaxClusters)
	assert.Len(t, prep.Records, len(records))
	assert.NotEmpty(t, prep.Fingerprint)

	res, err := Segment(ctx, prep, 0, opts)
	require.NoError(t, err)
	assert.Equal(t, prep.Selection.K, res.K)

	seen := make(map[int]bool)
	for _, p := range res.Products {
		require.Len(t, p.Projection, opts.Pipeline.ProjectionDims)
		require.GreaterOrEqual(t, p.Cluster, 0)
		require.Less(t, p.Cluster, res.K)
		seen[p.Cluster] = true
	}
	for c := range len(seen) {
		assert.True(t, seen[c], "labels are contiguous from 0, missing %d", c)
	}

	// percentages per store sum to 100
	sums := make(map[string]float64)
	for _, row := range res.StoreClusters {
		sums[row.OutletID] += row.PctSalesFromCluster
	}
	for store, sum := range sums {
		assert.InDelta(t, 100, sum, 1e-6, store)
	}

	// absent (store, cluster) pairs are zero in the pivot
	present := make(map[storeClusterKey]bool)
	for _, row := range res.StoreClusters {
		present[storeClusterKey{row.OutletID, row.Cluster}] = true
	}
	for _, s := range res.Stores {
		require.Len(t, s.PctCluster, res.K)
		for c, pct := range s.PctCluster {
			if !present[storeClusterKey{s.OutletID, c}] {
				assert.Equal(t, 0.0, pct)
			}
		}
	}

	assert.Len(t, res.Joined, len(records))
	assert.Equal(t, len(records), res.Overview.Records)
}

func TestPipeline_Deterministic(t *testing.T) {
	ctx := context.Background()
	records := syntheticRecords(t)
	opts := testOptions()

	first, err := Prepare(ctx, records, opts)
	require.NoError(t, err)
	second, err := Prepare(ctx, records, opts)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	if diff := cmp.Diff(first.Selection, second.Selection); diff != "" {
		t.Errorf("selection differs between runs (-first +second):\n%s", diff)
	}

	a, err := Segment(ctx, first, 4, opts)
	require.NoError(t, err)
	b, err := Segment(ctx, second, 4, opts)
	require.NoError(t, err)
	if diff := cmp.Diff(a.Products, b.Products); diff != "" {
		t.Errorf("labels differ between runs (-first +second):\n%s", diff)
	}
}

func TestSegment_LeavesPreparedUntouched(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	prep, err := Prepare(ctx, syntheticRecords(t), opts)
	require.NoError(t, err)

	before := append([]models.ProductFeatures(nil), prep.Features.Products...)
	_, err = Segment(ctx, prep, 5, opts)
	require.NoError(t, err)
	assert.Equal(t, before, prep.Features.Products)
}

func TestSegment_RejectsInvalidK(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	prep, err := Prepare(ctx, syntheticRecords(t), opts)
	require.NoError(t, err)

	for _, k := range []int{1, 11, -3} {
		_, err := Segment(ctx, prep, k, opts)
		assert.True(t, errors.HasCode(err, errors.CodeInvalidClusterCount), "k=%d", k)
	}
}

func TestSegment_WithoutProjection(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.Pipeline.ProjectionDims = 0

	prep, err := Prepare(ctx, syntheticRecords(t), opts)
	require.NoError(t, err)
	res, err := Segment(ctx, prep, 3, opts)
	require.NoError(t, err)
	for _, p := range res.Products {
		assert.Empty(t, p.Projection, p.ItemID)
	}
}

func TestPrepare_Degenerate(t *testing.T) {
	_, err := Prepare(context.Background(), []models.Transaction{tx("A", "S1", 1), tx("A", "S2", 3)}, testOptions())
	assert.True(t, errors.HasCode(err, errors.CodeDegenerateInput))

	// products that differ only in sales leave constant feature columns
	_, err = Prepare(context.Background(), []models.Transaction{tx("A", "S1", 1), tx("B", "S1", 3)}, testOptions())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDegenerateInput))
}

func TestPrepare_InvalidOptions(t *testing.T) {
	opts := testOptions()
	opts.Pipeline.MaxK = 12
	_, err := Prepare(context.Background(), syntheticRecords(t), opts)
	assert.True(t, errors.HasCode(err, errors.CodeValidation))
}

func TestFingerprint(t *testing.T) {
	records := []models.Transaction{tx("A", "S1", 1), tx("B", "S1", 3)}
	same := []models.Transaction{tx("A", "S1", 1), tx("B", "S1", 3)}
	assert.Equal(t, Fingerprint(records), Fingerprint(same))

	same[1].ItemOutletSales = 3.0000001
	assert.NotEqual(t, Fingerprint(records), Fingerprint(same))

	missing := []models.Transaction{tx("A", "S1", 1), tx("B", "S1", 3)}
	missing[0].ItemWeight = models.OptFloat{}
	assert.NotEqual(t, Fingerprint(records), Fingerprint(missing))
}
