package segmentation

import (
	"context"
	"log/slog"
	"slices"

	"github.com/dustin/go-humanize"

	"mart-segments/internal/config"
	"mart-segments/internal/errors"
	"mart-segments/internal/models"
	"mart-segments/internal/observability"
)

type Options struct {
	Pipeline config.PipelineConfig
	Logger   *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Prepared is everything that does not depend on the chosen k: normalized
// records, product features, the standardized matrix and the k search.
// Records and RowsDigest describe the input table; the remaining fields are
// fully determined by Fingerprint and the pipeline parameters.
type Prepared struct {
	Fingerprint string
	RowsDigest  string
	Records     []models.Transaction
	Normalize   NormalizeReport
	Features    *FeatureTable
	Matrix      *Matrix
	Selection   *models.Selection
}

// Result is one segmentation at a fixed k.
type Result struct {
	K                int
	Inertia          float64
	Products         []models.ProductFeatures
	Joined           []models.LabeledTransaction
	StoreClusters    []models.StoreClusterSummary
	Stores           []models.StoreSummary
	ClusterStats     []models.ClusterStats
	TypeDistribution []models.TypeShare
	StoreTypeMix     []models.StoreTypeMix
	Overview         models.Overview
}

// Prepare runs normalization, feature building, standardization and the
// cluster-count search. records is not modified.
func Prepare(ctx context.Context, records []models.Transaction, opts Options) (*Prepared, error) {
	if err := opts.Pipeline.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "invalid pipeline parameters")
	}
	logger := opts.logger()
	prep := &Prepared{}

	_, done := observability.Stage(ctx, logger, "normalize")
	prep.Records, prep.Normalize = NormalizeRecords(records)
	prep.Fingerprint = Fingerprint(prep.Records)
	prep.RowsDigest = RowsDigest(prep.Records)
	done(nil)
	if len(prep.Normalize.Unknown) > 0 {
		logger.Warn("unrecognised fat content values passed through", "values", prep.Normalize.Unknown)
	}

	_, done = observability.Stage(ctx, logger, "features")
	features, err := BuildFeatures(prep.Records)
	done(err)
	if err != nil {
		return nil, err
	}
	prep.Features = features
	if len(features.Conflicts) > 0 {
		logger.Warn("products with inconsistent categories, first observed value kept",
			"count", len(features.Conflicts),
			"products", features.Conflicts,
		)
	}
	logger.Info("product features built",
		"records", humanize.Comma(int64(len(prep.Records))),
		"products", humanize.Comma(int64(len(features.Products))),
		"imputed_by_type", features.ImputedByType,
		"imputed_global", features.ImputedGlobal,
	)

	_, done = observability.Stage(ctx, logger, "standardize")
	prep.Matrix, err = Standardize(features.Products)
	done(err)
	if err != nil {
		return nil, err
	}

	selCtx, done := observability.Stage(ctx, logger, "select_k")
	prep.Selection, err = SelectK(selCtx, prep.Matrix, opts.Pipeline)
	done(err)
	if err != nil {
		return nil, err
	}
	logger.Info("cluster count selected",
		"k", prep.Selection.K,
		"score", prep.Selection.Score,
		"candidates", len(prep.Selection.Scores),
	)

	return prep, nil
}

// WithRecords returns a shallow copy of prep bound to another table with the
// same Fingerprint, such as the same data under different pass-through columns.
func (p *Prepared) WithRecords(normalized []models.Transaction, report NormalizeReport) *Prepared {
	cp := *p
	cp.Records = normalized
	cp.Normalize = report
	cp.RowsDigest = RowsDigest(normalized)
	return &cp
}

// Segment labels products at k (0 means the selected k) and derives the
// store rollups and insights. prep is left untouched.
func Segment(ctx context.Context, prep *Prepared, k int, opts Options) (*Result, error) {
	if k == 0 {
		k = prep.Selection.K
	}
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	logger := opts.logger()

	products := slices.Clone(prep.Features.Products)

	assignCtx, done := observability.Stage(ctx, logger, "assign")
	fit, err := Assign(assignCtx, products, prep.Matrix, k, opts.Pipeline)
	done(err)
	if err != nil {
		return nil, err
	}

	if dims := opts.Pipeline.ProjectionDims; dims > 0 {
		_, done = observability.Stage(ctx, logger, "project")
		coords, err := Project(prep.Matrix, dims)
		done(err)
		if err != nil {
			return nil, err
		}
		for i := range products {
			products[i].Projection = coords[i]
		}
	}

	_, done = observability.Stage(ctx, logger, "rollup")
	res := &Result{K: k, Inertia: fit.Inertia, Products: products}
	res.Joined = JoinClusters(prep.Records, products)
	res.StoreClusters = BuildStoreClusterSummary(res.Joined)
	res.Stores = BuildStoreSummary(res.Joined, res.StoreClusters, k)
	res.ClusterStats = ComputeClusterStats(products, k)
	res.TypeDistribution = ComputeTypeDistribution(products)
	res.StoreTypeMix = ComputeStoreTypeMix(res.Joined)
	res.Overview = ComputeOverview(prep.Records)
	done(nil)

	logger.Info("segmentation complete",
		"k", k,
		"inertia", fit.Inertia,
		"stores", len(res.Stores),
		"store_cluster_rows", len(res.StoreClusters),
	)
	return res, nil
}
