package services

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"

	"mart-segments/internal/config"
	"mart-segments/internal/errors"
	"mart-segments/internal/ingest"
	"mart-segments/internal/models"
	"mart-segments/internal/segmentation"
)

const cacheVersion = "v1"

// prepareKey identifies everything the k search depends on.
type prepareKey struct {
	fingerprint string
	seed        uint64
	restarts    int
	maxIter     int
	tolerance   float64
	minK, maxK  int
}

// segmentKey adds what the labeled table depends on beyond the k search.
type segmentKey struct {
	prepareKey
	rows string
	k    int
	dims int
}

// Analytics owns the loaded dataset and its segmentation. The k-independent
// stages are computed once per input fingerprint (and persisted under
// cacheDir); a change of k only reruns assignment and rollups, and each
// (input, k) result is memoized.
type Analytics struct {
	mu       sync.RWMutex
	opts     segmentation.Options
	cacheDir string

	prepared *lru.Cache[prepareKey, *segmentation.Prepared]
	results  *lru.Cache[segmentKey, *segmentation.Result]

	source       string
	extraColumns []string
	prep         *segmentation.Prepared
	current      *segmentation.Result
	lastModified time.Time

	reclusters atomic.Int64
	memoHits   atomic.Int64
	logger     *slog.Logger
}

func NewAnalytics(pipeline config.PipelineConfig, cacheDir string, logger *slog.Logger) (*Analytics, error) {
	if logger == nil {
		logger = slog.Default()
	}
	size := max(pipeline.MemoSize, 1)
	prepared, err := lru.New[prepareKey, *segmentation.Prepared](size)
	if err != nil {
		return nil, fmt.Errorf("create prepared memo: %w", err)
	}
	results, err := lru.New[segmentKey, *segmentation.Result](size)
	if err != nil {
		return nil, fmt.Errorf("create result memo: %w", err)
	}
	return &Analytics{
		opts:     segmentation.Options{Pipeline: pipeline, Logger: logger},
		cacheDir: cacheDir,
		prepared: prepared,
		results:  results,
		logger:   logger,
	}, nil
}

// LoadFile reads path and segments it at the automatically selected k.
func (a *Analytics) LoadFile(ctx context.Context, path string) error {
	start := time.Now()
	a.logger.Info("loading transactions", "filename", path)

	table, err := ingest.LoadFile(ctx, path)
	if err != nil {
		return err
	}
	if err := a.SetData(ctx, table.Records, table.ExtraColumns); err != nil {
		return err
	}

	a.mu.Lock()
	a.source = path
	a.mu.Unlock()

	duration := time.Since(start)
	a.logger.Info("dataset ready",
		"records", humanize.Comma(int64(len(table.Records))),
		"duration", duration,
		"rate", fmt.Sprintf("%.0f records/sec", float64(len(table.Records))/duration.Seconds()))
	return nil
}

// SetData replaces the dataset with records and segments it at the selected k.
func (a *Analytics) SetData(ctx context.Context, records []models.Transaction, extraColumns []string) error {
	prep, err := a.prepare(ctx, records)
	if err != nil {
		return err
	}
	res, err := a.segment(ctx, prep, prep.Selection.K)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.prep = prep
	a.current = res
	a.extraColumns = extraColumns
	a.lastModified = time.Now()
	return nil
}

// Recluster switches the active segmentation to k. Out-of-range k is
// rejected before any fit.
func (a *Analytics) Recluster(ctx context.Context, k int) (*segmentation.Result, error) {
	if err := segmentation.ValidateK(k); err != nil {
		return nil, err
	}
	a.mu.RLock()
	prep := a.prep
	a.mu.RUnlock()
	if prep == nil {
		return nil, errors.ServiceUnavailable("no dataset loaded")
	}

	res, err := a.segment(ctx, prep, k)
	if err != nil {
		return nil, err
	}
	a.reclusters.Add(1)

	a.mu.Lock()
	// Ignore the result if the dataset changed while fitting.
	if a.prep == prep {
		a.current = res
		a.lastModified = time.Now()
	}
	a.mu.Unlock()
	return res, nil
}

func (a *Analytics) keyFor(fingerprint string) prepareKey {
	p := a.opts.Pipeline
	return prepareKey{
		fingerprint: fingerprint,
		seed:        p.Seed,
		restarts:    p.Restarts,
		maxIter:     p.MaxIter,
		tolerance:   p.Tolerance,
		minK:        p.MinK,
		maxK:        p.MaxK,
	}
}

func (a *Analytics) prepare(ctx context.Context, records []models.Transaction) (*segmentation.Prepared, error) {
	normalized, report := segmentation.NormalizeRecords(records)
	key := a.keyFor(segmentation.Fingerprint(normalized))

	// A hit may come from a table with other row numbers or pass-through
	// columns, so it is rebound to this one.
	if prep, ok := a.prepared.Get(key); ok {
		a.memoHits.Add(1)
		return prep.WithRecords(normalized, report), nil
	}
	if prep, err := a.loadFromCache(key); err == nil {
		a.logger.Info("loaded from cache", "fingerprint", key.fingerprint[:12], "k", prep.Selection.K)
		a.prepared.Add(key, prep)
		return prep.WithRecords(normalized, report), nil
	}

	prep, err := segmentation.Prepare(ctx, records, a.opts)
	if err != nil {
		return nil, err
	}
	a.prepared.Add(key, prep)
	if err := a.saveToCache(key, prep); err != nil {
		a.logger.Warn("failed to save cache", "error", err)
	}
	return prep, nil
}

func (a *Analytics) segment(ctx context.Context, prep *segmentation.Prepared, k int) (*segmentation.Result, error) {
	key := segmentKey{
		prepareKey: a.keyFor(prep.Fingerprint),
		rows:       prep.RowsDigest,
		k:          k,
		dims:       a.opts.Pipeline.ProjectionDims,
	}
	if res, ok := a.results.Get(key); ok {
		a.memoHits.Add(1)
		return res, nil
	}
	res, err := segmentation.Segment(ctx, prep, k, a.opts)
	if err != nil {
		return nil, err
	}
	a.results.Add(key, res)
	return res, nil
}

// Cache management
func (a *Analytics) getCacheFilename(key prepareKey) string {
	name := fmt.Sprintf("%s_s%d_r%d_i%d_t%g_k%d-%d_%s.gob",
		key.fingerprint, key.seed, key.restarts, key.maxIter, key.tolerance, key.minK, key.maxK, cacheVersion)
	return filepath.Join(a.cacheDir, name)
}

func (a *Analytics) saveToCache(key prepareKey, prep *segmentation.Prepared) error {
	if a.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.cacheDir, 0755); err != nil {
		return err
	}

	file, err := os.Create(a.getCacheFilename(key))
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(prep)
}

func (a *Analytics) loadFromCache(key prepareKey) (*segmentation.Prepared, error) {
	if a.cacheDir == "" {
		return nil, os.ErrNotExist
	}
	file, err := os.Open(a.getCacheFilename(key))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var prep segmentation.Prepared
	if err := gob.NewDecoder(file).Decode(&prep); err != nil {
		return nil, err
	}
	if prep.Fingerprint != key.fingerprint || prep.Selection == nil || prep.Matrix == nil {
		return nil, fmt.Errorf("cache entry for %s is incomplete", key.fingerprint)
	}
	return &prep, nil
}

// Read accessors. All return data owned by the service; callers must not
// modify it.

func (a *Analytics) snapshot() (*segmentation.Prepared, *segmentation.Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return nil, nil, errors.ServiceUnavailable("no dataset loaded")
	}
	return a.prep, a.current, nil
}

// ETag names the active segmentation: the input fingerprint and k. It
// changes on every new dataset or recluster.
func (a *Analytics) ETag() (string, error) {
	prep, res, err := a.snapshot()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`"%s-k%d"`, prep.Fingerprint[:16], res.K), nil
}

func (a *Analytics) Ready() bool {
	_, _, err := a.snapshot()
	return err == nil
}

func (a *Analytics) Result() (*segmentation.Result, error) {
	_, res, err := a.snapshot()
	return res, err
}

func (a *Analytics) Selection() (*models.Selection, error) {
	prep, _, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return prep.Selection, nil
}

func (a *Analytics) Overview() (models.Overview, error) {
	_, res, err := a.snapshot()
	if err != nil {
		return models.Overview{}, err
	}
	return res.Overview, nil
}

func (a *Analytics) Products(itemType string) ([]models.ProductFeatures, error) {
	_, res, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return segmentation.FilterByItemType(res.Products, itemType), nil
}

func (a *Analytics) ItemTypes() ([]string, error) {
	prep, _, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return prep.Features.ItemTypes, nil
}

func (a *Analytics) StoreSummaries() ([]models.StoreSummary, error) {
	_, res, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return res.Stores, nil
}

// StoreClusters returns store-cluster rows, optionally for one store only.
func (a *Analytics) StoreClusters(store string) ([]models.StoreClusterSummary, error) {
	_, res, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	if store == "" {
		return res.StoreClusters, nil
	}
	var out []models.StoreClusterSummary
	for _, row := range res.StoreClusters {
		if row.OutletID == store {
			out = append(out, row)
		}
	}
	if out == nil {
		return nil, errors.NotFound("store not found").With("outlet %q", store)
	}
	return out, nil
}

func (a *Analytics) ClusterStats() ([]models.ClusterStats, error) {
	_, res, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return res.ClusterStats, nil
}

func (a *Analytics) TypeDistribution() ([]models.TypeShare, error) {
	_, res, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return res.TypeDistribution, nil
}

func (a *Analytics) StoreTypeMix() ([]models.StoreTypeMix, error) {
	_, res, err := a.snapshot()
	if err != nil {
		return nil, err
	}
	return res.StoreTypeMix, nil
}

// Export returns what the export package needs to write the current run.
func (a *Analytics) Export() (*segmentation.Prepared, *segmentation.Result, []string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return nil, nil, nil, errors.ServiceUnavailable("no dataset loaded")
	}
	return a.prep, a.current, a.extraColumns, nil
}

// Utility method for monitoring
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]any{
		"loaded":         a.current != nil,
		"source":         a.source,
		"last_processed": a.lastModified,
		"reclusters":     a.reclusters.Load(),
		"memo_hits":      a.memoHits.Load(),
		"memo_prepared":  a.prepared.Len(),
		"memo_results":   a.results.Len(),
	}
	if a.current != nil {
		stats["records"] = a.current.Overview.Records
		stats["products"] = a.current.Overview.Products
		stats["stores"] = a.current.Overview.Stores
		stats["k"] = a.current.K
		stats["selected_k"] = a.prep.Selection.K
		stats["fingerprint"] = a.prep.Fingerprint
	}
	return stats
}
