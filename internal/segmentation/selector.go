package segmentation

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"mart-segments/internal/config"
	"mart-segments/internal/errors"
	"mart-segments/internal/models"
)

func kmeansOptions(p config.PipelineConfig) KMeansOptions {
	return KMeansOptions{
		Seed:      p.Seed,
		Restarts:  p.Restarts,
		MaxIter:   p.MaxIter,
		Tolerance: p.Tolerance,
		Workers:   p.Workers,
	}
}

// SelectK fits every candidate k in p.MinK..p.MaxK and returns the one with
// the highest silhouette score; ties keep the smaller k. Candidates with
// k >= number of products, or whose fit collapses to a single cluster, are
// reported as invalid and never chosen.
func SelectK(ctx context.Context, m *Matrix, p config.PipelineConfig) (*models.Selection, error) {
	n := m.Len()
	d := newDistancer(m.Rows)
	opts := kmeansOptions(p)
	// Candidates run concurrently, so each fit runs its restarts serially.
	opts.Workers = 1

	scores := make([]models.KScore, p.MaxK-p.MinK+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(p.Workers))
	for i := range scores {
		k := p.MinK + i
		scores[i].K = k
		if k >= n {
			continue
		}
		g.Go(func() error {
			res, err := KMeans(gctx, m.Rows, k, opts)
			if err != nil {
				return err
			}
			if s := silhouette(d, res.Labels); !math.IsNaN(s) {
				scores[i].Score = s
				scores[i].Valid = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best, ok := bestScore(scores)
	if !ok {
		return nil, errors.NoValidK(p.MinK, p.MaxK)
	}
	return &models.Selection{K: best.K, Score: best.Score, Scores: scores}, nil
}

// bestScore picks the valid candidate with the highest score. scores is in
// ascending k order, so an equal score never replaces a smaller k.
func bestScore(scores []models.KScore) (models.KScore, bool) {
	var best models.KScore
	found := false
	for _, s := range scores {
		if s.Valid && (!found || s.Score > best.Score) {
			best, found = s, true
		}
	}
	return best, found
}
