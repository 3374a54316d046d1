package segmentation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type KMeansOptions struct {
	Seed      uint64
	Restarts  int
	MaxIter   int
	Tolerance float64
	Workers   int
}

type KMeansResult struct {
	Labels     []int
	Centroids  [][]float64
	Inertia    float64
	Iterations int
}

// KMeans partitions rows into k clusters with k-means++ seeding and Lloyd
// iterations, keeping the restart with the lowest inertia (ties go to the
// lower restart index). Restart r draws from a PCG stream seeded with
// (Seed, r), so the result does not depend on scheduling. Labels are
// renumbered in order of first appearance.
func KMeans(ctx context.Context, rows [][]float64, k int, opts KMeansOptions) (*KMeansResult, error) {
	n := len(rows)
	if k < 1 || k > n {
		return nil, fmt.Errorf("kmeans: k=%d out of range for %d rows", k, n)
	}
	restarts := max(opts.Restarts, 1)
	maxIter := max(opts.MaxIter, 1)
	tol := opts.Tolerance * meanVariance(rows)

	results := make([]*KMeansResult, restarts)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(opts.Workers))
	for r := 0; r < restarts; r++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(r)))
			results[r] = lloyd(rows, seedCentroids(rows, k, rng), maxIter, tol)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := results[0]
	for _, res := range results[1:] {
		if res.Inertia < best.Inertia {
			best = res
		}
	}
	canonicalize(best)
	return best, nil
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func meanVariance(rows [][]float64) float64 {
	d := len(rows[0])
	col := make([]float64, len(rows))
	var total float64
	for j := 0; j < d; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		_, v := stat.PopMeanVariance(col, nil)
		total += v
	}
	return total / float64(d)
}

// seedCentroids is greedy k-means++: each new centre is the best of
// 2+ln(k) candidates sampled proportional to squared distance.
func seedCentroids(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	centroids := make([][]float64, 0, k)
	first := rows[rng.IntN(n)]
	centroids = append(centroids, append([]float64(nil), first...))

	closest := make([]float64, n)
	for i, r := range rows {
		closest[i] = sqDist(r, first)
	}
	trials := 2 + int(math.Log(float64(k)))

	for len(centroids) < k {
		potential := floats.Sum(closest)
		bestIdx, bestPot := -1, math.Inf(1)
		var bestClosest []float64

		for t := 0; t < trials; t++ {
			idx := sampleIndex(closest, potential, rng)
			candClosest := make([]float64, n)
			for i, r := range rows {
				candClosest[i] = math.Min(closest[i], sqDist(r, rows[idx]))
			}
			if pot := floats.Sum(candClosest); pot < bestPot {
				bestIdx, bestPot, bestClosest = idx, pot, candClosest
			}
		}

		centroids = append(centroids, append([]float64(nil), rows[bestIdx]...))
		closest = bestClosest
	}
	return centroids
}

func sampleIndex(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	target := rng.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if acc > target {
			return i
		}
	}
	return len(weights) - 1
}

func lloyd(rows [][]float64, centroids [][]float64, maxIter int, tol float64) *KMeansResult {
	n, k, d := len(rows), len(centroids), len(rows[0])
	labels := make([]int, n)
	dists := make([]float64, n)
	iter := 0

	for iter < maxIter {
		iter++
		assign(rows, centroids, labels, dists)

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, d)
		}
		for i, r := range rows {
			floats.Add(next[labels[i]], r)
			counts[labels[i]]++
		}
		relocateEmpty(rows, next, counts, labels, dists)
		for c := range next {
			floats.Scale(1/float64(counts[c]), next[c])
		}

		var shift float64
		for c := range next {
			shift += sqDist(next[c], centroids[c])
		}
		centroids = next
		if shift <= tol {
			break
		}
	}

	inertia := assign(rows, centroids, labels, dists)
	return &KMeansResult{Labels: labels, Centroids: centroids, Inertia: inertia, Iterations: iter}
}

// assign labels each row with its nearest centroid (lowest index on ties)
// and returns the total within-cluster squared distance.
func assign(rows, centroids [][]float64, labels []int, dists []float64) float64 {
	var inertia float64
	for i, r := range rows {
		best, bestD := 0, math.Inf(1)
		for c, cen := range centroids {
			if d := sqDist(r, cen); d < bestD {
				best, bestD = c, d
			}
		}
		labels[i] = best
		dists[i] = bestD
		inertia += bestD
	}
	return inertia
}

// relocateEmpty moves the points farthest from their centroid into empty
// clusters. sums/counts are updated in place.
func relocateEmpty(rows [][]float64, sums [][]float64, counts []int, labels []int, dists []float64) {
	taken := make(map[int]bool)
	for c := range counts {
		if counts[c] > 0 {
			continue
		}
		far := -1
		for i := range rows {
			if taken[i] || counts[labels[i]] <= 1 {
				continue
			}
			if far < 0 || dists[i] > dists[far] {
				far = i
			}
		}
		if far < 0 {
			continue
		}
		taken[far] = true
		old := labels[far]
		floats.Sub(sums[old], rows[far])
		counts[old]--
		copy(sums[c], rows[far])
		counts[c] = 1
		labels[far] = c
		dists[far] = 0
	}
}

// canonicalize renumbers labels by first appearance so they are contiguous
// from 0, permuting centroids to match.
func canonicalize(res *KMeansResult) {
	remap := make(map[int]int, len(res.Centroids))
	for _, l := range res.Labels {
		if _, ok := remap[l]; !ok {
			remap[l] = len(remap)
		}
	}
	centroids := make([][]float64, len(remap))
	for old, neu := range remap {
		centroids[neu] = res.Centroids[old]
	}
	for i, l := range res.Labels {
		res.Labels[i] = remap[l]
	}
	res.Centroids = centroids
}
