package segmentation

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// pairwiseLimit bounds the size of the precomputed distance matrix
// (n*n float64s, roughly 128MB at 4000 rows).
const pairwiseLimit = 4000

type distancer interface {
	dist(i, j int) float64
}

type pairwise struct {
	n int
	d []float64
}

func newPairwise(rows [][]float64) *pairwise {
	n := len(rows)
	p := &pairwise{n: n, d: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := floats.Distance(rows[i], rows[j], 2)
			p.d[i*n+j] = v
			p.d[j*n+i] = v
		}
	}
	return p
}

func (p *pairwise) dist(i, j int) float64 { return p.d[i*p.n+j] }

type onTheFly [][]float64

func (o onTheFly) dist(i, j int) float64 { return floats.Distance(o[i], o[j], 2) }

func newDistancer(rows [][]float64) distancer {
	if len(rows) <= pairwiseLimit {
		return newPairwise(rows)
	}
	return onTheFly(rows)
}

// Silhouette returns the mean silhouette coefficient of labels over rows
// using Euclidean distance. Points in singleton clusters score 0. The
// result is NaN when fewer than two distinct labels are present.
func Silhouette(rows [][]float64, labels []int) float64 {
	return silhouette(newDistancer(rows), labels)
}

func silhouette(d distancer, labels []int) float64 {
	n := len(labels)
	k := 0
	for _, l := range labels {
		k = max(k, l+1)
	}
	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}
	distinct := 0
	for _, s := range sizes {
		if s > 0 {
			distinct++
		}
	}
	if distinct < 2 {
		return math.NaN()
	}

	sums := make([]float64, k)
	var total float64
	for i := 0; i < n; i++ {
		clear(sums)
		for j := 0; j < n; j++ {
			if i != j {
				sums[labels[j]] += d.dist(i, j)
			}
		}
		own := labels[i]
		if sizes[own] <= 1 {
			continue
		}
		a := sums[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || sizes[c] == 0 {
				continue
			}
			b = math.Min(b, sums[c]/float64(sizes[c]))
		}
		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(n)
}
