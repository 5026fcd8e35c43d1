// Package cluster implements k-means over scaled RFM features, cluster-count selection and
// rank-derived segment labels.
package cluster

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/Veraticus/shopper-spectrum/internal/common"
)

// Options controls a k-means fit.
type Options struct {
	Seed      uint64
	MaxIter   int
	Tolerance float64
	NInit     int

	// OnIteration, when set, is called after every Lloyd iteration.
	OnIteration func(run, iteration int, shift float64)
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		Seed:      42,
		MaxIter:   300,
		Tolerance: 1e-4,
		NInit:     10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.NInit <= 0 {
		o.NInit = d.NInit
	}
	return o
}

// Result is a fitted partition.
type Result struct {
	Centroids   [][]float64
	Assignments []int
	Sizes       []int
	Inertia     float64
	Iterations  int
	Converged   bool
}

// newRand returns the deterministic generator used for seeding.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Fit runs k-means with k-means++ seeding NInit times and keeps the lowest-inertia run.
// The context is checked between iterations; on cancellation the context error is returned
// and no partial result escapes.
func Fit(ctx context.Context, points [][]float64, k int, opts Options) (*Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", common.ErrInvalidConfig, k)
	}
	if len(points) < k {
		return nil, common.NewDataQualityError("cluster",
			fmt.Sprintf("%d points cannot form %d clusters", len(points), k))
	}

	opts = opts.withDefaults()
	rng := newRand(opts.Seed)

	var best *Result
	for run := range opts.NInit {
		centroids := seedPlusPlus(points, k, rng)
		res, err := lloyd(ctx, points, centroids, opts, run)
		if err != nil {
			return nil, err
		}
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

// seedPlusPlus picks initial centroids with D² weighting.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(n)]))

	d2 := make([]float64, n)
	for i, p := range points {
		d2[i] = sqDist(p, centroids[0])
	}

	for len(centroids) < k {
		var total float64
		for _, d := range d2 {
			total += d
		}

		next := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			var cum float64
			for i, d := range d2 {
				cum += d
				if cum >= target && d > 0 {
					next = i
					break
				}
			}
		}

		c := clone(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			if d := sqDist(p, c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centroids
}

// lloyd iterates assignment and update steps until the largest centroid shift drops below
// the tolerance or MaxIter is reached.
func lloyd(ctx context.Context, points [][]float64, centroids [][]float64, opts Options, run int) (*Result, error) {
	k := len(centroids)
	dim := len(points[0])
	assignments := make([]int, len(points))
	dists := make([]float64, len(points))

	res := &Result{}
	for iter := 1; iter <= opts.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i, p := range points {
			assignments[i], dists[i] = Nearest(centroids, p)
		}

		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		counts := make([]int, k)
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			for j, v := range p {
				sums[c][j] += v
			}
		}

		reseedEmpty(points, assignments, dists, sums, counts)

		shift := 0.0
		next := make([][]float64, k)
		for c := range k {
			next[c] = make([]float64, dim)
			for j := range dim {
				next[c][j] = sums[c][j] / float64(counts[c])
			}
			if s := math.Sqrt(sqDist(next[c], centroids[c])); s > shift {
				shift = s
			}
		}
		centroids = next
		res.Iterations = iter

		if opts.OnIteration != nil {
			opts.OnIteration(run, iter, shift)
		}
		if shift < opts.Tolerance {
			res.Converged = true
			break
		}
	}

	res.Centroids = centroids
	res.Assignments = make([]int, len(points))
	res.Sizes = make([]int, k)
	for i, p := range points {
		c, d := Nearest(centroids, p)
		res.Assignments[i] = c
		res.Sizes[c]++
		res.Inertia += d
	}
	return res, nil
}

// reseedEmpty moves, for every empty cluster, the point farthest from its current centroid
// into that cluster. Points are only taken from clusters that keep at least one member.
func reseedEmpty(points [][]float64, assignments []int, dists []float64, sums [][]float64, counts []int) {
	used := make(map[int]bool)
	for c := range counts {
		if counts[c] > 0 {
			continue
		}

		far := -1
		for i := range points {
			if used[i] || counts[assignments[i]] <= 1 {
				continue
			}
			if far == -1 || dists[i] > dists[far] {
				far = i
			}
		}
		if far == -1 {
			continue
		}

		used[far] = true
		from := assignments[far]
		for j, v := range points[far] {
			sums[from][j] -= v
			sums[c][j] = v
		}
		counts[from]--
		counts[c] = 1
		assignments[far] = c
		dists[far] = 0
	}
}

// Nearest returns the index of the closest centroid and the squared distance to it.
// Ties go to the lowest index.
func Nearest(centroids [][]float64, p []float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD
}

func sqDist(a, b []float64) float64 {
	var s float64
	for j := range a {
		d := a[j] - b[j]
		s += d * d
	}
	return s
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
