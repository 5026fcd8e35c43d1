package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/Veraticus/shopper-spectrum/internal/common"
)

// Supported cluster-count selection criteria.
const (
	CriterionSilhouette = "silhouette"
	CriterionElbow      = "elbow"
	CriterionFixed      = "fixed"
)

// SelectOptions controls the search over candidate cluster counts.
type SelectOptions struct {
	Criterion string
	KMin      int
	KMax      int

	// SampleSize caps the number of points used for silhouette scoring. Zero scores all points.
	SampleSize int

	Fit Options

	// OnCandidate, when set, is called after each candidate k is fitted.
	OnCandidate func(score CandidateScore)
}

// CandidateScore records how one candidate k performed.
type CandidateScore struct {
	K          int     `json:"k"`
	Inertia    float64 `json:"inertia"`
	Silhouette float64 `json:"silhouette,omitempty"`
}

// Selection is the outcome of SelectK.
type Selection struct {
	Result     *Result
	Criterion  string
	Candidates []CandidateScore
	K          int
	Value      float64
}

// SelectK fits every k in [KMin, min(KMax, n-1)] and picks one by the configured criterion.
//
// silhouette: the k with the highest mean silhouette (ties go to the smaller k).
// elbow: the k whose (k, inertia) point lies farthest from the chord joining the first and
// last candidates, after normalizing both axes to [0, 1].
func SelectK(ctx context.Context, points [][]float64, opts SelectOptions) (*Selection, error) {
	if opts.Criterion != CriterionSilhouette && opts.Criterion != CriterionElbow {
		return nil, fmt.Errorf("%w: unknown criterion %q", common.ErrInvalidConfig, opts.Criterion)
	}
	kMin := max(opts.KMin, 2)
	kMax := min(opts.KMax, len(points)-1)
	if kMax < kMin {
		return nil, common.NewDataQualityError("cluster",
			fmt.Sprintf("%d customers are too few to choose k in [%d, %d]", len(points), kMin, opts.KMax))
	}

	var sample []int
	if opts.Criterion == CriterionSilhouette {
		sample = sampleIndexes(len(points), opts.SampleSize, opts.Fit.Seed)
	}

	results := make([]*Result, 0, kMax-kMin+1)
	candidates := make([]CandidateScore, 0, kMax-kMin+1)
	for k := kMin; k <= kMax; k++ {
		res, err := Fit(ctx, points, k, opts.Fit)
		if err != nil {
			return nil, err
		}

		score := CandidateScore{K: k, Inertia: res.Inertia}
		if opts.Criterion == CriterionSilhouette {
			score.Silhouette = Silhouette(points, res.Assignments, sample)
		}
		slog.Debug("Evaluated cluster count", "k", k, "inertia", score.Inertia, "silhouette", score.Silhouette)
		if opts.OnCandidate != nil {
			opts.OnCandidate(score)
		}

		results = append(results, res)
		candidates = append(candidates, score)
	}

	var pick int
	var value float64
	switch opts.Criterion {
	case CriterionSilhouette:
		pick, value = 0, candidates[0].Silhouette
		for i, c := range candidates {
			if c.Silhouette > value {
				pick, value = i, c.Silhouette
			}
		}
	case CriterionElbow:
		pick, value = elbow(candidates)
	}

	return &Selection{
		Result:     results[pick],
		Criterion:  opts.Criterion,
		Candidates: candidates,
		K:          candidates[pick].K,
		Value:      value,
	}, nil
}

// FixedK fits exactly k clusters and reports the result as a Selection with criterion
// "fixed". The criterion value is the mean silhouette, or 0 when k is 1.
func FixedK(ctx context.Context, points [][]float64, k int, opts SelectOptions) (*Selection, error) {
	res, err := Fit(ctx, points, k, opts.Fit)
	if err != nil {
		return nil, err
	}

	score := CandidateScore{K: k, Inertia: res.Inertia}
	if k > 1 {
		sample := sampleIndexes(len(points), opts.SampleSize, opts.Fit.Seed)
		score.Silhouette = Silhouette(points, res.Assignments, sample)
	}
	if opts.OnCandidate != nil {
		opts.OnCandidate(score)
	}

	return &Selection{
		Result:     res,
		Criterion:  CriterionFixed,
		Candidates: []CandidateScore{score},
		K:          k,
		Value:      score.Silhouette,
	}, nil
}

func elbow(candidates []CandidateScore) (int, float64) {
	if len(candidates) < 3 {
		return 0, 0
	}

	first, last := candidates[0], candidates[len(candidates)-1]
	kSpan := float64(last.K - first.K)
	iSpan := first.Inertia - last.Inertia
	if iSpan <= 0 {
		return 0, 0
	}

	// With both axes normalized the chord runs from (0, 1) to (1, 0); the distance of (x, y)
	// from it is |x + y - 1| / sqrt(2).
	pick, best := 0, 0.0
	for i, c := range candidates {
		x := float64(c.K-first.K) / kSpan
		y := (c.Inertia - last.Inertia) / iSpan
		if d := math.Abs(x+y-1) / math.Sqrt2; d > best {
			pick, best = i, d
		}
	}
	return pick, best
}

// Silhouette returns the mean silhouette coefficient over the points in sample (all points
// when sample is nil), using only sampled points as neighbors.
func Silhouette(points [][]float64, assignments []int, sample []int) float64 {
	if sample == nil {
		sample = make([]int, len(points))
		for i := range sample {
			sample[i] = i
		}
	}
	if len(sample) < 2 {
		return 0
	}

	k := 0
	for _, i := range sample {
		k = max(k, assignments[i]+1)
	}

	var total float64
	sums := make([]float64, k)
	counts := make([]int, k)
	for _, i := range sample {
		for c := range sums {
			sums[c], counts[c] = 0, 0
		}
		for _, j := range sample {
			if i == j {
				continue
			}
			c := assignments[j]
			sums[c] += math.Sqrt(sqDist(points[i], points[j]))
			counts[c]++
		}

		own := assignments[i]
		if counts[own] == 0 {
			continue // singleton cluster contributes 0
		}
		a := sums[own] / float64(counts[own])
		b := math.Inf(1)
		for c := range sums {
			if c == own || counts[c] == 0 {
				continue
			}
			b = min(b, sums[c]/float64(counts[c]))
		}
		if math.IsInf(b, 1) {
			continue
		}
		if denom := max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(len(sample))
}

// sampleIndexes draws a deterministic sample of size indexes from [0, n).
func sampleIndexes(n, size int, seed uint64) []int {
	if size <= 0 || size >= n {
		return nil
	}
	perm := newRand(seed).Perm(n)
	return perm[:size]
}
