// Package scaler standardizes RFM feature vectors to zero mean and unit variance.
package scaler

import (
	"fmt"
	"math"

	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
)

// Params are the fitted per-feature statistics. They are computed once over the training
// population and reused unchanged at prediction time.
type Params struct {
	Features []string  `json:"features"`
	Means    []float64 `json:"means"`
	Stds     []float64 `json:"stds"`
}

// varianceEpsilon is the relative spread below which a feature counts as constant. Summing
// a constant fractional value leaves a rounding residue that is not a real spread.
const varianceEpsilon = 1e-12

// Fit computes population mean and standard deviation for every feature column.
// A feature with zero variance cannot be scaled and yields a DataQualityError.
func Fit(rows [][]float64) (*Params, error) {
	if len(rows) == 0 {
		return nil, common.NewDataQualityError("scaler", "no feature rows")
	}

	dim := len(model.FeatureNames)
	means := make([]float64, dim)
	stds := make([]float64, dim)

	for i, row := range rows {
		if len(row) != dim {
			return nil, common.NewDataQualityError("scaler", fmt.Sprintf("row %d has %d features, want %d", i, len(row), dim))
		}
		for j, v := range row {
			means[j] += v
		}
	}
	n := float64(len(rows))
	for j := range means {
		means[j] /= n
	}

	for _, row := range rows {
		for j, v := range row {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
		if math.IsNaN(stds[j]) || stds[j] <= varianceEpsilon*math.Max(1, math.Abs(means[j])) {
			return nil, common.NewDataQualityError("scaler",
				fmt.Sprintf("feature %q has zero variance", model.FeatureNames[j]))
		}
	}

	features := make([]string, dim)
	copy(features, model.FeatureNames)

	return &Params{Features: features, Means: means, Stds: stds}, nil
}

// Validate checks that the params are usable for transforms.
func (p *Params) Validate() error {
	dim := len(model.FeatureNames)
	if len(p.Means) != dim || len(p.Stds) != dim {
		return fmt.Errorf("scaler params have %d means and %d stds, want %d", len(p.Means), len(p.Stds), dim)
	}
	for j, s := range p.Stds {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("scaler std for %q is %v", model.FeatureNames[j], s)
		}
	}
	return nil
}

// Transform scales a single vector. The input is not modified.
func (p *Params) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - p.Means[j]) / p.Stds[j]
	}
	return out
}

// Inverse maps a scaled vector back to feature units.
func (p *Params) Inverse(z []float64) []float64 {
	out := make([]float64, len(z))
	for j, v := range z {
		out[j] = v*p.Stds[j] + p.Means[j]
	}
	return out
}

// TransformAll scales every row.
func (p *Params) TransformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = p.Transform(row)
	}
	return out
}
