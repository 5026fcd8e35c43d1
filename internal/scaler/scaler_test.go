package scaler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopper-spectrum/internal/common"
)

var scenario = [][]float64{
	{5, 10, 1000},
	{200, 1, 20},
	{10, 8, 900},
	{180, 2, 50},
}

func TestFit_ZeroMeanUnitVariance(t *testing.T) {
	p, err := Fit(scenario)
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	scaled := p.TransformAll(scenario)
	for j := range 3 {
		var sum, sq float64
		for _, row := range scaled {
			sum += row[j]
			sq += row[j] * row[j]
		}
		n := float64(len(scaled))
		assert.InDelta(t, 0, sum/n, 1e-9)
		assert.InDelta(t, 1, sq/n, 1e-9)
	}
	assert.Equal(t, []string{"recency", "frequency", "monetary"}, p.Features)
}

func TestInverse_RoundTrip(t *testing.T) {
	p, err := Fit(scenario)
	require.NoError(t, err)

	vectors := [][]float64{{0, 0, 0}, {365, 50, 12345.67}, {1, 1, 0.01}, {42, 7, 314.15}}
	for _, x := range vectors {
		back := p.Inverse(p.Transform(x))
		for j := range x {
			assert.InDelta(t, x[j], back[j], 1e-9*math.Max(1, math.Abs(x[j])))
		}
	}
}

func TestFit_ZeroVariance(t *testing.T) {
	tests := []struct {
		name    string
		feature string
		rows    [][]float64
	}{
		{
			name:    "constant integer feature",
			rows:    [][]float64{{5, 1, 10}, {9, 1, 20}},
			feature: "frequency",
		},
		{
			name:    "constant fractional feature",
			rows:    [][]float64{{1, 1, 0.1}, {5, 2, 0.1}, {9, 3, 0.1}},
			feature: "monetary",
		},
		{
			name:    "constant large fractional feature",
			rows:    [][]float64{{1, 1, 1234.56}, {5, 2, 1234.56}, {9, 3, 1234.56}, {2, 7, 1234.56}},
			feature: "monetary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.rows)
			require.ErrorIs(t, err, common.ErrDataQuality)
			assert.Contains(t, err.Error(), tt.feature)
		})
	}
}

func TestFit_SmallButRealSpread(t *testing.T) {
	params, err := Fit([][]float64{{1, 1, 0.1}, {5, 2, 0.1}, {9, 3, 0.1000001}})
	require.NoError(t, err)
	assert.Greater(t, params.Stds[2], 0.0)
}

func TestFit_Empty(t *testing.T) {
	_, err := Fit(nil)
	assert.ErrorIs(t, err, common.ErrDataQuality)
}

func TestTransform_DoesNotRefit(t *testing.T) {
	p, err := Fit(scenario)
	require.NoError(t, err)
	before := append([]float64(nil), p.Means...)

	_ = p.Transform([]float64{9999, 9999, 9999})
	assert.Equal(t, before, p.Means)
}

func TestValidate_RejectsBadParams(t *testing.T) {
	assert.Error(t, (&Params{Means: []float64{0, 0}, Stds: []float64{1, 1}}).Validate())
	assert.Error(t, (&Params{Means: []float64{0, 0, 0}, Stds: []float64{1, 0, 1}}).Validate())
}
