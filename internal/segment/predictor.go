// Package segment assigns customers to a behavioral segment using a published cluster model.
package segment

import (
	"fmt"
	"math"

	"github.com/Veraticus/shopper-spectrum/internal/cluster"
	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/scaler"
)

// Predictor maps raw RFM values to a segment. It holds no mutable state and is safe for
// concurrent use.
type Predictor struct {
	params *scaler.Params
	model  *cluster.Model
	labels map[int]string
}

// NewPredictor checks that the scaler, model and label map agree with each other.
func NewPredictor(params *scaler.Params, m *cluster.Model, labels map[int]string) (*Predictor, error) {
	if params == nil || m == nil {
		return nil, fmt.Errorf("predictor requires scaler params and a cluster model")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(len(model.FeatureNames)); err != nil {
		return nil, err
	}
	for c := range m.K {
		if labels[c] == "" {
			return nil, fmt.Errorf("segment label map has no label for cluster %d", c)
		}
	}
	return &Predictor{params: params, model: m, labels: labels}, nil
}

// Predict returns the segment of a customer with the given recency (days), frequency
// (invoices) and monetary value. Inputs must be finite and non-negative.
func (p *Predictor) Predict(recency, frequency, monetary float64) (model.Segment, error) {
	raw := []float64{recency, frequency, monetary}
	for j, v := range raw {
		if err := checkFeature(model.FeatureNames[j], v); err != nil {
			return model.Segment{}, err
		}
	}

	c := p.model.Predict(p.params.Transform(raw))
	return model.Segment{ClusterID: c, Label: p.labels[c]}, nil
}

// K returns the number of segments.
func (p *Predictor) K() int {
	return p.model.K
}

// Labels returns segment labels indexed by cluster id.
func (p *Predictor) Labels() []string {
	out := make([]string, p.model.K)
	for c := range out {
		out[c] = p.labels[c]
	}
	return out
}

func checkFeature(name string, v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return common.NewValidationError(name, v, "must be a finite number")
	case v < 0:
		return common.NewValidationError(name, v, "must not be negative")
	}
	return nil
}
