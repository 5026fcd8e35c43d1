package cluster

import (
	"fmt"
	"math"
)

// Metadata describes how a model was fitted.
type Metadata struct {
	Criterion      string           `json:"criterion"`
	Candidates     []CandidateScore `json:"candidates,omitempty"`
	Seed           uint64           `json:"seed"`
	CriterionValue float64          `json:"criterion_value"`
	Inertia        float64          `json:"inertia"`
	Iterations     int              `json:"iterations"`
	Points         int              `json:"points"`
	Converged      bool             `json:"converged"`
}

// Model is a fitted set of centroids in scaled feature space.
type Model struct {
	Centroids [][]float64 `json:"centroids"`
	Metadata  Metadata    `json:"metadata"`
	K         int         `json:"k"`
}

// Validate checks the model shape.
func (m *Model) Validate(dim int) error {
	if m.K < 1 || len(m.Centroids) != m.K {
		return fmt.Errorf("cluster model declares k=%d with %d centroids", m.K, len(m.Centroids))
	}
	for c, centroid := range m.Centroids {
		if len(centroid) != dim {
			return fmt.Errorf("centroid %d has dimension %d, want %d", c, len(centroid), dim)
		}
		for _, v := range centroid {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("centroid %d is not finite", c)
			}
		}
	}
	return nil
}

// Predict returns the cluster id nearest to a scaled point.
func (m *Model) Predict(z []float64) int {
	c, _ := Nearest(m.Centroids, z)
	return c
}
