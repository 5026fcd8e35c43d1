package artifact

import (
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/shopper-spectrum/internal/cluster"
	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/scaler"
	"github.com/Veraticus/shopper-spectrum/internal/similarity"
)

// Manifest describes a published run. It is written last, so a run directory without a
// manifest is never considered complete.
type Manifest struct {
	CreatedAt      time.Time         `json:"created_at"`
	Files          map[string]string `json:"files"` // file name → sha256
	RunID          string            `json:"run_id"`
	Criterion      string            `json:"criterion"`
	Weighting      string            `json:"weighting"`
	K              int               `json:"k"`
	CriterionValue float64           `json:"criterion_value"`
	Customers      int               `json:"customers"`
	Products       int               `json:"products"`
	Excluded       int               `json:"excluded_products"`
	MinSupport     int               `json:"min_support"`
	Transactions   int               `json:"transactions"`
	SchemaVersion  int               `json:"schema_version"`
}

// Bundle is one complete artifact set. A loaded Bundle is never modified.
type Bundle struct {
	Scaler   *scaler.Params
	Model    *cluster.Model
	Index    *similarity.ProductIndex
	Matrix   *similarity.Matrix
	Profiles []cluster.Profile
	Manifest Manifest
}

// Labels returns cluster id → segment label.
func (b *Bundle) Labels() map[int]string {
	return cluster.LabelMap(b.Profiles)
}

// Validate checks that the parts of the bundle agree with each other.
func (b *Bundle) Validate() error {
	if b.Scaler == nil || b.Model == nil || b.Index == nil || b.Matrix == nil {
		return errors.New("artifact bundle is incomplete")
	}
	if err := b.Scaler.Validate(); err != nil {
		return err
	}
	if err := b.Model.Validate(len(model.FeatureNames)); err != nil {
		return err
	}
	if len(b.Profiles) != b.Model.K {
		return fmt.Errorf("%d segment labels for %d clusters", len(b.Profiles), b.Model.K)
	}
	labels := b.Labels()
	for c := range b.Model.K {
		if labels[c] == "" {
			return fmt.Errorf("cluster %d has no segment label", c)
		}
	}
	if b.Index.Len() != b.Matrix.Size() {
		return fmt.Errorf("product index has %d entries, similarity matrix has %d rows",
			b.Index.Len(), b.Matrix.Size())
	}
	return b.Matrix.Verify(1e-9)
}

type labelMapPayload struct {
	Labels   map[int]string    `json:"labels"`
	Profiles []cluster.Profile `json:"profiles"`
}

type productIndexPayload struct {
	Products []string `json:"products"`
}
