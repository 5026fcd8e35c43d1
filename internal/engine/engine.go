// Package engine exposes the two serving operations, segmenting a customer and recommending
// products, over the published artifact set.
package engine

import (
	"context"
	"io"
	"sync"

	"github.com/Veraticus/shopper-spectrum/internal/artifact"
	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/recommend"
	"github.com/Veraticus/shopper-spectrum/internal/segment"
)

// BundleSource provides the published artifact set.
type BundleSource interface {
	Bundle() (*artifact.Bundle, error)
}

// Engine answers segmentation and recommendation requests. It only reads immutable
// artifacts and is safe for concurrent use.
type Engine struct {
	source      BundleSource
	bundle      *artifact.Bundle
	predictor   *segment.Predictor
	recommender *recommend.Recommender
	err         error
	once        sync.Once
}

// New creates an engine. Artifacts are loaded on the first request.
func New(source BundleSource) *Engine {
	return &Engine{source: source}
}

func (e *Engine) load() error {
	e.once.Do(func() {
		b, err := e.source.Bundle()
		if err != nil {
			e.err = err
			return
		}

		predictor, err := segment.NewPredictor(b.Scaler, b.Model, b.Labels())
		if err != nil {
			e.err = common.NewArtifactMissingError(artifact.FileModel, b.Manifest.RunID, err)
			return
		}
		recommender, err := recommend.New(b.Index, b.Matrix)
		if err != nil {
			e.err = common.NewArtifactMissingError(artifact.FileMatrix, b.Manifest.RunID, err)
			return
		}

		e.bundle, e.predictor, e.recommender = b, predictor, recommender
	})
	return e.err
}

// SegmentCustomer returns the segment for the given recency, frequency and monetary value.
func (e *Engine) SegmentCustomer(recency, frequency, monetary float64) (model.Segment, error) {
	if err := e.load(); err != nil {
		return model.Segment{}, err
	}
	return e.predictor.Predict(recency, frequency, monetary)
}

// SegmentBatch segments every row of an uploaded CSV.
func (e *Engine) SegmentBatch(ctx context.Context, r io.Reader) (*segment.Batch, error) {
	if err := e.load(); err != nil {
		return nil, err
	}
	return e.predictor.PredictBatch(ctx, r)
}

// RecommendProducts returns up to k products similar to product.
func (e *Engine) RecommendProducts(product string, k int) ([]model.Recommendation, error) {
	if err := e.load(); err != nil {
		return nil, err
	}
	return e.recommender.Recommend(product, k)
}

// Suggest returns up to n product names containing query, for "did you mean" messages.
func (e *Engine) Suggest(query string, n int) ([]string, error) {
	if err := e.load(); err != nil {
		return nil, err
	}
	return e.recommender.Suggest(query, n), nil
}

// Manifest describes the artifact set the engine serves.
func (e *Engine) Manifest() (artifact.Manifest, error) {
	if err := e.load(); err != nil {
		return artifact.Manifest{}, err
	}
	return e.bundle.Manifest, nil
}
