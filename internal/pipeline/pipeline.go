// Package pipeline runs the offline fit: clean, build features, cluster, build product
// similarity and publish the resulting artifacts as one atomic set.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/shopper-spectrum/internal/artifact"
	"github.com/Veraticus/shopper-spectrum/internal/cluster"
	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/config"
	"github.com/Veraticus/shopper-spectrum/internal/ingest"
	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/rfm"
	"github.com/Veraticus/shopper-spectrum/internal/scaler"
	"github.com/Veraticus/shopper-spectrum/internal/service"
	"github.com/Veraticus/shopper-spectrum/internal/similarity"
)

// Progress stage names reported to a service.Reporter.
const (
	StageClustering = "Clustering customers"
	StageSimilarity = "Building product similarity"
	StagePublish    = "Publishing artifacts"
)

// Options controls one fit.
type Options struct {
	// Snapshot is the recency reference date. Zero means the day after the last purchase.
	Snapshot time.Time

	// K fixes the cluster count when positive; otherwise Select.Criterion chooses it.
	K int

	Select     cluster.SelectOptions
	Similarity similarity.Options
}

// OptionsFromSettings converts validated settings into fit options.
func OptionsFromSettings(s *config.Settings) (Options, error) {
	snapshot, err := s.RFM.Snapshot()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Snapshot: snapshot,
		K:        s.Fit.K,
		Select: cluster.SelectOptions{
			Criterion:  s.Fit.Criterion,
			KMin:       s.Fit.KMin,
			KMax:       s.Fit.KMax,
			SampleSize: s.Fit.SilhouetteSample,
			Fit: cluster.Options{
				Seed:      s.Fit.Seed,
				MaxIter:   s.Fit.MaxIter,
				Tolerance: s.Fit.Tolerance,
				NInit:     s.Fit.NInit,
			},
		},
		Similarity: similarity.Options{
			Weighting:        similarity.Weighting(s.Similarity.Weighting),
			MinSupport:       s.Similarity.MinSupport,
			IncludeAnonymous: s.Similarity.IncludeAnonymous,
		},
	}, nil
}

// Result summarizes a successful fit.
type Result struct {
	Manifest     *artifact.Manifest
	Selection    *cluster.Selection
	Profiles     []cluster.Profile
	Excluded     []string
	Report       ingest.Report
	Customers    int
	Products     int
	Pairs        int
	Transactions int
}

// Pipeline wires the fit stages to an artifact manager and optional collaborators.
type Pipeline struct {
	artifacts *artifact.Manager
	storage   service.Storage
	reporter  service.Reporter
	keep      int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStorage records every published fit in storage.
func WithStorage(s service.Storage) Option {
	return func(p *Pipeline) { p.storage = s }
}

// WithReporter sends stage progress to r.
func WithReporter(r service.Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// WithKeep prunes published runs down to the newest n after each fit.
func WithKeep(n int) Option {
	return func(p *Pipeline) { p.keep = n }
}

// New creates a pipeline that publishes through artifacts.
func New(artifacts *artifact.Manager, opts ...Option) *Pipeline {
	p := &Pipeline{artifacts: artifacts, reporter: service.NopReporter{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type segmentation struct {
	params    *scaler.Params
	selection *cluster.Selection
	profiles  []cluster.Profile
	segments  []model.CustomerSegment
}

// Run fits every model from transactions and publishes them. Either the whole artifact set
// is published or nothing is: on error or cancellation the previous run stays current.
func (p *Pipeline) Run(ctx context.Context, transactions []model.Transaction, opts Options) (*Result, error) {
	cleaned, report := ingest.Clean(transactions)
	if len(cleaned) == 0 {
		return nil, common.NewDataQualityError("ingest",
			fmt.Sprintf("no usable transactions after cleaning (%d rows read, %d dropped)", report.Rows, report.Dropped()))
	}

	var seg *segmentation
	var sim *similarity.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		seg, err = p.buildSegments(gctx, cleaned, opts)
		return err
	})
	g.Go(func() error {
		var err error
		sim, err = p.buildSimilarity(gctx, cleaned, opts.Similarity)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.reporter.Stage(StagePublish, -1)
	fit := seg.selection.Result
	bundle := &artifact.Bundle{
		Scaler: seg.params,
		Model: &cluster.Model{
			K:         seg.selection.K,
			Centroids: fit.Centroids,
			Metadata: cluster.Metadata{
				Criterion:      seg.selection.Criterion,
				Candidates:     seg.selection.Candidates,
				Seed:           opts.Select.Fit.Seed,
				CriterionValue: seg.selection.Value,
				Inertia:        fit.Inertia,
				Iterations:     fit.Iterations,
				Points:         len(seg.segments),
				Converged:      fit.Converged,
			},
		},
		Profiles: seg.profiles,
		Index:    sim.Index,
		Matrix:   sim.Matrix,
		Manifest: artifact.Manifest{
			Criterion:      seg.selection.Criterion,
			CriterionValue: seg.selection.Value,
			Weighting:      string(opts.Similarity.Weighting),
			MinSupport:     opts.Similarity.MinSupport,
			Customers:      len(seg.segments),
			Excluded:       len(sim.Excluded),
			Transactions:   len(cleaned),
		},
	}
	if bundle.Manifest.Weighting == "" {
		bundle.Manifest.Weighting = string(similarity.WeightQuantity)
	}

	manifest, err := p.artifacts.Publish(ctx, bundle, seg.segments)
	if err != nil {
		return nil, fmt.Errorf("failed to publish artifacts: %w", err)
	}
	p.reporter.Done(StagePublish)

	p.recordRun(ctx, manifest)
	if p.keep > 0 {
		if _, err := p.artifacts.Prune(p.keep); err != nil {
			slog.Warn("Failed to prune old artifact runs", "error", err)
		}
	}

	return &Result{
		Manifest:     manifest,
		Selection:    seg.selection,
		Profiles:     seg.profiles,
		Excluded:     sim.Excluded,
		Report:       report,
		Customers:    len(seg.segments),
		Products:     sim.Index.Len(),
		Pairs:        sim.Pairs,
		Transactions: len(cleaned),
	}, nil
}

func (p *Pipeline) buildSegments(ctx context.Context, transactions []model.Transaction, opts Options) (*segmentation, error) {
	rows, err := rfm.Build(transactions, opts.Snapshot)
	if err != nil {
		return nil, err
	}
	features := rfm.Matrix(rows)

	params, err := scaler.Fit(features)
	if err != nil {
		return nil, err
	}
	points := params.TransformAll(features)

	sel := opts.Select
	done := 0
	sel.OnCandidate = func(cluster.CandidateScore) {
		done++
		p.reporter.Progress(StageClustering, done)
	}

	var selection *cluster.Selection
	if opts.K > 0 {
		p.reporter.Stage(StageClustering, 1)
		selection, err = cluster.FixedK(ctx, points, opts.K, sel)
	} else {
		p.reporter.Stage(StageClustering, max(min(sel.KMax, len(points)-1)-max(sel.KMin, 2)+1, 1))
		selection, err = cluster.SelectK(ctx, points, sel)
	}
	if err != nil {
		return nil, err
	}
	p.reporter.Done(StageClustering)

	unscaled := make([][]float64, len(selection.Result.Centroids))
	for c, centroid := range selection.Result.Centroids {
		unscaled[c] = params.Inverse(centroid)
	}
	profiles := cluster.DeriveLabels(unscaled, selection.Result.Sizes)
	labels := cluster.LabelMap(profiles)

	segments := make([]model.CustomerSegment, len(rows))
	for i, row := range rows {
		c := selection.Result.Assignments[i]
		segments[i] = model.CustomerSegment{CustomerRFM: row, ClusterID: c, Label: labels[c]}
	}

	slog.Info("Selected cluster count",
		"k", selection.K,
		"criterion", selection.Criterion,
		"criterion_value", selection.Value,
		"customers", len(rows))
	for _, prof := range profiles {
		common.LogDebug("Segment profile", common.Fields{
			"label":      prof.Label,
			"cluster_id": prof.ClusterID,
			"size":       prof.Size,
			"recency":    prof.Recency,
			"frequency":  prof.Frequency,
			"monetary":   prof.Monetary,
		})
	}

	return &segmentation{params: params, selection: selection, profiles: profiles, segments: segments}, nil
}

func (p *Pipeline) buildSimilarity(ctx context.Context, transactions []model.Transaction, opts similarity.Options) (*similarity.Result, error) {
	started := false
	opts.OnProgress = func(done, total int) {
		if !started {
			p.reporter.Stage(StageSimilarity, total)
			started = true
		}
		p.reporter.Progress(StageSimilarity, done)
	}

	res, err := similarity.Build(ctx, transactions, opts)
	if err != nil {
		return nil, err
	}
	p.reporter.Done(StageSimilarity)
	return res, nil
}

// recordRun stores the fit summary. The artifacts are already published at this point, so
// a storage failure is logged rather than returned.
func (p *Pipeline) recordRun(ctx context.Context, m *artifact.Manifest) {
	if p.storage == nil {
		return
	}
	err := p.storage.RecordFitRun(ctx, &model.FitRun{
		RunID:          m.RunID,
		CreatedAt:      m.CreatedAt,
		Criterion:      m.Criterion,
		CriterionValue: m.CriterionValue,
		Weighting:      m.Weighting,
		K:              m.K,
		Customers:      m.Customers,
		Products:       m.Products,
		Transactions:   m.Transactions,
	})
	if err != nil {
		slog.Warn("Failed to record fit run", "run_id", m.RunID, "error", err)
	}
}
