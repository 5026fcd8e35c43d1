package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopper-spectrum/internal/artifact"
	"github.com/Veraticus/shopper-spectrum/internal/cluster"
	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/segment"
	"github.com/Veraticus/shopper-spectrum/internal/similarity"
	"github.com/Veraticus/shopper-spectrum/internal/storage"
	"github.com/Veraticus/shopper-spectrum/internal/testutil"
)

// retailHistory builds ten recent big spenders who buy the tea set together and ten stale
// small spenders.
func retailHistory(t *testing.T) []model.Transaction {
	t.Helper()
	b := testutil.NewTransactionBuilder(t)
	for i := range 10 {
		id := fmt.Sprintf("1%04d", i)
		b.WithCustomerRFM(id, 2+i, 8+i%3, 900+float64(i)*20)
		b.WithBasket(id, "", "TEAPOT", "TEACUP")
		if i%2 == 0 {
			b.WithBasket(id, "", "LANTERN")
		}
	}
	for i := range 10 {
		id := fmt.Sprintf("2%04d", i)
		b.WithCustomerRFM(id, 180+i*5, 1+i%2, 20+float64(i)*3)
	}
	// Cancelled and anonymous lines exercise the cleaner.
	b.WithLine("10000", "C900001", 5, "TEAPOT", 1, 5)
	b.WithLine("", "900002", 5, "LANTERN", 1, 5)
	return b.Build()
}

func testOptions() Options {
	return Options{
		K: 2,
		Select: cluster.SelectOptions{
			Criterion: cluster.CriterionSilhouette,
			KMin:      2,
			KMax:      5,
			Fit:       cluster.Options{Seed: 42, NInit: 4},
		},
		Similarity: similarity.Options{Weighting: similarity.WeightQuantity, MinSupport: 1},
	}
}

type recordingReporter struct {
	stages   map[string]int
	finished map[string]bool
	mu       sync.Mutex
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{stages: make(map[string]int), finished: make(map[string]bool)}
}

func (r *recordingReporter) Stage(name string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[name] = total
}

func (r *recordingReporter) Progress(string, int) {}

func (r *recordingReporter) Done(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[name] = true
}

func TestRun_PublishesCompleteArtifactSet(t *testing.T) {
	ctx := context.Background()
	manager := artifact.NewManager(t.TempDir())

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(ctx))

	reporter := newRecordingReporter()
	p := New(manager, WithStorage(store), WithReporter(reporter), WithKeep(3))

	res, err := p.Run(ctx, retailHistory(t), testOptions())
	require.NoError(t, err)

	assert.Equal(t, 20, res.Customers)
	assert.Equal(t, 4, res.Products, "gift vouchers, lantern, teacup, teapot")
	assert.Equal(t, 1, res.Report.Cancelled)
	assert.Equal(t, 1, res.Report.Anonymous)
	assert.Equal(t, cluster.CriterionFixed, res.Selection.Criterion)
	require.Len(t, res.Profiles, 2)

	bundle, err := manager.LoadCurrent()
	require.NoError(t, err)
	assert.Equal(t, res.Manifest.RunID, bundle.Manifest.RunID)
	assert.Equal(t, 2, bundle.Model.K)
	assert.Equal(t, uint64(42), bundle.Model.Metadata.Seed)

	predictor, err := segment.NewPredictor(bundle.Scaler, bundle.Model, bundle.Labels())
	require.NoError(t, err)
	best, err := predictor.Predict(3, 9, 1000)
	require.NoError(t, err)
	assert.Equal(t, cluster.LabelBest, best.Label)
	worst, err := predictor.Predict(200, 1, 25)
	require.NoError(t, err)
	assert.Equal(t, cluster.LabelWorst, worst.Label)

	teapot, ok := bundle.Index.Position("TEAPOT")
	require.True(t, ok)
	teacup, ok := bundle.Index.Position("TEACUP")
	require.True(t, ok)
	assert.InDelta(t, 1.0, bundle.Matrix.At(teapot, teacup), 1e-9)

	runs, err := store.ListFitRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.Manifest.RunID, runs[0].RunID)
	assert.Equal(t, 20, runs[0].Customers)

	for _, stage := range []string{StageClustering, StageSimilarity, StagePublish} {
		assert.True(t, reporter.finished[stage], stage)
	}
}

func TestRun_SelectsKAutomatically(t *testing.T) {
	opts := testOptions()
	opts.K = 0

	res, err := New(artifact.NewManager(t.TempDir())).Run(context.Background(), retailHistory(t), opts)
	require.NoError(t, err)
	assert.Equal(t, cluster.CriterionSilhouette, res.Selection.Criterion)
	assert.Len(t, res.Selection.Candidates, 4)
	assert.Equal(t, res.Selection.K, res.Manifest.K)
}

func TestRun_Reproducible(t *testing.T) {
	txns := retailHistory(t)

	first, err := New(artifact.NewManager(t.TempDir())).Run(context.Background(), txns, testOptions())
	require.NoError(t, err)
	second, err := New(artifact.NewManager(t.TempDir())).Run(context.Background(), txns, testOptions())
	require.NoError(t, err)

	require.Len(t, second.Selection.Result.Centroids, len(first.Selection.Result.Centroids))
	for c := range first.Selection.Result.Centroids {
		assert.InDeltaSlice(t, first.Selection.Result.Centroids[c], second.Selection.Result.Centroids[c], 1e-9)
	}
	assert.Equal(t, first.Profiles, second.Profiles)
}

func TestRun_FailureLeavesPreviousRunCurrent(t *testing.T) {
	manager := artifact.NewManager(t.TempDir())
	p := New(manager)

	first, err := p.Run(context.Background(), retailHistory(t), testOptions())
	require.NoError(t, err)

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Run(ctx, retailHistory(t), testOptions())
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero variance", func(t *testing.T) {
		b := testutil.NewTransactionBuilder(t)
		for i := range 5 {
			b.WithCustomerRFM(fmt.Sprintf("3%04d", i), 10, 2, 100)
		}
		_, err := p.Run(context.Background(), b.Build(), testOptions())
		assert.ErrorIs(t, err, common.ErrDataQuality)
	})

	t.Run("nothing survives cleaning", func(t *testing.T) {
		txns := testutil.NewTransactionBuilder(t).
			WithLine("10001", "C1", 3, "TEAPOT", 1, 2).
			Build()
		_, err := p.Run(context.Background(), txns, testOptions())
		assert.ErrorIs(t, err, common.ErrDataQuality)
	})

	current, err := manager.Current()
	require.NoError(t, err)
	assert.Equal(t, first.Manifest.RunID, current)

	runs, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
