package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/docstore"
	"github.com/saadabdullah098/networksecurity/internal/ingestion"
	"github.com/saadabdullah098/networksecurity/internal/ledger"
	"github.com/saadabdullah098/networksecurity/internal/model"
	"github.com/saadabdullah098/networksecurity/internal/persist"
	"github.com/saadabdullah098/networksecurity/internal/platform/objectstore"
	"github.com/saadabdullah098/networksecurity/internal/predictor"
	"github.com/saadabdullah098/networksecurity/internal/scoring"
	"github.com/saadabdullah098/networksecurity/internal/selection"
	"github.com/saadabdullah098/networksecurity/internal/telemetry"
	"github.com/saadabdullah098/networksecurity/internal/transform"
	"github.com/saadabdullah098/networksecurity/internal/validation"
)

const (
	testDB         = "netsec"
	testCollection = "phishing"
	testSchema     = `
columns:
  - a: int64
  - b: int64
  - c: int64
  - Result: int64
`
)

// phishingFrame has 100 rows with balanced -1/1 labels. Column a equals the
// label, b agrees with it on 80% of rows and c is unrelated with 5 missing
// cells.
func phishingFrame(t *testing.T) *dataset.Frame {
	t.Helper()
	rows := make([][]float64, 100)
	for i := range rows {
		y := 1.0
		if i%2 == 1 {
			y = -1
		}
		b := y
		if i%5 == 0 {
			b = -y
		}
		c := -1.0
		if i%3 == 0 {
			c = 1
		}
		if i%20 == 7 {
			c = math.NaN()
		}
		rows[i] = []float64{y, b, c, y}
	}
	f, err := dataset.New([]string{"a", "b", "c", "Result"}, rows)
	require.NoError(t, err)
	return f
}

type fixture struct {
	root    string
	source  *docstore.Memory
	store   *objectstore.Memory
	ledger  *ledger.Memory
	metrics *telemetry.Metrics
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		root:    t.TempDir(),
		source:  docstore.NewMemory(),
		store:   objectstore.NewMemory(),
		ledger:  ledger.NewMemory(),
		metrics: telemetry.New(false),
		now:     time.Date(2025, 7, 4, 13, 45, 9, 0, time.UTC),
	}
	_, err := fx.source.InsertRecords(context.Background(), testDB, testCollection, docstore.DocumentsFromFrame(phishingFrame(t)))
	require.NoError(t, err)
	return fx
}

func (fx *fixture) pipeline(t *testing.T, source docstore.Source, schemaYAML string) *Pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ing, err := ingestion.New(logger, source, ingestion.Config{
		Database:   testDB,
		Collection: testCollection,
		Split:      ingestion.SplitOptions{TestRatio: 0.1, Seed: 7, StratifyBy: "Result"},
	})
	require.NoError(t, err)
	schema, err := validation.ParseSchema([]byte(schemaYAML))
	require.NoError(t, err)
	val, err := validation.New(logger, schema, 0.01, validation.WithObserver(fx.metrics))
	require.NoError(t, err)
	tra, err := transform.NewTransformer(logger, "Result", transform.DefaultImputerConfig())
	require.NoError(t, err)
	trn, err := selection.NewTrainer(logger, selection.Registry{
		{Name: "Logistic Regression", Family: model.LogisticRegression},
		{Name: "Decision Tree", Family: model.DecisionTree, Grid: model.TreeGrid{MaxDepth: []int{2, 3}}},
	}, selection.Options{Metric: scoring.MetricAccuracy, Observer: fx.metrics})
	require.NoError(t, err)

	p, err := New(logger, Stages{Ingestion: ing, Validation: val, Transformation: tra, Trainer: trn}, Options{
		ArtifactRoot:    filepath.Join(fx.root, "Artifacts"),
		FinalModelDir:   filepath.Join(fx.root, "final_model"),
		Store:           fx.store,
		ArtifactsBucket: "artifacts",
		ModelsBucket:    "models",
		Ledger:          fx.ledger,
		Metrics:         fx.metrics,
		Now:             func() time.Time { return fx.now },
	})
	require.NoError(t, err)
	return p
}

func TestRunEndToEnd(t *testing.T) {
	fx := newFixture(t)
	p := fx.pipeline(t, fx.source, testSchema)
	ctx := context.Background()

	res, err := p.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, res.Status)
	require.NotNil(t, res.Validation)
	assert.True(t, res.Validation.Status)
	assert.Equal(t, 100, res.Ingestion.Rows)

	trainM, err := persist.LoadMatrix(res.Transformation.TrainPath)
	require.NoError(t, err)
	testM, err := persist.LoadMatrix(res.Transformation.TestPath)
	require.NoError(t, err)
	r, c := trainM.Dims()
	assert.Equal(t, 90, r)
	assert.Equal(t, 4, c)
	r, _ = testM.Dims()
	assert.Equal(t, 10, r)
	for _, m := range []mat.Matrix{trainM, testM} {
		rows, cols := m.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				require.False(t, math.IsNaN(m.At(i, j)), "missing value at %d,%d", i, j)
			}
		}
	}

	var report selection.Report
	require.NoError(t, persist.ReadYAML(res.Trainer.ReportPath, &report))
	require.Len(t, report.Entries, 2)
	best := report.Entries[0]
	for _, e := range report.Entries[1:] {
		if e.Score > best.Score {
			best = e
		}
	}
	assert.Equal(t, best.Name, res.Trainer.BestModel)
	assert.Equal(t, best.Score, res.Trainer.BestScore)
	assert.GreaterOrEqual(t, res.Trainer.TestMetric.F1, 0.8)

	require.NotNil(t, res.Published)
	loaded, err := predictor.Load(res.Published.ModelPath)
	require.NoError(t, err)
	holdout, err := dataset.ReadCSVFile(res.Validation.ValidTestPath)
	require.NoError(t, err)
	got, err := loaded.PredictFrame(holdout)
	require.NoError(t, err)
	_, yTest, err := transform.SplitLabels(testM)
	require.NoError(t, err)
	// The trainer scored the in-memory winner on the same rows.
	assert.Equal(t, res.Trainer.TestMetric, scoring.Classification(yTest, got))
	assert.FileExists(t, res.Published.PreprocessorPath)

	entries, err := fx.ledger.ListByRun(ctx, res.Run.Timestamp)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for _, e := range entries {
		assert.Equal(t, ledger.StatusSucceeded, e.Status, e.Stage)
	}

	models, err := fx.store.List(ctx, "models", "final_model/"+res.Run.Timestamp)
	require.NoError(t, err)
	assert.Len(t, models, 2)
	assert.Positive(t, res.Published.ArtifactsUploaded)

	n, err := testutil.GatherAndCount(fx.metrics.Registry(), "netsec_pipeline_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunRejectsSchemaMismatch(t *testing.T) {
	fx := newFixture(t)
	p := fx.pipeline(t, fx.source, testSchema+"  - d: int64\n")

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	require.NotNil(t, res.Validation)
	assert.False(t, res.Validation.Status)
	assert.NotEmpty(t, res.Validation.Problems)
	assert.Nil(t, res.Transformation)
	assert.Nil(t, res.Trainer)
	assert.FileExists(t, res.Validation.InvalidTrainPath)

	entries, err := fx.ledger.ListByRun(context.Background(), res.Run.Timestamp)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.StatusRejected, entries[1].Status)
}

type downSource struct{}

func (downSource) FetchCollection(context.Context, string, string) (*dataset.Frame, error) {
	return nil, fmt.Errorf("dial: %w", docstore.ErrUnavailable)
}

func TestRunWrapsStageFailure(t *testing.T) {
	fx := newFixture(t)
	p := fx.pipeline(t, downSource{}, testSchema)

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, artifact.StageIngestion, serr.Stage)
	assert.Equal(t, KindConnectivity, serr.Kind)
	assert.NotEmpty(t, serr.Origin)
	assert.ErrorIs(t, err, docstore.ErrUnavailable)
	assert.Contains(t, err.Error(), "data_ingestion: ingest failed")

	entries, err := fx.ledger.ListByRun(context.Background(), res.Run.Timestamp)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(KindConnectivity), entries[0].ErrorKind)
}

// mislabelledTrainer fits a real estimator on a label outside {0, 1}.
type mislabelledTrainer struct{}

func (mislabelledTrainer) Run(context.Context, *artifact.Run, artifact.TransformationArtifact) (artifact.TrainerArtifact, error) {
	est, err := model.LogisticRegression.New(nil)
	if err != nil {
		return artifact.TrainerArtifact{}, err
	}
	x := mat.NewDense(2, 1, []float64{0, 1})
	if err := est.Fit(x, []float64{0, 2}); err != nil {
		return artifact.TrainerArtifact{}, fmt.Errorf("fit candidate: %w", err)
	}
	return artifact.TrainerArtifact{}, nil
}

func TestRunStageErrorNamesFitOrigin(t *testing.T) {
	fx := newFixture(t)
	p := fx.pipeline(t, fx.source, testSchema)
	p.stages.Trainer = mislabelledTrainer{}

	_, err := p.Run(context.Background())
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, artifact.StageTrainer, serr.Stage)
	assert.Equal(t, KindFit, serr.Kind)
	assert.ErrorIs(t, err, model.ErrFit)
	assert.True(t, strings.HasPrefix(serr.Origin, "family.go:"), serr.Origin)
}

func TestRunStageErrorNamesLabelOrigin(t *testing.T) {
	fx := newFixture(t)
	src := docstore.NewMemory()
	f := phishingFrame(t)
	rows := make([][]float64, f.NumRows())
	for i := range rows {
		rows[i] = append([]float64(nil), f.Row(i)...)
		if rows[i][3] == -1 {
			rows[i][3] = 2
		}
	}
	relabelled, err := dataset.New(f.Columns(), rows)
	require.NoError(t, err)
	_, err = src.InsertRecords(context.Background(), testDB, testCollection, docstore.DocumentsFromFrame(relabelled))
	require.NoError(t, err)
	p := fx.pipeline(t, src, testSchema)

	_, err = p.Run(context.Background())
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, artifact.StageTransformation, serr.Stage)
	assert.Equal(t, KindValidation, serr.Kind)
	assert.ErrorIs(t, err, transform.ErrInvalidLabel)
	assert.True(t, strings.HasPrefix(serr.Origin, "labels.go:"), serr.Origin)
}

func TestRunStageReusesSavedPredecessor(t *testing.T) {
	fx := newFixture(t)
	p := fx.pipeline(t, fx.source, testSchema)
	ctx := context.Background()

	first, err := p.Run(ctx)
	require.NoError(t, err)

	res, err := p.RunStage(ctx, artifact.StageTrainer, first.Run.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Nil(t, res.Ingestion)
	require.NotNil(t, res.Trainer)
	assert.Equal(t, first.Trainer.BestModel, res.Trainer.BestModel)

	attempt, err := ledger.NextAttempt(ctx, fx.ledger, first.Run.Timestamp, string(artifact.StageTrainer))
	require.NoError(t, err)
	assert.Equal(t, 3, attempt)

	res, err = p.RunStage(ctx, artifact.StageValidation, first.Run.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Nil(t, res.Trainer)
}

func TestRunStageDetectsModifiedOutput(t *testing.T) {
	fx := newFixture(t)
	p := fx.pipeline(t, fx.source, testSchema)
	ctx := context.Background()

	first, err := p.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first.Transformation.TrainPath, []byte("tampered"), 0o644))

	_, err = p.RunStage(ctx, artifact.StageTrainer, first.Run.Timestamp)
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "load predecessor", serr.Op)
	assert.Equal(t, KindValidation, serr.Kind)
	assert.ErrorIs(t, err, artifact.ErrOutputModified)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{fmt.Errorf("x: %w", validation.ErrInvalidSchema), KindSchema},
		{fmt.Errorf("x: %w", model.ErrFit), KindFit},
		{context.Canceled, KindCanceled},
		{os.ErrNotExist, KindIO},
		{fmt.Errorf("x: %w", transform.ErrInvalidLabel), KindValidation},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), tc.err.Error())
	}
}
