package selection

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/saadabdullah098/networksecurity/internal/model"
	"github.com/saadabdullah098/networksecurity/internal/predictor"
	"github.com/saadabdullah098/networksecurity/internal/scoring"
	"github.com/saadabdullah098/networksecurity/internal/transform"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// labelled builds n rows whose first feature equals the label mapped to
// -1/1 and whose second feature is noise.
func labelled(n int, seed uint64) Dataset {
	rng := rand.New(rand.NewPCG(seed, 1))
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		y[i] = float64(i % 2)
		x.Set(i, 0, 2*y[i]-1)
		x.Set(i, 1, rng.Float64())
	}
	return Dataset{X: x, Y: y}
}

func TestStratifiedKFoldKeepsProportions(t *testing.T) {
	y := []float64{0, 0, 0, 0, 0, 0, 1, 1, 1}
	folds, err := StratifiedKFold(y, 3)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	seen := make(map[int]int)
	for _, f := range folds {
		var pos int
		for _, i := range f.Test {
			seen[i]++
			if y[i] == 1 {
				pos++
			}
		}
		assert.Len(t, f.Test, 3)
		assert.Equal(t, 1, pos)
		assert.Len(t, f.Train, 6)
	}
	assert.Len(t, seen, 9)
	assert.Equal(t, []int{0, 1, 6}, folds[0].Test)
}

func TestStratifiedKFoldRejectsTooFewRows(t *testing.T) {
	_, err := StratifiedKFold([]float64{0, 1}, 3)
	require.Error(t, err)
	_, err = StratifiedKFold([]float64{0, 1, 1}, 1)
	require.Error(t, err)
}

func TestGridSearchPicksFirstBest(t *testing.T) {
	data := labelled(30, 3)
	grid := model.TreeGrid{MaxDepth: []int{1, 2, 3}}
	est, res, err := GridSearch(context.Background(), model.DecisionTree, grid.Points(), data, 3, 4)
	require.NoError(t, err)

	require.Len(t, res.MeanScores, 3)
	for _, s := range res.MeanScores {
		assert.Equal(t, 1.0, s)
	}
	assert.Equal(t, 0, res.BestIndex)
	assert.Equal(t, 1, est.Params().(model.TreeParams).MaxDepth)
}

func TestGridSearchHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	grid := model.TreeGrid{MaxDepth: []int{1, 2}}
	_, _, err := GridSearch(ctx, model.DecisionTree, grid.Points(), labelled(30, 3), 3, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateTieGoesToFirstCandidate(t *testing.T) {
	train := labelled(40, 1)
	test := labelled(10, 2)
	reg := Registry{
		{Name: "Logistic Regression", Family: model.LogisticRegression},
		{Name: "Decision Tree", Family: model.DecisionTree, Grid: model.TreeGrid{MaxDepth: []int{2, 3}}},
	}
	res, err := Evaluate(context.Background(), train, test, reg, Options{Logger: discard()})
	require.NoError(t, err)

	require.Len(t, res.Report.Entries, 2)
	assert.Equal(t, 1.0, res.Report.Entries[0].Score)
	assert.Equal(t, 1.0, res.Report.Entries[1].Score)
	assert.Nil(t, res.Report.Entries[0].CVScore)
	require.NotNil(t, res.Report.Entries[1].CVScore)
	assert.Equal(t, 2, res.Report.Entries[1].GridPoints)

	assert.Equal(t, "Logistic Regression", res.BestName)
	assert.Equal(t, model.LogisticRegression, res.BestModel.Family())
	assert.Equal(t, res.Report.Entries[0].Score, res.BestScore)
	assert.Equal(t, "Logistic Regression", res.Report.BestModel)
}

func TestEvaluateStrictlyGreaterWins(t *testing.T) {
	train := labelled(40, 1)
	test := labelled(10, 2)
	reg := Registry{
		// Leaves of 25 rows cannot split 40 balanced rows, so the first
		// candidate predicts a single class.
		{Name: "Stump", Family: model.DecisionTree, Grid: model.TreeGrid{MinSamplesLeaf: []int{25}}},
		{Name: "Decision Tree", Family: model.DecisionTree, Grid: model.TreeGrid{MaxDepth: []int{2}}},
	}
	res, err := Evaluate(context.Background(), train, test, reg, Options{Logger: discard(), Metric: scoring.MetricAccuracy})
	require.NoError(t, err)

	assert.Equal(t, 0.5, res.Report.Entries[0].Score)
	assert.Equal(t, 1.0, res.Report.Entries[1].Score)
	assert.Equal(t, "Decision Tree", res.BestName)
	assert.Equal(t, 1.0, res.BestScore)
	assert.Equal(t, scoring.MetricAccuracy, res.Report.Metric)
}

func TestRegistryValidate(t *testing.T) {
	require.ErrorIs(t, Registry{}.Validate(), ErrNoCandidates)
	require.Error(t, Registry{{Name: "a", Family: model.AdaBoost}, {Name: "a", Family: model.AdaBoost}}.Validate())
	require.Error(t, Registry{{Name: "a", Family: model.AdaBoost, Grid: model.TreeGrid{}}}.Validate())
	require.NoError(t, DefaultRegistry().Validate())
}

func TestEvaluateRejectsEmptyTest(t *testing.T) {
	_, err := Evaluate(context.Background(), labelled(10, 1), Dataset{}, DefaultRegistry(), Options{Logger: discard()})
	require.ErrorIs(t, err, model.ErrFit)
}

func TestTrainerNeedsCandidates(t *testing.T) {
	_, err := NewTrainer(discard(), nil, Options{})
	require.ErrorIs(t, err, ErrNoCandidates)
}

type recordingObserver struct {
	names []string
}

func (r *recordingObserver) ObserveCandidate(name string, _ float64, _ int, _ time.Duration) {
	r.names = append(r.names, name)
}

func TestEvaluateNotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	reg := Registry{
		{Name: "first", Family: model.LogisticRegression},
		{Name: "second", Family: model.KNeighbors},
	}
	_, err := Evaluate(context.Background(), labelled(20, 1), labelled(6, 2), reg, Options{Logger: discard(), Observer: obs})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, obs.names)
}

func TestPackagedWinnerReproducesInMemoryPredictions(t *testing.T) {
	train := labelled(40, 1)
	test := labelled(10, 2)
	rawTest := mat.DenseCopyOf(test.X)
	rawTest.Set(3, 1, math.NaN())

	im, err := transform.NewKNNImputer(transform.DefaultImputerConfig())
	require.NoError(t, err)
	xTrain, err := im.FitTransform([]string{"a", "b"}, train.X)
	require.NoError(t, err)
	xTest, err := im.Transform(rawTest)
	require.NoError(t, err)

	reg := Registry{
		{Name: "Logistic Regression", Family: model.LogisticRegression},
		{Name: "Decision Tree", Family: model.DecisionTree, Grid: model.TreeGrid{MaxDepth: []int{2, 3}}},
	}
	res, err := Evaluate(context.Background(), Dataset{X: xTrain, Y: train.Y}, Dataset{X: xTest, Y: test.Y}, reg, Options{Logger: discard()})
	require.NoError(t, err)
	want, err := res.BestModel.Predict(xTest)
	require.NoError(t, err)

	composed, err := predictor.New(im, res.BestModel)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, predictor.Save(path, composed))
	loaded, err := predictor.Load(path)
	require.NoError(t, err)

	got, err := loaded.Predict(rawTest)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	score, err := scoring.MetricR2.Score(test.Y, got)
	require.NoError(t, err)
	assert.Equal(t, res.BestScore, score)
}
