package transform

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/persist"
)

var nan = math.NaN()

func TestImputerUniformNeighbours(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 1,
		2, 2,
		3, 3,
		nan, 2.1,
	})
	im, err := NewKNNImputer(ImputerConfig{NNeighbors: 2, Weights: WeightsUniform})
	require.NoError(t, err)

	out, err := im.FitTransform([]string{"a", "b"}, x)
	require.NoError(t, err)
	// nearest donors on b are rows 1 (2) and 2 (3) for b=2.1 vs row 0.
	assert.InDelta(t, 2.5, out.At(3, 0), 1e-12)
	assert.Equal(t, 1.0, out.At(0, 0))
	assert.True(t, math.IsNaN(x.At(3, 0)), "input must not be modified")
}

func TestImputerDistanceWeightsExactMatch(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		5, 1,
		9, 2,
		nan, 1,
	})
	im, err := NewKNNImputer(ImputerConfig{NNeighbors: 2, Weights: WeightsDistance})
	require.NoError(t, err)
	out, err := im.FitTransform([]string{"a", "b"}, x)
	require.NoError(t, err)
	assert.Equal(t, 5.0, out.At(2, 0))
}

func TestImputerFallsBackToColumnMean(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		1, nan,
		3, nan,
		nan, nan,
	})
	im, err := NewKNNImputer(DefaultImputerConfig())
	require.NoError(t, err)
	out, err := im.FitTransform([]string{"a", "b"}, x)
	require.NoError(t, err)

	assert.Equal(t, 2.0, out.At(2, 0))
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, out.At(i, 1))
	}
}

func TestImputerNaNEuclideanScaling(t *testing.T) {
	im := &KNNImputer{cfg: DefaultImputerConfig(), fit: mat.NewDense(1, 3, []float64{0, 0, 0}), means: []float64{0, 0, 0}}
	d := im.distances([]float64{3, nan, 4})
	// sqrt(3/2 * (9+16))
	assert.InDelta(t, math.Sqrt(1.5*25), d[0], 1e-12)
}

func TestImputerRejectsWidthMismatch(t *testing.T) {
	im, err := NewKNNImputer(DefaultImputerConfig())
	require.NoError(t, err)
	_, err = im.Transform(mat.NewDense(1, 1, []float64{1}))
	require.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, im.Fit([]string{"a", "b"}, mat.NewDense(1, 2, []float64{1, 2})))
	_, err = im.Transform(mat.NewDense(1, 3, []float64{1, 2, 3}))
	require.Error(t, err)
}

func TestImputerJSONRoundTrip(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{1, nan, 2, 4, nan, 6})
	im, err := NewKNNImputer(ImputerConfig{NNeighbors: 1, Weights: WeightsUniform})
	require.NoError(t, err)
	require.NoError(t, im.Fit([]string{"a", "b"}, x))

	raw, err := json.Marshal(im)
	require.NoError(t, err)
	var back KNNImputer
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, []string{"a", "b"}, back.Features())

	sample := mat.NewDense(1, 2, []float64{nan, 5})
	want, err := im.Transform(sample)
	require.NoError(t, err)
	got, err := back.Transform(sample)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestImputerConfigValidate(t *testing.T) {
	require.Error(t, ImputerConfig{NNeighbors: 0, Weights: WeightsUniform}.Validate())
	require.Error(t, ImputerConfig{NNeighbors: 3, Weights: "gaussian"}.Validate())
}

func TestRemapLabels(t *testing.T) {
	got, err := RemapLabels([]float64{-1, 1, 0, -1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0, 0}, got)

	again, err := RemapLabels(got)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	_, err = RemapLabels([]float64{2})
	require.ErrorIs(t, err, ErrInvalidLabel)
	_, err = RemapLabels([]float64{nan})
	require.ErrorIs(t, err, ErrInvalidLabel)
}

func TestWithAndSplitLabels(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	m := WithLabels(x, []float64{0, 1})
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)

	bx, y, err := SplitLabels(m)
	require.NoError(t, err)
	assert.True(t, mat.Equal(x, bx))
	assert.Equal(t, []float64{0, 1}, y)
}

func TestTransformerRun(t *testing.T) {
	run, err := artifact.NewRun(t.TempDir(), time.Now())
	require.NoError(t, err)
	layout := run.Layout()

	train, err := dataset.New([]string{"a", "Result", "b"}, [][]float64{
		{1, 1, 1},
		{-1, -1, -1},
		{1, 1, nan},
		{-1, -1, -1},
		{1, 1, 1},
	})
	require.NoError(t, err)
	test, err := dataset.New([]string{"b", "a", "Result"}, [][]float64{
		{nan, 1, 1},
		{-1, -1, -1},
	})
	require.NoError(t, err)
	require.NoError(t, dataset.WriteCSVFile(layout.ValidTrain, train))
	require.NoError(t, dataset.WriteCSVFile(layout.ValidTest, test))

	tr, err := NewTransformer(slog.New(slog.NewTextHandler(io.Discard, nil)), "", ImputerConfig{NNeighbors: 2, Weights: WeightsUniform})
	require.NoError(t, err)
	out, err := tr.Run(context.Background(), run, artifact.ValidationArtifact{
		Status:         true,
		ValidTrainPath: layout.ValidTrain,
		ValidTestPath:  layout.ValidTest,
	})
	require.NoError(t, err)

	trainM, err := persist.LoadMatrix(out.TrainPath)
	require.NoError(t, err)
	r, c := trainM.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 1.0, trainM.At(2, 1), "imputed from the two a=1 rows")
	assert.Equal(t, []float64{1, 0, 1, 0, 1}, mat.Col(nil, 2, trainM))

	testM, err := persist.LoadMatrix(out.TestPath)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testM.At(0, 0), "test columns follow train order")
	assert.Equal(t, 1.0, testM.At(0, 1))
	assert.Equal(t, 0.0, testM.At(1, 2))

	var im KNNImputer
	require.NoError(t, persist.LoadObject(out.PreprocessorPath, &im))
	assert.Equal(t, []string{"a", "b"}, im.Features())
}

func TestTransformerRejectsInvalidValidation(t *testing.T) {
	tr, err := NewTransformer(slog.New(slog.NewTextHandler(io.Discard, nil)), "Result", DefaultImputerConfig())
	require.NoError(t, err)
	_, err = tr.Run(context.Background(), nil, artifact.ValidationArtifact{Status: false})
	require.ErrorIs(t, err, ErrInvalidInput)
}
