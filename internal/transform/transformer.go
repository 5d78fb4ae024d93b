// Package transform turns validated splits into numeric training matrices:
// missing inputs are imputed by nearest neighbours and -1 labels become 0.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/persist"
)

// DefaultTarget is the label column of the phishing dataset.
const DefaultTarget = "Result"

var ErrInvalidInput = errors.New("validation did not pass")

type Transformer struct {
	logger  *slog.Logger
	target  string
	imputer ImputerConfig
}

func NewTransformer(logger *slog.Logger, target string, cfg ImputerConfig) (*Transformer, error) {
	if target == "" {
		target = DefaultTarget
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Transformer{logger: logger, target: target, imputer: cfg}, nil
}

// Run fits the imputer on the train inputs only and applies it to both
// splits. Each output matrix holds the imputed inputs followed by the
// remapped label as its last column.
func (t *Transformer) Run(ctx context.Context, run *artifact.Run, in artifact.ValidationArtifact) (artifact.TransformationArtifact, error) {
	if !in.Status {
		return artifact.TransformationArtifact{}, pkgerrors.WithStack(ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return artifact.TransformationArtifact{}, err
	}

	train, err := dataset.ReadCSVFile(in.ValidTrainPath)
	if err != nil {
		return artifact.TransformationArtifact{}, fmt.Errorf("read train split: %w", err)
	}
	test, err := dataset.ReadCSVFile(in.ValidTestPath)
	if err != nil {
		return artifact.TransformationArtifact{}, fmt.Errorf("read test split: %w", err)
	}

	xTrain, yTrain, features, err := t.split(train, nil)
	if err != nil {
		return artifact.TransformationArtifact{}, fmt.Errorf("train split: %w", err)
	}
	xTest, yTest, _, err := t.split(test, features)
	if err != nil {
		return artifact.TransformationArtifact{}, fmt.Errorf("test split: %w", err)
	}

	imputer, err := NewKNNImputer(t.imputer)
	if err != nil {
		return artifact.TransformationArtifact{}, err
	}
	trainOut, err := imputer.FitTransform(features, xTrain)
	if err != nil {
		return artifact.TransformationArtifact{}, fmt.Errorf("fit imputer: %w", err)
	}
	testOut, err := imputer.Transform(xTest)
	if err != nil {
		return artifact.TransformationArtifact{}, fmt.Errorf("impute test: %w", err)
	}

	layout := run.Layout()
	if err := persist.SaveMatrix(layout.TransformedTrain, WithLabels(trainOut, yTrain)); err != nil {
		return artifact.TransformationArtifact{}, err
	}
	if err := persist.SaveMatrix(layout.TransformedTest, WithLabels(testOut, yTest)); err != nil {
		return artifact.TransformationArtifact{}, err
	}
	if err := persist.SaveObject(layout.Preprocessor, imputer); err != nil {
		return artifact.TransformationArtifact{}, err
	}

	t.logger.Info("data transformation finished",
		"train_rows", len(yTrain),
		"test_rows", len(yTest),
		"features", len(features),
		"imputed_train_cells", train.CountMissing(),
	)
	return artifact.TransformationArtifact{
		PreprocessorPath: layout.Preprocessor,
		TrainPath:        layout.TransformedTrain,
		TestPath:         layout.TransformedTest,
	}, nil
}

// split separates the target column from the inputs. When order is given the
// inputs are arranged in that column order.
func (t *Transformer) split(f *dataset.Frame, order []string) (*mat.Dense, []float64, []string, error) {
	labels, ok := f.Column(t.target)
	if !ok {
		return nil, nil, nil, fmt.Errorf("target column %q not found", t.target)
	}
	y, err := RemapLabels(labels)
	if err != nil {
		return nil, nil, nil, err
	}
	inputs, err := f.Drop(t.target)
	if err != nil {
		return nil, nil, nil, err
	}
	if order != nil {
		if inputs, err = inputs.Select(order); err != nil {
			return nil, nil, nil, err
		}
	}
	x, err := inputs.Dense()
	if err != nil {
		return nil, nil, nil, err
	}
	return x, y, inputs.Columns(), nil
}

// WithLabels appends y to x as the last column.
func WithLabels(x *mat.Dense, y []float64) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c+1, nil)
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(x)
	out.SetCol(c, y)
	return out
}

// SplitLabels separates the last column of m from the rest.
func SplitLabels(m *mat.Dense) (*mat.Dense, []float64, error) {
	r, c := m.Dims()
	if c < 2 {
		return nil, nil, fmt.Errorf("matrix has %d columns, want inputs and a label", c)
	}
	x := mat.DenseCopyOf(m.Slice(0, r, 0, c-1))
	y := mat.Col(nil, c-1, m)
	return x, y, nil
}
