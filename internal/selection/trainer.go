package selection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/persist"
	"github.com/saadabdullah098/networksecurity/internal/predictor"
	"github.com/saadabdullah098/networksecurity/internal/scoring"
	"github.com/saadabdullah098/networksecurity/internal/transform"
)

// Trainer is the model training stage.
type Trainer struct {
	logger     *slog.Logger
	candidates Registry
	opts       Options
}

func NewTrainer(logger *slog.Logger, candidates Registry, opts Options) (*Trainer, error) {
	if err := candidates.Validate(); err != nil {
		return nil, err
	}
	opts.Logger = logger
	return &Trainer{logger: logger, candidates: candidates, opts: opts.withDefaults()}, nil
}

// Run loads the transformed splits, selects the best candidate and saves it
// composed with the fitted imputer.
func (t *Trainer) Run(ctx context.Context, run *artifact.Run, in artifact.TransformationArtifact) (artifact.TrainerArtifact, error) {
	trainM, err := persist.LoadMatrix(in.TrainPath)
	if err != nil {
		return artifact.TrainerArtifact{}, fmt.Errorf("load train matrix: %w", err)
	}
	testM, err := persist.LoadMatrix(in.TestPath)
	if err != nil {
		return artifact.TrainerArtifact{}, fmt.Errorf("load test matrix: %w", err)
	}
	xTrain, yTrain, err := transform.SplitLabels(trainM)
	if err != nil {
		return artifact.TrainerArtifact{}, err
	}
	xTest, yTest, err := transform.SplitLabels(testM)
	if err != nil {
		return artifact.TrainerArtifact{}, err
	}
	var imputer transform.KNNImputer
	if err := persist.LoadObject(in.PreprocessorPath, &imputer); err != nil {
		return artifact.TrainerArtifact{}, fmt.Errorf("load preprocessor: %w", err)
	}

	res, err := Evaluate(ctx, Dataset{X: xTrain, Y: yTrain}, Dataset{X: xTest, Y: yTest}, t.candidates, t.opts)
	if err != nil {
		return artifact.TrainerArtifact{}, err
	}

	trainPred, err := res.BestModel.Predict(xTrain)
	if err != nil {
		return artifact.TrainerArtifact{}, err
	}
	testPred, err := res.BestModel.Predict(xTest)
	if err != nil {
		return artifact.TrainerArtifact{}, err
	}

	composed, err := predictor.New(&imputer, res.BestModel)
	if err != nil {
		return artifact.TrainerArtifact{}, err
	}
	layout := run.Layout()
	if err := predictor.Save(layout.Model, composed); err != nil {
		return artifact.TrainerArtifact{}, fmt.Errorf("save model: %w", err)
	}
	if err := persist.WriteYAML(layout.ModelReport, res.Report); err != nil {
		return artifact.TrainerArtifact{}, fmt.Errorf("write model report: %w", err)
	}

	out := artifact.TrainerArtifact{
		ModelPath:   layout.Model,
		ReportPath:  layout.ModelReport,
		BestModel:   res.BestName,
		BestScore:   res.BestScore,
		TrainMetric: scoring.Classification(yTrain, trainPred),
		TestMetric:  scoring.Classification(yTest, testPred),
	}
	t.logger.Info("model training finished",
		"best_model", res.BestName,
		"best_score", res.BestScore,
		"test_f1", out.TestMetric.F1,
	)
	return out, nil
}
