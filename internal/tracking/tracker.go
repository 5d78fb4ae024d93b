package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
)

// TagModelPath records where the model lives when the run's artifact
// store cannot be written through the server.
const TagModelPath = "model_path"

// Training is what one pipeline run reports.
type Training struct {
	RunName     string
	BestModel   string
	Family      string
	Metric      string
	BestScore   float64
	Params      map[string]any
	TrainMetric artifact.ClassificationMetric
	TestMetric  artifact.ClassificationMetric
	ModelPath   string
}

type Tracker interface {
	TrackTraining(ctx context.Context, t Training) error
}

type Nop struct{}

func (Nop) TrackTraining(context.Context, Training) error { return nil }

type MLflow struct {
	client     *Client
	experiment string
	logger     *slog.Logger
	now        func() time.Time
}

func NewMLflow(client *Client, experiment string, logger *slog.Logger) *MLflow {
	return &MLflow{client: client, experiment: experiment, logger: logger, now: time.Now}
}

// TrackTraining opens one tracking run holding the split metrics, the
// winner's hyperparameters and the serialized model.
func (m *MLflow) TrackTraining(ctx context.Context, t Training) (err error) {
	expID, err := m.client.EnsureExperiment(ctx, m.experiment)
	if err != nil {
		return fmt.Errorf("experiment %s: %w", m.experiment, err)
	}
	run, err := m.client.CreateRun(ctx, expID, t.RunName, m.now(), []Tag{
		{Key: "model_type", Value: t.Family},
		{Key: "best_model", Value: t.BestModel},
		{Key: "pipeline_run", Value: t.RunName},
	})
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	defer func() {
		status := "FINISHED"
		if err != nil {
			status = "FAILED"
		}
		if ferr := m.client.FinishRun(context.WithoutCancel(ctx), run.ID, status, m.now()); ferr != nil && err == nil {
			err = fmt.Errorf("finish run: %w", ferr)
		}
	}()

	at := m.now()
	metrics := []struct {
		key   string
		value float64
	}{
		{"train_f1_score", t.TrainMetric.F1},
		{"train_precision", t.TrainMetric.Precision},
		{"train_recall_score", t.TrainMetric.Recall},
		{"test_f1_score", t.TestMetric.F1},
		{"test_precision", t.TestMetric.Precision},
		{"test_recall_score", t.TestMetric.Recall},
		{"best_" + t.Metric, t.BestScore},
	}
	for _, mt := range metrics {
		if err := m.client.LogMetric(ctx, run.ID, mt.key, mt.value, at); err != nil {
			return fmt.Errorf("log metric %s: %w", mt.key, err)
		}
	}

	keys := make([]string, 0, len(t.Params))
	for k := range t.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.client.LogParam(ctx, run.ID, k, fmt.Sprint(t.Params[k])); err != nil {
			return fmt.Errorf("log param %s: %w", k, err)
		}
	}

	if t.ModelPath != "" {
		err := m.client.LogArtifact(ctx, run, t.ModelPath, "model")
		switch {
		case errors.Is(err, ErrArtifactsUnsupported):
			m.logger.Warn("model artifact not uploaded", "run_id", run.ID, "artifact_uri", run.ArtifactURI)
			if err := m.client.SetTag(ctx, run.ID, TagModelPath, t.ModelPath); err != nil {
				return fmt.Errorf("tag model path: %w", err)
			}
		case err != nil:
			return fmt.Errorf("log artifact: %w", err)
		}
	}
	m.logger.Info("training tracked", "run_id", run.ID, "experiment_id", expID)
	return nil
}
