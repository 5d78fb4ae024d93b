package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/ledger"
	"github.com/saadabdullah098/networksecurity/internal/persist"
	"github.com/saadabdullah098/networksecurity/internal/platform/objectstore"
	"github.com/saadabdullah098/networksecurity/internal/selection"
	"github.com/saadabdullah098/networksecurity/internal/tracking"
)

const (
	FinalModelFile        = "model.json"
	FinalPreprocessorFile = "preprocessor.json"
)

// Publication is where the trained model ended up.
type Publication struct {
	ModelPath         string
	PreprocessorPath  string
	ArtifactsPrefix   string
	ModelsPrefix      string
	ArtifactsUploaded int
	ModelsUploaded    int
}

// publish promotes the composed predictor to the final model directory,
// mirrors the run and the final model to object storage and reports the
// training to the tracker.
func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, run *artifact.Run, in artifact.TransformationArtifact, trained artifact.TrainerArtifact) (Publication, error) {
	start := p.opts.Now()
	logger = logger.With("stage", StagePublish)

	pub, err := p.doPublish(ctx, logger, run, in, trained)
	elapsed := p.opts.Now().Sub(start)
	if err != nil {
		serr := stageError(StagePublish, "publish", err)
		p.opts.Metrics.ObserveStage(string(StagePublish), string(StatusFailed), elapsed)
		p.opts.Metrics.ObserveStageFailure(string(StagePublish), string(serr.Kind))
		p.record(ctx, logger, run, StagePublish, start, ledger.StatusFailed, serr, nil)
		logger.Error("publish failed", "kind", serr.Kind, "err", serr.Err)
		return Publication{}, serr
	}
	p.opts.Metrics.ObserveStage(string(StagePublish), string(StatusSucceeded), elapsed)
	p.record(ctx, logger, run, StagePublish, start, ledger.StatusSucceeded, nil, pub)
	logger.Info("model published", "model", pub.ModelPath, "artifacts_uploaded", pub.ArtifactsUploaded, "models_uploaded", pub.ModelsUploaded)
	return pub, nil
}

func (p *Pipeline) doPublish(ctx context.Context, logger *slog.Logger, run *artifact.Run, in artifact.TransformationArtifact, trained artifact.TrainerArtifact) (Publication, error) {
	pub := Publication{
		ModelPath:        filepath.Join(p.opts.FinalModelDir, FinalModelFile),
		PreprocessorPath: filepath.Join(p.opts.FinalModelDir, FinalPreprocessorFile),
	}
	if err := copyFile(trained.ModelPath, pub.ModelPath); err != nil {
		return pub, err
	}
	if err := copyFile(in.PreprocessorPath, pub.PreprocessorPath); err != nil {
		return pub, err
	}

	if p.opts.Store != nil {
		pub.ArtifactsPrefix = path.Join("artifact", run.Timestamp)
		res, err := objectstore.SyncDir(ctx, p.opts.Store, p.opts.ArtifactsBucket, run.Dir, pub.ArtifactsPrefix)
		if err != nil {
			return pub, err
		}
		pub.ArtifactsUploaded = res.Uploaded

		pub.ModelsPrefix = path.Join("final_model", run.Timestamp)
		res, err = objectstore.SyncDir(ctx, p.opts.Store, p.opts.ModelsBucket, p.opts.FinalModelDir, pub.ModelsPrefix)
		if err != nil {
			return pub, err
		}
		pub.ModelsUploaded = res.Uploaded
	}

	var report selection.Report
	if err := persist.ReadYAML(trained.ReportPath, &report); err != nil {
		return pub, err
	}
	t := tracking.Training{
		RunName:     run.Timestamp,
		BestModel:   trained.BestModel,
		Metric:      string(report.Metric),
		BestScore:   trained.BestScore,
		TrainMetric: trained.TrainMetric,
		TestMetric:  trained.TestMetric,
		ModelPath:   pub.ModelPath,
	}
	for _, e := range report.Entries {
		if e.Name == trained.BestModel {
			t.Family = e.Family
			t.Params = e.Params
			break
		}
	}
	if err := p.opts.Tracker.TrackTraining(ctx, t); err != nil {
		return pub, err
	}
	logger.Debug("training tracked", "best_model", trained.BestModel)
	return pub, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return persist.WriteFile(dst, data)
}
