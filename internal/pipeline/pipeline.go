// Package pipeline runs the training stages in order, checks every handoff
// and publishes the winning model.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/ledger"
	"github.com/saadabdullah098/networksecurity/internal/platform/objectstore"
	"github.com/saadabdullah098/networksecurity/internal/telemetry"
	"github.com/saadabdullah098/networksecurity/internal/tracking"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// StagePublish promotes, uploads and reports the trained model.
const StagePublish artifact.Stage = "model_publish"

type Ingester interface {
	Run(ctx context.Context, run *artifact.Run) (artifact.IngestionArtifact, error)
}

type Validator interface {
	Run(ctx context.Context, run *artifact.Run, in artifact.IngestionArtifact) (artifact.ValidationArtifact, error)
}

type Transformer interface {
	Run(ctx context.Context, run *artifact.Run, in artifact.ValidationArtifact) (artifact.TransformationArtifact, error)
}

type Trainer interface {
	Run(ctx context.Context, run *artifact.Run, in artifact.TransformationArtifact) (artifact.TrainerArtifact, error)
}

type Stages struct {
	Ingestion      Ingester
	Validation     Validator
	Transformation Transformer
	Trainer        Trainer
}

func (s Stages) validate() error {
	if s.Ingestion == nil || s.Validation == nil || s.Transformation == nil || s.Trainer == nil {
		return errors.New("all four stages are required")
	}
	return nil
}

// Options configures everything around the stages. Store, Ledger, Metrics
// and Tracker are optional.
type Options struct {
	ArtifactRoot    string
	FinalModelDir   string
	Store           objectstore.Store
	ArtifactsBucket string
	ModelsBucket    string
	Ledger          ledger.Ledger
	Metrics         *telemetry.Metrics
	Tracker         tracking.Tracker
	Now             func() time.Time
}

type Pipeline struct {
	logger *slog.Logger
	stages Stages
	opts   Options
}

func New(logger *slog.Logger, stages Stages, opts Options) (*Pipeline, error) {
	if err := stages.validate(); err != nil {
		return nil, err
	}
	if opts.ArtifactRoot == "" {
		opts.ArtifactRoot = artifact.DefaultRoot
	}
	if opts.FinalModelDir == "" {
		opts.FinalModelDir = artifact.FinalModelDirName
	}
	if opts.Store != nil && (opts.ArtifactsBucket == "" || opts.ModelsBucket == "") {
		return nil, errors.New("artifact and model buckets are required with an object store")
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.Nop{}
	}
	if opts.Tracker == nil {
		opts.Tracker = tracking.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{logger: logger, stages: stages, opts: opts}, nil
}

// Result describes one run. Artifacts of stages that did not run are nil.
type Result struct {
	Status         Status
	Run            *artifact.Run
	Ingestion      *artifact.IngestionArtifact
	Validation     *artifact.ValidationArtifact
	Transformation *artifact.TransformationArtifact
	Trainer        *artifact.TrainerArtifact
	Published      *Publication
}

// Run executes every stage in a fresh run directory. A dataset that fails
// validation ends the run with StatusRejected and a nil error.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	run, err := artifact.NewRun(p.opts.ArtifactRoot, p.opts.Now())
	if err != nil {
		p.opts.Metrics.ObserveRun(string(StatusFailed))
		return Result{Status: StatusFailed}, stageError(artifact.StageIngestion, "create run", err)
	}
	logger := p.logger.With("run", run.Timestamp)
	logger.Info("training pipeline started", "dir", run.Dir)

	res, err := p.runFrom(ctx, logger, run, artifact.StageIngestion, artifact.StageTrainer, nil)
	p.finish(logger, res, err)
	return res, err
}

// RunStage re-executes one stage of an existing run from its predecessor's
// saved record. Rerunning training also publishes the model.
func (p *Pipeline) RunStage(ctx context.Context, stage artifact.Stage, timestamp string) (Result, error) {
	run, err := artifact.OpenRun(p.opts.ArtifactRoot, timestamp)
	if err != nil {
		return Result{Status: StatusFailed}, stageError(stage, "open run", err)
	}
	logger := p.logger.With("run", run.Timestamp)
	logger.Info("stage rerun started", "stage", stage)

	var prev artifact.Record
	switch stage {
	case artifact.StageIngestion:
	case artifact.StageValidation:
		prev, err = artifact.Load[artifact.IngestionArtifact](run, artifact.StageIngestion)
	case artifact.StageTransformation:
		prev, err = artifact.Load[artifact.ValidationArtifact](run, artifact.StageValidation)
	case artifact.StageTrainer:
		prev, err = artifact.Load[artifact.TransformationArtifact](run, artifact.StageTransformation)
	default:
		return Result{Status: StatusFailed, Run: run}, stageError(stage, "rerun", fmt.Errorf("unknown stage %q", stage))
	}
	if err != nil {
		res := Result{Status: StatusFailed, Run: run}
		err = stageError(stage, "load predecessor", err)
		p.finish(logger, res, err)
		return res, err
	}

	res, err := p.runFrom(ctx, logger, run, stage, stage, prev)
	p.finish(logger, res, err)
	return res, err
}

// runFrom executes the stages from first through last. prev is the
// predecessor record of first, nil for ingestion.
func (p *Pipeline) runFrom(ctx context.Context, logger *slog.Logger, run *artifact.Run, first, last artifact.Stage, prev artifact.Record) (Result, error) {
	res := Result{Status: StatusFailed, Run: run}
	started := false
	reached := func(s artifact.Stage) bool {
		if s == first {
			started = true
		}
		return started
	}
	done := func(s artifact.Stage) bool {
		if s == last {
			res.Status = StatusSucceeded
			return true
		}
		return false
	}

	if reached(artifact.StageIngestion) {
		ing, err := execute(ctx, p, logger, run, artifact.StageIngestion, "ingest", func(ctx context.Context) (artifact.IngestionArtifact, error) {
			return p.stages.Ingestion.Run(ctx, run)
		})
		if err != nil {
			return res, err
		}
		res.Ingestion, prev = &ing, ing
		if done(artifact.StageIngestion) {
			return res, nil
		}
	}

	if reached(artifact.StageValidation) {
		in := prev.(artifact.IngestionArtifact)
		val, err := execute(ctx, p, logger, run, artifact.StageValidation, "validate", func(ctx context.Context) (artifact.ValidationArtifact, error) {
			return p.stages.Validation.Run(ctx, run, in)
		})
		if err != nil {
			return res, err
		}
		res.Validation, prev = &val, val
		if !val.Status {
			logger.Warn("dataset rejected", "problems", val.Problems)
			res.Status = StatusRejected
			return res, nil
		}
		if done(artifact.StageValidation) {
			return res, nil
		}
	}

	if reached(artifact.StageTransformation) {
		in := prev.(artifact.ValidationArtifact)
		if !in.Status {
			res.Validation = &in
			res.Status = StatusRejected
			return res, nil
		}
		tra, err := execute(ctx, p, logger, run, artifact.StageTransformation, "transform", func(ctx context.Context) (artifact.TransformationArtifact, error) {
			return p.stages.Transformation.Run(ctx, run, in)
		})
		if err != nil {
			return res, err
		}
		res.Transformation, prev = &tra, tra
		if done(artifact.StageTransformation) {
			return res, nil
		}
	}

	in := prev.(artifact.TransformationArtifact)
	trn, err := execute(ctx, p, logger, run, artifact.StageTrainer, "train", func(ctx context.Context) (artifact.TrainerArtifact, error) {
		return p.stages.Trainer.Run(ctx, run, in)
	})
	if err != nil {
		return res, err
	}
	res.Trainer = &trn
	p.opts.Metrics.ObserveBest(trn.BestScore)

	pub, err := p.publish(ctx, logger, run, in, trn)
	if err != nil {
		return res, err
	}
	res.Published = &pub
	res.Status = StatusSucceeded
	return res, nil
}

// execute runs one stage, commits its record and writes the outcome to the
// ledger and metrics.
func execute[T artifact.Record](ctx context.Context, p *Pipeline, logger *slog.Logger, run *artifact.Run, stage artifact.Stage, op string, fn func(context.Context) (T, error)) (T, error) {
	start := p.opts.Now()
	logger = logger.With("stage", stage)
	logger.Info("stage started")

	rec, err := fn(ctx)
	if err == nil {
		rec, err = artifact.Commit(run, rec, p.opts.Now())
		op = "commit"
	}
	elapsed := p.opts.Now().Sub(start)
	if err != nil {
		serr := stageError(stage, op, err)
		p.opts.Metrics.ObserveStage(string(stage), string(StatusFailed), elapsed)
		p.opts.Metrics.ObserveStageFailure(string(stage), string(serr.Kind))
		p.record(ctx, logger, run, stage, start, ledger.StatusFailed, serr, nil)
		logger.Error("stage failed", "kind", serr.Kind, "origin", serr.Origin, "err", serr.Err)
		return rec, serr
	}

	status := ledger.StatusSucceeded
	if v, ok := any(rec).(artifact.ValidationArtifact); ok && !v.Status {
		status = ledger.StatusRejected
	}
	p.opts.Metrics.ObserveStage(string(stage), status, elapsed)
	p.record(ctx, logger, run, stage, start, status, nil, rec)
	logger.Info("stage finished", "status", status, "elapsed", elapsed)
	return rec, nil
}

// record writes a ledger entry. Ledger failures are logged and do not change
// the run outcome.
func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, run *artifact.Run, stage artifact.Stage, start time.Time, status string, serr *StageError, rec any) {
	ctx = context.WithoutCancel(ctx)
	attempt, err := ledger.NextAttempt(ctx, p.opts.Ledger, run.Timestamp, string(stage))
	if err != nil {
		logger.Warn("ledger read failed", "err", err)
		return
	}
	finished := p.opts.Now().UTC()
	entry := ledger.Entry{
		RunID:      run.Timestamp,
		Stage:      string(stage),
		Attempt:    attempt,
		Status:     status,
		StartedAt:  start.UTC(),
		FinishedAt: &finished,
	}
	if serr != nil {
		entry.ErrorKind = string(serr.Kind)
		entry.ErrorMessage = serr.Error()
	}
	if rec != nil {
		if raw, err := json.Marshal(rec); err == nil {
			entry.Result = raw
		}
	}
	if _, _, err := p.opts.Ledger.Record(ctx, entry); err != nil {
		logger.Warn("ledger write failed", "err", err)
	}
}

func (p *Pipeline) finish(logger *slog.Logger, res Result, err error) {
	p.opts.Metrics.ObserveRun(string(res.Status))
	if err != nil {
		logger.Error("training pipeline failed", "err", err)
		return
	}
	logger.Info("training pipeline finished", "status", res.Status)
}
