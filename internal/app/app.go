// Package app assembles the training pipeline and its backends from the
// loaded configuration and the NETSEC_* environment.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saadabdullah098/networksecurity/internal/config"
	"github.com/saadabdullah098/networksecurity/internal/docstore"
	"github.com/saadabdullah098/networksecurity/internal/ingestion"
	"github.com/saadabdullah098/networksecurity/internal/ledger"
	"github.com/saadabdullah098/networksecurity/internal/pipeline"
	"github.com/saadabdullah098/networksecurity/internal/platform/auditlog"
	"github.com/saadabdullah098/networksecurity/internal/platform/objectstore"
	"github.com/saadabdullah098/networksecurity/internal/platform/postgres"
	"github.com/saadabdullah098/networksecurity/internal/selection"
	"github.com/saadabdullah098/networksecurity/internal/telemetry"
	"github.com/saadabdullah098/networksecurity/internal/tracking"
	"github.com/saadabdullah098/networksecurity/internal/transform"
	"github.com/saadabdullah098/networksecurity/internal/validation"
)

// App owns the pipeline and the connections behind it.
type App struct {
	Config   config.Config
	Pipeline *pipeline.Pipeline
	Metrics  *telemetry.Metrics
	DB       *sql.DB

	closers []func(context.Context) error
}

// Close releases every backend in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// Build opens the configured backends and wires the four stages.
func Build(ctx context.Context, logger *slog.Logger, cfg config.Config, metrics *telemetry.Metrics) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics}
	p, err := a.build(ctx, logger)
	if err != nil {
		_ = a.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	a.Pipeline = p
	return a, nil
}

func (a *App) build(ctx context.Context, logger *slog.Logger) (*pipeline.Pipeline, error) {
	cfg := a.Config

	source, err := a.openSource(ctx, logger)
	if err != nil {
		return nil, err
	}
	ing, err := ingestion.New(logger.With("stage", "data_ingestion"), source, cfg.IngestionConfig())
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	schema, err := validation.LoadSchema(cfg.Schema)
	if err != nil {
		return nil, err
	}
	val, err := validation.New(logger.With("stage", "data_validation"), schema, cfg.Drift.Threshold, validation.WithObserver(a.Metrics))
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}

	tra, err := transform.NewTransformer(logger.With("stage", "data_transformation"), cfg.Target, cfg.ImputerSettings())
	if err != nil {
		return nil, fmt.Errorf("transformation: %w", err)
	}

	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.SelectionOptions()
	if err != nil {
		return nil, err
	}
	opts.Observer = a.Metrics
	trn, err := selection.NewTrainer(logger.With("stage", "model_trainer"), reg, opts)
	if err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}

	popts := pipeline.Options{
		ArtifactRoot:  cfg.Artifacts.Root,
		FinalModelDir: cfg.Artifacts.FinalModelDir,
		Metrics:       a.Metrics,
	}
	if popts.Ledger, err = a.openLedger(ctx); err != nil {
		return nil, err
	}
	if cfg.Artifacts.Sync {
		storeCfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("object store config: %w", err)
		}
		store, err := objectstore.NewMinioStore(storeCfg)
		if err != nil {
			return nil, err
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = objectstore.EnsureBuckets(startupCtx, store.Client(), storeCfg)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("object store unavailable: %w", err)
		}
		popts.Store = store
		popts.ArtifactsBucket = storeCfg.BucketArtifacts
		popts.ModelsBucket = storeCfg.BucketModels
	}
	if popts.Tracker, err = openTracker(ctx, logger); err != nil {
		return nil, err
	}

	return pipeline.New(logger, pipeline.Stages{
		Ingestion:      ing,
		Validation:     val,
		Transformation: tra,
		Trainer:        trn,
	}, popts)
}

func (a *App) openSource(ctx context.Context, logger *slog.Logger) (docstore.Source, error) {
	switch a.Config.Source.Backend {
	case config.BackendMongo:
		mcfg, err := docstore.MongoConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("mongo config: %w", err)
		}
		store, err := docstore.OpenMongo(ctx, mcfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		logger.Info("document source connected", "backend", "mongo")
		return store, nil
	case config.BackendPostgres:
		db, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		store := docstore.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		logger.Info("document source connected", "backend", "postgres")
		return store, nil
	case config.BackendFile:
		return docstore.FileSource{Dir: a.Config.Source.Dir}, nil
	}
	return nil, fmt.Errorf("unknown document source backend %q", a.Config.Source.Backend)
}

func (a *App) openLedger(ctx context.Context) (ledger.Ledger, error) {
	if a.Config.Ledger.Backend != "postgres" {
		return ledger.NewMemory(), nil
	}
	db, err := a.database(ctx)
	if err != nil {
		return nil, err
	}
	l := ledger.NewPostgres(db)
	if err := l.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// OpenAudit returns the audit sink named by audit.backend. "none" yields a
// sink that drops events.
func (a *App) OpenAudit(ctx context.Context) (auditlog.Sink, error) {
	switch a.Config.Audit.Backend {
	case "memory":
		return auditlog.NewMemory(), nil
	case "postgres":
		db, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		sink := auditlog.NewPostgres(db)
		if err := sink.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return sink, nil
	}
	return auditlog.Nop{}, nil
}

// database opens the shared Postgres pool once.
func (a *App) database(ctx context.Context) (*sql.DB, error) {
	if a.DB != nil {
		return a.DB, nil
	}
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	a.DB = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	return db, nil
}

func openTracker(ctx context.Context, logger *slog.Logger) (tracking.Tracker, error) {
	tcfg, err := tracking.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("tracking config: %w", err)
	}
	if !tcfg.Enabled() {
		return tracking.Nop{}, nil
	}
	client, err := tracking.New(ctx, tcfg)
	if err != nil {
		return nil, err
	}
	logger.Info("experiment tracking enabled", "uri", tcfg.TrackingURI, "experiment", tcfg.Experiment)
	return tracking.NewMLflow(client, tcfg.Experiment, logger), nil
}
