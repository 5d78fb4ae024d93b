// Command train runs the phishing classifier training pipeline once.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/saadabdullah098/networksecurity/internal/app"
	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/config"
	"github.com/saadabdullah098/networksecurity/internal/pipeline"
	"github.com/saadabdullah098/networksecurity/internal/platform/env"
	"github.com/saadabdullah098/networksecurity/internal/platform/logging"
	"github.com/saadabdullah098/networksecurity/internal/telemetry"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitConfig   = 2
	exitRejected = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("train", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", config.DefaultPath, "pipeline configuration file")
	stage := flags.String("stage", "", "rerun a single stage of an existing run (requires --run)")
	runID := flags.String("run", "", "timestamp of the run to rerun a stage of")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return exitConfig
	}

	if err := env.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		return exitConfig
	}
	logCfg, err := logging.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log config: %v\n", err)
		return exitConfig
	}
	logger, closeLog, err := logging.New(logCfg, os.Stdout, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		return exitConfig
	}
	defer func() { _ = closeLog() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid pipeline config", "error", err)
		return exitConfig
	}
	if (*stage == "") != (*runID == "") {
		logger.Error("--stage and --run must be given together")
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.New(false)
	a, err := app.Build(ctx, logger, cfg, metrics)
	if err != nil {
		logger.Error("pipeline setup failed", "error", err)
		return exitFailed
	}
	defer func() { _ = a.Close(context.Background()) }()

	var res pipeline.Result
	if *stage != "" {
		st, perr := artifact.ParseStage(*stage)
		if perr != nil {
			logger.Error("invalid stage", "error", perr)
			return exitConfig
		}
		res, err = a.Pipeline.RunStage(ctx, st, *runID)
	} else {
		res, err = a.Pipeline.Run(ctx)
	}

	runName := ""
	if res.Run != nil {
		runName = res.Run.Timestamp
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	if perr := metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, runName); perr != nil {
		logger.Warn("metrics push failed", "error", perr)
	}
	cancel()

	switch {
	case err != nil:
		return exitFailed
	case res.Status == pipeline.StatusRejected:
		return exitRejected
	}
	logTrained(logger, res)
	return exitOK
}

func logTrained(logger *slog.Logger, res pipeline.Result) {
	if res.Trainer == nil {
		return
	}
	logger.Info("model trained",
		"run", res.Run.Timestamp,
		"model.name", res.Trainer.BestModel,
		"model.score", res.Trainer.BestScore,
		"test_f1", res.Trainer.TestMetric.F1,
	)
}
