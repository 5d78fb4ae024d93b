// Command serve exposes batch prediction and training over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/saadabdullah098/networksecurity/internal/app"
	"github.com/saadabdullah098/networksecurity/internal/config"
	"github.com/saadabdullah098/networksecurity/internal/pipeline"
	"github.com/saadabdullah098/networksecurity/internal/platform/auth"
	"github.com/saadabdullah098/networksecurity/internal/platform/env"
	"github.com/saadabdullah098/networksecurity/internal/platform/httpserver"
	"github.com/saadabdullah098/networksecurity/internal/platform/logging"
	"github.com/saadabdullah098/networksecurity/internal/serving"
	"github.com/saadabdullah098/networksecurity/internal/telemetry"
)

func main() {
	flags := pflag.NewFlagSet("serve", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", config.DefaultPath, "pipeline configuration file")
	outputDir := flags.String("output-dir", serving.DefaultOutputDir, "directory for the latest prediction output")
	_ = flags.Parse(os.Args[1:])

	if err := env.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(2)
	}
	logCfg, err := logging.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log config: %v\n", err)
		os.Exit(2)
	}
	logger, closeLog, err := logging.New(logCfg, os.Stdout, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid pipeline config", "error", err)
		os.Exit(2)
	}
	httpCfg, err := httpserver.ConfigFromEnv(serving.ServiceName)
	if err != nil {
		logger.Error("invalid http config", "error", err)
		os.Exit(2)
	}
	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	authn, err := auth.New(ctx, authCfg)
	if err != nil {
		logger.Error("auth init failed", "error", err)
		os.Exit(1)
	}

	metrics := telemetry.New(true)
	a, err := app.Build(ctx, logger, cfg, metrics)
	if err != nil {
		logger.Error("pipeline setup failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close(context.Background()) }()
	audit, err := a.OpenAudit(ctx)
	if err != nil {
		logger.Error("audit log setup failed", "error", err)
		os.Exit(1)
	}

	api := serving.New(logger, serving.Config{
		ModelPath: filepath.Join(cfg.Artifacts.FinalModelDir, pipeline.FinalModelFile),
		OutputDir: *outputDir,
		Audit:     audit,
	}, a.Pipeline, metrics)
	if err := api.LoadModel(); err != nil {
		logger.Warn("serving without a model until the next training run", "error", err)
	}

	if err := httpserver.Run(ctx, logger, httpCfg, api.Handler(authn)); err != nil {
		logger.Error("http server stopped", "error", err)
		os.Exit(1)
	}
}
