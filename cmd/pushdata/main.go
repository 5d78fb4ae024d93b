// Command pushdata loads a CSV export into the configured document store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/saadabdullah098/networksecurity/internal/config"
	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/docstore"
	"github.com/saadabdullah098/networksecurity/internal/platform/env"
	"github.com/saadabdullah098/networksecurity/internal/platform/logging"
	"github.com/saadabdullah098/networksecurity/internal/platform/postgres"
)

func main() {
	flags := pflag.NewFlagSet("pushdata", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", config.DefaultPath, "pipeline configuration file")
	file := flags.StringP("file", "f", "Network_Data/phisingData.csv", "CSV file to insert")
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

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid pipeline config", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frame, err := dataset.ReadCSVFile(*file)
	if err != nil {
		logger.Error("read csv failed", "file", *file, "error", err)
		os.Exit(1)
	}

	var sink docstore.Sink
	switch cfg.Source.Backend {
	case config.BackendMongo:
		mcfg, err := docstore.MongoConfigFromEnv()
		if err != nil {
			logger.Error("invalid mongo config", "error", err)
			os.Exit(2)
		}
		store, err := docstore.OpenMongo(ctx, mcfg)
		if err != nil {
			logger.Error("mongo unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = store.Close(context.Background()) }()
		sink = store
	case config.BackendPostgres:
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid database config", "error", err)
			os.Exit(2)
		}
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "url", dbCfg.Redacted(), "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		store := docstore.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("ensure documents table failed", "error", err)
			os.Exit(1)
		}
		sink = store
	default:
		logger.Error("backend does not accept inserts", "backend", cfg.Source.Backend)
		os.Exit(2)
	}

	n, err := sink.InsertRecords(ctx, cfg.Source.Database, cfg.Source.Collection, docstore.DocumentsFromFrame(frame))
	if err != nil {
		logger.Error("insert failed", "error", err)
		os.Exit(1)
	}
	logger.Info("records inserted",
		"database", cfg.Source.Database,
		"collection", cfg.Source.Collection,
		"data.rows", n,
	)
}
