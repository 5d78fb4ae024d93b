// Package ingestion exports the raw collection to the feature store and
// splits it into train and test files.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/docstore"
)

type Config struct {
	Database   string
	Collection string
	Split      SplitOptions
}

func (c Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection name is required")
	}
	return c.Split.Validate()
}

type Ingestor struct {
	logger *slog.Logger
	source docstore.Source
	cfg    Config
}

func New(logger *slog.Logger, source docstore.Source, cfg Config) (*Ingestor, error) {
	if source == nil {
		return nil, fmt.Errorf("document source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ingestor{logger: logger, source: source, cfg: cfg}, nil
}

// Run fetches the collection, stores it as-is in the feature store and
// writes the train and test splits.
func (i *Ingestor) Run(ctx context.Context, run *artifact.Run) (artifact.IngestionArtifact, error) {
	frame, err := i.source.FetchCollection(ctx, i.cfg.Database, i.cfg.Collection)
	if err != nil {
		return artifact.IngestionArtifact{}, fmt.Errorf("fetch %s.%s: %w", i.cfg.Database, i.cfg.Collection, err)
	}
	i.logger.Info("collection fetched",
		"database", i.cfg.Database,
		"collection", i.cfg.Collection,
		"data.rows", frame.NumRows(),
		"data.columns", frame.NumCols(),
		"data.missing", frame.CountMissing(),
	)

	layout := run.Layout()
	if err := dataset.WriteCSVFile(layout.FeatureStore, frame); err != nil {
		return artifact.IngestionArtifact{}, fmt.Errorf("write feature store: %w", err)
	}

	train, test, err := SplitTrainTest(frame, i.cfg.Split)
	if err != nil {
		return artifact.IngestionArtifact{}, err
	}
	if err := dataset.WriteCSVFile(layout.TrainCSV, train); err != nil {
		return artifact.IngestionArtifact{}, fmt.Errorf("write train split: %w", err)
	}
	if err := dataset.WriteCSVFile(layout.TestCSV, test); err != nil {
		return artifact.IngestionArtifact{}, fmt.Errorf("write test split: %w", err)
	}

	i.logger.Info("data ingestion finished",
		"train_rows", train.NumRows(),
		"test_rows", test.NumRows(),
	)
	return artifact.IngestionArtifact{
		FeatureStorePath: layout.FeatureStore,
		TrainPath:        layout.TrainCSV,
		TestPath:         layout.TestCSV,
		Rows:             frame.NumRows(),
	}, nil
}
