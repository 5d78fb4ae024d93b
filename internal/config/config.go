// Package config loads the training pipeline configuration from YAML with
// NETSEC_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/ingestion"
	"github.com/saadabdullah098/networksecurity/internal/model"
	"github.com/saadabdullah098/networksecurity/internal/scoring"
	"github.com/saadabdullah098/networksecurity/internal/selection"
	"github.com/saadabdullah098/networksecurity/internal/transform"
	"github.com/saadabdullah098/networksecurity/internal/validation"
)

const (
	EnvPrefix   = "NETSEC"
	DefaultPath = "configs/pipeline.yaml"
)

const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Split     SplitConfig     `mapstructure:"split"`
	Schema    string          `mapstructure:"schema_path" validate:"required"`
	Target    string          `mapstructure:"target" validate:"required"`
	Drift     DriftConfig     `mapstructure:"drift"`
	Imputer   ImputerConfig   `mapstructure:"imputer"`
	Selection SelectionConfig `mapstructure:"selection"`
	Models    []ModelConfig   `mapstructure:"models" validate:"dive"`
	Artifacts ArtifactConfig  `mapstructure:"artifacts"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type SourceConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=mongo postgres file"`
	Database   string `mapstructure:"database" validate:"required"`
	Collection string `mapstructure:"collection" validate:"required"`
	// Dir holds <collection>.csv for the file backend.
	Dir string `mapstructure:"dir" validate:"required_if=Backend file"`
}

type SplitConfig struct {
	TestRatio float64 `mapstructure:"test_ratio" validate:"gt=0,lt=1"`
	Seed      uint64  `mapstructure:"seed"`
	Stratify  bool    `mapstructure:"stratify"`
}

type DriftConfig struct {
	Threshold float64 `mapstructure:"threshold" validate:"gt=0,lt=1"`
}

type ImputerConfig struct {
	NNeighbors int    `mapstructure:"n_neighbors" validate:"gte=1"`
	Weights    string `mapstructure:"weights" validate:"oneof=uniform distance"`
}

type SelectionConfig struct {
	Metric  string `mapstructure:"metric" validate:"oneof=r2 accuracy f1"`
	Folds   int    `mapstructure:"folds" validate:"gte=2"`
	Workers int    `mapstructure:"workers" validate:"gte=0"`
}

// ModelConfig is one candidate. An absent or empty grid fits the family
// defaults.
type ModelConfig struct {
	Name   string         `mapstructure:"name" validate:"required"`
	Family string         `mapstructure:"family" validate:"required"`
	Grid   map[string]any `mapstructure:"grid"`
}

type ArtifactConfig struct {
	Root          string `mapstructure:"root" validate:"required"`
	FinalModelDir string `mapstructure:"final_model_dir" validate:"required"`
	// Sync mirrors runs and final models to the NETSEC_MINIO_* buckets.
	Sync bool `mapstructure:"sync"`
}

type LedgerConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory postgres"`
}

// AuditConfig selects where the HTTP service records training triggers and
// refused requests.
type AuditConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=none memory postgres"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"`
	Job            string `mapstructure:"job" validate:"required"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.backend", BackendMongo)
	v.SetDefault("source.database", "saadai")
	v.SetDefault("source.collection", "NetworkData")
	v.SetDefault("source.dir", "")
	v.SetDefault("split.test_ratio", 0.2)
	v.SetDefault("split.seed", 42)
	v.SetDefault("split.stratify", false)
	v.SetDefault("schema_path", "data_schema/schema.yaml")
	v.SetDefault("target", transform.DefaultTarget)
	v.SetDefault("drift.threshold", validation.DefaultThreshold)
	v.SetDefault("imputer.n_neighbors", transform.DefaultImputerConfig().NNeighbors)
	v.SetDefault("imputer.weights", transform.DefaultImputerConfig().Weights)
	v.SetDefault("selection.metric", string(scoring.MetricR2))
	v.SetDefault("selection.folds", selection.DefaultFolds)
	v.SetDefault("selection.workers", 0)
	v.SetDefault("artifacts.root", artifact.DefaultRoot)
	v.SetDefault("artifacts.final_model_dir", artifact.FinalModelDirName)
	v.SetDefault("artifacts.sync", false)
	v.SetDefault("ledger.backend", "memory")
	v.SetDefault("audit.backend", "none")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "networksecurity_training")
}

// Load reads path when it exists, then applies NETSEC_* overrides such as
// NETSEC_SPLIT_TEST_RATIO. A missing file at the default path is not an
// error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFound) || (errors.Is(err, os.ErrNotExist) && path == DefaultPath)) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	verr := &ValidationError{}
	if err := validate.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) {
			return err
		}
		for _, f := range fields {
			verr.Add(fmt.Sprintf("%s failed %s", f.Namespace(), f.Tag()))
		}
	}
	if _, err := c.Registry(); err != nil {
		verr.Add(err.Error())
	}
	return verr.OrNil()
}

// Registry converts the configured models into an ordered candidate list.
// An empty models list selects the default phishing search.
func (c Config) Registry() (selection.Registry, error) {
	if len(c.Models) == 0 {
		return selection.DefaultRegistry(), nil
	}
	reg := make(selection.Registry, 0, len(c.Models))
	for i, m := range c.Models {
		family, err := model.ParseFamily(m.Family)
		if err != nil {
			return nil, fmt.Errorf("models[%d]: %w", i, err)
		}
		cand := selection.Candidate{Name: m.Name, Family: family}
		if len(m.Grid) > 0 {
			grid, err := model.DecodeGrid(family, m.Grid)
			if err != nil {
				return nil, fmt.Errorf("models[%d] %s: %w", i, m.Name, err)
			}
			cand.Grid = grid
		}
		reg = append(reg, cand)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (c Config) IngestionConfig() ingestion.Config {
	split := ingestion.SplitOptions{TestRatio: c.Split.TestRatio, Seed: c.Split.Seed}
	if c.Split.Stratify {
		split.StratifyBy = c.Target
	}
	return ingestion.Config{Database: c.Source.Database, Collection: c.Source.Collection, Split: split}
}

func (c Config) ImputerSettings() transform.ImputerConfig {
	return transform.ImputerConfig{NNeighbors: c.Imputer.NNeighbors, Weights: c.Imputer.Weights}
}

func (c Config) SelectionOptions() (selection.Options, error) {
	metric, err := scoring.ParseMetric(c.Selection.Metric)
	if err != nil {
		return selection.Options{}, err
	}
	return selection.Options{Metric: metric, Folds: c.Selection.Folds, Workers: c.Selection.Workers}, nil
}
