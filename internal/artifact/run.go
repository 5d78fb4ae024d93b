// Package artifact lays out a training run on disk and describes the
// records each stage hands to the next.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout names run directories, e.g. 07_04_2025_13_45_09.
const TimestampLayout = "01_02_2006_15_04_05"

const (
	DefaultRoot       = "Artifacts"
	FinalModelDirName = "final_model"
	recordFileName    = "artifact.json"
)

var ErrRunExists = errors.New("run directory already exists")

type Stage string

const (
	StageIngestion      Stage = "data_ingestion"
	StageValidation     Stage = "data_validation"
	StageTransformation Stage = "data_transformation"
	StageTrainer        Stage = "model_trainer"
)

// Stages returns the stages in execution order.
func Stages() []Stage {
	return []Stage{StageIngestion, StageValidation, StageTransformation, StageTrainer}
}

func ParseStage(s string) (Stage, error) {
	want := Stage(strings.TrimSpace(strings.ToLower(s)))
	for _, stage := range Stages() {
		if stage == want {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Run is one pipeline invocation rooted at <root>/<timestamp>.
type Run struct {
	Root      string
	Timestamp string
	Dir       string
}

// NewRun creates the run directory for now. The directory must not exist
// yet, so two runs in the same second never share outputs.
func NewRun(root string, now time.Time) (*Run, error) {
	if strings.TrimSpace(root) == "" {
		root = DefaultRoot
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	ts := now.Format(TimestampLayout)
	dir := filepath.Join(root, ts)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunExists, dir)
		}
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return &Run{Root: root, Timestamp: ts, Dir: dir}, nil
}

// OpenRun returns an existing run for re-executing individual stages.
func OpenRun(root, timestamp string) (*Run, error) {
	if _, err := time.Parse(TimestampLayout, timestamp); err != nil {
		return nil, fmt.Errorf("invalid run timestamp %q: %w", timestamp, err)
	}
	if strings.TrimSpace(root) == "" {
		root = DefaultRoot
	}
	dir := filepath.Join(root, timestamp)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open run: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open run: %s is not a directory", dir)
	}
	return &Run{Root: root, Timestamp: timestamp, Dir: dir}, nil
}

func (r *Run) StageDir(stage Stage) string {
	return filepath.Join(r.Dir, string(stage))
}

func (r *Run) recordPath(stage Stage) string {
	return filepath.Join(r.StageDir(stage), recordFileName)
}

// Layout is the set of output paths of one run.
type Layout struct {
	FeatureStore string
	TrainCSV     string
	TestCSV      string

	ValidTrain   string
	ValidTest    string
	InvalidTrain string
	InvalidTest  string
	DriftReport  string

	TransformedTrain string
	TransformedTest  string
	Preprocessor     string

	Model       string
	ModelReport string
}

func (r *Run) Layout() Layout {
	ing := r.StageDir(StageIngestion)
	val := r.StageDir(StageValidation)
	tra := r.StageDir(StageTransformation)
	trn := r.StageDir(StageTrainer)
	return Layout{
		FeatureStore: filepath.Join(ing, "feature_store", "phisingData.csv"),
		TrainCSV:     filepath.Join(ing, "ingested", "train.csv"),
		TestCSV:      filepath.Join(ing, "ingested", "test.csv"),

		ValidTrain:   filepath.Join(val, "validated", "train.csv"),
		ValidTest:    filepath.Join(val, "validated", "test.csv"),
		InvalidTrain: filepath.Join(val, "invalid", "train.csv"),
		InvalidTest:  filepath.Join(val, "invalid", "test.csv"),
		DriftReport:  filepath.Join(val, "drift_report", "report.yaml"),

		TransformedTrain: filepath.Join(tra, "transformed", "train.bin"),
		TransformedTest:  filepath.Join(tra, "transformed", "test.bin"),
		Preprocessor:     filepath.Join(tra, "transformed_object", "preprocessing.json"),

		Model:       filepath.Join(trn, "trained_model", "model.json"),
		ModelReport: filepath.Join(trn, "model_report.yaml"),
	}
}
