package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/saadabdullah098/networksecurity/internal/persist"
)

var (
	ErrMissingOutput  = errors.New("stage output missing")
	ErrOutputModified = errors.New("stage output modified")
)

// Record is a stage's immutable description of what it produced.
type Record interface {
	StageName() Stage
	Outputs() []string
	Verify() error
}

// Manifest pins the content of every output at the time the stage finished.
type Manifest struct {
	CreatedAt time.Time         `json:"created_at"`
	SHA256    map[string]string `json:"sha256"`
}

func (m *Manifest) manifestRef() *Manifest { return m }

type IngestionArtifact struct {
	Manifest
	FeatureStorePath string `json:"feature_store_file_path"`
	TrainPath        string `json:"trained_file_path"`
	TestPath         string `json:"test_file_path"`
	Rows             int    `json:"rows"`
}

func (a IngestionArtifact) StageName() Stage { return StageIngestion }

func (a IngestionArtifact) Outputs() []string {
	return []string{a.FeatureStorePath, a.TrainPath, a.TestPath}
}

func (a IngestionArtifact) Verify() error { return verify(a.Manifest, a.Outputs()) }

type ValidationArtifact struct {
	Manifest
	Status           bool     `json:"validation_status"`
	ValidTrainPath   string   `json:"valid_train_file_path"`
	ValidTestPath    string   `json:"valid_test_file_path"`
	InvalidTrainPath string   `json:"invalid_train_file_path"`
	InvalidTestPath  string   `json:"invalid_test_file_path"`
	DriftReportPath  string   `json:"drift_report_file_path"`
	Problems         []string `json:"problems,omitempty"`
}

func (a ValidationArtifact) StageName() Stage { return StageValidation }

// Outputs lists the pair that was written. The other pair is recorded
// but never created.
func (a ValidationArtifact) Outputs() []string {
	if a.Status {
		return []string{a.ValidTrainPath, a.ValidTestPath, a.DriftReportPath}
	}
	return []string{a.InvalidTrainPath, a.InvalidTestPath, a.DriftReportPath}
}

func (a ValidationArtifact) Verify() error { return verify(a.Manifest, a.Outputs()) }

type TransformationArtifact struct {
	Manifest
	PreprocessorPath string `json:"transformed_object_file_path"`
	TrainPath        string `json:"transformed_train_file_path"`
	TestPath         string `json:"transformed_test_file_path"`
}

func (a TransformationArtifact) StageName() Stage { return StageTransformation }

func (a TransformationArtifact) Outputs() []string {
	return []string{a.PreprocessorPath, a.TrainPath, a.TestPath}
}

func (a TransformationArtifact) Verify() error { return verify(a.Manifest, a.Outputs()) }

type ClassificationMetric struct {
	F1        float64 `json:"f1_score" yaml:"f1_score"`
	Precision float64 `json:"precision_score" yaml:"precision_score"`
	Recall    float64 `json:"recall_score" yaml:"recall_score"`
}

type TrainerArtifact struct {
	Manifest
	ModelPath   string               `json:"trained_model_file_path"`
	ReportPath  string               `json:"model_report_file_path"`
	BestModel   string               `json:"best_model_name"`
	BestScore   float64              `json:"best_model_score"`
	TrainMetric ClassificationMetric `json:"train_metric_artifact"`
	TestMetric  ClassificationMetric `json:"test_metric_artifact"`
}

func (a TrainerArtifact) StageName() Stage { return StageTrainer }

func (a TrainerArtifact) Outputs() []string { return []string{a.ModelPath, a.ReportPath} }

func (a TrainerArtifact) Verify() error { return verify(a.Manifest, a.Outputs()) }

// Seal records the digest of every output of rec into m.
func Seal(m *Manifest, rec Record, now time.Time) error {
	m.CreatedAt = now.UTC()
	m.SHA256 = make(map[string]string)
	for _, path := range rec.Outputs() {
		sum, err := fileSHA256(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMissingOutput, path, err)
		}
		m.SHA256[path] = sum
	}
	return nil
}

// Save writes rec to <run>/<stage>/artifact.json.
func Save(run *Run, rec Record) error {
	return persist.SaveObject(run.recordPath(rec.StageName()), rec)
}

// Commit seals the outputs of rec, checks them and saves the record under
// run. The returned copy carries the filled manifest.
func Commit[T Record](run *Run, rec T, now time.Time) (T, error) {
	ref, ok := any(&rec).(interface{ manifestRef() *Manifest })
	if !ok {
		return rec, fmt.Errorf("%T carries no manifest", rec)
	}
	if err := Seal(ref.manifestRef(), rec, now); err != nil {
		return rec, err
	}
	if err := rec.Verify(); err != nil {
		return rec, err
	}
	if err := Save(run, rec); err != nil {
		return rec, fmt.Errorf("save %s artifact: %w", rec.StageName(), err)
	}
	return rec, nil
}

// Load reads the record a previous execution of stage saved in run and
// verifies its outputs are still intact.
func Load[T Record](run *Run, stage Stage) (T, error) {
	var rec T
	if err := persist.LoadObject(run.recordPath(stage), &rec); err != nil {
		return rec, fmt.Errorf("load %s artifact: %w", stage, err)
	}
	if rec.StageName() != stage {
		return rec, fmt.Errorf("artifact type holds %s, want %s", rec.StageName(), stage)
	}
	if err := rec.Verify(); err != nil {
		return rec, err
	}
	return rec, nil
}

func verify(m Manifest, paths []string) error {
	for _, path := range paths {
		if path == "" {
			return fmt.Errorf("%w: empty path", ErrMissingOutput)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMissingOutput, path)
		}
		if info.IsDir() || info.Size() == 0 {
			return fmt.Errorf("%w: %s is empty", ErrMissingOutput, path)
		}
		want, ok := m.SHA256[path]
		if !ok {
			continue
		}
		got, err := fileSHA256(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMissingOutput, path, err)
		}
		if got != want {
			return fmt.Errorf("%w: %s", ErrOutputModified, path)
		}
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
