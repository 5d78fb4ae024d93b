// Package validation checks ingested splits against the dataset schema and
// compares their column distributions for drift.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/persist"
)

const validationReportSchemaV1 = "networksecurity.validation_report.v1"

// Report is written to the drift report path of every validation run.
type Report struct {
	Schema      string       `yaml:"schema"`
	Status      string       `yaml:"status"`
	EvaluatedAt time.Time    `yaml:"evaluated_at"`
	Train       SchemaResult `yaml:"train_schema"`
	Test        SchemaResult `yaml:"test_schema"`
	Drift       DriftReport  `yaml:"drift"`
	Problems    []string     `yaml:"problems,omitempty"`
}

// DriftObserver receives per-column p-values after each comparison.
type DriftObserver interface {
	ObserveDrift(report DriftReport)
}

type Validator struct {
	logger    *slog.Logger
	schema    Schema
	threshold float64
	observer  DriftObserver
	now       func() time.Time
}

type Option func(*Validator)

func WithObserver(o DriftObserver) Option { return func(v *Validator) { v.observer = o } }

func WithClock(now func() time.Time) Option { return func(v *Validator) { v.now = now } }

func New(logger *slog.Logger, schema Schema, threshold float64, opts ...Option) (*Validator, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if !(threshold > 0 && threshold < 1) {
		return nil, pkgerrors.WithStack(fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold))
	}
	v := &Validator{
		logger:    logger,
		schema:    schema,
		threshold: threshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// ValidateSchema reports whether the frame has exactly the declared columns.
func (v *Validator) ValidateSchema(f *dataset.Frame) SchemaResult {
	return v.schema.Check(f.Columns())
}

// Run validates the ingested splits of run. Both splits are written to the
// validated directory when every check passes, otherwise to the invalid
// directory. A failed check is a result, not an error.
func (v *Validator) Run(ctx context.Context, run *artifact.Run, in artifact.IngestionArtifact) (artifact.ValidationArtifact, error) {
	if err := ctx.Err(); err != nil {
		return artifact.ValidationArtifact{}, err
	}
	train, err := dataset.ReadCSVFile(in.TrainPath)
	if err != nil {
		return artifact.ValidationArtifact{}, fmt.Errorf("read train split: %w", err)
	}
	test, err := dataset.ReadCSVFile(in.TestPath)
	if err != nil {
		return artifact.ValidationArtifact{}, fmt.Errorf("read test split: %w", err)
	}

	report := Report{
		Schema:      validationReportSchemaV1,
		EvaluatedAt: v.now().UTC(),
		Train:       v.ValidateSchema(train),
		Test:        v.ValidateSchema(test),
	}
	if !report.Train.Valid {
		report.Problems = append(report.Problems, describeSchema("train", report.Train))
	}
	if !report.Test.Valid {
		report.Problems = append(report.Problems, describeSchema("test", report.Test))
	}

	drifted, drift, err := DetectDrift(train, test, v.threshold)
	if err != nil {
		return artifact.ValidationArtifact{}, err
	}
	report.Drift = drift
	if drifted {
		report.Problems = append(report.Problems, fmt.Sprintf("drift detected in %d of %d columns: %v", len(drift.Drifted), drift.ComparableColumns, drift.Drifted))
	}
	if v.observer != nil {
		v.observer.ObserveDrift(drift)
	}

	layout := run.Layout()
	// Both destination pairs are recorded; Status says which one was written.
	out := artifact.ValidationArtifact{
		Status:           len(report.Problems) == 0,
		ValidTrainPath:   layout.ValidTrain,
		ValidTestPath:    layout.ValidTest,
		InvalidTrainPath: layout.InvalidTrain,
		InvalidTestPath:  layout.InvalidTest,
		DriftReportPath:  layout.DriftReport,
		Problems:         report.Problems,
	}
	trainPath, testPath := layout.InvalidTrain, layout.InvalidTest
	if out.Status {
		report.Status = "pass"
		trainPath, testPath = layout.ValidTrain, layout.ValidTest
	} else {
		report.Status = "fail"
	}

	if err := persist.WriteYAML(layout.DriftReport, report); err != nil {
		return artifact.ValidationArtifact{}, fmt.Errorf("write drift report: %w", err)
	}
	if err := dataset.WriteCSVFile(trainPath, train); err != nil {
		return artifact.ValidationArtifact{}, fmt.Errorf("write train split: %w", err)
	}
	if err := dataset.WriteCSVFile(testPath, test); err != nil {
		return artifact.ValidationArtifact{}, fmt.Errorf("write test split: %w", err)
	}

	v.logger.Info("data validation finished",
		"status", report.Status,
		"comparable_columns", drift.ComparableColumns,
		"drifted_columns", len(drift.Drifted),
		"problems", len(report.Problems),
	)
	return out, nil
}

func describeSchema(split string, res SchemaResult) string {
	msg := fmt.Sprintf("%s split has %d columns, schema declares %d", split, res.Observed, res.Expected)
	if len(res.Missing) > 0 {
		msg += fmt.Sprintf("; missing %v", res.Missing)
	}
	if len(res.Extra) > 0 {
		msg += fmt.Sprintf("; unexpected %v", res.Extra)
	}
	return msg
}
