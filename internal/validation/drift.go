package validation

import (
	"errors"
	"fmt"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/saadabdullah098/networksecurity/internal/dataset"
)

var ErrInvalidThreshold = errors.New("drift threshold must be in (0, 1)")

// DefaultThreshold is the p-value below which a column counts as drifted.
const DefaultThreshold = 0.05

type ColumnDrift struct {
	PValue    float64 `yaml:"p_value"`
	Statistic float64 `yaml:"statistic"`
	Drift     bool    `yaml:"drift_status"`
}

type DriftReport struct {
	Threshold         float64                `yaml:"threshold"`
	ComparableColumns int                    `yaml:"comparable_columns"`
	Columns           map[string]ColumnDrift `yaml:"columns"`
	Drifted           []string               `yaml:"drifted_columns,omitempty"`
	Skipped           []string               `yaml:"skipped_columns,omitempty"`
}

// DetectDrift compares every column of baseline with the same-named column
// of candidate. It reports drift when any column's p-value falls below the
// threshold. Columns absent from candidate, or without values on either
// side, are skipped and listed in the report.
func DetectDrift(baseline, candidate *dataset.Frame, threshold float64) (bool, DriftReport, error) {
	if !(threshold > 0 && threshold < 1) {
		return false, DriftReport{}, pkgerrors.WithStack(fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold))
	}
	if baseline == nil || candidate == nil {
		return false, DriftReport{}, pkgerrors.New("drift comparison requires two datasets")
	}

	report := DriftReport{
		Threshold: threshold,
		Columns:   make(map[string]ColumnDrift, baseline.NumCols()),
	}
	for _, name := range baseline.Columns() {
		base, _ := baseline.Column(name)
		cand, ok := candidate.Column(name)
		if !ok {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		d, p, ok := KSTest(base, cand)
		if !ok {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		drift := p < threshold
		report.Columns[name] = ColumnDrift{PValue: p, Statistic: d, Drift: drift}
		report.ComparableColumns++
		if drift {
			report.Drifted = append(report.Drifted, name)
		}
	}
	sort.Strings(report.Drifted)
	return len(report.Drifted) > 0, report, nil
}
