// Package selection trains every registered candidate, tunes each over its
// hyperparameter grid with cross-validation and picks the best on the
// held-out split.
package selection

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/saadabdullah098/networksecurity/internal/model"
)

var ErrNoCandidates = errors.New("no model candidates registered")

// Candidate pairs a display name with a model family and its search space.
// A nil or empty grid fits the family defaults without cross-validation.
type Candidate struct {
	Name   string
	Family model.Family
	Grid   model.Grid
}

func (c Candidate) Points() []model.Params {
	if c.Grid == nil {
		return nil
	}
	return c.Grid.Points()
}

// Registry is the ordered candidate list. Order decides ties.
type Registry []Candidate

func (r Registry) Validate() error {
	if len(r) == 0 {
		return pkgerrors.WithStack(ErrNoCandidates)
	}
	seen := make(map[string]bool, len(r))
	for i, c := range r {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("candidates[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("candidates[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if _, err := c.Family.DefaultParams(); err != nil {
			return fmt.Errorf("candidates[%d] %s: %w", i, name, err)
		}
		if c.Grid != nil && c.Grid.Family() != c.Family {
			return fmt.Errorf("candidates[%d] %s: %s grid given to %s", i, name, c.Grid.Family(), c.Family)
		}
	}
	return nil
}

// DefaultRegistry is the phishing classifier search used when no candidates
// are configured.
func DefaultRegistry() Registry {
	return Registry{
		{Name: "Random Forest", Family: model.RandomForest, Grid: model.ForestGrid{
			NEstimators: []int{8, 16, 32, 128, 256},
		}},
		{Name: "Decision Tree", Family: model.DecisionTree, Grid: model.TreeGrid{
			Criterion: []string{model.CriterionGini, model.CriterionEntropy, model.CriterionLogLoss},
		}},
		{Name: "Gradient Boosting", Family: model.GradientBoosting, Grid: model.GradientBoostingGrid{
			LearningRate: []float64{0.1, 0.01, 0.05, 0.001},
			Subsample:    []float64{0.6, 0.7, 0.75, 0.85, 0.9},
			NEstimators:  []int{8, 16, 32, 64, 128, 256},
		}},
		{Name: "Logistic Regression", Family: model.LogisticRegression},
		{Name: "AdaBoost", Family: model.AdaBoost, Grid: model.AdaBoostGrid{
			LearningRate: []float64{0.1, 0.01, 0.001},
			NEstimators:  []int{8, 16, 32, 64, 128, 256},
		}},
		{Name: "K-Neighbors", Family: model.KNeighbors, Grid: model.KNeighborsGrid{
			NNeighbors: []int{3, 5, 7},
		}},
	}
}
