package model

import (
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"
)

const (
	CriterionGini    = "gini"
	CriterionEntropy = "entropy"
	CriterionLogLoss = "log_loss"

	MaxFeaturesAll  = ""
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"

	DefaultRandomState = 42
)

type LogisticRegressionParams struct {
	C       float64 `json:"C" mapstructure:"C"`
	MaxIter int     `json:"max_iter" mapstructure:"max_iter"`
	Tol     float64 `json:"tol" mapstructure:"tol"`
}

func DefaultLogisticRegressionParams() LogisticRegressionParams {
	return LogisticRegressionParams{C: 1, MaxIter: 100, Tol: 1e-6}
}

func (LogisticRegressionParams) Family() Family { return LogisticRegression }

func (p LogisticRegressionParams) Validate() error {
	if !(p.C > 0) || math.IsInf(p.C, 0) {
		return pkgerrors.WithStack(fmt.Errorf("%w: C must be a positive finite number, got %v", ErrInvalidParam, p.C))
	}
	if p.MaxIter < 1 {
		return pkgerrors.WithStack(fmt.Errorf("%w: max_iter must be >= 1", ErrInvalidParam))
	}
	if !(p.Tol > 0) {
		return pkgerrors.WithStack(fmt.Errorf("%w: tol must be positive", ErrInvalidParam))
	}
	return nil
}

type KNeighborsParams struct {
	NNeighbors int    `json:"n_neighbors" mapstructure:"n_neighbors"`
	Weights    string `json:"weights" mapstructure:"weights"`
	P          int    `json:"p" mapstructure:"p"`
}

func DefaultKNeighborsParams() KNeighborsParams {
	return KNeighborsParams{NNeighbors: 5, Weights: "uniform", P: 2}
}

func (KNeighborsParams) Family() Family { return KNeighbors }

func (p KNeighborsParams) Validate() error {
	if p.NNeighbors < 1 {
		return pkgerrors.WithStack(fmt.Errorf("%w: n_neighbors must be >= 1", ErrInvalidParam))
	}
	if p.Weights != "uniform" && p.Weights != "distance" {
		return pkgerrors.WithStack(fmt.Errorf("%w: weights must be uniform or distance, got %q", ErrInvalidParam, p.Weights))
	}
	if p.P < 1 {
		return pkgerrors.WithStack(fmt.Errorf("%w: p must be >= 1", ErrInvalidParam))
	}
	return nil
}

// TreeParams configures a single CART tree. MaxDepth 0 means unlimited.
type TreeParams struct {
	Criterion       string `json:"criterion" mapstructure:"criterion"`
	MaxDepth        int    `json:"max_depth" mapstructure:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split" mapstructure:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf" mapstructure:"min_samples_leaf"`
	MaxFeatures     string `json:"max_features" mapstructure:"max_features"`
	RandomState     int64  `json:"random_state" mapstructure:"random_state"`
}

func DefaultTreeParams() TreeParams {
	return TreeParams{
		Criterion:       CriterionGini,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		RandomState:     DefaultRandomState,
	}
}

func (TreeParams) Family() Family { return DecisionTree }

func (p TreeParams) Validate() error {
	if err := validateCriterion(p.Criterion); err != nil {
		return err
	}
	return validateGrowth(p.MaxDepth, p.MinSamplesSplit, p.MinSamplesLeaf, p.MaxFeatures)
}

type ForestParams struct {
	NEstimators     int    `json:"n_estimators" mapstructure:"n_estimators"`
	Criterion       string `json:"criterion" mapstructure:"criterion"`
	MaxDepth        int    `json:"max_depth" mapstructure:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split" mapstructure:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf" mapstructure:"min_samples_leaf"`
	MaxFeatures     string `json:"max_features" mapstructure:"max_features"`
	Bootstrap       bool   `json:"bootstrap" mapstructure:"bootstrap"`
	RandomState     int64  `json:"random_state" mapstructure:"random_state"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:     100,
		Criterion:       CriterionGini,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     MaxFeaturesSqrt,
		Bootstrap:       true,
		RandomState:     DefaultRandomState,
	}
}

func (ForestParams) Family() Family { return RandomForest }

func (p ForestParams) Validate() error {
	if p.NEstimators < 1 {
		return pkgerrors.WithStack(fmt.Errorf("%w: n_estimators must be >= 1", ErrInvalidParam))
	}
	if err := validateCriterion(p.Criterion); err != nil {
		return err
	}
	return validateGrowth(p.MaxDepth, p.MinSamplesSplit, p.MinSamplesLeaf, p.MaxFeatures)
}

type AdaBoostParams struct {
	NEstimators  int     `json:"n_estimators" mapstructure:"n_estimators"`
	LearningRate float64 `json:"learning_rate" mapstructure:"learning_rate"`
	RandomState  int64   `json:"random_state" mapstructure:"random_state"`
}

func DefaultAdaBoostParams() AdaBoostParams {
	return AdaBoostParams{NEstimators: 50, LearningRate: 1, RandomState: DefaultRandomState}
}

func (AdaBoostParams) Family() Family { return AdaBoost }

func (p AdaBoostParams) Validate() error {
	if p.NEstimators < 1 {
		return pkgerrors.WithStack(fmt.Errorf("%w: n_estimators must be >= 1", ErrInvalidParam))
	}
	if !(p.LearningRate > 0) {
		return pkgerrors.WithStack(fmt.Errorf("%w: learning_rate must be positive", ErrInvalidParam))
	}
	return nil
}

type GradientBoostingParams struct {
	NEstimators     int     `json:"n_estimators" mapstructure:"n_estimators"`
	LearningRate    float64 `json:"learning_rate" mapstructure:"learning_rate"`
	Subsample       float64 `json:"subsample" mapstructure:"subsample"`
	MaxDepth        int     `json:"max_depth" mapstructure:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split" mapstructure:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf" mapstructure:"min_samples_leaf"`
	MaxFeatures     string  `json:"max_features" mapstructure:"max_features"`
	RandomState     int64   `json:"random_state" mapstructure:"random_state"`
}

func DefaultGradientBoostingParams() GradientBoostingParams {
	return GradientBoostingParams{
		NEstimators:     100,
		LearningRate:    0.1,
		Subsample:       1,
		MaxDepth:        3,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		RandomState:     DefaultRandomState,
	}
}

func (GradientBoostingParams) Family() Family { return GradientBoosting }

func (p GradientBoostingParams) Validate() error {
	if p.NEstimators < 1 {
		return pkgerrors.WithStack(fmt.Errorf("%w: n_estimators must be >= 1", ErrInvalidParam))
	}
	if !(p.LearningRate > 0) {
		return pkgerrors.WithStack(fmt.Errorf("%w: learning_rate must be positive", ErrInvalidParam))
	}
	if !(p.Subsample > 0 && p.Subsample <= 1) {
		return pkgerrors.WithStack(fmt.Errorf("%w: subsample must be in (0, 1]", ErrInvalidParam))
	}
	return validateGrowth(p.MaxDepth, p.MinSamplesSplit, p.MinSamplesLeaf, p.MaxFeatures)
}

func validateCriterion(c string) error {
	switch c {
	case CriterionGini, CriterionEntropy, CriterionLogLoss:
		return nil
	}
	return pkgerrors.WithStack(fmt.Errorf("%w: criterion must be gini, entropy or log_loss, got %q", ErrInvalidParam, c))
}

func validateGrowth(maxDepth, minSplit, minLeaf int, maxFeatures string) error {
	if maxDepth < 0 {
		return pkgerrors.WithStack(fmt.Errorf("%w: max_depth must be >= 0", ErrInvalidParam))
	}
	if minSplit < 2 {
		return pkgerrors.WithStack(fmt.Errorf("%w: min_samples_split must be >= 2", ErrInvalidParam))
	}
	if minLeaf < 1 {
		return pkgerrors.WithStack(fmt.Errorf("%w: min_samples_leaf must be >= 1", ErrInvalidParam))
	}
	switch maxFeatures {
	case MaxFeaturesAll, MaxFeaturesSqrt, MaxFeaturesLog2:
		return nil
	}
	return pkgerrors.WithStack(fmt.Errorf("%w: max_features must be empty, sqrt or log2, got %q", ErrInvalidParam, maxFeatures))
}

// featureCount resolves max_features against the input width.
func featureCount(maxFeatures string, n int) int {
	k := n
	switch maxFeatures {
	case MaxFeaturesSqrt:
		k = int(math.Sqrt(float64(n)))
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(n)))
	}
	return max(1, min(k, n))
}
