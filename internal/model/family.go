// Package model implements the binary classifiers the selector trains,
// their hyperparameters and their persisted form.
package model

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotFitted    = errors.New("model is not fitted")
	ErrFit          = errors.New("model fit failed")
	ErrInvalidParam = errors.New("invalid hyperparameter")
)

// Estimator is a binary classifier over dense float features with labels
// 0 and 1.
type Estimator interface {
	Family() Family
	Params() Params
	Fit(x *mat.Dense, y []float64) error
	Predict(x *mat.Dense) ([]float64, error)
}

// Params is the hyperparameter set of one family.
type Params interface {
	Family() Family
	Validate() error
}

// Family enumerates the supported classifier variants.
type Family int

const (
	LogisticRegression Family = iota + 1
	KNeighbors
	DecisionTree
	RandomForest
	AdaBoost
	GradientBoosting
)

var familyNames = map[Family]string{
	LogisticRegression: "LogisticRegression",
	KNeighbors:         "KNeighbors",
	DecisionTree:       "DecisionTree",
	RandomForest:       "RandomForest",
	AdaBoost:           "AdaBoost",
	GradientBoosting:   "GradientBoosting",
}

// Families returns every family in declaration order.
func Families() []Family {
	return []Family{LogisticRegression, KNeighbors, DecisionTree, RandomForest, AdaBoost, GradientBoosting}
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// ParseFamily accepts the family name in any case, with or without spaces,
// underscores or a "Classifier" suffix.
func ParseFamily(s string) (Family, error) {
	norm := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	norm = strings.TrimSuffix(norm, "classifier")
	switch norm {
	case "knn", "kneighbours":
		norm = "kneighbors"
	case "gradientboost":
		norm = "gradientboosting"
	}
	for f, name := range familyNames {
		if strings.ToLower(name) == norm {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown model family %q", s)
}

func (f Family) MarshalText() ([]byte, error) {
	if _, ok := familyNames[f]; !ok {
		return nil, fmt.Errorf("unknown model family %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *Family) UnmarshalText(b []byte) error {
	parsed, err := ParseFamily(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// DefaultParams returns the family's default hyperparameters.
func (f Family) DefaultParams() (Params, error) {
	switch f {
	case LogisticRegression:
		return DefaultLogisticRegressionParams(), nil
	case KNeighbors:
		return DefaultKNeighborsParams(), nil
	case DecisionTree:
		return DefaultTreeParams(), nil
	case RandomForest:
		return DefaultForestParams(), nil
	case AdaBoost:
		return DefaultAdaBoostParams(), nil
	case GradientBoosting:
		return DefaultGradientBoostingParams(), nil
	}
	return nil, fmt.Errorf("unknown model family %d", int(f))
}

// New returns an unfitted estimator of family f configured with p.
func (f Family) New(p Params) (Estimator, error) {
	if p == nil {
		var err error
		if p, err = f.DefaultParams(); err != nil {
			return nil, err
		}
	}
	if p.Family() != f {
		return nil, pkgerrors.WithStack(fmt.Errorf("%w: %s params given to %s", ErrInvalidParam, p.Family(), f))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p := p.(type) {
	case LogisticRegressionParams:
		return &LogisticRegressionModel{Config: p}, nil
	case KNeighborsParams:
		return &KNeighborsModel{Config: p}, nil
	case TreeParams:
		return &DecisionTreeModel{Config: p}, nil
	case ForestParams:
		return &RandomForestModel{Config: p}, nil
	case AdaBoostParams:
		return &AdaBoostModel{Config: p}, nil
	case GradientBoostingParams:
		return &GradientBoostingModel{Config: p}, nil
	}
	return nil, pkgerrors.WithStack(fmt.Errorf("%w: unsupported params type %T", ErrInvalidParam, p))
}

// checkFit validates training inputs shared by every estimator.
func checkFit(x *mat.Dense, y []float64) error {
	if x == nil || x.IsEmpty() {
		return pkgerrors.WithStack(fmt.Errorf("%w: empty training matrix", ErrFit))
	}
	r, c := x.Dims()
	if r != len(y) {
		return pkgerrors.WithStack(fmt.Errorf("%w: %d rows but %d labels", ErrFit, r, len(y)))
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := x.At(i, j); v != v {
				return pkgerrors.WithStack(fmt.Errorf("%w: missing value at row %d column %d", ErrFit, i, j))
			}
		}
		if y[i] != 0 && y[i] != 1 {
			return pkgerrors.WithStack(fmt.Errorf("%w: label %v at row %d is not 0 or 1", ErrFit, y[i], i))
		}
	}
	return nil
}

func checkPredict(x *mat.Dense, features int) error {
	if x == nil || x.IsEmpty() {
		return pkgerrors.New("empty input matrix")
	}
	if _, c := x.Dims(); c != features {
		return fmt.Errorf("input has %d features, model was fitted on %d", c, features)
	}
	return nil
}

func rows(x *mat.Dense) [][]float64 {
	r, _ := x.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = x.RawRowView(i)
	}
	return out
}
