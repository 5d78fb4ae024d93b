package model

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	pkgerrors "github.com/pkg/errors"
)

// Grid is a hyperparameter search space for one family. Axes are expanded
// in alphabetical order of parameter name with the last axis varying
// fastest. An axis left empty keeps the family default.
type Grid interface {
	Family() Family
	Points() []Params
}

type LogisticRegressionGrid struct {
	C       []float64 `mapstructure:"C"`
	MaxIter []int     `mapstructure:"max_iter"`
}

func (LogisticRegressionGrid) Family() Family { return LogisticRegression }

func (g LogisticRegressionGrid) Points() []Params {
	var out []Params
	for _, idx := range expand(len(g.C), len(g.MaxIter)) {
		p := DefaultLogisticRegressionParams()
		pick(&p.C, g.C, idx[0])
		pick(&p.MaxIter, g.MaxIter, idx[1])
		out = append(out, p)
	}
	return out
}

type KNeighborsGrid struct {
	NNeighbors []int    `mapstructure:"n_neighbors"`
	P          []int    `mapstructure:"p"`
	Weights    []string `mapstructure:"weights"`
}

func (KNeighborsGrid) Family() Family { return KNeighbors }

func (g KNeighborsGrid) Points() []Params {
	var out []Params
	for _, idx := range expand(len(g.NNeighbors), len(g.P), len(g.Weights)) {
		p := DefaultKNeighborsParams()
		pick(&p.NNeighbors, g.NNeighbors, idx[0])
		pick(&p.P, g.P, idx[1])
		pick(&p.Weights, g.Weights, idx[2])
		out = append(out, p)
	}
	return out
}

type TreeGrid struct {
	Criterion       []string `mapstructure:"criterion"`
	MaxDepth        []int    `mapstructure:"max_depth"`
	MaxFeatures     []string `mapstructure:"max_features"`
	MinSamplesLeaf  []int    `mapstructure:"min_samples_leaf"`
	MinSamplesSplit []int    `mapstructure:"min_samples_split"`
}

func (TreeGrid) Family() Family { return DecisionTree }

func (g TreeGrid) Points() []Params {
	var out []Params
	for _, idx := range expand(len(g.Criterion), len(g.MaxDepth), len(g.MaxFeatures), len(g.MinSamplesLeaf), len(g.MinSamplesSplit)) {
		p := DefaultTreeParams()
		pick(&p.Criterion, g.Criterion, idx[0])
		pick(&p.MaxDepth, g.MaxDepth, idx[1])
		pick(&p.MaxFeatures, g.MaxFeatures, idx[2])
		pick(&p.MinSamplesLeaf, g.MinSamplesLeaf, idx[3])
		pick(&p.MinSamplesSplit, g.MinSamplesSplit, idx[4])
		out = append(out, p)
	}
	return out
}

type ForestGrid struct {
	Criterion   []string `mapstructure:"criterion"`
	MaxDepth    []int    `mapstructure:"max_depth"`
	MaxFeatures []string `mapstructure:"max_features"`
	NEstimators []int    `mapstructure:"n_estimators"`
}

func (ForestGrid) Family() Family { return RandomForest }

func (g ForestGrid) Points() []Params {
	var out []Params
	for _, idx := range expand(len(g.Criterion), len(g.MaxDepth), len(g.MaxFeatures), len(g.NEstimators)) {
		p := DefaultForestParams()
		pick(&p.Criterion, g.Criterion, idx[0])
		pick(&p.MaxDepth, g.MaxDepth, idx[1])
		pick(&p.MaxFeatures, g.MaxFeatures, idx[2])
		pick(&p.NEstimators, g.NEstimators, idx[3])
		out = append(out, p)
	}
	return out
}

type AdaBoostGrid struct {
	LearningRate []float64 `mapstructure:"learning_rate"`
	NEstimators  []int     `mapstructure:"n_estimators"`
}

func (AdaBoostGrid) Family() Family { return AdaBoost }

func (g AdaBoostGrid) Points() []Params {
	var out []Params
	for _, idx := range expand(len(g.LearningRate), len(g.NEstimators)) {
		p := DefaultAdaBoostParams()
		pick(&p.LearningRate, g.LearningRate, idx[0])
		pick(&p.NEstimators, g.NEstimators, idx[1])
		out = append(out, p)
	}
	return out
}

type GradientBoostingGrid struct {
	LearningRate []float64 `mapstructure:"learning_rate"`
	MaxDepth     []int     `mapstructure:"max_depth"`
	NEstimators  []int     `mapstructure:"n_estimators"`
	Subsample    []float64 `mapstructure:"subsample"`
}

func (GradientBoostingGrid) Family() Family { return GradientBoosting }

func (g GradientBoostingGrid) Points() []Params {
	var out []Params
	for _, idx := range expand(len(g.LearningRate), len(g.MaxDepth), len(g.NEstimators), len(g.Subsample)) {
		p := DefaultGradientBoostingParams()
		pick(&p.LearningRate, g.LearningRate, idx[0])
		pick(&p.MaxDepth, g.MaxDepth, idx[1])
		pick(&p.NEstimators, g.NEstimators, idx[2])
		pick(&p.Subsample, g.Subsample, idx[3])
		out = append(out, p)
	}
	return out
}

// EmptyGrid returns the family's grid with no axes.
func (f Family) EmptyGrid() (Grid, error) {
	switch f {
	case LogisticRegression:
		return LogisticRegressionGrid{}, nil
	case KNeighbors:
		return KNeighborsGrid{}, nil
	case DecisionTree:
		return TreeGrid{}, nil
	case RandomForest:
		return ForestGrid{}, nil
	case AdaBoost:
		return AdaBoostGrid{}, nil
	case GradientBoosting:
		return GradientBoostingGrid{}, nil
	}
	return nil, fmt.Errorf("unknown model family %d", int(f))
}

// DecodeGrid builds the family's grid from a loosely typed mapping such as
// a YAML block. Unknown parameter names are rejected, scalars become
// single-value axes, and every expanded point must validate.
func DecodeGrid(f Family, raw map[string]any) (Grid, error) {
	grid, err := f.EmptyGrid()
	if err != nil {
		return nil, err
	}
	ptr := gridPointer(grid)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           ptr,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, pkgerrors.WithStack(fmt.Errorf("%w: %s grid: %v", ErrInvalidParam, f, err))
	}
	grid = derefGrid(ptr)
	for _, p := range grid.Points() {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s grid: %w", f, err)
		}
	}
	return grid, nil
}

func gridPointer(g Grid) any {
	switch g := g.(type) {
	case LogisticRegressionGrid:
		return &g
	case KNeighborsGrid:
		return &g
	case TreeGrid:
		return &g
	case ForestGrid:
		return &g
	case AdaBoostGrid:
		return &g
	case GradientBoostingGrid:
		return &g
	}
	return nil
}

func derefGrid(p any) Grid {
	switch p := p.(type) {
	case *LogisticRegressionGrid:
		return *p
	case *KNeighborsGrid:
		return *p
	case *TreeGrid:
		return *p
	case *ForestGrid:
		return *p
	case *AdaBoostGrid:
		return *p
	case *GradientBoostingGrid:
		return *p
	}
	return nil
}

// expand returns every index tuple over the given axis sizes, last axis
// fastest. An axis of size zero yields index -1. When every axis is empty
// the result is empty.
func expand(sizes ...int) [][]int {
	total := 1
	nonEmpty := false
	for _, n := range sizes {
		if n > 0 {
			total *= n
			nonEmpty = true
		}
	}
	if !nonEmpty {
		return nil
	}
	out := make([][]int, 0, total)
	idx := make([]int, len(sizes))
	for k, n := range sizes {
		if n == 0 {
			idx[k] = -1
		}
	}
	for {
		out = append(out, append([]int(nil), idx...))
		k := len(sizes) - 1
		for ; k >= 0; k-- {
			if sizes[k] == 0 {
				continue
			}
			idx[k]++
			if idx[k] < sizes[k] {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return out
		}
	}
}

func pick[T any](dst *T, values []T, i int) {
	if i >= 0 {
		*dst = values[i]
	}
}
