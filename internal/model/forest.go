package model

import (
	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const forestStream = 0x666f72657374

// RandomForestModel averages the class-1 share of bootstrapped trees.
type RandomForestModel struct {
	Config    ForestParams `json:"params"`
	Trees     []Tree       `json:"trees,omitempty"`
	NFeatures int          `json:"n_features"`
}

func (m *RandomForestModel) Family() Family { return RandomForest }

func (m *RandomForestModel) Params() Params { return m.Config }

func (m *RandomForestModel) Fit(x *mat.Dense, y []float64) error {
	if err := checkFit(x, y); err != nil {
		return err
	}
	n, c := x.Dims()
	data := rows(x)
	rng := newRand(m.Config.RandomState, forestStream)
	trees := make([]Tree, 0, m.Config.NEstimators)

	for t := 0; t < m.Config.NEstimators; t++ {
		idx, w := allRows(n), uniformWeights(n)
		if m.Config.Bootstrap {
			idx, w = bootstrap(rng, n)
		}
		cfg := growConfig{
			criterion:   m.Config.Criterion,
			maxDepth:    m.Config.MaxDepth,
			minSplit:    m.Config.MinSamplesSplit,
			minLeaf:     m.Config.MinSamplesLeaf,
			maxFeatures: featureCount(m.Config.MaxFeatures, c),
			rng:         newRand(int64(rng.Uint64()), rng.Uint64()),
		}
		trees = append(trees, growTree(data, y, w, idx, cfg))
	}
	m.Trees = trees
	m.NFeatures = c
	return nil
}

// bootstrap draws n rows with replacement and returns the distinct rows
// drawn with their draw counts as weights.
func bootstrap(rng interface{ IntN(int) int }, n int) ([]int, []float64) {
	w := make([]float64, n)
	for k := 0; k < n; k++ {
		w[rng.IntN(n)]++
	}
	idx := make([]int, 0, n)
	for i, c := range w {
		if c > 0 {
			idx = append(idx, i)
		}
	}
	return idx, w
}

func (m *RandomForestModel) PredictProba(x *mat.Dense) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, pkgerrors.WithStack(ErrNotFitted)
	}
	if err := checkPredict(x, m.NFeatures); err != nil {
		return nil, err
	}
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		var sum float64
		for t := range m.Trees {
			sum += m.Trees[t].Eval(row)
		}
		out[i] = sum / float64(len(m.Trees))
	}
	return out, nil
}

func (m *RandomForestModel) Predict(x *mat.Dense) ([]float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	for i, p := range proba {
		proba[i] = boolLabel(p > 0.5)
	}
	return proba, nil
}
