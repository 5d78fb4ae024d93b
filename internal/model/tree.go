package model

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const treeStream = 0x7265655f64656369

// DecisionTreeModel is a single CART classifier. Leaves hold the weighted
// share of class 1.
type DecisionTreeModel struct {
	Config    TreeParams `json:"params"`
	Tree      *Tree      `json:"tree,omitempty"`
	NFeatures int        `json:"n_features"`
}

func (m *DecisionTreeModel) Family() Family { return DecisionTree }

func (m *DecisionTreeModel) Params() Params { return m.Config }

func (m *DecisionTreeModel) Fit(x *mat.Dense, y []float64) error {
	if err := checkFit(x, y); err != nil {
		return err
	}
	return m.fitWeighted(x, y, uniformWeights(len(y)))
}

func (m *DecisionTreeModel) fitWeighted(x *mat.Dense, y, w []float64) error {
	_, c := x.Dims()
	cfg := growConfig{
		criterion:   m.Config.Criterion,
		maxDepth:    m.Config.MaxDepth,
		minSplit:    m.Config.MinSamplesSplit,
		minLeaf:     m.Config.MinSamplesLeaf,
		maxFeatures: featureCount(m.Config.MaxFeatures, c),
	}
	if cfg.maxFeatures < c {
		cfg.rng = newRand(m.Config.RandomState, treeStream)
	}
	tree := growTree(rows(x), y, w, allRows(len(y)), cfg)
	if len(tree.Nodes) == 0 {
		return pkgerrors.WithStack(fmt.Errorf("%w: decision tree has no nodes", ErrFit))
	}
	m.Tree = &tree
	m.NFeatures = c
	return nil
}

func (m *DecisionTreeModel) PredictProba(x *mat.Dense) ([]float64, error) {
	if m.Tree == nil {
		return nil, pkgerrors.WithStack(ErrNotFitted)
	}
	if err := checkPredict(x, m.NFeatures); err != nil {
		return nil, err
	}
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = m.Tree.Eval(x.RawRowView(i))
	}
	return out, nil
}

func (m *DecisionTreeModel) Predict(x *mat.Dense) ([]float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	for i, p := range proba {
		proba[i] = boolLabel(p > 0.5)
	}
	return proba, nil
}
