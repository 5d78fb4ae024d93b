package model

import (
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// AdaBoostModel is discrete SAMME boosting over depth-one trees.
type AdaBoostModel struct {
	Config    AdaBoostParams `json:"params"`
	Stumps    []Tree         `json:"stumps,omitempty"`
	Alphas    []float64      `json:"alphas,omitempty"`
	NFeatures int            `json:"n_features"`
}

func (m *AdaBoostModel) Family() Family { return AdaBoost }

func (m *AdaBoostModel) Params() Params { return m.Config }

func (m *AdaBoostModel) Fit(x *mat.Dense, y []float64) error {
	if err := checkFit(x, y); err != nil {
		return err
	}
	n, c := x.Dims()
	data := rows(x)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	cfg := growConfig{criterion: CriterionGini, maxDepth: 1, minSplit: 2, minLeaf: 1}

	var stumps []Tree
	var alphas []float64
	for round := 0; round < m.Config.NEstimators; round++ {
		stump := growTree(data, y, w, allRows(n), cfg)
		miss := make([]bool, n)
		var errW float64
		for i := range data {
			if boolLabel(stump.Eval(data[i]) > 0.5) != y[i] {
				miss[i] = true
				errW += w[i]
			}
		}
		errW /= floats.Sum(w)

		if errW <= 0 {
			stumps = append(stumps, stump)
			alphas = append(alphas, 1)
			break
		}
		if errW >= 0.5 {
			if len(stumps) == 0 {
				return pkgerrors.WithStack(fmt.Errorf("%w: first boosting round is no better than chance (error %.3f)", ErrFit, errW))
			}
			break
		}
		alpha := m.Config.LearningRate * math.Log((1-errW)/errW)
		stumps = append(stumps, stump)
		alphas = append(alphas, alpha)
		if round == m.Config.NEstimators-1 {
			break
		}
		for i := range w {
			if miss[i] {
				w[i] *= math.Exp(alpha)
			}
		}
		sum := floats.Sum(w)
		if !(sum > 0) || math.IsInf(sum, 0) {
			break
		}
		floats.Scale(1/sum, w)
	}

	m.Stumps = stumps
	m.Alphas = alphas
	m.NFeatures = c
	return nil
}

func (m *AdaBoostModel) DecisionFunction(x *mat.Dense) ([]float64, error) {
	if len(m.Stumps) == 0 {
		return nil, pkgerrors.WithStack(ErrNotFitted)
	}
	if err := checkPredict(x, m.NFeatures); err != nil {
		return nil, err
	}
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		for k := range m.Stumps {
			if m.Stumps[k].Eval(row) > 0.5 {
				out[i] += m.Alphas[k]
			} else {
				out[i] -= m.Alphas[k]
			}
		}
	}
	return out, nil
}

func (m *AdaBoostModel) Predict(x *mat.Dense) ([]float64, error) {
	scores, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	for i, s := range scores {
		scores[i] = boolLabel(s > 0)
	}
	return scores, nil
}
