package model

import (
	"math"
	"sort"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const boostStream = 0x67626f6f7374

// GradientBoostingModel fits regression trees to the gradient of the
// binomial deviance. Leaf values take one Newton step.
type GradientBoostingModel struct {
	Config    GradientBoostingParams `json:"params"`
	Init      float64                `json:"init"`
	Trees     []Tree                 `json:"trees,omitempty"`
	NFeatures int                    `json:"n_features"`
}

func (m *GradientBoostingModel) Family() Family { return GradientBoosting }

func (m *GradientBoostingModel) Params() Params { return m.Config }

func (m *GradientBoostingModel) Fit(x *mat.Dense, y []float64) error {
	if err := checkFit(x, y); err != nil {
		return err
	}
	n, c := x.Dims()
	data := rows(x)
	prior := floats.Sum(y) / float64(n)
	prior = math.Min(math.Max(prior, 1e-15), 1-1e-15)
	m.Init = math.Log(prior / (1 - prior))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = m.Init
	}
	prob := make([]float64, n)
	resid := make([]float64, n)
	ones := uniformWeights(n)
	rng := newRand(m.Config.RandomState, boostStream)
	sampleSize := max(1, int(m.Config.Subsample*float64(n)))
	featureRng := newRand(m.Config.RandomState, treeStream)

	trees := make([]Tree, 0, m.Config.NEstimators)
	for stage := 0; stage < m.Config.NEstimators; stage++ {
		for i := range raw {
			prob[i] = sigmoid(raw[i])
			resid[i] = y[i] - prob[i]
		}
		idx := allRows(n)
		if sampleSize < n {
			idx = rng.Perm(n)[:sampleSize]
			sort.Ints(idx)
		}
		cfg := growConfig{
			criterion:   criterionSquaredError,
			maxDepth:    m.Config.MaxDepth,
			minSplit:    m.Config.MinSamplesSplit,
			minLeaf:     m.Config.MinSamplesLeaf,
			maxFeatures: featureCount(m.Config.MaxFeatures, c),
			leafValue: func(leaf []int) float64 {
				var num, den float64
				for _, i := range leaf {
					num += resid[i]
					den += prob[i] * (1 - prob[i])
				}
				if math.Abs(den) < 1e-150 {
					return 0
				}
				return num / den
			},
		}
		if cfg.maxFeatures < c {
			cfg.rng = featureRng
		}
		tree := growTree(data, resid, ones, idx, cfg)
		for i, row := range data {
			raw[i] += m.Config.LearningRate * tree.Eval(row)
		}
		trees = append(trees, tree)
	}
	m.Trees = trees
	m.NFeatures = c
	return nil
}

func (m *GradientBoostingModel) DecisionFunction(x *mat.Dense) ([]float64, error) {
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
		out[i] = m.Init
		for t := range m.Trees {
			out[i] += m.Config.LearningRate * m.Trees[t].Eval(row)
		}
	}
	return out, nil
}

func (m *GradientBoostingModel) Predict(x *mat.Dense) ([]float64, error) {
	scores, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	for i, s := range scores {
		scores[i] = boolLabel(s > 0)
	}
	return scores, nil
}
