package model

import (
	"sort"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KNeighborsModel votes among the nearest training rows under the
// Minkowski distance of order P. Equal votes resolve to class 0.
type KNeighborsModel struct {
	Config KNeighborsParams `json:"params"`
	X      [][]float64      `json:"x,omitempty"`
	Y      []float64        `json:"y,omitempty"`
}

func (m *KNeighborsModel) Family() Family { return KNeighbors }

func (m *KNeighborsModel) Params() Params { return m.Config }

func (m *KNeighborsModel) Fit(x *mat.Dense, y []float64) error {
	if err := checkFit(x, y); err != nil {
		return err
	}
	m.X = make([][]float64, 0, len(y))
	for _, row := range rows(x) {
		m.X = append(m.X, append([]float64(nil), row...))
	}
	m.Y = append([]float64(nil), y...)
	return nil
}

func (m *KNeighborsModel) Predict(x *mat.Dense) ([]float64, error) {
	if len(m.X) == 0 {
		return nil, pkgerrors.WithStack(ErrNotFitted)
	}
	if err := checkPredict(x, len(m.X[0])); err != nil {
		return nil, err
	}
	type hit struct {
		dist  float64
		label float64
	}
	k := min(m.Config.NNeighbors, len(m.X))
	hits := make([]hit, len(m.X))
	queries := rows(x)
	out := make([]float64, len(queries))
	for i, q := range queries {
		for j, ref := range m.X {
			hits[j] = hit{dist: floats.Distance(q, ref, float64(m.Config.P)), label: m.Y[j]}
		}
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].dist < hits[b].dist })
		nearest := hits[:k]

		var votes [2]float64
		if m.Config.Weights == "distance" && nearest[0].dist == 0 {
			for _, h := range nearest {
				if h.dist == 0 {
					votes[int(h.label)]++
				}
			}
		} else {
			for _, h := range nearest {
				w := 1.0
				if m.Config.Weights == "distance" {
					w = 1 / h.dist
				}
				votes[int(h.label)] += w
			}
		}
		out[i] = boolLabel(votes[1] > votes[0])
	}
	return out, nil
}
