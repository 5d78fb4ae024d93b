package model

import (
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LogisticRegressionModel is L2-regularised logistic regression fitted by
// Newton's method. The intercept is not penalised.
type LogisticRegressionModel struct {
	Config    LogisticRegressionParams `json:"params"`
	Coef      []float64                `json:"coef,omitempty"`
	Intercept float64                  `json:"intercept"`
	Iter      int                      `json:"n_iter"`
}

func (m *LogisticRegressionModel) Family() Family { return LogisticRegression }

func (m *LogisticRegressionModel) Params() Params { return m.Config }

func (m *LogisticRegressionModel) Fit(x *mat.Dense, y []float64) error {
	if err := checkFit(x, y); err != nil {
		return err
	}
	r, c := x.Dims()
	d := c + 1
	lambda := 1 / m.Config.C
	w := make([]float64, d)
	grad := make([]float64, d)
	hess := make([]float64, d*d)
	xi := make([]float64, d)
	xi[0] = 1

	iter := 0
	for iter < m.Config.MaxIter {
		iter++
		for k := range grad {
			grad[k] = 0
		}
		for k := range hess {
			hess[k] = 0
		}
		for i := 0; i < r; i++ {
			copy(xi[1:], x.RawRowView(i))
			p := sigmoid(floats.Dot(w, xi))
			s := p * (1 - p)
			floats.AddScaled(grad, p-y[i], xi)
			for a := 0; a < d; a++ {
				sa := s * xi[a]
				row := hess[a*d : (a+1)*d]
				for b := a; b < d; b++ {
					row[b] += sa * xi[b]
				}
			}
		}
		hess[0] += 1e-10
		for a := 1; a < d; a++ {
			grad[a] += lambda * w[a]
			hess[a*d+a] += lambda
		}
		for a := 0; a < d; a++ {
			for b := 0; b < a; b++ {
				hess[a*d+b] = hess[b*d+a]
			}
		}

		step, err := solveNewton(d, hess, grad)
		if err != nil {
			return pkgerrors.WithStack(fmt.Errorf("%w: logistic regression: %v", ErrFit, err))
		}
		floats.Sub(w, step)
		if floats.Norm(step, math.Inf(1)) < m.Config.Tol {
			break
		}
	}

	m.Intercept = w[0]
	m.Coef = append([]float64(nil), w[1:]...)
	m.Iter = iter
	return nil
}

func solveNewton(d int, hess, grad []float64) ([]float64, error) {
	h := mat.NewSymDense(d, append([]float64(nil), hess...))
	g := mat.NewVecDense(d, append([]float64(nil), grad...))
	var step mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(h) {
		if err := chol.SolveVecTo(&step, g); err == nil {
			return step.RawVector().Data, nil
		}
	}
	if err := step.SolveVec(h, g); err != nil {
		return nil, err
	}
	return step.RawVector().Data, nil
}

// DecisionFunction returns the signed distance to the separating hyperplane.
func (m *LogisticRegressionModel) DecisionFunction(x *mat.Dense) ([]float64, error) {
	if m.Coef == nil {
		return nil, pkgerrors.WithStack(ErrNotFitted)
	}
	if err := checkPredict(x, len(m.Coef)); err != nil {
		return nil, err
	}
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = floats.Dot(m.Coef, x.RawRowView(i)) + m.Intercept
	}
	return out, nil
}

func (m *LogisticRegressionModel) Predict(x *mat.Dense) ([]float64, error) {
	scores, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	for i, s := range scores {
		scores[i] = boolLabel(s > 0)
	}
	return scores, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func boolLabel(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
