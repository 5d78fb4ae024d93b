package transform

import (
	"errors"
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"
)

var ErrInvalidLabel = errors.New("invalid target label")

// RemapLabels returns a copy of y with -1 mapped to 0. Every resulting
// value must be 0 or 1. Applying it to its own output is a no-op.
func RemapLabels(y []float64) ([]float64, error) {
	out := make([]float64, len(y))
	for i, v := range y {
		switch {
		case v == -1:
			out[i] = 0
		case v == 0 || v == 1:
			out[i] = v
		case math.IsNaN(v):
			return nil, pkgerrors.WithStack(fmt.Errorf("%w: row %d is missing", ErrInvalidLabel, i))
		default:
			return nil, pkgerrors.WithStack(fmt.Errorf("%w: row %d has %v", ErrInvalidLabel, i, v))
		}
	}
	return out, nil
}
