package selection

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold splits row indices into k folds that keep the class
// proportions of y. Rows are not shuffled: within each class the first
// rows go to the first fold.
func StratifiedKFold(y []float64, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("folds must be >= 2, got %d", k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("cannot split %d samples into %d folds", len(y), k)
	}

	classes := distinct(y)
	code := make(map[float64]int, len(classes))
	for i, c := range classes {
		code[c] = i
	}
	ordered := make([]int, len(y))
	for i, v := range y {
		ordered[i] = code[v]
	}
	sort.Ints(ordered)

	// alloc[f][c] is how many rows of class c fold f tests on.
	alloc := make([][]int, k)
	for f := range alloc {
		alloc[f] = make([]int, len(classes))
		for i := f; i < len(ordered); i += k {
			alloc[f][ordered[i]]++
		}
	}

	testFold := make([]int, len(y))
	for c, class := range classes {
		f, used := 0, 0
		for i, v := range y {
			if v != class {
				continue
			}
			for used >= alloc[f][c] {
				f++
				used = 0
			}
			testFold[i] = f
			used++
		}
	}

	folds := make([]Fold, k)
	for i, f := range testFold {
		for g := range folds {
			if g == f {
				folds[g].Test = append(folds[g].Test, i)
			} else {
				folds[g].Train = append(folds[g].Train, i)
			}
		}
	}
	return folds, nil
}

func distinct(y []float64) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func subset(x *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	_, c := x.Dims()
	out := mat.NewDense(len(idx), c, nil)
	labels := make([]float64, len(idx))
	for k, i := range idx {
		out.SetRow(k, x.RawRowView(i))
		labels[k] = y[i]
	}
	return out, labels
}
