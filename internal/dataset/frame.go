// Package dataset holds the column-named numeric table passed between
// pipeline stages. Missing cells are NaN.
package dataset

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]float64
}

// New validates that every row matches the column count and that column
// names are unique and non-empty.
func New(columns []string, rows [][]float64) (*Frame, error) {
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[name] = i
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
	}
	return &Frame{
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    rows,
	}, nil
}

func (f *Frame) Columns() []string { return append([]string(nil), f.columns...) }

func (f *Frame) NumRows() int { return len(f.rows) }

func (f *Frame) NumCols() int { return len(f.columns) }

func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Row returns the backing slice of row i. Callers must not modify it.
func (f *Frame) Row(i int) []float64 { return f.rows[i] }

func (f *Frame) Column(name string) ([]float64, bool) {
	j, ok := f.index[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(f.rows))
	for i, row := range f.rows {
		out[i] = row[j]
	}
	return out, true
}

// Select returns a frame holding only the named columns, in the given order.
func (f *Frame) Select(names []string) (*Frame, error) {
	pos := make([]int, len(names))
	for k, name := range names {
		j, ok := f.index[name]
		if !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
		pos[k] = j
	}
	rows := make([][]float64, len(f.rows))
	for i, row := range f.rows {
		out := make([]float64, len(pos))
		for k, j := range pos {
			out[k] = row[j]
		}
		rows[i] = out
	}
	return New(names, rows)
}

// Drop returns a frame without the named columns.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		if !f.HasColumn(name) {
			return nil, fmt.Errorf("column %q not found", name)
		}
		drop[name] = true
	}
	keep := make([]string, 0, len(f.columns))
	for _, name := range f.columns {
		if !drop[name] {
			keep = append(keep, name)
		}
	}
	return f.Select(keep)
}

// Take returns the rows at idx, in idx order.
func (f *Frame) Take(idx []int) *Frame {
	rows := make([][]float64, len(idx))
	for k, i := range idx {
		rows[k] = append([]float64(nil), f.rows[i]...)
	}
	return &Frame{columns: f.Columns(), index: f.index, rows: rows}
}

// Dense copies the frame into a matrix. It returns an error for frames
// without rows or columns since gonum has no zero-sized dense matrices.
func (f *Frame) Dense() (*mat.Dense, error) {
	if len(f.rows) == 0 || len(f.columns) == 0 {
		return nil, fmt.Errorf("frame is empty (%d rows, %d columns)", len(f.rows), len(f.columns))
	}
	data := make([]float64, 0, len(f.rows)*len(f.columns))
	for _, row := range f.rows {
		data = append(data, row...)
	}
	return mat.NewDense(len(f.rows), len(f.columns), data), nil
}

// FromDense builds a frame over a copy of m.
func FromDense(columns []string, m mat.Matrix) (*Frame, error) {
	r, c := m.Dims()
	if c != len(columns) {
		return nil, fmt.Errorf("matrix has %d columns, want %d", c, len(columns))
	}
	rows := make([][]float64, r)
	for i := range rows {
		row := make([]float64, c)
		for j := range row {
			row[j] = m.At(i, j)
		}
		rows[i] = row
	}
	return New(columns, rows)
}

// WithColumn returns a frame with values appended as a new last column.
func (f *Frame) WithColumn(name string, values []float64) (*Frame, error) {
	if len(values) != len(f.rows) {
		return nil, fmt.Errorf("column %q has %d values, want %d", name, len(values), len(f.rows))
	}
	rows := make([][]float64, len(f.rows))
	for i, row := range f.rows {
		out := make([]float64, 0, len(row)+1)
		out = append(out, row...)
		rows[i] = append(out, values[i])
	}
	return New(append(f.Columns(), name), rows)
}

func (f *Frame) CountMissing() int {
	n := 0
	for _, row := range f.rows {
		for _, v := range row {
			if math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}
