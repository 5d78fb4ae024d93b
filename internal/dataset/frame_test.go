package dataset

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsRaggedRows(t *testing.T) {
	_, err := New([]string{"a", "b"}, [][]float64{{1, 2}, {3}})
	require.Error(t, err)
}

func TestNewRejectsDuplicateColumns(t *testing.T) {
	_, err := New([]string{"a", "a"}, nil)
	require.Error(t, err)
}

func TestSelectReordersColumns(t *testing.T) {
	f, err := New([]string{"a", "b", "c"}, [][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	got, err := f.Select([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, got.Columns())
	assert.Equal(t, []float64{6, 4}, got.Row(1))

	_, err = f.Select([]string{"missing"})
	require.Error(t, err)
}

func TestDropAndWithColumn(t *testing.T) {
	f, err := New([]string{"a", "Result"}, [][]float64{{1, -1}, {2, 1}})
	require.NoError(t, err)

	inputs, err := f.Drop("Result")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, inputs.Columns())

	back, err := inputs.WithColumn("predicted_column", []float64{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "predicted_column"}, back.Columns())
	assert.Equal(t, []float64{2, 1}, back.Row(1))
}

func TestDenseRejectsEmptyFrame(t *testing.T) {
	f, err := New([]string{"a"}, nil)
	require.NoError(t, err)
	_, err = f.Dense()
	require.Error(t, err)
}

func TestCSVRoundTrip(t *testing.T) {
	in := "having_IP_Address,URL_Length,Result\n-1,1,1\nna,,-1\n0.1,1e-3,1\n"
	f, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 3, f.NumRows())
	assert.True(t, math.IsNaN(f.Row(1)[0]))
	assert.True(t, math.IsNaN(f.Row(1)[1]))
	assert.Equal(t, 2, f.CountMissing())

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteCSVFile(path, f))
	back, err := ReadCSVFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.Columns(), back.Columns())
	assert.Equal(t, 0.001, back.Row(2)[1])
	assert.True(t, math.IsNaN(back.Row(1)[0]))
}

func TestReadCSVRejectsText(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,phish\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "b"`)
}

func TestFormatCellIsExact(t *testing.T) {
	for _, v := range []float64{0.1, 1.0 / 3.0, -1, 1e-300} {
		got, err := ParseCell(FormatCell(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}
