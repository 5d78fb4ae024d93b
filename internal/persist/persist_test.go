package persist

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMatrixRoundTripKeepsNaN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "train.bin")
	m := mat.NewDense(2, 3, []float64{1, math.NaN(), -1, 0.1, 0.2, 3})

	require.NoError(t, SaveMatrix(path, m))
	got, err := LoadMatrix(path)
	require.NoError(t, err)

	r, c := got.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 3, c)
	assert.True(t, math.IsNaN(got.At(0, 1)))
	assert.Equal(t, 0.1, got.At(1, 0))
	assert.Equal(t, -1.0, got.At(0, 2))
}

func TestSaveMatrixRejectsEmpty(t *testing.T) {
	err := SaveMatrix(filepath.Join(t.TempDir(), "x.bin"), &mat.Dense{})
	require.Error(t, err)
}

func TestYAMLRoundTrip(t *testing.T) {
	type report struct {
		Score float64           `yaml:"score"`
		Items map[string]string `yaml:"items"`
	}
	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, WriteYAML(path, report{Score: 0.5, Items: map[string]string{"b": "2", "a": "1"}}))

	var got report
	require.NoError(t, ReadYAML(path, &got))
	assert.Equal(t, 0.5, got.Score)
	assert.Equal(t, "1", got.Items["a"])
}

func TestWriteFileLeavesNoTemporaries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveObject(filepath.Join(dir, "obj.json"), map[string]int{"a": 1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "obj.json", entries[0].Name())
}

func TestLoadObjectMissingFile(t *testing.T) {
	var v map[string]any
	err := LoadObject(filepath.Join(t.TempDir(), "absent.json"), &v)
	require.ErrorIs(t, err, os.ErrNotExist)
}
