package ingestion

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/docstore"
)

func frameOf(t *testing.T, n, positives int) *dataset.Frame {
	t.Helper()
	rows := make([][]float64, n)
	for i := range rows {
		label := -1.0
		if i < positives {
			label = 1
		}
		rows[i] = []float64{float64(i), label}
	}
	f, err := dataset.New([]string{"id", "Result"}, rows)
	require.NoError(t, err)
	return f
}

func TestSplitTrainTestSizesAndDisjoint(t *testing.T) {
	f := frameOf(t, 101, 50)
	train, test, err := SplitTrainTest(f, SplitOptions{TestRatio: 0.2, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, 21, test.NumRows())
	assert.Equal(t, 80, train.NumRows())

	seen := make(map[float64]bool)
	for _, part := range []*dataset.Frame{train, test} {
		ids, _ := part.Column("id")
		for _, id := range ids {
			assert.False(t, seen[id], "row %v in both splits", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 101)
}

func TestSplitTrainTestIsDeterministic(t *testing.T) {
	f := frameOf(t, 40, 20)
	_, a, err := SplitTrainTest(f, SplitOptions{TestRatio: 0.25, Seed: 3})
	require.NoError(t, err)
	_, b, err := SplitTrainTest(f, SplitOptions{TestRatio: 0.25, Seed: 3})
	require.NoError(t, err)
	_, c, err := SplitTrainTest(f, SplitOptions{TestRatio: 0.25, Seed: 4})
	require.NoError(t, err)

	idsA, _ := a.Column("id")
	idsB, _ := b.Column("id")
	idsC, _ := c.Column("id")
	assert.Equal(t, idsA, idsB)
	assert.NotEqual(t, idsA, idsC)
}

func TestSplitTrainTestStratified(t *testing.T) {
	f := frameOf(t, 100, 30)
	train, test, err := SplitTrainTest(f, SplitOptions{TestRatio: 0.1, Seed: 1, StratifyBy: "Result"})
	require.NoError(t, err)

	count := func(part *dataset.Frame) (pos int) {
		labels, _ := part.Column("Result")
		for _, v := range labels {
			if v == 1 {
				pos++
			}
		}
		return pos
	}
	assert.Equal(t, 10, test.NumRows())
	assert.Equal(t, 3, count(test))
	assert.Equal(t, 27, count(train))
}

func TestSplitTrainTestRejectsBadInput(t *testing.T) {
	f := frameOf(t, 10, 5)
	_, _, err := SplitTrainTest(f, SplitOptions{TestRatio: 0})
	require.ErrorIs(t, err, ErrInvalidSplit)
	_, _, err = SplitTrainTest(f, SplitOptions{TestRatio: 0.5, StratifyBy: "nope"})
	require.ErrorIs(t, err, ErrInvalidSplit)
	_, _, err = SplitTrainTest(frameOf(t, 1, 0), SplitOptions{TestRatio: 0.5})
	require.ErrorIs(t, err, ErrInvalidSplit)
}

func TestIngestorRunWritesFeatureStoreAndSplits(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	_, err := store.InsertRecords(ctx, "NETWORKSECURITY", "NetworkData", docstore.DocumentsFromFrame(frameOf(t, 20, 10)))
	require.NoError(t, err)

	run, err := artifact.NewRun(t.TempDir(), time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	ing, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), store, Config{
		Database:   "NETWORKSECURITY",
		Collection: "NetworkData",
		Split:      SplitOptions{TestRatio: 0.2, Seed: 42},
	})
	require.NoError(t, err)

	out, err := ing.Run(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Rows)
	require.NoError(t, out.Verify())

	fs, err := dataset.ReadCSVFile(out.FeatureStorePath)
	require.NoError(t, err)
	assert.Equal(t, 20, fs.NumRows())
	test, err := dataset.ReadCSVFile(out.TestPath)
	require.NoError(t, err)
	assert.Equal(t, 4, test.NumRows())
	_, err = os.Stat(out.TrainPath)
	require.NoError(t, err)
}

func TestIngestorRunPropagatesSourceErrors(t *testing.T) {
	run, err := artifact.NewRun(t.TempDir(), time.Now())
	require.NoError(t, err)
	ing, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), docstore.NewMemory(), Config{
		Database: "db", Collection: "empty", Split: SplitOptions{TestRatio: 0.2},
	})
	require.NoError(t, err)
	_, err = ing.Run(context.Background(), run)
	require.ErrorIs(t, err, docstore.ErrEmptyCollection)
}
