package ingestion

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/saadabdullah098/networksecurity/internal/dataset"
)

var ErrInvalidSplit = errors.New("invalid train/test split")

// SplitOptions controls SplitTrainTest. TestRatio is the share of rows held
// out; the test split gets ceil(n*TestRatio) rows. When StratifyBy names a
// column, each class contributes to the test split in proportion to its size.
type SplitOptions struct {
	TestRatio  float64
	Seed       uint64
	StratifyBy string
}

func (o SplitOptions) Validate() error {
	if !(o.TestRatio > 0 && o.TestRatio < 1) {
		return pkgerrors.WithStack(fmt.Errorf("%w: test ratio must be in (0, 1), got %v", ErrInvalidSplit, o.TestRatio))
	}
	return nil
}

// SplitTrainTest shuffles rows with a seeded generator and cuts them into
// train and test frames. The same seed and input always give the same split.
func SplitTrainTest(f *dataset.Frame, opts SplitOptions) (train, test *dataset.Frame, err error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	n := f.NumRows()
	nTest := int(math.Ceil(float64(n) * opts.TestRatio))
	if n < 2 || nTest >= n {
		return nil, nil, pkgerrors.WithStack(fmt.Errorf("%w: cannot hold out %d of %d rows", ErrInvalidSplit, nTest, n))
	}
	rng := rand.New(rand.NewPCG(opts.Seed, 0x6e6574736563))

	var testIdx []int
	if opts.StratifyBy == "" {
		perm := rng.Perm(n)
		testIdx = perm[:nTest]
	} else {
		labels, ok := f.Column(opts.StratifyBy)
		if !ok {
			return nil, nil, pkgerrors.WithStack(fmt.Errorf("%w: stratify column %q not found", ErrInvalidSplit, opts.StratifyBy))
		}
		testIdx, err = stratifiedTestRows(labels, nTest, rng)
		if err != nil {
			return nil, nil, err
		}
	}

	inTest := make([]bool, n)
	for _, i := range testIdx {
		inTest[i] = true
	}
	trainIdx := make([]int, 0, n-nTest)
	for i := 0; i < n; i++ {
		if !inTest[i] {
			trainIdx = append(trainIdx, i)
		}
	}
	// Shuffled order for train, held-out rows in the order they were drawn.
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	return f.Take(trainIdx), f.Take(testIdx), nil
}

// stratifiedTestRows allocates nTest rows across classes by largest
// remainder, then draws each class's share at random.
func stratifiedTestRows(labels []float64, nTest int, rng *rand.Rand) ([]int, error) {
	byClass := make(map[float64][]int)
	for i, v := range labels {
		if math.IsNaN(v) {
			return nil, pkgerrors.WithStack(fmt.Errorf("%w: stratify column has a missing value at row %d", ErrInvalidSplit, i))
		}
		byClass[v] = append(byClass[v], i)
	}
	classes := make([]float64, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Float64s(classes)

	n := len(labels)
	type share struct {
		class float64
		take  int
		rem   float64
	}
	shares := make([]share, len(classes))
	assigned := 0
	for i, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		shares[i] = share{class: c, take: int(math.Floor(exact)), rem: exact - math.Floor(exact)}
		assigned += shares[i].take
	}
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return shares[order[a]].rem > shares[order[b]].rem })
	for k := 0; assigned < nTest; k = (k + 1) % len(order) {
		s := &shares[order[k]]
		if s.take < len(byClass[s.class]) {
			s.take++
			assigned++
		}
	}

	var out []int
	for _, s := range shares {
		rows := append([]int(nil), byClass[s.class]...)
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		out = append(out, rows[:s.take]...)
	}
	return out, nil
}
