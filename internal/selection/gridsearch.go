package selection

import (
	"context"
	"fmt"
	"runtime"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/saadabdullah098/networksecurity/internal/model"
	"github.com/saadabdullah098/networksecurity/internal/scoring"
)

const DefaultFolds = 3

// Dataset is a feature matrix with its 0/1 labels.
type Dataset struct {
	X *mat.Dense
	Y []float64
}

func (d Dataset) validate() error {
	if d.X == nil || d.X.IsEmpty() {
		return pkgerrors.WithStack(fmt.Errorf("%w: empty feature matrix", model.ErrFit))
	}
	if r, _ := d.X.Dims(); r != len(d.Y) {
		return pkgerrors.WithStack(fmt.Errorf("%w: %d rows but %d labels", model.ErrFit, r, len(d.Y)))
	}
	return nil
}

type SearchResult struct {
	Best       model.Params
	BestIndex  int
	MeanScores []float64
}

// GridSearch scores every point by mean fold accuracy under stratified
// k-fold cross-validation, then refits the best point on all of data. The
// first point with the highest mean wins. Points are evaluated concurrently
// by up to workers goroutines; results do not depend on scheduling.
func GridSearch(ctx context.Context, family model.Family, points []model.Params, data Dataset, folds, workers int) (model.Estimator, SearchResult, error) {
	if len(points) == 0 {
		return nil, SearchResult{}, pkgerrors.WithStack(fmt.Errorf("%w: %s grid has no points", model.ErrInvalidParam, family))
	}
	if err := data.validate(); err != nil {
		return nil, SearchResult{}, err
	}
	splits, err := StratifiedKFold(data.Y, folds)
	if err != nil {
		return nil, SearchResult{}, pkgerrors.WithStack(fmt.Errorf("%w: %v", model.ErrFit, err))
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	type foldData struct {
		train, test Dataset
	}
	prepared := make([]foldData, len(splits))
	for i, s := range splits {
		xTr, yTr := subset(data.X, data.Y, s.Train)
		xTe, yTe := subset(data.X, data.Y, s.Test)
		prepared[i] = foldData{train: Dataset{X: xTr, Y: yTr}, test: Dataset{X: xTe, Y: yTe}}
	}

	scores := make([]float64, len(points))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range points {
		g.Go(func() error {
			var sum float64
			for _, fd := range prepared {
				if err := gctx.Err(); err != nil {
					return err
				}
				est, err := family.New(p)
				if err != nil {
					return err
				}
				if err := est.Fit(fd.train.X, fd.train.Y); err != nil {
					return fmt.Errorf("grid point %d: %w", i, err)
				}
				pred, err := est.Predict(fd.test.X)
				if err != nil {
					return fmt.Errorf("grid point %d: %w", i, err)
				}
				sum += scoring.Accuracy(fd.test.Y, pred)
			}
			scores[i] = sum / float64(len(prepared))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, SearchResult{}, err
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	est, err := family.New(points[best])
	if err != nil {
		return nil, SearchResult{}, err
	}
	if err := est.Fit(data.X, data.Y); err != nil {
		return nil, SearchResult{}, fmt.Errorf("refit best %s: %w", family, err)
	}
	return est, SearchResult{Best: points[best], BestIndex: best, MeanScores: scores}, nil
}
