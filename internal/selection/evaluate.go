package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saadabdullah098/networksecurity/internal/model"
	"github.com/saadabdullah098/networksecurity/internal/scoring"
)

// Observer receives one call per evaluated candidate.
type Observer interface {
	ObserveCandidate(name string, score float64, gridPoints int, elapsed time.Duration)
}

type Options struct {
	Metric   scoring.Metric
	Folds    int
	Workers  int
	Logger   *slog.Logger
	Observer Observer
}

func (o Options) withDefaults() Options {
	if o.Metric == "" {
		o.Metric = scoring.MetricR2
	}
	if o.Folds == 0 {
		o.Folds = DefaultFolds
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type Entry struct {
	Name       string         `yaml:"name"`
	Family     string         `yaml:"family"`
	Score      float64        `yaml:"score"`
	CVScore    *float64       `yaml:"cv_score,omitempty"`
	GridPoints int            `yaml:"grid_points"`
	Params     map[string]any `yaml:"params"`
}

// Report holds one entry per candidate in registry order.
type Report struct {
	Metric    scoring.Metric `yaml:"metric"`
	Entries   []Entry        `yaml:"candidates"`
	BestModel string         `yaml:"best_model"`
	BestScore float64        `yaml:"best_score"`
}

type Result struct {
	Report    Report
	BestName  string
	BestModel model.Estimator
	BestScore float64
}

// Evaluate tunes and fits every candidate on train, scores each on test and
// returns the winner. A later candidate only wins with a strictly greater
// score, so ties go to the earlier registry entry.
func Evaluate(ctx context.Context, train, test Dataset, candidates Registry, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if err := candidates.Validate(); err != nil {
		return Result{}, err
	}
	if err := train.validate(); err != nil {
		return Result{}, err
	}
	if err := test.validate(); err != nil {
		return Result{}, err
	}

	report := Report{Metric: opts.Metric, Entries: make([]Entry, 0, len(candidates))}
	var res Result
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		start := time.Now()
		points := c.Points()
		entry := Entry{Name: c.Name, Family: c.Family.String(), GridPoints: len(points)}

		var est model.Estimator
		if len(points) == 0 {
			var err error
			if est, err = c.Family.New(nil); err != nil {
				return Result{}, fmt.Errorf("candidate %s: %w", c.Name, err)
			}
			if err := est.Fit(train.X, train.Y); err != nil {
				return Result{}, fmt.Errorf("candidate %s: %w", c.Name, err)
			}
		} else {
			fitted, search, err := GridSearch(ctx, c.Family, points, train, opts.Folds, opts.Workers)
			if err != nil {
				return Result{}, fmt.Errorf("candidate %s: %w", c.Name, err)
			}
			est = fitted
			cv := search.MeanScores[search.BestIndex]
			entry.CVScore = &cv
		}

		pred, err := est.Predict(test.X)
		if err != nil {
			return Result{}, fmt.Errorf("candidate %s: %w", c.Name, err)
		}
		score, err := opts.Metric.Score(test.Y, pred)
		if err != nil {
			return Result{}, fmt.Errorf("candidate %s: %w", c.Name, err)
		}
		entry.Score = score
		entry.Params = paramsMap(est.Params())
		report.Entries = append(report.Entries, entry)

		elapsed := time.Since(start)
		opts.Logger.Info("candidate evaluated",
			"candidate", c.Name,
			"family", c.Family.String(),
			"grid_points", len(points),
			"metric", string(opts.Metric),
			"score", score,
			"duration_ms", elapsed.Milliseconds(),
		)
		if opts.Observer != nil {
			opts.Observer.ObserveCandidate(c.Name, score, len(points), elapsed)
		}

		if i == 0 || score > res.BestScore {
			res.BestName = c.Name
			res.BestModel = est
			res.BestScore = score
		}
	}

	report.BestModel = res.BestName
	report.BestScore = res.BestScore
	res.Report = report
	return res, nil
}

func paramsMap(p model.Params) map[string]any {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
