// Package telemetry exposes pipeline and serving metrics. A nil *Metrics is
// valid and records nothing.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/saadabdullah098/networksecurity/internal/validation"
)

const namespace = "netsec"

type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec

	comparableColumns prometheus.Gauge
	driftedColumns    prometheus.Gauge
	columnPValue      *prometheus.GaugeVec

	candidateScore    *prometheus.GaugeVec
	candidateDuration *prometheus.HistogramVec
	candidateGrid     *prometheus.GaugeVec
	bestScore         prometheus.Gauge

	predictions *prometheus.CounterVec
}

// New registers every metric on a fresh registry. withRuntime adds the Go
// and process collectors, which long-running servers want and pushed batch
// jobs do not.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "runs_total",
			Help: "Pipeline runs by final status.",
		}, []string{"status"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "stage_duration_seconds",
			Help:    "Wall time of each stage execution.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage", "outcome"}),
		stageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "stage_failures_total",
			Help: "Stage failures by error kind.",
		}, []string{"stage", "kind"}),
		comparableColumns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "validation", Name: "comparable_columns",
			Help: "Columns compared by the last drift check.",
		}),
		driftedColumns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "validation", Name: "drifted_columns",
			Help: "Columns whose p-value fell below the threshold in the last drift check.",
		}),
		columnPValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "validation", Name: "column_p_value",
			Help: "Two-sample KS p-value per column from the last drift check.",
		}, []string{"column"}),
		candidateScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "selection", Name: "candidate_score",
			Help: "Held-out score of each candidate in the last training run.",
		}, []string{"candidate"}),
		candidateDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "selection", Name: "candidate_duration_seconds",
			Help:    "Time to tune, fit and score one candidate.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"candidate"}),
		candidateGrid: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "selection", Name: "candidate_grid_points",
			Help: "Hyperparameter grid size of each candidate.",
		}, []string{"candidate"}),
		bestScore: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "selection", Name: "best_score",
			Help: "Held-out score of the selected model.",
		}),
		predictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "serving", Name: "predictions_total",
			Help: "Rows scored by the serving endpoint by predicted class.",
		}, []string{"class"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveStageFailure(stage, kind string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage, kind).Inc()
}

// ObserveDrift implements validation.DriftObserver.
func (m *Metrics) ObserveDrift(report validation.DriftReport) {
	if m == nil {
		return
	}
	m.comparableColumns.Set(float64(report.ComparableColumns))
	m.driftedColumns.Set(float64(len(report.Drifted)))
	m.columnPValue.Reset()
	for name, col := range report.Columns {
		m.columnPValue.WithLabelValues(name).Set(col.PValue)
	}
}

// ObserveCandidate implements selection.Observer.
func (m *Metrics) ObserveCandidate(name string, score float64, gridPoints int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.candidateScore.WithLabelValues(name).Set(score)
	m.candidateGrid.WithLabelValues(name).Set(float64(gridPoints))
	m.candidateDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveBest(score float64) {
	if m == nil {
		return
	}
	m.bestScore.Set(score)
}

func (m *Metrics) ObservePredictions(preds []float64) {
	if m == nil {
		return
	}
	var pos, neg float64
	for _, p := range preds {
		if p == 1 {
			pos++
		} else {
			neg++
		}
	}
	m.predictions.WithLabelValues("1").Add(pos)
	m.predictions.WithLabelValues("0").Add(neg)
}

// Push sends the registry to a Prometheus pushgateway under job, grouped by
// run.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job, run string) error {
	if m == nil || gatewayURL == "" {
		return nil
	}
	p := push.New(gatewayURL, job).Gatherer(m.registry)
	if run != "" {
		p = p.Grouping("run", run)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
