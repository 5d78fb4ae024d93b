package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadabdullah098/networksecurity/internal/selection"
	"github.com/saadabdullah098/networksecurity/internal/validation"
)

var (
	_ selection.Observer       = (*Metrics)(nil)
	_ validation.DriftObserver = (*Metrics)(nil)
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRun("succeeded")
	m.ObserveStage("data_ingestion", "ok", time.Second)
	m.ObserveDrift(validation.DriftReport{})
	m.ObserveCandidate("x", 1, 1, time.Second)
	m.ObservePredictions([]float64{1})
	assert.Nil(t, m.Registry())
	require.NoError(t, m.Push(context.Background(), "http://unused", "job", "run"))
}

func TestObserveDriftReplacesColumns(t *testing.T) {
	m := New(false)
	m.ObserveDrift(validation.DriftReport{
		ComparableColumns: 2,
		Columns: map[string]validation.ColumnDrift{
			"a": {PValue: 0.9},
			"b": {PValue: 0.01, Drift: true},
		},
		Drifted: []string{"b"},
	})
	m.ObserveDrift(validation.DriftReport{
		ComparableColumns: 1,
		Columns:           map[string]validation.ColumnDrift{"a": {PValue: 0.5}},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.comparableColumns))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.driftedColumns))
	assert.Equal(t, 1, testutil.CollectAndCount(m.columnPValue))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.columnPValue.WithLabelValues("a")))
}

func TestObservePredictionsCountsClasses(t *testing.T) {
	m := New(false)
	m.ObservePredictions([]float64{1, 0, 1, 1})
	assert.Equal(t, 3.0, testutil.ToFloat64(m.predictions.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictions.WithLabelValues("0")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(true)
	m.ObserveCandidate("Decision Tree", 0.93, 3, 2*time.Second)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `netsec_selection_candidate_score{candidate="Decision Tree"} 0.93`)
	assert.Contains(t, body, "go_goroutines")
}

func TestPushSendsToGateway(t *testing.T) {
	var path, body string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	m := New(false)
	m.ObserveRun("succeeded")
	require.NoError(t, m.Push(context.Background(), gw.URL, "netsec_training", "01_02_2025_10_00_00"))
	assert.Equal(t, "/metrics/job/netsec_training/run/01_02_2025_10_00_00", path)
	assert.Contains(t, body, "netsec_pipeline_runs_total")
}
