package tracking

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
)

type fakeServer struct {
	mu         sync.Mutex
	calls      []string
	metrics    map[string]float64
	params     map[string]string
	tags       map[string]string
	artifacts  string
	finished   string
	uploaded   string
	authHeader string
	experiment bool
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		f.authHeader = r.Header.Get("Authorization")
		var body map[string]any
		if r.Header.Get("Content-Type") == "application/json" {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		}
		switch {
		case r.URL.Path == "/api/2.0/mlflow/experiments/get-by-name":
			if !f.experiment {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"error_code":"RESOURCE_DOES_NOT_EXIST","message":"no experiment"}`)
				return
			}
			_, _ = io.WriteString(w, `{"experiment":{"experiment_id":"7"}}`)
		case r.URL.Path == "/api/2.0/mlflow/experiments/create":
			f.experiment = true
			_, _ = io.WriteString(w, `{"experiment_id":"7"}`)
		case r.URL.Path == "/api/2.0/mlflow/runs/create":
			assert.Equal(t, "7", body["experiment_id"])
			uri := f.artifacts
			if uri == "" {
				uri = "mlflow-artifacts:/7/r1/artifacts"
			}
			_, _ = io.WriteString(w, `{"run":{"info":{"run_id":"r1","experiment_id":"7","artifact_uri":"`+uri+`"}}}`)
		case r.URL.Path == "/api/2.0/mlflow/runs/log-metric":
			f.metrics[body["key"].(string)] = body["value"].(float64)
			_, _ = io.WriteString(w, `{}`)
		case r.URL.Path == "/api/2.0/mlflow/runs/log-parameter":
			f.params[body["key"].(string)] = body["value"].(string)
			_, _ = io.WriteString(w, `{}`)
		case r.URL.Path == "/api/2.0/mlflow/runs/set-tag":
			f.tags[body["key"].(string)] = body["value"].(string)
			_, _ = io.WriteString(w, `{}`)
		case r.URL.Path == "/api/2.0/mlflow/runs/update":
			f.finished = body["status"].(string)
			_, _ = io.WriteString(w, `{}`)
		case strings.HasPrefix(r.URL.Path, "/api/2.0/mlflow-artifacts/artifacts/"):
			b, _ := io.ReadAll(r.Body)
			f.uploaded = r.URL.Path + "=" + string(b)
			_, _ = io.WriteString(w, `{}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestTrackTrainingCreatesExperimentAndLogsRun(t *testing.T) {
	fake := &fakeServer{metrics: map[string]float64{}, params: map[string]string{}, tags: map[string]string{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client, err := New(context.Background(), Config{TrackingURI: srv.URL, Experiment: "netsec", Username: "u", Password: "p", Timeout: time.Second})
	require.NoError(t, err)

	model := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(model, []byte(`{"family":"decision_tree"}`), 0o644))

	tracker := NewMLflow(client, "netsec", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err = tracker.TrackTraining(context.Background(), Training{
		RunName:     "01_02_2025_10_00_00",
		BestModel:   "Decision Tree",
		Family:      "decision_tree",
		Metric:      "r2",
		BestScore:   0.8,
		Params:      map[string]any{"max_depth": 3, "criterion": "gini"},
		TrainMetric: artifact.ClassificationMetric{F1: 1, Precision: 1, Recall: 1},
		TestMetric:  artifact.ClassificationMetric{F1: 0.9, Precision: 0.95, Recall: 0.85},
		ModelPath:   model,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.9, fake.metrics["test_f1_score"])
	assert.Equal(t, 0.8, fake.metrics["best_r2"])
	assert.Len(t, fake.metrics, 7)
	assert.Equal(t, "3", fake.params["max_depth"])
	assert.Equal(t, "FINISHED", fake.finished)
	assert.Equal(t, `/api/2.0/mlflow-artifacts/artifacts/7/r1/artifacts/model/model.json={"family":"decision_tree"}`, fake.uploaded)
	assert.True(t, strings.HasPrefix(fake.authHeader, "Basic "))
	assert.Equal(t, "POST /api/2.0/mlflow/experiments/create", fake.calls[1])
}

func TestAPIErrorMatchesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	}))
	defer srv.Close()

	client, err := New(context.Background(), Config{TrackingURI: srv.URL, Experiment: "x"})
	require.NoError(t, err)
	_, err = client.EnsureExperiment(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestLogArtifactNeedsProxiedStore(t *testing.T) {
	client, err := New(context.Background(), Config{TrackingURI: "http://localhost:5000", Experiment: "x"})
	require.NoError(t, err)
	err = client.LogArtifact(context.Background(), Run{ArtifactURI: "s3://bucket/7/r1"}, "model.json", "model")
	require.ErrorIs(t, err, ErrArtifactsUnsupported)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Config{}.Validate())
	assert.False(t, Config{}.Enabled())
	require.Error(t, Config{TrackingURI: "localhost:5000", Experiment: "x"}.Validate())
	require.Error(t, Config{TrackingURI: "http://h", Experiment: "x", TokenURL: "http://idp/token"}.Validate())
	require.Error(t, Config{TrackingURI: "http://h", Experiment: "x", TokenURL: "http://idp/token", ClientID: "a", ClientSecret: "b", Username: "u"}.Validate())
}

func TestTrackTrainingTagsModelPathWhenStoreIsNotProxied(t *testing.T) {
	fake := &fakeServer{
		metrics:    map[string]float64{},
		params:     map[string]string{},
		tags:       map[string]string{},
		artifacts:  "s3://mlflow/7/r1/artifacts",
		experiment: true,
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client, err := New(context.Background(), Config{TrackingURI: srv.URL, Experiment: "netsec", Timeout: time.Second})
	require.NoError(t, err)

	tracker := NewMLflow(client, "netsec", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err = tracker.TrackTraining(context.Background(), Training{
		RunName:   "01_02_2025_10_00_00",
		BestModel: "Decision Tree",
		Family:    "decision_tree",
		Metric:    "r2",
		ModelPath: "final_model/model.json",
	})
	require.NoError(t, err)

	assert.Empty(t, fake.uploaded)
	assert.Equal(t, "final_model/model.json", fake.tags[TagModelPath])
	assert.Equal(t, "FINISHED", fake.finished)
}
