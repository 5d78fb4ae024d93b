package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/model"
	"github.com/saadabdullah098/networksecurity/internal/pipeline"
	"github.com/saadabdullah098/networksecurity/internal/platform/auditlog"
	"github.com/saadabdullah098/networksecurity/internal/platform/auth"
	"github.com/saadabdullah098/networksecurity/internal/predictor"
	"github.com/saadabdullah098/networksecurity/internal/telemetry"
	"github.com/saadabdullah098/networksecurity/internal/transform"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// savedModel fits a tree on feature a and saves it with its imputer.
func savedModel(t *testing.T) string {
	t.Helper()
	x := mat.NewDense(6, 2, []float64{1, 0, 1, 1, 1, 0, -1, 1, -1, 0, -1, 1})
	y := []float64{1, 1, 1, 0, 0, 0}
	im, err := transform.NewKNNImputer(transform.DefaultImputerConfig())
	require.NoError(t, err)
	require.NoError(t, im.Fit([]string{"a", "b"}, x))
	est, err := model.DecisionTree.New(model.DefaultTreeParams())
	require.NoError(t, err)
	require.NoError(t, est.Fit(x, y))
	p, err := predictor.New(im, est)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, predictor.Save(path, p))
	return path
}

func uploadRequest(t *testing.T, csv string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "batch.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPredictReturnsRowsAndWritesOutput(t *testing.T) {
	outDir := t.TempDir()
	metrics := telemetry.New(false)
	api := New(discard(), Config{ModelPath: savedModel(t), OutputDir: outDir}, nil, metrics)
	require.NoError(t, api.LoadModel())
	h := api.Handler(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "b,a\n0,1\n,-1\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"b", "a", predictor.PredictionColumn}, got.Columns)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, 1.0, got.Rows[0][predictor.PredictionColumn])
	assert.Equal(t, 0.0, got.Rows[1][predictor.PredictionColumn])
	assert.Nil(t, got.Rows[1]["b"])

	out, err := os.ReadFile(filepath.Join(outDir, OutputFileName))
	require.NoError(t, err)
	assert.Contains(t, string(out), "predicted_column")
}

func TestPredictRendersHTMLTable(t *testing.T) {
	api := New(discard(), Config{ModelPath: savedModel(t), OutputDir: t.TempDir()}, nil, nil)
	require.NoError(t, api.LoadModel())

	req := uploadRequest(t, "a,b\n1,1\n")
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	api.Handler(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<th>predicted_column</th>")
}

func TestPredictWithoutModel(t *testing.T) {
	api := New(discard(), Config{ModelPath: filepath.Join(t.TempDir(), "absent.json")}, nil, nil)
	require.Error(t, api.LoadModel())
	h := api.Handler(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "a,b\n1,1\n"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPredictRejectsMissingFeature(t *testing.T) {
	api := New(discard(), Config{ModelPath: savedModel(t), OutputDir: t.TempDir()}, nil, nil)
	require.NoError(t, api.LoadModel())

	rec := httptest.NewRecorder()
	api.Handler(nil).ServeHTTP(rec, uploadRequest(t, "a\n1\n"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type blockingTrainer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTrainer) Run(context.Context) (pipeline.Result, error) {
	close(b.started)
	<-b.release
	return pipeline.Result{
		Status:  pipeline.StatusSucceeded,
		Run:     &artifact.Run{Timestamp: "07_04_2025_13_45_09"},
		Trainer: &artifact.TrainerArtifact{BestModel: "Decision Tree", BestScore: 1},
	}, nil
}

func TestTrainIsSingleFlight(t *testing.T) {
	trainer := &blockingTrainer{started: make(chan struct{}), release: make(chan struct{})}
	audit := auditlog.NewMemory()
	api := New(discard(), Config{ModelPath: savedModel(t), Audit: audit}, trainer, nil)
	h := api.Handler(nil)

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/train", nil))
		done <- rec
	}()
	<-trainer.started

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/train", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(trainer.release)
	first := <-done
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Contains(t, first.Body.String(), "Decision Tree")

	_, err := api.current()
	assert.NoError(t, err)

	events := audit.Events()
	require.Len(t, events, 2)
	assert.Equal(t, auditlog.ActionTrainingTriggered, events[0].Action)
	assert.Equal(t, auditlog.ActionTrainingFinished, events[1].Action)
	assert.Equal(t, "anonymous", events[0].Actor)
}

func TestRolesGuardEndpoints(t *testing.T) {
	audit := auditlog.NewMemory()
	api := New(discard(), Config{ModelPath: savedModel(t), OutputDir: t.TempDir(), Audit: audit}, &blockingTrainer{}, nil)
	require.NoError(t, api.LoadModel())
	h := api.Handler(auth.StaticAuthenticator{Identity: auth.Identity{Subject: "svc", Roles: []string{auth.RolePredictor}}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/train", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "auth.forbidden", events[0].Action)
	assert.Equal(t, "svc", events[0].Actor)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "a,b\n1,1\n"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
