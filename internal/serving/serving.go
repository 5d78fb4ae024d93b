// Package serving exposes the final model over HTTP and lets operators
// trigger a training run.
package serving

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/docstore"
	"github.com/saadabdullah098/networksecurity/internal/persist"
	"github.com/saadabdullah098/networksecurity/internal/pipeline"
	"github.com/saadabdullah098/networksecurity/internal/platform/auditlog"
	"github.com/saadabdullah098/networksecurity/internal/platform/auth"
	"github.com/saadabdullah098/networksecurity/internal/platform/httpserver"
	"github.com/saadabdullah098/networksecurity/internal/platform/requestid"
	"github.com/saadabdullah098/networksecurity/internal/predictor"
	"github.com/saadabdullah098/networksecurity/internal/telemetry"
)

const (
	ServiceName      = "networksecurity"
	OutputFileName   = "output.csv"
	DefaultOutputDir = "prediction_output"
)

var ErrModelNotLoaded = errors.New("final model is not loaded")

// Trainer runs the full training pipeline.
type Trainer interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

type Config struct {
	ModelPath      string
	OutputDir      string
	UploadMaxBytes int64
	// Audit receives training triggers and refused requests. Nil disables
	// auditing.
	Audit auditlog.Sink
}

type API struct {
	logger  *slog.Logger
	cfg     Config
	trainer Trainer
	metrics *telemetry.Metrics

	mu       sync.RWMutex
	model    *predictor.Predictor
	training atomic.Bool
}

func New(logger *slog.Logger, cfg Config, trainer Trainer, metrics *telemetry.Metrics) *API {
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = 64 << 20 // 64 MiB
	}
	if cfg.Audit == nil {
		cfg.Audit = auditlog.Nop{}
	}
	return &API{logger: logger, cfg: cfg, trainer: trainer, metrics: metrics}
}

// LoadModel reads the final model from disk and swaps it in.
func (api *API) LoadModel() error {
	p, err := predictor.Load(api.cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("load final model %s: %w", api.cfg.ModelPath, err)
	}
	api.mu.Lock()
	api.model = p
	api.mu.Unlock()
	api.logger.Info("final model loaded", "path", api.cfg.ModelPath, "model.name", p.Model().Family().String())
	return nil
}

func (api *API) current() (*predictor.Predictor, error) {
	api.mu.RLock()
	defer api.mu.RUnlock()
	if api.model == nil {
		return nil, ErrModelNotLoaded
	}
	return api.model, nil
}

func (api *API) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict", api.handlePredict)
	mux.HandleFunc("POST /train", api.handleTrain)
	mux.HandleFunc("GET /healthz", httpserver.Healthz(ServiceName))
	mux.HandleFunc("GET /readyz", httpserver.ReadyzWithChecks(ServiceName, httpserver.ReadinessCheck{
		Name: "model",
		Check: func(context.Context) error {
			_, err := api.current()
			return err
		},
	}))
	mux.Handle("GET /metrics", api.metrics.Handler())
}

// Handler returns the routed API. Health checks and metrics bypass authentication;
// /train needs the trainer role and everything else the predictor role.
func (api *API) Handler(authn auth.Authenticator) http.Handler {
	mux := http.NewServeMux()
	api.register(mux)
	guarded := auth.Middleware{
		Logger:        api.logger,
		Authenticator: authn,
		RequireFor: func(r *http.Request) string {
			if r.URL.Path == "/train" {
				return auth.RoleTrainer
			}
			return auth.RolePredictor
		},
		SkipPrefixes: []string{"/healthz", "/readyz", "/metrics"},
		Audit:        auditlog.AuthDeny(ServiceName, api.cfg.Audit),
	}.Wrap(mux)
	return httpserver.Wrap(api.logger, guarded)
}

func (api *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	model, err := api.current()
	if err != nil {
		httpserver.WriteError(w, r, http.StatusServiceUnavailable, "model_not_loaded", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, api.cfg.UploadMaxBytes)
	frame, err := readUpload(r)
	if err != nil {
		api.logger.Warn("predict upload rejected", "err", err)
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}

	preds, err := model.PredictFrame(frame)
	if err != nil {
		httpserver.WriteError(w, r, http.StatusUnprocessableEntity, "prediction_failed", err.Error())
		return
	}
	api.metrics.ObservePredictions(preds)

	scored, err := frame.WithColumn(predictor.PredictionColumn, preds)
	if err != nil {
		httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}
	var buf bytes.Buffer
	if err := dataset.WriteCSV(&buf, scored); err != nil {
		httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if err := persist.WriteFile(filepath.Join(api.cfg.OutputDir, OutputFileName), buf.Bytes()); err != nil {
		api.logger.Error("write prediction output failed", "err", err)
		httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}
	api.logger.Info("predictions served", "data.rows", scored.NumRows())

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		writeTable(w, scored)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"columns": scored.Columns(),
		"rows":    docstore.DocumentsFromFrame(scored),
	})
}

// readUpload accepts a multipart "file" part or a raw text/csv body.
func readUpload(r *http.Request) (*dataset.Frame, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return dataset.ReadCSV(r.Body)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("multipart body has no file part")
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		defer part.Close()
		return dataset.ReadCSV(part)
	}
}

var tableTemplate = template.Must(template.New("table").Funcs(template.FuncMap{
	"cell": dataset.FormatCell,
}).Parse(`<!DOCTYPE html>
<html>
<head><title>Predictions</title></head>
<body>
<table class="table table-striped">
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{cell .}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</body>
</html>
`))

func writeTable(w http.ResponseWriter, f *dataset.Frame) {
	rows := make([][]float64, f.NumRows())
	for i := range rows {
		rows[i] = f.Row(i)
	}
	var buf bytes.Buffer
	if err := tableTemplate.Execute(&buf, map[string]any{"Columns": f.Columns(), "Rows": rows}); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleTrain runs the pipeline synchronously. Only one run at a time is
// allowed; a concurrent request gets 409.
func (api *API) handleTrain(w http.ResponseWriter, r *http.Request) {
	if api.trainer == nil {
		httpserver.WriteError(w, r, http.StatusNotImplemented, "training_disabled", "")
		return
	}
	if !api.training.CompareAndSwap(false, true) {
		httpserver.WriteError(w, r, http.StatusConflict, "training_in_progress", "")
		return
	}
	defer api.training.Store(false)

	api.audit(r, auditlog.ActionTrainingTriggered, nil)
	res, err := api.trainer.Run(context.WithoutCancel(r.Context()))
	body := map[string]any{"status": res.Status}
	if res.Run != nil {
		body["run"] = res.Run.Timestamp
	}
	api.audit(r, auditlog.ActionTrainingFinished, map[string]any{"status": res.Status, "run": body["run"]})
	if err != nil {
		var serr *pipeline.StageError
		code := "training_failed"
		if errors.As(err, &serr) {
			body["stage"] = serr.Stage
			body["kind"] = serr.Kind
		}
		body["error"] = code
		body["message"] = err.Error()
		httpserver.WriteJSON(w, http.StatusInternalServerError, body)
		return
	}
	if res.Status == pipeline.StatusRejected {
		body["problems"] = res.Validation.Problems
		httpserver.WriteJSON(w, http.StatusUnprocessableEntity, body)
		return
	}

	body["best_model"] = res.Trainer.BestModel
	body["best_score"] = res.Trainer.BestScore
	body["test_metric"] = res.Trainer.TestMetric
	if err := api.LoadModel(); err != nil {
		api.logger.Error("reload after training failed", "err", err)
	}
	body["message"] = "Training is successful"
	httpserver.WriteJSON(w, http.StatusOK, body)
}

func (api *API) audit(r *http.Request, action string, payload any) {
	actor := "anonymous"
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Subject != "" {
		actor = identity.Subject
	}
	reqID, _ := requestid.FromContext(r.Context())
	err := api.cfg.Audit.Record(context.WithoutCancel(r.Context()), auditlog.Event{
		Actor:        actor,
		Action:       action,
		ResourceType: "pipeline",
		ResourceID:   r.Method + " " + r.URL.Path,
		RequestID:    reqID,
		IP:           auditlog.RemoteIP(r.RemoteAddr),
		UserAgent:    r.UserAgent(),
		Payload:      payload,
	})
	if err != nil {
		api.logger.Warn("audit record failed", "action", action, "err", err)
	}
}
