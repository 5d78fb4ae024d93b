// Package tracking reports training results to an MLflow tracking server
// over its REST API.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrNotFound             = errors.New("tracking resource does not exist")
	ErrArtifactsUnsupported = errors.New("run artifact store is not proxied by the tracking server")
)

// APIError is the error body returned by the tracking server.
type APIError struct {
	Status  int
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mlflow %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Code == "RESOURCE_DOES_NOT_EXIST"
}

type Client struct {
	base string
	http *http.Client
}

// New builds a client. Client credentials take precedence when a token URL
// is set; otherwise basic auth is used when a username is set.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("tracking uri is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var hc *http.Client
	switch {
	case cfg.TokenURL != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		hc = cc.Client(ctx)
	case cfg.Username != "":
		hc = &http.Client{Transport: basicAuth{user: cfg.Username, pass: cfg.Password, next: http.DefaultTransport}}
	default:
		hc = &http.Client{}
	}
	hc.Timeout = cfg.Timeout
	return &Client{base: strings.TrimRight(cfg.TrackingURI, "/"), http: hc}, nil
}

type basicAuth struct {
	user, pass string
	next       http.RoundTripper
}

func (b basicAuth) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.SetBasicAuth(b.user, b.pass)
	return b.next.RoundTrip(r)
}

type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Run struct {
	ID           string
	ExperimentID string
	ArtifactURI  string
}

// EnsureExperiment returns the id of the named experiment, creating it when
// missing.
func (c *Client) EnsureExperiment(ctx context.Context, name string) (string, error) {
	var got struct {
		Experiment struct {
			ID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	q := url.Values{"experiment_name": {name}}
	err := c.do(ctx, http.MethodGet, "/api/2.0/mlflow/experiments/get-by-name?"+q.Encode(), nil, &got)
	if err == nil {
		return got.Experiment.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	var created struct {
		ID string `json:"experiment_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/experiments/create", map[string]any{"name": name}, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *Client) CreateRun(ctx context.Context, experimentID, runName string, start time.Time, tags []Tag) (Run, error) {
	var got struct {
		Run struct {
			Info struct {
				RunID        string `json:"run_id"`
				ExperimentID string `json:"experiment_id"`
				ArtifactURI  string `json:"artifact_uri"`
			} `json:"info"`
		} `json:"run"`
	}
	body := map[string]any{
		"experiment_id": experimentID,
		"run_name":      runName,
		"start_time":    start.UnixMilli(),
		"tags":          tags,
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/create", body, &got); err != nil {
		return Run{}, err
	}
	info := got.Run.Info
	return Run{ID: info.RunID, ExperimentID: info.ExperimentID, ArtifactURI: info.ArtifactURI}, nil
}

func (c *Client) LogMetric(ctx context.Context, runID, key string, value float64, at time.Time) error {
	return c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-metric", map[string]any{
		"run_id":    runID,
		"key":       key,
		"value":     value,
		"timestamp": at.UnixMilli(),
		"step":      0,
	}, nil)
}

func (c *Client) LogParam(ctx context.Context, runID, key, value string) error {
	return c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-parameter", map[string]any{
		"run_id": runID,
		"key":    key,
		"value":  value,
	}, nil)
}

func (c *Client) SetTag(ctx context.Context, runID, key, value string) error {
	return c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/set-tag", map[string]any{
		"run_id": runID,
		"key":    key,
		"value":  value,
	}, nil)
}

// FinishRun marks the run FINISHED or FAILED.
func (c *Client) FinishRun(ctx context.Context, runID, status string, end time.Time) error {
	return c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/update", map[string]any{
		"run_id":   runID,
		"status":   status,
		"end_time": end.UnixMilli(),
	}, nil)
}

// LogArtifact uploads a local file under artifactPath through the
// server's artifact proxy.
func (c *Client) LogArtifact(ctx context.Context, run Run, localPath, artifactPath string) error {
	rest, ok := strings.CutPrefix(run.ArtifactURI, "mlflow-artifacts:")
	if !ok {
		return fmt.Errorf("%w: %s", ErrArtifactsUnsupported, run.ArtifactURI)
	}
	rest = strings.TrimLeft(rest, "/")
	if i := strings.Index(rest, "/"); i >= 0 && strings.Contains(rest[:i], ":") {
		rest = rest[i+1:]
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	target := "/api/2.0/mlflow-artifacts/artifacts/" + path.Join(rest, artifactPath, path.Base(localPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return c.send(req, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
