package tracking

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/saadabdullah098/networksecurity/internal/platform/env"
)

type Config struct {
	TrackingURI string
	Experiment  string
	Timeout     time.Duration

	Username string
	Password string

	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Enabled reports whether a tracking server is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.TrackingURI) != "" }

// ConfigFromEnv reads NETSEC_MLFLOW_* and falls back to the standard
// MLFLOW_TRACKING_* variables.
func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("NETSEC_MLFLOW_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		TrackingURI:  env.String("NETSEC_MLFLOW_TRACKING_URI", env.String("MLFLOW_TRACKING_URI", "")),
		Experiment:   env.String("NETSEC_MLFLOW_EXPERIMENT", "networksecurity"),
		Timeout:      timeout,
		Username:     env.String("NETSEC_MLFLOW_USERNAME", env.String("MLFLOW_TRACKING_USERNAME", "")),
		Password:     env.String("NETSEC_MLFLOW_PASSWORD", env.String("MLFLOW_TRACKING_PASSWORD", "")),
		TokenURL:     env.String("NETSEC_MLFLOW_TOKEN_URL", ""),
		ClientID:     env.String("NETSEC_MLFLOW_CLIENT_ID", ""),
		ClientSecret: env.String("NETSEC_MLFLOW_CLIENT_SECRET", ""),
		Scopes:       strings.Fields(env.String("NETSEC_MLFLOW_SCOPES", "")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	u, err := url.Parse(c.TrackingURI)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("tracking uri must be an absolute http(s) url")
	}
	if strings.TrimSpace(c.Experiment) == "" {
		return errors.New("experiment name is required")
	}
	if c.TokenURL != "" && (c.ClientID == "" || c.ClientSecret == "") {
		return errors.New("client id and secret are required with a token url")
	}
	if c.TokenURL != "" && c.Username != "" {
		return errors.New("configure either basic auth or client credentials, not both")
	}
	return nil
}
