// Package logging builds the process logger: JSON to stdout, optionally
// teed to a timestamped file under a logs directory.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/saadabdullah098/networksecurity/internal/platform/env"
)

const FileLayout = "01_02_2006_15_04_05"

type Config struct {
	Level  slog.Level
	Format string
	Dir    string
}

func ConfigFromEnv() (Config, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(env.String("NETSEC_LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("NETSEC_LOG_LEVEL: %w", err)
	}
	cfg := Config{
		Level:  level,
		Format: strings.ToLower(env.String("NETSEC_LOG_FORMAT", "json")),
		Dir:    env.String("NETSEC_LOG_DIR", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Format {
	case "json", "text":
		return nil
	default:
		return errors.New("NETSEC_LOG_FORMAT must be json or text")
	}
}

// New returns the logger and a close func for the log file. With an empty
// Dir only stdout is written.
func New(cfg Config, stdout io.Writer, now time.Time) (*slog.Logger, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	w := stdout
	closeFn := func() error { return nil }
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		path := filepath.Join(cfg.Dir, now.Format(FileLayout)+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(stdout, f)
		closeFn = f.Close
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.Level <= slog.LevelDebug}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h), closeFn, nil
}
