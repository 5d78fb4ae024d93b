package postgres

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestConfigValidate_IdleAboveOpen(t *testing.T) {
	t.Setenv("NETSEC_DATABASE_MAX_OPEN_CONNS", "2")
	t.Setenv("NETSEC_DATABASE_MAX_IDLE_CONNS", "3")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("ConfigFromEnv() expected error")
	}
}

func TestConfigValidate_URL(t *testing.T) {
	base := Config{PingTimeout: time.Second, MaxOpenConns: 2, MaxIdleConns: 1}
	cases := map[string]bool{
		"postgres://netsec@localhost:5432/networksecurity":   true,
		"postgresql://netsec@localhost:5432/networksecurity": true,
		"mysql://netsec@localhost:3306/networksecurity":      false,
		"postgres://netsec@localhost:5432/":                  false,
		"postgres://netsec@localhost:5432":                   false,
	}
	for raw, ok := range cases {
		cfg := base
		cfg.URL = raw
		err := cfg.Validate()
		if ok && err != nil {
			t.Fatalf("Validate(%q) err=%v", raw, err)
		}
		if !ok && err == nil {
			t.Fatalf("Validate(%q) expected error", raw)
		}
	}
}

func TestConfigRedacted(t *testing.T) {
	cfg := Config{URL: "postgres://netsec:s3cret@db:5432/networksecurity?sslmode=disable"}
	got := cfg.Redacted()
	if strings.Contains(got, "s3cret") {
		t.Fatalf("Redacted() = %q, leaks password", got)
	}
	if !strings.Contains(got, "db:5432/networksecurity") {
		t.Fatalf("Redacted() = %q, lost host or database", got)
	}
}
