// Package auth guards the serving endpoints with OIDC bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/saadabdullah098/networksecurity/internal/platform/env"
)

type Mode string

const (
	ModeOIDC     Mode = "oidc"
	ModeDev      Mode = "dev"
	ModeDisabled Mode = "disabled"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Config struct {
	Mode Mode

	RolesClaim string
	EmailClaim string

	OIDCIssuerURL string
	OIDCClientID  string

	DevSubject string
	DevRoles   []string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("NETSEC_AUTH_MODE", string(ModeDisabled))))
	cfg := Config{
		Mode:          Mode(modeRaw),
		RolesClaim:    env.String("NETSEC_AUTH_ROLES_CLAIM", "roles"),
		EmailClaim:    env.String("NETSEC_AUTH_EMAIL_CLAIM", "email"),
		OIDCIssuerURL: env.String("NETSEC_OIDC_ISSUER_URL", ""),
		OIDCClientID:  env.String("NETSEC_OIDC_CLIENT_ID", ""),
		DevSubject:    env.String("NETSEC_DEV_AUTH_SUBJECT", "dev-user"),
		DevRoles:      parseCSV(env.String("NETSEC_DEV_AUTH_ROLES", RoleTrainer)),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.RolesClaim) == "" {
		return errors.New("NETSEC_AUTH_ROLES_CLAIM is required")
	}
	switch c.Mode {
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("NETSEC_OIDC_ISSUER_URL is required when NETSEC_AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("NETSEC_OIDC_CLIENT_ID is required when NETSEC_AUTH_MODE=oidc")
		}
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("NETSEC_DEV_AUTH_SUBJECT is required when NETSEC_AUTH_MODE=dev")
		}
		if len(c.DevRoles) == 0 {
			return errors.New("NETSEC_DEV_AUTH_ROLES must be non-empty when NETSEC_AUTH_MODE=dev")
		}
	case ModeDisabled:
	default:
		return fmt.Errorf("NETSEC_AUTH_MODE must be one of: oidc, dev, disabled (got %q)", c.Mode)
	}
	return nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		item := strings.ToLower(strings.TrimSpace(part))
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
