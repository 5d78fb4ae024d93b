package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// TokenVerifier is the part of *oidc.IDTokenVerifier the middleware uses.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

type OIDCVerifier struct {
	cfg      Config
	verifier TokenVerifier
}

func NewOIDCVerifier(ctx context.Context, cfg Config) (*OIDCVerifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode != ModeOIDC {
		return nil, fmt.Errorf("auth mode must be oidc (got %q)", cfg.Mode)
	}
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return &OIDCVerifier{
		cfg:      cfg,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID}),
	}, nil
}

// NewOIDCVerifierWith uses an existing token verifier, e.g. one built with
// oidc.NewVerifier over a static key set.
func NewOIDCVerifierWith(cfg Config, verifier TokenVerifier) *OIDCVerifier {
	return &OIDCVerifier{cfg: cfg, verifier: verifier}
}

func (v *OIDCVerifier) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Identity{}, ErrUnauthenticated
	}
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return Identity{}, err
	}
	var claims map[string]any
	if err := token.Claims(&claims); err != nil {
		return Identity{}, err
	}
	subject, _ := claims["sub"].(string)
	email, _ := claims[v.cfg.EmailClaim].(string)
	return Identity{
		Subject: subject,
		Email:   email,
		Roles:   rolesClaim(claims, v.cfg.RolesClaim),
	}, nil
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func rolesClaim(claims map[string]any, key string) []string {
	switch typed := claims[key].(type) {
	case []any:
		var parts []string
		for _, item := range typed {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return parseCSV(strings.Join(parts, ","))
	case string:
		return parseCSV(typed)
	default:
		return nil
	}
}
