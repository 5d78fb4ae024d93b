package auth

import (
	"context"
	"net/http"
)

type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}

// StaticAuthenticator accepts every request as one fixed identity.
type StaticAuthenticator struct {
	Identity Identity
}

func (a StaticAuthenticator) Authenticate(context.Context, *http.Request) (Identity, error) {
	return a.Identity, nil
}

// New builds the authenticator for cfg.Mode. It returns nil when auth is
// disabled.
func New(ctx context.Context, cfg Config) (Authenticator, error) {
	switch cfg.Mode {
	case ModeOIDC:
		v, err := NewOIDCVerifier(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case ModeDev:
		return StaticAuthenticator{Identity: Identity{Subject: cfg.DevSubject, Roles: cfg.DevRoles}}, nil
	default:
		return nil, nil
	}
}
