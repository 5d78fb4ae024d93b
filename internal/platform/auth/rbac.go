package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/saadabdullah098/networksecurity/internal/platform/httpserver"
)

var ErrForbidden = errors.New("forbidden")

const (
	RolePredictor = "predictor"
	RoleTrainer   = "trainer"
)

var roleLevels = map[string]int{
	RolePredictor: 1,
	RoleTrainer:   2,
}

func HasAtLeast(roles []string, required string) bool {
	requiredLevel := roleLevels[strings.ToLower(required)]
	if requiredLevel == 0 {
		return false
	}
	for _, role := range roles {
		if roleLevels[strings.ToLower(strings.TrimSpace(role))] >= requiredLevel {
			return true
		}
	}
	return false
}

type DenyEvent struct {
	Time       time.Time
	Status     int
	Reason     string
	Error      string
	RequestID  string
	Method     string
	Path       string
	Subject    string
	Email      string
	Roles      []string
	RemoteAddr string
	UserAgent  string
}

type AuditFunc func(ctx context.Context, event DenyEvent) error

// Middleware authenticates every request outside SkipPrefixes and demands
// Require (or RequireFor, when set) of the caller.
type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	Require       string
	RequireFor    func(r *http.Request) string
	SkipPrefixes  []string
	Audit         AuditFunc
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	if m.Authenticator == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		identity, err := m.Authenticator.Authenticate(r.Context(), r)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, ErrUnauthenticated) {
				reason = "unauthorized"
			}
			m.deny(w, r, Identity{}, http.StatusUnauthorized, reason, err)
			return
		}

		required := m.Require
		if m.RequireFor != nil {
			required = m.RequireFor(r)
		}
		if required != "" && !HasAtLeast(identity.Roles, required) {
			m.deny(w, r, identity, http.StatusForbidden, "forbidden", ErrForbidden, "subject", identity.Subject)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, identity Identity, status int, reason string, err error, extra ...any) {
	if m.Logger != nil {
		fields := append([]any{
			"reason", reason,
			"status", status,
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		}, extra...)
		m.Logger.Warn("auth deny", fields...)
	}
	m.auditDeny(r, identity, status, reason, err)
	httpserver.WriteError(w, r, status, reason, "")
}

func (m Middleware) auditDeny(r *http.Request, identity Identity, status int, reason string, err error) {
	if m.Audit == nil {
		return
	}
	auditErr := m.Audit(r.Context(), DenyEvent{
		Time:       time.Now().UTC(),
		Status:     status,
		Reason:     reason,
		Error:      err.Error(),
		RequestID:  r.Header.Get("X-Request-Id"),
		Method:     r.Method,
		Path:       r.URL.Path,
		Subject:    identity.Subject,
		Email:      identity.Email,
		Roles:      identity.Roles,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	if auditErr != nil && m.Logger != nil {
		m.Logger.Warn("audit deny failed", "error", auditErr.Error())
	}
}
