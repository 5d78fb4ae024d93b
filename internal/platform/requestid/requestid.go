// Package requestid carries a per-request correlation id.
package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const Header = "X-Request-Id"

type ctxKey struct{}

func New() string { return uuid.NewString() }

// FromHeader returns the trimmed incoming id, or a fresh one.
func FromHeader(value string) string {
	if id := strings.TrimSpace(value); id != "" {
		return id
	}
	return New()
}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return v, ok
}
