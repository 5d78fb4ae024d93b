package requestid

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestNew(t *testing.T) {
	id := New()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("New()=%q not a uuid: %v", id, err)
	}
}

func TestFromHeader(t *testing.T) {
	if got := FromHeader("  rid-1 "); got != "rid-1" {
		t.Fatalf("FromHeader()=%q, want rid-1", got)
	}
	if got := FromHeader(""); got == "" {
		t.Fatalf("FromHeader() expected generated id")
	}
}

func TestContextRoundTrip(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("expected no id in empty context")
	}
	ctx := WithContext(context.Background(), "abc")
	if got, ok := FromContext(ctx); !ok || got != "abc" {
		t.Fatalf("FromContext()=%q,%v", got, ok)
	}
}
