package auditlog

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/saadabdullah098/networksecurity/internal/platform/auth"
)

func TestComputeIntegritySHA256_Deterministic(t *testing.T) {
	event := Event{
		OccurredAt:   time.Unix(1700000000, 0).UTC(),
		Actor:        "alice",
		Action:       ActionTrainingTriggered,
		ResourceType: "pipeline",
		ResourceID:   "POST /train",
		RequestID:    "req-123",
		IP:           net.ParseIP("192.0.2.1"),
		UserAgent:    "test-agent",
	}
	payloadJSON := []byte(`{"a":1,"b":"x"}`)

	a, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a != b {
		t.Fatalf("integrity mismatch: %q vs %q", a, b)
	}

	padded := event
	padded.Actor = "  alice "
	c, err := ComputeIntegritySHA256(padded, payloadJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a != c {
		t.Fatalf("expected whitespace to be ignored")
	}
}

func TestComputeIntegritySHA256_ChangesOnPayload(t *testing.T) {
	event := Event{
		OccurredAt:   time.Unix(1700000000, 0).UTC(),
		Actor:        "alice",
		Action:       "auth.forbidden",
		ResourceType: "http",
		ResourceID:   "POST /train",
	}

	a, err := ComputeIntegritySHA256(event, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(event, []byte(`{"a":2}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a == b {
		t.Fatalf("expected integrity to differ")
	}
}

func TestMemoryRejectsIncompleteEvents(t *testing.T) {
	m := NewMemory()
	if err := m.Record(context.Background(), Event{Actor: "alice", Action: "x"}); err == nil {
		t.Fatalf("expected validation error")
	}
	if got := len(m.Events()); got != 0 {
		t.Fatalf("expected no events, got %d", got)
	}
}

func TestAuthDenyRecordsRefusal(t *testing.T) {
	m := NewMemory()
	audit := AuthDeny("networksecurity", m)
	err := audit(context.Background(), auth.DenyEvent{
		Time:       time.Unix(1700000000, 0),
		Status:     http.StatusUnauthorized,
		Reason:     "unauthorized",
		Error:      "missing bearer token",
		Method:     http.MethodPost,
		Path:       "/train",
		RemoteAddr: "192.0.2.7:51234",
	})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	events := m.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	got := events[0]
	if got.Actor != "anonymous" || got.Action != "auth.unauthorized" || got.ResourceID != "POST /train" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if !got.IP.Equal(net.ParseIP("192.0.2.7")) {
		t.Fatalf("unexpected ip %v", got.IP)
	}
	if got.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp")
	}
}
