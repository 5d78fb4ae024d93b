package auditlog

import (
	"context"
	"net"
	"strings"

	"github.com/saadabdullah098/networksecurity/internal/platform/auth"
)

// AuthDeny returns an auth.AuditFunc that stores every refused request in
// sink.
func AuthDeny(service string, sink Sink) auth.AuditFunc {
	return func(ctx context.Context, event auth.DenyEvent) error {
		return sink.Record(ctx, DenyEvent(service, event))
	}
}

func DenyEvent(service string, event auth.DenyEvent) Event {
	actor := "anonymous"
	if strings.TrimSpace(event.Subject) != "" {
		actor = strings.TrimSpace(event.Subject)
	}
	return Event{
		OccurredAt:   event.Time,
		Actor:        actor,
		Action:       "auth." + strings.TrimSpace(event.Reason),
		ResourceType: "http",
		ResourceID:   event.Method + " " + event.Path,
		RequestID:    event.RequestID,
		IP:           RemoteIP(event.RemoteAddr),
		UserAgent:    event.UserAgent,
		Payload: map[string]any{
			"service": service,
			"status":  event.Status,
			"reason":  event.Reason,
			"error":   event.Error,
			"subject": event.Subject,
			"email":   event.Email,
			"roles":   event.Roles,
		},
	}
}

// RemoteIP parses the host part of a host:port address.
func RemoteIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return net.ParseIP(strings.TrimSpace(remoteAddr))
	}
	return net.ParseIP(host)
}
