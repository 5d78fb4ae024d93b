// Package auditlog records who triggered training and who was refused
// access. Each event carries a sha256 over its canonical form.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/saadabdullah098/networksecurity/internal/platform/postgres"
)

const (
	ActionTrainingTriggered = "training.triggered"
	ActionTrainingFinished  = "training.finished"
)

type Event struct {
	OccurredAt   time.Time
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	RequestID    string
	IP           net.IP
	UserAgent    string
	Payload      any
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("Actor is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("Action is required")
	}
	if strings.TrimSpace(e.ResourceType) == "" {
		return errors.New("ResourceType is required")
	}
	if strings.TrimSpace(e.ResourceID) == "" {
		return errors.New("ResourceID is required")
	}
	return nil
}

// Sink stores audit events.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

const (
	createAuditEventsTableQuery = `CREATE TABLE IF NOT EXISTS audit_events (
		event_id bigserial PRIMARY KEY,
		occurred_at timestamptz NOT NULL,
		actor text NOT NULL,
		action text NOT NULL,
		resource_type text NOT NULL,
		resource_id text NOT NULL,
		request_id text,
		ip inet,
		user_agent text,
		payload jsonb NOT NULL,
		integrity_sha256 text NOT NULL
	)`

	insertAuditEventQuery = `INSERT INTO audit_events (
		occurred_at,
		actor,
		action,
		resource_type,
		resource_id,
		request_id,
		ip,
		user_agent,
		payload,
		integrity_sha256
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	RETURNING event_id`
)

type Postgres struct {
	db postgres.DB
}

func NewPostgres(db postgres.DB) *Postgres {
	if db == nil {
		return nil
	}
	return &Postgres{db: db}
}

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createAuditEventsTableQuery); err != nil {
		return fmt.Errorf("create audit_events table: %w", err)
	}
	return nil
}

func (s *Postgres) Record(ctx context.Context, event Event) error {
	_, err := s.Insert(ctx, event)
	return err
}

// Insert writes event and returns its id. A zero OccurredAt is stamped with
// the current time.
func (s *Postgres) Insert(ctx context.Context, event Event) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("audit log not initialized")
	}
	event = normalize(event)
	if err := event.Validate(); err != nil {
		return 0, err
	}
	payloadJSON, err := marshalPayload(event.Payload)
	if err != nil {
		return 0, err
	}
	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.db.QueryRowContext(
		ctx,
		insertAuditEventQuery,
		event.OccurredAt,
		event.Actor,
		event.Action,
		event.ResourceType,
		event.ResourceID,
		nullIfEmpty(event.RequestID),
		nullIfEmpty(ipString(event.IP)),
		nullIfEmpty(event.UserAgent),
		payloadJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}
	return id, nil
}

// Memory keeps events in process.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, event Event) error {
	event = normalize(event)
	if err := event.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func normalize(e Event) Event {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	e.OccurredAt = e.OccurredAt.UTC()
	e.Actor = strings.TrimSpace(e.Actor)
	e.Action = strings.TrimSpace(e.Action)
	e.ResourceType = strings.TrimSpace(e.ResourceType)
	e.ResourceID = strings.TrimSpace(e.ResourceID)
	e.RequestID = strings.TrimSpace(e.RequestID)
	e.UserAgent = strings.TrimSpace(e.UserAgent)
	return e
}

func marshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return out, nil
}

func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt   time.Time       `json:"occurred_at"`
		Actor        string          `json:"actor"`
		Action       string          `json:"action"`
		ResourceType string          `json:"resource_type"`
		ResourceID   string          `json:"resource_id"`
		RequestID    string          `json:"request_id,omitempty"`
		IP           string          `json:"ip,omitempty"`
		UserAgent    string          `json:"user_agent,omitempty"`
		Payload      json.RawMessage `json:"payload"`
	}
	event = normalize(event)
	blob, err := json.Marshal(integrityInput{
		OccurredAt:   event.OccurredAt,
		Actor:        event.Actor,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		RequestID:    event.RequestID,
		IP:           ipString(event.IP),
		UserAgent:    event.UserAgent,
		Payload:      payloadJSON,
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func nullIfEmpty(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
