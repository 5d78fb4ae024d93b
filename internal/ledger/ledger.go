// Package ledger records the outcome of every stage execution. Inserts are
// idempotent on (run, stage, attempt) so a retried write never duplicates.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StatusSucceeded = "succeeded"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

var ErrNotFound = errors.New("ledger entry not found")

type Entry struct {
	ID           string
	RunID        string
	Stage        string
	Attempt      int
	Status       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorKind    string
	ErrorMessage string
	Result       []byte
	ResultSHA256 string
}

// Ledger stores stage outcomes. Record returns the stored entry and whether
// this call inserted it.
type Ledger interface {
	Record(ctx context.Context, e Entry) (Entry, bool, error)
	ListByRun(ctx context.Context, runID string) ([]Entry, error)
}

// NextAttempt returns one more than the highest attempt recorded for stage.
func NextAttempt(ctx context.Context, l Ledger, runID, stage string) (int, error) {
	entries, err := l.ListByRun(ctx, runID)
	if err != nil {
		return 0, err
	}
	next := 1
	for _, e := range entries {
		if e.Stage == stage && e.Attempt >= next {
			next = e.Attempt + 1
		}
	}
	return next, nil
}

func normalize(e Entry) (Entry, error) {
	e.RunID = strings.TrimSpace(e.RunID)
	e.Stage = strings.TrimSpace(e.Stage)
	e.Status = strings.TrimSpace(e.Status)
	if e.RunID == "" {
		return Entry{}, fmt.Errorf("run id is required")
	}
	if e.Stage == "" {
		return Entry{}, fmt.Errorf("stage is required")
	}
	if e.Attempt < 1 {
		return Entry{}, fmt.Errorf("attempt must be >= 1")
	}
	switch e.Status {
	case StatusSucceeded, StatusRejected, StatusFailed:
	default:
		return Entry{}, fmt.Errorf("unknown status %q", e.Status)
	}
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	e.StartedAt = e.StartedAt.UTC()
	if e.FinishedAt != nil {
		t := e.FinishedAt.UTC()
		e.FinishedAt = &t
	}
	if len(e.Result) == 0 {
		e.Result = []byte("{}")
	}
	sum := sha256.Sum256(e.Result)
	e.ResultSHA256 = hex.EncodeToString(sum[:])
	return e, nil
}

// Memory keeps entries in process.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, e Entry) (Entry, bool, error) {
	e, err := normalize(e)
	if err != nil {
		return Entry{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.RunID == e.RunID && existing.Stage == e.Stage && existing.Attempt == e.Attempt {
			return existing, false, nil
		}
	}
	m.entries = append(m.entries, e)
	return e, true, nil
}

func (m *Memory) ListByRun(_ context.Context, runID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0)
	for _, e := range m.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(_ context.Context, e Entry) (Entry, bool, error) {
	e, err := normalize(e)
	return e, err == nil, err
}

func (Nop) ListByRun(context.Context, string) ([]Entry, error) { return nil, nil }
