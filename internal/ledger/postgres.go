package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/saadabdullah098/networksecurity/internal/platform/postgres"
)

type Postgres struct {
	db postgres.DB
}

const (
	createStageExecutionsTableQuery = `CREATE TABLE IF NOT EXISTS stage_executions (
		stage_execution_id uuid PRIMARY KEY,
		run_id text NOT NULL,
		stage text NOT NULL,
		attempt integer NOT NULL,
		status text NOT NULL,
		started_at timestamptz NOT NULL,
		finished_at timestamptz,
		error_kind text,
		error_message text,
		result jsonb NOT NULL,
		result_sha256 text NOT NULL,
		UNIQUE (run_id, stage, attempt)
	)`

	insertStageExecutionQuery = `INSERT INTO stage_executions (
		stage_execution_id,
		run_id,
		stage,
		attempt,
		status,
		started_at,
		finished_at,
		error_kind,
		error_message,
		result,
		result_sha256
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	ON CONFLICT (run_id, stage, attempt) DO NOTHING
	RETURNING stage_execution_id, run_id, stage, attempt, status, started_at, finished_at, error_kind, error_message, result, result_sha256`

	selectStageExecutionQuery = `SELECT stage_execution_id, run_id, stage, attempt, status, started_at, finished_at, error_kind, error_message, result, result_sha256
	 FROM stage_executions
	 WHERE run_id = $1 AND stage = $2 AND attempt = $3`

	listStageExecutionsByRunQuery = `SELECT stage_execution_id, run_id, stage, attempt, status, started_at, finished_at, error_kind, error_message, result, result_sha256
	 FROM stage_executions
	 WHERE run_id = $1
	 ORDER BY started_at ASC, stage ASC, attempt ASC`
)

func NewPostgres(db postgres.DB) *Postgres {
	if db == nil {
		return nil
	}
	return &Postgres{db: db}
}

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createStageExecutionsTableQuery); err != nil {
		return fmt.Errorf("create stage_executions table: %w", err)
	}
	return nil
}

func (s *Postgres) Record(ctx context.Context, e Entry) (Entry, bool, error) {
	if s == nil || s.db == nil {
		return Entry{}, false, fmt.Errorf("ledger not initialized")
	}
	e, err := normalize(e)
	if err != nil {
		return Entry{}, false, err
	}

	var finishedAt sql.NullTime
	if e.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *e.FinishedAt, Valid: true}
	}
	row := s.db.QueryRowContext(
		ctx,
		insertStageExecutionQuery,
		e.ID,
		e.RunID,
		e.Stage,
		e.Attempt,
		e.Status,
		e.StartedAt,
		finishedAt,
		nullIfEmpty(e.ErrorKind),
		nullIfEmpty(e.ErrorMessage),
		e.Result,
		e.ResultSHA256,
	)
	inserted, err := scanEntry(row)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Entry{}, false, fmt.Errorf("insert stage execution: %w", err)
		}
		existing, err := scanEntry(s.db.QueryRowContext(ctx, selectStageExecutionQuery, e.RunID, e.Stage, e.Attempt))
		if err != nil {
			return Entry{}, false, err
		}
		return existing, false, nil
	}
	return inserted, true, nil
}

func (s *Postgres) ListByRun(ctx context.Context, runID string) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("ledger not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(ctx, listStageExecutionsByRunQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("list stage executions: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stage executions: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	var finishedAt sql.NullTime
	var errorKind, errorMessage sql.NullString
	if err := sc.Scan(
		&e.ID,
		&e.RunID,
		&e.Stage,
		&e.Attempt,
		&e.Status,
		&e.StartedAt,
		&finishedAt,
		&errorKind,
		&errorMessage,
		&e.Result,
		&e.ResultSHA256,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	e.StartedAt = e.StartedAt.UTC()
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		e.FinishedAt = &t
	}
	e.ErrorKind = strings.TrimSpace(errorKind.String)
	e.ErrorMessage = strings.TrimSpace(errorMessage.String)
	return e, nil
}

func nullIfEmpty(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
