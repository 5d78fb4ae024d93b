package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/platform/postgres"
)

// PostgresStore keeps documents as json rows. The json type preserves key
// order, which fixes the column order of fetched frames.
type PostgresStore struct {
	db postgres.DB
}

const (
	createDocumentsTableQuery = `CREATE TABLE IF NOT EXISTS documents (
		document_id uuid PRIMARY KEY,
		database_name text NOT NULL,
		collection_name text NOT NULL,
		seq bigserial,
		body json NOT NULL
	)`

	insertDocumentQuery = `INSERT INTO documents (document_id, database_name, collection_name, body)
	 VALUES ($1,$2,$3,$4)
	 ON CONFLICT (document_id) DO NOTHING`

	selectDocumentsQuery = `SELECT document_id, body
	 FROM documents
	 WHERE database_name = $1 AND collection_name = $2
	 ORDER BY seq ASC`
)

func NewPostgresStore(db postgres.DB) *PostgresStore {
	if db == nil {
		return nil
	}
	return &PostgresStore{db: db}
}

// EnsureSchema creates the documents table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createDocumentsTableQuery); err != nil {
		return pkgerrors.WithStack(fmt.Errorf("%w: create documents table: %v", ErrUnavailable, err))
	}
	return nil
}

func (s *PostgresStore) FetchCollection(ctx context.Context, database, collection string) (*dataset.Frame, error) {
	if err := requireNames(database, collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, selectDocumentsQuery, database, collection)
	if err != nil {
		return nil, pkgerrors.WithStack(fmt.Errorf("%w: query %s.%s: %v", ErrUnavailable, database, collection, err))
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc Document
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.WithStack(fmt.Errorf("%w: list %s.%s: %v", ErrUnavailable, database, collection, err))
	}
	return FrameFromDocuments(docs)
}

func (s *PostgresStore) InsertRecords(ctx context.Context, database, collection string, docs []Document) (int, error) {
	if err := requireNames(database, collection); err != nil {
		return 0, err
	}
	written := 0
	for i, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			return written, fmt.Errorf("encode document %d: %w", i, err)
		}
		res, err := s.db.ExecContext(ctx, insertDocumentQuery, uuid.NewString(), database, collection, body)
		if err != nil {
			return written, pkgerrors.WithStack(fmt.Errorf("%w: insert document %d: %v", ErrUnavailable, i, err))
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}
	return written, nil
}

func requireNames(database, collection string) error {
	if strings.TrimSpace(database) == "" {
		return fmt.Errorf("database name is required")
	}
	if strings.TrimSpace(collection) == "" {
		return fmt.Errorf("collection name is required")
	}
	return nil
}
