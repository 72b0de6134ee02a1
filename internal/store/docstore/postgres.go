package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore implements Store on a single JSONB documents table:
//
//	CREATE TABLE documents (
//	    collection TEXT NOT NULL,
//	    id         TEXT NOT NULL,
//	    data       JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (collection, id)
//	);
//
// Each statement touches exactly one document; there is deliberately no
// multi-statement transaction here, matching the hosted store this adapter
// models.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore constructs the adapter.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the documents table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    data       JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

// Get fetches one document by id.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	const query = `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	var raw []byte
	if err := s.db.GetContext(ctx, &raw, query, collection, id); err != nil {
		if err == sql.ErrNoRows {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return Document{ID: id, Data: raw}, nil
}

// Query returns documents matching every equality filter, oldest first.
func (s *PostgresStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	query, args := buildQuery("SELECT id, data FROM documents", collection, filters)
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close() //nolint:errcheck

	var docs []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", collection, err)
		}
		docs = append(docs, Document{ID: id, Data: json.RawMessage(raw)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", collection, err)
	}
	return docs, nil
}

// Count returns the number of matching documents.
func (s *PostgresStore) Count(ctx context.Context, collection string, filters ...Filter) (int, error) {
	query, args := buildQuery("SELECT COUNT(*) FROM documents", collection, filters)
	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return count, nil
}

// Add inserts value under a generated id.
func (s *PostgresStore) Add(ctx context.Context, collection string, value interface{}) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, value); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or replaces the document with the given id.
func (s *PostgresStore) Set(ctx context.Context, collection, id string, value interface{}) error {
	raw, err := encode(value, id)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", collection, err)
	}
	const query = `
INSERT INTO documents (collection, id, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, query, collection, id, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges non-nil patch fields into the document and removes fields
// patched to nil.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	sets := make(map[string]interface{}, len(patch))
	removals := make([]string, 0)
	for field, value := range patch {
		if value == nil {
			removals = append(removals, field)
			continue
		}
		sets[field] = value
	}
	merged, err := json.Marshal(sets)
	if err != nil {
		return fmt.Errorf("encode %s patch: %w", collection, err)
	}

	const query = `
UPDATE documents
SET data = (data || $3::jsonb) - $4::text[], updated_at = $5
WHERE collection = $1 AND id = $2`
	result, err := s.db.ExecContext(ctx, query, collection, id, merged, pq.Array(removals), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated %s rows: %w", collection, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the document.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	const query = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	result, err := s.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted %s rows: %w", collection, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func buildQuery(prefix, collection string, filters []Filter) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(" WHERE collection = $1")
	args := []interface{}{collection}
	for _, f := range filters {
		args = append(args, fmt.Sprint(f.Value))
		sb.WriteString(fmt.Sprintf(" AND data->>'%s' = $%d", f.Field, len(args)))
	}
	return sb.String(), args
}
