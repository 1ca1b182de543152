package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS invoice_registry (
	id            UUID PRIMARY KEY,
	canonical_id  TEXT NOT NULL UNIQUE,
	face_number   TEXT NOT NULL,
	source_key    TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	total         NUMERIC(14,2) NOT NULL,
	status        TEXT NOT NULL,
	generated_at  TIMESTAMPTZ NOT NULL
)`

// NewPostgresStore connects with the given DSN and ensures the schema
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating registry schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Put upserts an entry by canonical id.
func (s *PostgresStore) Put(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO invoice_registry (
			id, canonical_id, face_number, source_key,
			content_hash, total, status, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (canonical_id) DO UPDATE SET
			face_number = EXCLUDED.face_number,
			source_key = EXCLUDED.source_key,
			content_hash = EXCLUDED.content_hash,
			total = EXCLUDED.total,
			status = EXCLUDED.status,
			generated_at = EXCLUDED.generated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.CanonicalID,
		entry.FaceNumber,
		entry.SourceKey,
		entry.ContentHash,
		entry.Total,
		string(entry.Status),
		entry.GeneratedAt,
	)
	return err
}

// Get retrieves an entry by canonical id.
func (s *PostgresStore) Get(ctx context.Context, canonicalID string) (*Entry, error) {
	query := `
		SELECT id, canonical_id, face_number, source_key,
		       content_hash, total, status, generated_at
		FROM invoice_registry
		WHERE canonical_id = $1
	`
	var e Entry
	var status string
	err := s.db.QueryRowContext(ctx, query, canonicalID).Scan(
		&e.ID, &e.CanonicalID, &e.FaceNumber, &e.SourceKey,
		&e.ContentHash, &e.Total, &status, &e.GeneratedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{CanonicalID: canonicalID}
	}
	if err != nil {
		return nil, err
	}
	e.Status = PaymentStatus(status)
	return &e, nil
}

// List returns all entries ordered the same way the file store sorts:
// by the canonical id's embedded date, then by canonical id.
func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	query := `
		SELECT id, canonical_id, face_number, source_key,
		       content_hash, total, status, generated_at
		FROM invoice_registry
		ORDER BY right(canonical_id, 6), canonical_id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(
			&e.ID, &e.CanonicalID, &e.FaceNumber, &e.SourceKey,
			&e.ContentHash, &e.Total, &status, &e.GeneratedAt,
		); err != nil {
			return nil, err
		}
		e.Status = PaymentStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetStatus updates the payment status of an existing entry.
func (s *PostgresStore) SetStatus(ctx context.Context, canonicalID string, status PaymentStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("registry: unknown payment status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoice_registry SET status = $1 WHERE canonical_id = $2`,
		string(status), canonicalID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ErrNotFound{CanonicalID: canonicalID}
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
