// Package sqlite stores the saga journal in SQLite through the pure-Go
// modernc driver. WAL mode lets the status endpoint read while workflows
// keep appending.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jcmexdev/resilient-orders/internal/coordinator/sagalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS saga_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    saga_id         TEXT        NOT NULL,
    status          TEXT        NOT NULL,
    current_step    TEXT        NOT NULL DEFAULT '',
    -- request JSON, only on STARTED rows
    payload         TEXT,
    error_messages  TEXT        NOT NULL DEFAULT '[]',
    trace_id        TEXT        NOT NULL DEFAULT '',
    span_id         TEXT        NOT NULL DEFAULT '',
    -- RFC3339Nano, UTC
    updated_at      TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_logs_saga_id ON saga_logs(saga_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_saga_logs_trace_id ON saga_logs(trace_id);
`

const timeLayout = "2006-01-02T15:04:05.999999999Z"

var _ sagalog.Repository = (*Repository)(nil)

type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
//
//	repo, err := sqlite.Open("./data/saga.db")
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// single writer
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Save appends an entry. It is safe to call concurrently.
func (r *Repository) Save(ctx context.Context, entry *sagalog.SagaLog) error {
	const q = `
		INSERT INTO saga_logs
			(saga_id, status, current_step, payload, error_messages, trace_id, span_id, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.SagaID,
		string(entry.Status),
		entry.CurrentStep,
		nullableString(entry.Payload),
		entry.ErrorMessages,
		entry.TraceID,
		entry.SpanID,
		entry.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save saga log for %q: %w", entry.SagaID, err)
	}
	return nil
}

// GetLatest returns the most recent entry of a saga.
func (r *Repository) GetLatest(ctx context.Context, sagaID string) (*sagalog.SagaLog, error) {
	const q = `
		SELECT saga_id, status, current_step, COALESCE(payload,''), error_messages,
		       trace_id, span_id, updated_at
		FROM   saga_logs
		WHERE  saga_id = ?
		ORDER  BY updated_at DESC, id DESC
		LIMIT  1`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, q, sagaID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: saga %q: %w", sagaID, sagalog.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get latest for %q: %w", sagaID, err)
	}
	return &entry, nil
}

// List returns every entry of a saga in insertion order.
func (r *Repository) List(ctx context.Context, sagaID string) ([]sagalog.SagaLog, error) {
	const q = `
		SELECT saga_id, status, current_step, COALESCE(payload,''), error_messages,
		       trace_id, span_id, updated_at
		FROM   saga_logs
		WHERE  saga_id = ?
		ORDER  BY id ASC`

	rows, err := r.db.QueryContext(ctx, q, sagaID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %q: %w", sagaID, err)
	}
	defer rows.Close()

	var out []sagalog.SagaLog
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list %q: %w", sagaID, err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list %q: %w", sagaID, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sqlite: saga %q: %w", sagaID, sagalog.ErrNotFound)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (sagalog.SagaLog, error) {
	var entry sagalog.SagaLog
	var updatedAt string
	err := s.Scan(
		&entry.SagaID,
		&entry.Status,
		&entry.CurrentStep,
		&entry.Payload,
		&entry.ErrorMessages,
		&entry.TraceID,
		&entry.SpanID,
		&updatedAt,
	)
	if err != nil {
		return sagalog.SagaLog{}, err
	}

	entry.UpdatedAt, err = parseRFC3339(updatedAt)
	if err != nil {
		return sagalog.SagaLog{}, err
	}
	return entry, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// nullableString stores NULL instead of an empty payload.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
