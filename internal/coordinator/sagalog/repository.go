package sagalog

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("saga log not found")

// Repository persists journal entries. The coordinator depends on this
// port only; SQLite and in-memory implementations exist.
type Repository interface {
	// Save appends an entry. Entries are never updated.
	Save(ctx context.Context, entry *SagaLog) error
	// List returns the entries of a saga oldest first, or ErrNotFound.
	List(ctx context.Context, sagaID string) ([]SagaLog, error)
}
