package storage

import (
	"context"

	"github.com/matsen/pubsync/internal/reference"
)

// Store is the persistence contract used by the sync and record services.
//
// Failures wrap apperr.ErrStore. Lookups of unknown ids wrap apperr.ErrNotFound,
// and updates that would break external identity uniqueness wrap apperr.ErrConflict.
type Store interface {
	// ListByOwner returns an owner's records ordered by year descending, then title.
	// An empty kind lists every record.
	ListByOwner(ctx context.Context, ownerID string, kind reference.SourceKind) ([]reference.Record, error)

	// Search runs a full-text query over an owner's records.
	Search(ctx context.Context, ownerID, query string, limit int) ([]reference.Record, error)

	Get(ctx context.Context, id string) (*reference.Record, error)

	// InsertBatch writes records in one transaction and returns how many were
	// inserted. External records whose identity is already taken are skipped.
	InsertBatch(ctx context.Context, recs []reference.Record) (int, error)

	// ReplaceExternal atomically deletes every external record of the owner
	// and inserts recs in their place. Manual records are untouched.
	ReplaceExternal(ctx context.Context, ownerID string, recs []reference.Record) (deleted, inserted int, err error)

	Update(ctx context.Context, rec reference.Record) error
	Delete(ctx context.Context, id string) error
	CountByOwner(ctx context.Context, ownerID string, kind reference.SourceKind) (int, error)

	// GetOwner returns the owner's sync metadata, or a zero Owner when none is stored.
	GetOwner(ctx context.Context, ownerID string) (*reference.Owner, error)
	PutOwner(ctx context.Context, owner reference.Owner) error

	Close() error
}

// Compile-time check.
var _ Store = (*DB)(nil)
