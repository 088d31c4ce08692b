// Package manual manages hand-entered publication records and owner edits to
// any record, sharing the identity space used by sync.
package manual

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matsen/pubsync/internal/apperr"
	"github.com/matsen/pubsync/internal/reference"
	"github.com/matsen/pubsync/internal/storage"
)

// Invalidator is told when an owner's public publication list has changed.
type Invalidator interface {
	Invalidate(ownerID string)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(string) {}

// ListOptions filters List.
type ListOptions struct {
	Kind  reference.SourceKind // Empty lists both kinds
	Query string               // Full-text query; empty lists everything
	Limit int                  // 0 = no limit
}

// Failure describes one id that DeleteMany could not remove.
type Failure struct {
	ID    string `json:"id"`
	Kind  string `json:"error"`
	Error string `json:"message"`
}

// BulkResult summarizes a DeleteMany call.
type BulkResult struct {
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Failures     []Failure `json:"failures,omitempty"`
}

// Manager performs owner-scoped record CRUD.
type Manager struct {
	store       storage.Store
	invalidator Invalidator
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithInvalidator sets the downstream cache invalidation target.
func WithInvalidator(inv Invalidator) Option {
	return func(m *Manager) {
		if inv != nil {
			m.invalidator = inv
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a Manager.
func New(store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		invalidator: nopInvalidator{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a new manual record for ownerID.
func (m *Manager) Create(ctx context.Context, ownerID string, fields reference.Fields) (*reference.Record, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner_id: cannot be blank", apperr.ErrValidation)
	}
	fields = fields.Normalize()
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	rec := reference.Record{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Title:      fields.Title,
		Authors:    fields.Authors,
		Journal:    fields.Journal,
		Year:       fields.Year,
		DOI:        fields.DOI,
		Type:       fields.Type,
		Abstract:   fields.Abstract,
		URL:        fields.URL,
		SourceKind: reference.SourceManual,
		CreatedAt:  now,
	}

	n, err := m.store.InsertBatch(ctx, []reference.Record{rec})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: publication %s was not stored", apperr.ErrConflict, rec.ID)
	}
	m.invalidator.Invalidate(ownerID)
	return &rec, nil
}

// Get returns one of the owner's records.
func (m *Manager) Get(ctx context.Context, ownerID, id string) (*reference.Record, error) {
	return m.owned(ctx, ownerID, id)
}

// List returns the owner's records, optionally filtered.
func (m *Manager) List(ctx context.Context, ownerID string, opts ListOptions) ([]reference.Record, error) {
	if opts.Kind != "" && !opts.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind: unknown value %q", apperr.ErrValidation, opts.Kind)
	}

	var recs []reference.Record
	var err error
	if opts.Query != "" {
		recs, err = m.store.Search(ctx, ownerID, opts.Query, 0)
	} else {
		recs, err = m.store.ListByOwner(ctx, ownerID, opts.Kind)
	}
	if err != nil {
		return nil, err
	}

	if opts.Query != "" && opts.Kind != "" {
		filtered := recs[:0]
		for _, r := range recs {
			if r.SourceKind == opts.Kind {
				filtered = append(filtered, r)
			}
		}
		recs = filtered
	}
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

// Update applies patch to one of the owner's records, external or manual.
// The merged record must still validate.
func (m *Manager) Update(ctx context.Context, ownerID, id string, patch reference.Patch) (*reference.Record, error) {
	rec, err := m.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return rec, nil
	}

	updated := patch.Apply(*rec)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	updated.UpdatedAt = m.now().UTC()

	if err := m.store.Update(ctx, updated); err != nil {
		return nil, err
	}
	m.invalidator.Invalidate(ownerID)
	return &updated, nil
}

// Delete removes one of the owner's records.
// A deleted external record comes back on the next full resync.
func (m *Manager) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := m.owned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.invalidator.Invalidate(ownerID)
	return nil
}

// DeleteMany deletes each id independently and reports per-item failures.
func (m *Manager) DeleteMany(ctx context.Context, ownerID string, ids []string) BulkResult {
	var res BulkResult
	for _, id := range ids {
		err := m.deleteOne(ctx, ownerID, id)
		if err != nil {
			res.FailureCount++
			res.Failures = append(res.Failures, Failure{ID: id, Kind: apperr.Kind(err), Error: err.Error()})
			continue
		}
		res.SuccessCount++
	}
	if res.SuccessCount > 0 {
		m.invalidator.Invalidate(ownerID)
	}
	return res
}

func (m *Manager) deleteOne(ctx context.Context, ownerID, id string) error {
	if _, err := m.owned(ctx, ownerID, id); err != nil {
		return err
	}
	return m.store.Delete(ctx, id)
}

// AttachDocument stores a document pointer on one of the owner's records.
// Identity fields are left alone.
func (m *Manager) AttachDocument(ctx context.Context, ownerID, id, url string) (*reference.Record, error) {
	rec, err := m.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, fmt.Errorf("%w: attachment_url: cannot be blank", apperr.ErrValidation)
	}

	rec.AttachmentURL = url
	rec.UpdatedAt = m.now().UTC()
	if err := m.store.Update(ctx, *rec); err != nil {
		return nil, err
	}
	m.invalidator.Invalidate(ownerID)
	return rec, nil
}

// owned loads id and checks that it belongs to ownerID.
func (m *Manager) owned(ctx context.Context, ownerID, id string) (*reference.Record, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: publication %s belongs to another owner", apperr.ErrNotAuthorized, id)
	}
	return rec, nil
}
