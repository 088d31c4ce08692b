// Package pubsync builds sync previews and commits provider records into a
// researcher's publication set without introducing duplicates.
package pubsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/matsen/pubsync/internal/apperr"
	"github.com/matsen/pubsync/internal/dedupe"
	"github.com/matsen/pubsync/internal/provider"
	"github.com/matsen/pubsync/internal/reference"
	"github.com/matsen/pubsync/internal/storage"
)

// Fetcher retrieves normalized candidates for an external researcher identifier.
type Fetcher interface {
	FetchCandidates(ctx context.Context, externalID string, pageSizeHint int) (*provider.FetchResult, error)
}

// Invalidator is told when an owner's public publication list has changed.
// Implementations must not block; the caller does not wait on or check the outcome.
type Invalidator interface {
	Invalidate(ownerID string)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(string) {}

// PreviewResult is the annotated candidate list shown before a commit.
type PreviewResult struct {
	ExternalID     string                `json:"external_id"`
	Candidates     []reference.Candidate `json:"candidates"`
	Dropped        int                   `json:"dropped"` // Provider items unusable as records
	NewCount       int                   `json:"new_count"`
	DuplicateCount int                   `json:"duplicate_count"`
}

// DefaultSelection returns the candidates pre-selected for commit: every
// candidate not already present.
func (p *PreviewResult) DefaultSelection() []reference.RawRecord {
	return dedupe.SelectDefault(p.Candidates)
}

// CommitResult reports the outcome of a commit or full resync.
type CommitResult struct {
	InsertedCount int       `json:"inserted_count"`
	SkippedCount  int       `json:"skipped_count"`
	DeletedCount  int       `json:"deleted_count,omitempty"` // Full resync only
	ExternalCount int       `json:"external_count"`
	SyncedAt      time.Time `json:"synced_at"`
}

// Service orchestrates preview, commit and full resync for one store.
type Service struct {
	store       storage.Store
	fetcher     Fetcher
	invalidator Invalidator
	now         func() time.Time
	log         zerolog.Logger
	pageSize    int
}

// Option configures a Service.
type Option func(*Service)

// WithInvalidator sets the downstream cache invalidation target.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		if inv != nil {
			s.invalidator = inv
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger used for sync outcomes.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithPageSize sets the page-size hint passed to the fetcher.
func WithPageSize(n int) Option {
	return func(s *Service) {
		s.pageSize = n
	}
}

// New creates a Service.
func New(store storage.Store, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		store:       store,
		fetcher:     fetcher,
		invalidator: nopInvalidator{},
		now:         time.Now,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview fetches the researcher's works and flags the ones the owner already has.
// It never writes.
func (s *Service) Preview(ctx context.Context, ownerID, externalID string) (*PreviewResult, error) {
	if err := validateIDs(ownerID, externalID); err != nil {
		return nil, err
	}

	records, dropped, err := s.fetch(ctx, externalID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListByOwner(ctx, ownerID, reference.SourceExternal)
	if err != nil {
		storeFailuresTotal.Inc()
		return nil, storeErr("loading existing records", err)
	}

	candidates := dedupe.Resolve(records, existing)
	result := &PreviewResult{
		ExternalID: externalID,
		Candidates: candidates,
		Dropped:    dropped,
	}
	for _, c := range candidates {
		if c.AlreadyExists {
			result.DuplicateCount++
		} else {
			result.NewCount++
		}
	}

	previewsTotal.Inc()
	s.log.Info().
		Str("owner_id", ownerID).
		Str("external_id", externalID).
		Int("new", result.NewCount).
		Int("duplicates", result.DuplicateCount).
		Int("dropped", dropped).
		Msg("preview built")
	return result, nil
}

// Commit persists the selected candidates that are still new.
//
// The duplicate check is repeated against the store as it stands now, so
// preview flags are advisory. Selecting only duplicates is a successful no-op.
func (s *Service) Commit(ctx context.Context, ownerID, externalID string, selected []reference.RawRecord) (*CommitResult, error) {
	if err := validateIDs(ownerID, externalID); err != nil {
		return nil, err
	}

	normalized := make([]reference.RawRecord, len(selected))
	for i, raw := range selected {
		raw = raw.Normalize()
		if err := raw.Validate(); err != nil {
			return nil, fmt.Errorf("selected[%d]: %w", i, err)
		}
		normalized[i] = raw
	}

	existing, err := s.store.ListByOwner(ctx, ownerID, reference.SourceExternal)
	if err != nil {
		storeFailuresTotal.Inc()
		return nil, storeErr("reloading existing records", err)
	}

	fresh, skipped := dedupe.FilterNew(normalized, existing)
	now := s.now().UTC()
	recs := buildRecords(ownerID, externalID, fresh, now)

	inserted := 0
	if len(recs) > 0 {
		inserted, err = s.store.InsertBatch(ctx, recs)
		if err != nil {
			storeFailuresTotal.Inc()
			s.log.Error().Err(err).Str("owner_id", ownerID).Msg("commit batch failed")
			return nil, storeErr("inserting batch", err)
		}
	}
	// Records the store refused were claimed by a concurrent commit.
	skipped += len(recs) - inserted

	count, err := s.finish(ctx, ownerID, externalID, now)
	if err != nil {
		return nil, err
	}

	commitsTotal.WithLabelValues(modeSelect).Inc()
	recordsInsertedTotal.Add(float64(inserted))
	s.log.Info().
		Str("owner_id", ownerID).
		Str("external_id", externalID).
		Int("inserted", inserted).
		Int("skipped", skipped).
		Msg("sync committed")

	return &CommitResult{
		InsertedCount: inserted,
		SkippedCount:  skipped,
		ExternalCount: count,
		SyncedAt:      now,
	}, nil
}

// FullResync replaces every external record of the owner with a fresh fetch.
// Manual records are never touched.
func (s *Service) FullResync(ctx context.Context, ownerID, externalID string) (*CommitResult, error) {
	if err := validateIDs(ownerID, externalID); err != nil {
		return nil, err
	}

	records, dropped, err := s.fetch(ctx, externalID)
	if err != nil {
		return nil, err
	}

	unique, repeats := dedupe.Collapse(records)
	now := s.now().UTC()
	recs := buildRecords(ownerID, externalID, unique, now)

	deleted, inserted, err := s.store.ReplaceExternal(ctx, ownerID, recs)
	if err != nil {
		storeFailuresTotal.Inc()
		s.log.Error().Err(err).Str("owner_id", ownerID).Msg("full resync failed")
		return nil, storeErr("replacing external records", err)
	}

	count, err := s.finish(ctx, ownerID, externalID, now)
	if err != nil {
		return nil, err
	}

	skipped := dropped + repeats + len(recs) - inserted
	commitsTotal.WithLabelValues(modeResync).Inc()
	recordsInsertedTotal.Add(float64(inserted))
	s.log.Info().
		Str("owner_id", ownerID).
		Str("external_id", externalID).
		Int("deleted", deleted).
		Int("inserted", inserted).
		Int("skipped", skipped).
		Msg("full resync committed")

	return &CommitResult{
		InsertedCount: inserted,
		SkippedCount:  skipped,
		DeletedCount:  deleted,
		ExternalCount: count,
		SyncedAt:      now,
	}, nil
}

// fetch retrieves candidates and drops the ones that could never be committed.
func (s *Service) fetch(ctx context.Context, externalID string) ([]reference.RawRecord, int, error) {
	res, err := s.fetcher.FetchCandidates(ctx, externalID, s.pageSize)
	if err != nil {
		fetchFailuresTotal.Inc()
		s.log.Warn().Err(err).Str("external_id", externalID).Msg("fetch failed")
		return nil, 0, err
	}

	records := make([]reference.RawRecord, 0, len(res.Records))
	dropped := res.Dropped
	for _, raw := range res.Records {
		if raw.Validate() != nil {
			dropped++
			continue
		}
		records = append(records, raw)
	}
	return records, dropped, nil
}

// finish records owner metadata and signals invalidation after a successful write.
func (s *Service) finish(ctx context.Context, ownerID, externalID string, now time.Time) (int, error) {
	count, err := s.store.CountByOwner(ctx, ownerID, reference.SourceExternal)
	if err != nil {
		storeFailuresTotal.Inc()
		return 0, storeErr("counting external records", err)
	}

	err = s.store.PutOwner(ctx, reference.Owner{
		OwnerID:       ownerID,
		ExternalID:    externalID,
		LastSyncAt:    now,
		ExternalCount: count,
	})
	if err != nil {
		storeFailuresTotal.Inc()
		return 0, storeErr("updating owner metadata", err)
	}

	s.invalidator.Invalidate(ownerID)
	return count, nil
}

func buildRecords(ownerID, externalID string, raws []reference.RawRecord, now time.Time) []reference.Record {
	recs := make([]reference.Record, 0, len(raws))
	for _, raw := range raws {
		recs = append(recs, reference.Record{
			ID:               uuid.NewString(),
			OwnerID:          ownerID,
			Title:            raw.Title,
			Authors:          raw.Authors,
			Journal:          raw.Journal,
			Year:             raw.Year,
			DOI:              raw.DOI,
			Type:             reference.NormalizeType(raw.Type),
			Abstract:         raw.Abstract,
			URL:              raw.RawURL,
			SourceKind:       reference.SourceExternal,
			ExternalSourceID: externalID,
			SyncedAt:         now,
			CreatedAt:        now,
		})
	}
	return recs
}

func validateIDs(ownerID, externalID string) error {
	err := validation.Errors{
		"owner_id":    validation.Validate(ownerID, validation.Required),
		"external_id": validation.Validate(externalID, validation.Required),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

// storeErr makes sure err is classified as a store failure.
func storeErr(op string, err error) error {
	if errors.Is(err, apperr.ErrStore) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrStore, op, err)
}
