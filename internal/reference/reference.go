// Package reference defines the core domain types for a researcher's publications.
package reference

import "time"

// SourceKind records where a publication record originated.
type SourceKind string

const (
	// SourceExternal marks records fetched from the bibliographic provider.
	SourceExternal SourceKind = "external"
	// SourceManual marks records entered by hand.
	SourceManual SourceKind = "manual"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	return k == SourceExternal || k == SourceManual
}

// DefaultType is used when a record arrives without a category tag.
const DefaultType = "article"

// Year bounds accepted for any stored record.
const (
	MinYear = 1900
	MaxYear = 2100
)

// Record is a persisted publication owned by a single researcher.
type Record struct {
	// Identity
	ID      string `json:"id"`       // Store-assigned, empty until persisted
	OwnerID string `json:"owner_id"` // Immutable after creation

	// Metadata
	Title    string `json:"title"`
	Authors  string `json:"authors"` // Free text, comma-separated
	Journal  string `json:"journal,omitempty"`
	Year     int    `json:"year"`
	DOI      string `json:"doi,omitempty"` // Primary identity key when present
	Type     string `json:"type"`          // Display grouping only, never identity
	Abstract string `json:"abstract,omitempty"`
	URL      string `json:"url,omitempty"`

	// Provenance
	SourceKind       SourceKind `json:"source_kind"`
	ExternalSourceID string     `json:"external_source_id,omitempty"` // Only for external records

	// Timestamps
	SyncedAt  time.Time `json:"synced_at,omitzero"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`

	AttachmentURL string `json:"attachment_url,omitempty"`
}

// IsExternal reports whether the record came from the provider.
func (r Record) IsExternal() bool {
	return r.SourceKind == SourceExternal
}

// Raw returns the identity-relevant projection of a stored record.
func (r Record) Raw() RawRecord {
	return RawRecord{
		Title:    r.Title,
		Authors:  r.Authors,
		Journal:  r.Journal,
		Year:     r.Year,
		DOI:      r.DOI,
		Type:     r.Type,
		Abstract: r.Abstract,
		RawURL:   r.URL,
	}
}

// RawRecord is a normalized candidate returned by the provider, not yet persisted.
type RawRecord struct {
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Journal  string `json:"journal"`
	Year     int    `json:"year"`
	DOI      string `json:"doi,omitempty"`
	Type     string `json:"type"`
	Abstract string `json:"abstract,omitempty"`
	RawURL   string `json:"raw_url,omitempty"`
}

// Match tiers reported on a resolved candidate.
const (
	MatchNone  = ""
	MatchDOI   = "doi"
	MatchTitle = "title"
)

// Candidate is a RawRecord annotated with its resolved status.
type Candidate struct {
	RawRecord
	AlreadyExists bool   `json:"already_exists"`
	Match         string `json:"match,omitempty"`      // doi, title
	MatchedID     string `json:"matched_id,omitempty"` // ID of the existing record that matched
}

// Owner holds researcher-level sync metadata.
type Owner struct {
	OwnerID       string    `json:"owner_id"`
	ExternalID    string    `json:"external_id,omitempty"` // Identifier used by the last sync
	LastSyncAt    time.Time `json:"last_sync_at,omitzero"`
	ExternalCount int       `json:"external_count"`
}
