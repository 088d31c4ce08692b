// Package dedupe resolves provider candidates against stored publications.
//
// Identity is tiered and the first matching tier wins:
//  1. exact DOI match (case-sensitive, both non-empty)
//  2. case-insensitive exact title match
//
// Anything else is new. There is no whitespace, punctuation, or diacritic
// normalization of titles, so reformatted titles are not caught.
package dedupe

import (
	"strings"

	"github.com/matsen/pubsync/internal/reference"
)

// TitleKey returns the title identity key.
func TitleKey(title string) string {
	return strings.ToLower(title)
}

// Index holds the identity keys of a set of records for lookups.
type Index struct {
	byDOI   map[string]string // DOI -> record ID
	byTitle map[string]string // TitleKey -> record ID
}

// NewIndex creates an Index from stored records.
func NewIndex(existing []reference.Record) *Index {
	idx := &Index{
		byDOI:   make(map[string]string, len(existing)),
		byTitle: make(map[string]string, len(existing)),
	}
	for _, rec := range existing {
		idx.add(rec.DOI, rec.Title, rec.ID)
	}
	return idx
}

func (idx *Index) add(doi, title, id string) {
	if doi != "" {
		if _, ok := idx.byDOI[doi]; !ok {
			idx.byDOI[doi] = id
		}
	}
	key := TitleKey(title)
	if _, ok := idx.byTitle[key]; !ok {
		idx.byTitle[key] = id
	}
}

// Add registers a candidate so later lookups treat it as known.
func (idx *Index) Add(raw reference.RawRecord) {
	idx.add(raw.DOI, raw.Title, "")
}

// Match returns the tier that identifies raw and the ID of the matching record.
// The tier is reference.MatchNone when raw is new.
func (idx *Index) Match(raw reference.RawRecord) (tier, id string) {
	if raw.DOI != "" {
		if id, ok := idx.byDOI[raw.DOI]; ok {
			return reference.MatchDOI, id
		}
	}
	if id, ok := idx.byTitle[TitleKey(raw.Title)]; ok {
		return reference.MatchTitle, id
	}
	return reference.MatchNone, ""
}

// Resolve annotates each candidate with whether it already exists in existing.
// It is pure and preserves candidate order.
func Resolve(candidates []reference.RawRecord, existing []reference.Record) []reference.Candidate {
	idx := NewIndex(existing)
	out := make([]reference.Candidate, len(candidates))
	for i, raw := range candidates {
		tier, id := idx.Match(raw)
		out[i] = reference.Candidate{
			RawRecord:     raw,
			AlreadyExists: tier != reference.MatchNone,
			Match:         tier,
			MatchedID:     id,
		}
	}
	return out
}

// FilterNew returns the candidates that are new relative to existing, in order.
// A candidate that matches an earlier accepted candidate of the same batch is
// also dropped, so the result never contains two mutual duplicates.
func FilterNew(selected []reference.RawRecord, existing []reference.Record) (fresh []reference.RawRecord, skipped int) {
	idx := NewIndex(existing)
	for _, raw := range selected {
		if tier, _ := idx.Match(raw); tier != reference.MatchNone {
			skipped++
			continue
		}
		idx.Add(raw)
		fresh = append(fresh, raw)
	}
	return fresh, skipped
}

// Collapse removes in-batch repeats from a candidate set, keeping the first occurrence.
func Collapse(candidates []reference.RawRecord) (unique []reference.RawRecord, skipped int) {
	return FilterNew(candidates, nil)
}

// SelectDefault returns the candidates that are pre-selected for merge:
// every candidate not flagged as already existing.
func SelectDefault(candidates []reference.Candidate) []reference.RawRecord {
	var out []reference.RawRecord
	for _, c := range candidates {
		if !c.AlreadyExists {
			out = append(out, c.RawRecord)
		}
	}
	return out
}
