package provider

import (
	"strings"

	"github.com/matsen/pubsync/internal/reference"
)

// Normalize converts a provider work into a RawRecord.
// It returns false when the work lacks a title and must be dropped.
func Normalize(w Work) (reference.RawRecord, bool) {
	title := strings.TrimSpace(w.Title)
	if title == "" {
		return reference.RawRecord{}, false
	}

	return reference.RawRecord{
		Title:    title,
		Authors:  joinAuthors(w.Authors),
		Journal:  strings.TrimSpace(w.Journal),
		Year:     w.Year.Int(),
		DOI:      strings.TrimSpace(w.DOI),
		Type:     reference.NormalizeType(w.Type),
		Abstract: strings.TrimSpace(w.Abstract),
		RawURL:   strings.TrimSpace(w.URL),
	}, true
}

// NormalizeAll normalizes works in order and counts the dropped ones.
func NormalizeAll(works []Work) (records []reference.RawRecord, dropped int) {
	for _, w := range works {
		rec, ok := Normalize(w)
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	return records, dropped
}

// joinAuthors joins names in provider order, skipping blanks.
func joinAuthors(names []string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, ", ")
}
