package reference

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/matsen/pubsync/internal/apperr"
)

// Fields is the user-supplied content of a manual record.
type Fields struct {
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Journal  string `json:"journal"`
	Year     int    `json:"year"`
	DOI      string `json:"doi"`
	Type     string `json:"type"`
	Abstract string `json:"abstract"`
	URL      string `json:"url"`
}

// Patch holds a partial update. Nil fields are left unchanged.
// OwnerID and SourceKind are deliberately absent.
type Patch struct {
	Title    *string `json:"title,omitempty"`
	Authors  *string `json:"authors,omitempty"`
	Journal  *string `json:"journal,omitempty"`
	Year     *int    `json:"year,omitempty"`
	DOI      *string `json:"doi,omitempty"`
	Type     *string `json:"type,omitempty"`
	Abstract *string `json:"abstract,omitempty"`
	URL      *string `json:"url,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Authors == nil && p.Journal == nil && p.Year == nil &&
		p.DOI == nil && p.Type == nil && p.Abstract == nil && p.URL == nil
}

// Apply returns a copy of r with the patch applied and string fields trimmed.
func (p Patch) Apply(r Record) Record {
	if p.Title != nil {
		r.Title = strings.TrimSpace(*p.Title)
	}
	if p.Authors != nil {
		r.Authors = strings.TrimSpace(*p.Authors)
	}
	if p.Journal != nil {
		r.Journal = strings.TrimSpace(*p.Journal)
	}
	if p.Year != nil {
		r.Year = *p.Year
	}
	if p.DOI != nil {
		r.DOI = strings.TrimSpace(*p.DOI)
	}
	if p.Type != nil {
		r.Type = NormalizeType(*p.Type)
	}
	if p.Abstract != nil {
		r.Abstract = strings.TrimSpace(*p.Abstract)
	}
	if p.URL != nil {
		r.URL = strings.TrimSpace(*p.URL)
	}
	return r
}

// Normalize trims whitespace and fills the default type.
func (f Fields) Normalize() Fields {
	return Fields{
		Title:    strings.TrimSpace(f.Title),
		Authors:  strings.TrimSpace(f.Authors),
		Journal:  strings.TrimSpace(f.Journal),
		Year:     f.Year,
		DOI:      strings.TrimSpace(f.DOI),
		Type:     NormalizeType(f.Type),
		Abstract: strings.TrimSpace(f.Abstract),
		URL:      strings.TrimSpace(f.URL),
	}
}

// Normalize trims whitespace and fills the default type.
// DOI case is preserved since DOI identity is case-sensitive.
func (r RawRecord) Normalize() RawRecord {
	return RawRecord{
		Title:    strings.TrimSpace(r.Title),
		Authors:  strings.TrimSpace(r.Authors),
		Journal:  strings.TrimSpace(r.Journal),
		Year:     r.Year,
		DOI:      strings.TrimSpace(r.DOI),
		Type:     NormalizeType(r.Type),
		Abstract: strings.TrimSpace(r.Abstract),
		RawURL:   strings.TrimSpace(r.RawURL),
	}
}

// Validate checks the required fields of a manual record.
func (f Fields) Validate() error {
	return wrapValidation(validateCore(f.Title, f.Authors, f.Year))
}

// Validate checks the required fields of a provider candidate.
func (r RawRecord) Validate() error {
	return wrapValidation(validateCore(r.Title, r.Authors, r.Year))
}

// Validate checks the required fields of a stored record.
func (r Record) Validate() error {
	if err := validateCore(r.Title, r.Authors, r.Year); err != nil {
		return wrapValidation(err)
	}
	if !r.SourceKind.Valid() {
		return fmt.Errorf("%w: source_kind: unknown value %q", apperr.ErrValidation, r.SourceKind)
	}
	return nil
}

func validateCore(title, authors string, year int) error {
	return validation.Errors{
		"title":   validation.Validate(strings.TrimSpace(title), validation.Required),
		"authors": validation.Validate(strings.TrimSpace(authors), validation.Required),
		"year":    validation.Validate(year, validation.Required, validation.Min(MinYear), validation.Max(MaxYear)),
	}.Filter()
}

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
}

// NormalizeType lower-cases a category tag and applies the default.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return DefaultType
	}
	return t
}
