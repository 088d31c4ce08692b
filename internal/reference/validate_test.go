package reference

import (
	"errors"
	"strings"
	"testing"

	"github.com/matsen/pubsync/internal/apperr"
)

func TestFieldsValidate(t *testing.T) {
	tests := []struct {
		name      string
		fields    Fields
		wantErr   bool
		wantField string
	}{
		{
			name:   "valid",
			fields: Fields{Title: "Phylogenetics at scale", Authors: "A. Smith, B. Jones", Year: 2024},
		},
		{
			name:      "missing title",
			fields:    Fields{Authors: "A. Smith", Year: 2024},
			wantErr:   true,
			wantField: "title",
		},
		{
			name:      "blank title",
			fields:    Fields{Title: "   ", Authors: "A. Smith", Year: 2024},
			wantErr:   true,
			wantField: "title",
		},
		{
			name:      "missing authors",
			fields:    Fields{Title: "T", Year: 2024},
			wantErr:   true,
			wantField: "authors",
		},
		{
			name:      "year too early",
			fields:    Fields{Title: "T", Authors: "A", Year: 1899},
			wantErr:   true,
			wantField: "year",
		},
		{
			name:      "year too late",
			fields:    Fields{Title: "T", Authors: "A", Year: 2101},
			wantErr:   true,
			wantField: "year",
		},
		{
			name:   "year bounds inclusive",
			fields: Fields{Title: "T", Authors: "A", Year: 1900},
		},
		{
			name:      "missing year",
			fields:    Fields{Title: "T", Authors: "A"},
			wantErr:   true,
			wantField: "year",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fields.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("Validate() error = %v, want wrapping ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("Validate() error = %q, want mention of %q", err.Error(), tt.wantField)
			}
		})
	}
}

func TestRecordValidate_SourceKind(t *testing.T) {
	r := Record{Title: "T", Authors: "A", Year: 2020, SourceKind: "imported"}
	if err := r.Validate(); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Validate() error = %v, want ErrValidation for unknown source kind", err)
	}

	r.SourceKind = SourceManual
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestFieldsNormalize(t *testing.T) {
	f := Fields{Title: "  Title  ", Authors: " A ", DOI: " 10.1/X ", Type: " Preprint "}.Normalize()

	if f.Title != "Title" {
		t.Errorf("Title = %q, want %q", f.Title, "Title")
	}
	if f.DOI != "10.1/X" {
		t.Errorf("DOI = %q, want case preserved %q", f.DOI, "10.1/X")
	}
	if f.Type != "preprint" {
		t.Errorf("Type = %q, want preprint", f.Type)
	}

	if got := (Fields{}).Normalize().Type; got != DefaultType {
		t.Errorf("empty Type normalized to %q, want %q", got, DefaultType)
	}
}

func TestPatchApply(t *testing.T) {
	orig := Record{
		ID:         "id-1",
		OwnerID:    "owner-1",
		Title:      "Old",
		Authors:    "A",
		Year:       2020,
		Type:       "article",
		SourceKind: SourceExternal,
	}

	title := " New title "
	year := 2021
	got := Patch{Title: &title, Year: &year}.Apply(orig)

	if got.Title != "New title" || got.Year != 2021 {
		t.Errorf("Apply() = %+v, want updated title and year", got)
	}
	if got.OwnerID != orig.OwnerID || got.SourceKind != orig.SourceKind || got.ID != orig.ID {
		t.Errorf("Apply() changed immutable fields: %+v", got)
	}
	if got.Authors != "A" {
		t.Errorf("Authors = %q, want unchanged", got.Authors)
	}
	if orig.Title != "Old" {
		t.Error("Apply() mutated the original record")
	}
}

func TestPatchIsEmpty(t *testing.T) {
	if !(Patch{}).IsEmpty() {
		t.Error("empty Patch reported non-empty")
	}
	doi := ""
	if (Patch{DOI: &doi}).IsEmpty() {
		t.Error("Patch clearing DOI reported empty")
	}
}

func TestRawRecordNormalize(t *testing.T) {
	got := RawRecord{Title: " T ", Authors: " A ", DOI: " 10.1/AbC ", Type: ""}.Normalize()
	if got.Title != "T" || got.Authors != "A" {
		t.Errorf("Normalize() did not trim: %+v", got)
	}
	if got.DOI != "10.1/AbC" {
		t.Errorf("DOI = %q, want case preserved", got.DOI)
	}
	if got.Type != DefaultType {
		t.Errorf("Type = %q, want %q", got.Type, DefaultType)
	}
}
