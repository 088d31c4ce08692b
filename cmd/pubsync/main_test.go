package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/matsen/pubsync/internal/apperr"
	"github.com/matsen/pubsync/internal/provider"
	"github.com/matsen/pubsync/internal/reference"
	"github.com/matsen/pubsync/internal/storage"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "record array",
			input: `[{"title":"A","authors":"X","year":2020},{"title":"B","authors":"Y","year":2021}]`,
			want:  []string{"A", "B"},
		},
		{
			name:  "candidate array keeps flagged entries",
			input: `[{"title":"A","authors":"X","year":2020,"already_exists":true}]`,
			want:  []string{"A"},
		},
		{
			name: "preview output selects new only",
			input: `{"external_id":"0000-0001","candidates":[
				{"title":"Old","authors":"X","year":2019,"already_exists":true,"match":"doi"},
				{"title":"New","authors":"Y","year":2024,"already_exists":false}
			]}`,
			want: []string{"New"},
		},
		{name: "empty", input: "  ", wantErr: true},
		{name: "object without candidates", input: `{"external_id":"x"}`, wantErr: true},
		{name: "malformed", input: `[{"title":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelection([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseSelection() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSelection() error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.want))
			}
			for i, title := range tt.want {
				if got[i].Title != title {
					t.Errorf("record %d title = %q, want %q", i, got[i].Title, title)
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"validation", fmt.Errorf("%w: title", apperr.ErrValidation), ExitDataError, apperr.KindValidation},
		{"conflict", apperr.ErrConflict, ExitDataError, apperr.KindConflict},
		{"not found", fmt.Errorf("%w: x", apperr.ErrNotFound), ExitNotFound, apperr.KindNotFound},
		{"not authorized", apperr.ErrNotAuthorized, ExitNotAuthorized, apperr.KindNotAuthorized},
		{"store", fmt.Errorf("%w: disk", apperr.ErrStore), ExitStoreError, apperr.KindStore},
		{"provider not found", provider.ErrNotFound, ExitFetchError, kindFetchFailure},
		{"provider api", &provider.APIError{StatusCode: 503}, ExitFetchError, kindFetchFailure},
		{"other", errors.New("boom"), ExitError, apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, kind := classify(tt.err)
			if code != tt.wantCode || kind != tt.wantKind {
				t.Errorf("classify() = (%d, %q), want (%d, %q)", code, kind, tt.wantCode, tt.wantKind)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer title here", 10, "a longe..."},
		{"héllo wörld", 8, "héllo..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestPatchFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "update"}
	var title, authors, journal string
	var year int
	cmd.Flags().StringVar(&title, "title", "", "")
	cmd.Flags().StringVar(&authors, "authors", "", "")
	cmd.Flags().StringVar(&journal, "journal", "", "")
	cmd.Flags().IntVar(&year, "year", 0, "")

	if p := patchFromFlags(cmd); !p.IsEmpty() {
		t.Fatalf("patch with no flags set = %+v, want empty", p)
	}

	if err := cmd.Flags().Set("journal", "Nature"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("year", "2021"); err != nil {
		t.Fatal(err)
	}
	p := patchFromFlags(cmd)
	if p.Title != nil || p.Authors != nil {
		t.Errorf("unset fields present: %+v", p)
	}
	if p.Journal == nil || p.Year == nil {
		t.Fatalf("set fields missing: %+v", p)
	}
}

func TestCheckRestorable(t *testing.T) {
	valid := reference.Record{
		ID: "r1", OwnerID: "alice", Title: "T", Authors: "A", Year: 2020,
		Type: "article", SourceKind: reference.SourceManual,
	}
	if err := checkRestorable([]reference.Record{valid}); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	noID := valid
	noID.ID = ""
	badKind := valid
	badKind.SourceKind = "imported"
	noTitle := valid
	noTitle.Title = ""

	for name, rec := range map[string]reference.Record{"no id": noID, "bad kind": badKind, "no title": noTitle} {
		t.Run(name, func(t *testing.T) {
			err := checkRestorable([]reference.Record{valid, rec})
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("checkRestorable() = %v, want validation failure", err)
			}
		})
	}
}

func TestRefreshOwners(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "restore.db"))
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	defer db.Close()

	if err := db.PutOwner(ctx, reference.Owner{OwnerID: "alice", ExternalID: "0000-0001", ExternalCount: 1}); err != nil {
		t.Fatal(err)
	}

	ext := func(id, ownerID, title string) reference.Record {
		return reference.Record{
			ID: id, OwnerID: ownerID, Title: title, Authors: "A", Year: 2020, Type: "article",
			SourceKind: reference.SourceExternal, ExternalSourceID: "0000-0009",
		}
	}
	recs := []reference.Record{
		ext("e1", "alice", "One"),
		ext("e2", "alice", "Two"),
		ext("e3", "alice", "Three"),
		ext("e4", "bob", "Four"),
		{ID: "m1", OwnerID: "carol", Title: "Manual", Authors: "A", Year: 2020, Type: "article", SourceKind: reference.SourceManual},
	}
	if _, err := db.InsertBatch(ctx, recs); err != nil {
		t.Fatal(err)
	}

	if err := refreshOwners(ctx, db, recs); err != nil {
		t.Fatalf("refreshOwners() error = %v", err)
	}

	alice, _ := db.GetOwner(ctx, "alice")
	if alice.ExternalCount != 3 || alice.ExternalID != "0000-0001" {
		t.Errorf("alice = %+v, want count 3 and stored external id kept", alice)
	}
	bob, _ := db.GetOwner(ctx, "bob")
	if bob.ExternalCount != 1 || bob.ExternalID != "0000-0009" {
		t.Errorf("bob = %+v, want count 1 and external id from backup", bob)
	}
	carol, _ := db.GetOwner(ctx, "carol")
	if carol.ExternalCount != 0 || carol.ExternalID != "" {
		t.Errorf("carol = %+v, want untouched", carol)
	}
}
