package export

import (
	"strings"
	"testing"

	"github.com/matsen/pubsync/internal/reference"
)

func TestToBibTeX_BasicArticle(t *testing.T) {
	rec := reference.Record{
		DOI:      "10.1234/test",
		Title:    "Test Paper Title",
		Authors:  "John Smith, Jane Doe",
		Abstract: "This is the abstract",
		Journal:  "Nature",
		Year:     2026,
		Type:     "article",
		URL:      "https://example.org/paper",
	}

	got := ToBibTeX(rec, "Smith2026-test")

	for _, want := range []string{
		"@article{Smith2026-test,",
		`author = {John Smith and Jane Doe}`,
		`title = {Test Paper Title}`,
		`journal = {Nature}`,
		`year = {2026}`,
		`doi = {10.1234/test}`,
		`url = {https://example.org/paper}`,
		`abstract = {This is the abstract}`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("ToBibTeX() missing %q, got:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(got), "}") {
		t.Errorf("ToBibTeX() should end with }, got:\n%s", got)
	}
}

func TestToBibTeX_OptionalFieldsOmitted(t *testing.T) {
	got := ToBibTeX(reference.Record{Title: "Bare", Authors: "A. Author", Year: 2020}, "k")
	for _, absent := range []string{"journal", "doi", "url", "abstract"} {
		if strings.Contains(got, absent+" = ") {
			t.Errorf("ToBibTeX() should omit %s, got:\n%s", absent, got)
		}
	}
}

func TestDetermineEntryType(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		journal string
		want    string
		field   string
	}{
		{"article", "article", "Nature", "article", "journal"},
		{"preprint", "preprint", "bioRxiv", "misc", "howpublished"},
		{"book", "book", "Springer", "book", "howpublished"},
		{"thesis", "thesis", "University of Washington", "phdthesis", "howpublished"},
		{"typed conference", "conference-paper", "ICML", "inproceedings", "booktitle"},
		{"venue fallback", "article", "Proceedings of ICML 2026", "inproceedings", "booktitle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := reference.Record{Title: "T", Authors: "A", Year: 2026, Type: tt.typ, Journal: tt.journal}
			if got := determineEntryType(rec); got != tt.want {
				t.Errorf("determineEntryType() = %q, want %q", got, tt.want)
			}
			if out := ToBibTeX(rec, "k"); !strings.Contains(out, tt.field+" = {") {
				t.Errorf("ToBibTeX() should use %s, got:\n%s", tt.field, out)
			}
		})
	}
}

func TestCitationKey(t *testing.T) {
	tests := []struct {
		name string
		rec  reference.Record
		want string
	}{
		{"basic", reference.Record{Authors: "Ada Lovelace, Charles Babbage", Year: 1843, Title: "Notes on the engine"}, "Lovelace1843-notes"},
		{"skips short words", reference.Record{Authors: "J. Smith", Year: 2020, Title: "A new way"}, "Smith2020"},
		{"strips accents and punctuation", reference.Record{Authors: "José Núñez", Year: 2021, Title: "Trees: inference"}, "Nez2021-trees"},
		{"no authors", reference.Record{Year: 2022, Title: "Anonymous report"}, "Anon2022-anonymous"},
		{"and separated", reference.Record{Authors: "Alice Brown and Bob Green", Year: 2019, Title: "Graphs"}, "Brown2019-graphs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CitationKey(tt.rec); got != tt.want {
				t.Errorf("CitationKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToBibTeXList_UniqueKeys(t *testing.T) {
	recs := []reference.Record{
		{Title: "Trees one", Authors: "A. Smith", Year: 2020},
		{Title: "Trees two", Authors: "A. Smith", Year: 2020},
		{Title: "Trees three", Authors: "A. Smith", Year: 2020},
	}
	got := ToBibTeXList(recs)
	for _, key := range []string{"{Smith2020-trees,", "{Smith2020-treesa,", "{Smith2020-treesb,"} {
		if !strings.Contains(got, key) {
			t.Errorf("ToBibTeXList() missing key %q, got:\n%s", key, got)
		}
	}
	if n := strings.Count(got, "@article{"); n != 3 {
		t.Errorf("ToBibTeXList() has %d entries, want 3", n)
	}
}

func TestToBibTeXList_ManyDuplicateKeys(t *testing.T) {
	recs := make([]reference.Record, 30)
	for i := range recs {
		recs[i] = reference.Record{Title: "Trees", Authors: "A. Smith", Year: 2020}
	}
	got := ToBibTeXList(recs)
	for _, key := range []string{"{Smith2020-treesz,", "{Smith2020-treesaa,", "{Smith2020-treesac,"} {
		if !strings.Contains(got, key) {
			t.Errorf("ToBibTeXList() missing key %q", key)
		}
	}
	for _, bad := range []string{"trees{,", "trees|,", "trees},"} {
		if strings.Contains(got, bad) {
			t.Errorf("ToBibTeXList() produced key suffix %q", bad)
		}
	}
}

func TestKeySuffix(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "a"},
		{25, "z"},
		{26, "aa"},
		{27, "ab"},
		{51, "az"},
		{52, "ba"},
		{701, "zz"},
		{702, "aaa"},
	}
	for _, tt := range tests {
		if got := keySuffix(tt.in); got != tt.want {
			t.Errorf("keySuffix(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToBibTeXList_Empty(t *testing.T) {
	if got := ToBibTeXList(nil); got != "" {
		t.Errorf("ToBibTeXList(nil) = %q, want empty", got)
	}
}

func TestEscapeLatex(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"R&D", `R\&D`},
		{"100%", `100\%`},
		{"$x$", `\$x\$`},
		{"snake_case", `snake\_case`},
		{"{braces}", `\{braces\}`},
		{"a~b", `a\textasciitilde{}b`},
		{"x^2", `x\textasciicircum{}2`},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := escapeLatex(tt.input); got != tt.want {
			t.Errorf("escapeLatex(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
