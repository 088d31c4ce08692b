// Package export renders publication records as BibTeX.
package export

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/matsen/pubsync/internal/reference"
)

// ToBibTeX converts a record to a BibTeX entry under the given citation key.
func ToBibTeX(rec reference.Record, key string) string {
	entryType := determineEntryType(rec)
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, key))

	if authors := formatAuthors(rec.Authors); authors != "" {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", escapeLatex(authors)))
	}

	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(rec.Title)))

	if rec.Journal != "" {
		fieldName := "journal"
		switch entryType {
		case "inproceedings":
			fieldName = "booktitle"
		case "misc", "phdthesis", "book":
			fieldName = "howpublished"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(rec.Journal)))
	}

	b.WriteString(fmt.Sprintf("  year = {%d},\n", rec.Year))

	if rec.DOI != "" {
		b.WriteString(fmt.Sprintf("  doi = {%s},\n", rec.DOI))
	}
	if rec.URL != "" {
		b.WriteString(fmt.Sprintf("  url = {%s},\n", rec.URL))
	}
	if rec.Abstract != "" {
		b.WriteString(fmt.Sprintf("  abstract = {%s},\n", escapeLatex(rec.Abstract)))
	}

	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts records to BibTeX with unique citation keys.
func ToBibTeXList(recs []reference.Record) string {
	used := make(map[string]int, len(recs))
	entries := make([]string, 0, len(recs))
	for _, rec := range recs {
		key := CitationKey(rec)
		if n := used[key]; n > 0 {
			used[key]++
			key += keySuffix(n - 1)
		} else {
			used[key] = 1
		}
		entries = append(entries, ToBibTeX(rec, key))
	}
	return strings.Join(entries, "\n")
}

// keySuffix maps 0, 1, ... 25, 26, 27 to "a", "b", ... "z", "aa", "ab".
func keySuffix(i int) string {
	var b []byte
	for ; i >= 0; i = i/26 - 1 {
		b = append([]byte{byte('a' + i%26)}, b...)
	}
	return string(b)
}

// CitationKey derives a key like "Lovelace1843-notes" from the first author's
// surname, the year and the first title word of four or more letters.
func CitationKey(rec reference.Record) string {
	surname := "Anon"
	if authors := splitAuthors(rec.Authors); len(authors) > 0 {
		if s := keyWord(lastName(authors[0])); s != "" {
			surname = s
		}
	}

	key := fmt.Sprintf("%s%d", surname, rec.Year)
	for _, w := range strings.Fields(rec.Title) {
		if w = strings.ToLower(keyWord(w)); len(w) >= 4 {
			return key + "-" + w
		}
	}
	return key
}

// determineEntryType returns the BibTeX entry type for a record.
// The record's type tag wins; the venue name is the fallback.
func determineEntryType(rec reference.Record) string {
	switch rec.Type {
	case "book":
		return "book"
	case "thesis", "dissertation":
		return "phdthesis"
	case "conference-paper", "proceedings-article", "conference":
		return "inproceedings"
	case "preprint", "dataset", "software", "report", "other":
		return "misc"
	}

	venue := strings.ToLower(rec.Journal)
	if strings.Contains(venue, "proceedings") ||
		strings.Contains(venue, "conference") ||
		strings.Contains(venue, "workshop") ||
		strings.Contains(venue, "symposium") {
		return "inproceedings"
	}

	return "article"
}

// splitAuthors splits the free-text author list on commas, semicolons and "and".
func splitAuthors(authors string) []string {
	fields := strings.FieldsFunc(authors, func(r rune) bool { return r == ',' || r == ';' })
	var out []string
	for _, f := range fields {
		for _, name := range strings.Split(f, " and ") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// formatAuthors formats authors in BibTeX style: "A. Author and B. Author"
func formatAuthors(authors string) string {
	return strings.Join(splitAuthors(authors), " and ")
}

func lastName(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// keyWord keeps only ASCII letters and digits.
func keyWord(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, s)
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	// Order matters: & must be first (before other escapes that might produce &)
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
