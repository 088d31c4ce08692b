package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/matsen/pubsync/internal/apperr"
)

func TestFindDOI(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", "See doi 10.1093/molbev/msab123 for details", "10.1093/molbev/msab123"},
		{"url form", "https://doi.org/10.7554/eLife.12345.", "10.7554/eLife.12345"},
		{"trailing paren", "(10.1371/journal.pcbi.1009876)", "10.1371/journal.pcbi.1009876"},
		{"first wins", "10.1000/first and 10.1000/second", "10.1000/first"},
		{"case preserved", "doi:10.1101/2024.01.01.ABC", "10.1101/2024.01.01.ABC"},
		{"prefix too short", "10.12/abc", ""},
		{"none", "no identifiers here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findDOI(tt.text); got != tt.want {
				t.Errorf("findDOI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFindTitle(t *testing.T) {
	text := "Short\nJournal of Molecular Evolution 2024\nBayesian phylogenetics for antibody lineages\nAuthors"
	if got := findTitle(text); got != "Bayesian phylogenetics for antibody lineages" {
		t.Errorf("findTitle() = %q", got)
	}
	if got := findTitle("tiny\nlines\nonly"); got != "" {
		t.Errorf("findTitle() = %q, want empty", got)
	}
}

func TestIsHeaderLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Copyright 2024 the authors", true},
		{"Volume 12, Issue 3, pages 1-20", true},
		{"Article first published online", true},
		{"A genuine title about trees", false},
	}
	for _, tt := range tests {
		if got := isHeaderLine(tt.line); got != tt.want {
			t.Errorf("isHeaderLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestInspect_RejectsNonPDF(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("PK\x03\x04 this is a zip"),
		[]byte("%PD"),
		nil,
	} {
		_, err := Inspect(bytes.NewReader(data), int64(len(data)))
		if !errors.Is(err, ErrNotPDF) {
			t.Errorf("Inspect(%q) error = %v, want ErrNotPDF", data, err)
		}
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Inspect(%q) error should be a validation failure", data)
		}
	}
}

func TestInspect_CorruptPDF(t *testing.T) {
	data := []byte("%PDF-1.4\nthis is not really a pdf body")
	_, err := Inspect(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrNotPDF) {
		t.Errorf("Inspect() error = %v, want ErrNotPDF", err)
	}
}

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.7\n")) {
		t.Error("IsPDF() = false for PDF header")
	}
	if IsPDF([]byte("<html>")) {
		t.Error("IsPDF() = true for HTML")
	}
}

// minimalPDF builds a one-page document with a correct xref table.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestInspect_MinimalDocument(t *testing.T) {
	data := minimalPDF("Phylogenetic inference for B cell lineages")
	info, err := Inspect(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Inspect() error: %v", err)
	}
	if info.Pages != 1 {
		t.Errorf("Pages = %d, want 1", info.Pages)
	}
}
