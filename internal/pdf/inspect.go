// Package pdf inspects uploaded PDF documents for identifying metadata.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/matsen/pubsync/internal/apperr"
)

// ErrNotPDF is returned for uploads that are not PDF documents.
var ErrNotPDF = fmt.Errorf("%w: not a PDF document", apperr.ErrValidation)

// maxScanPages bounds how many pages are searched for a DOI (usually on page 1).
const maxScanPages = 3

// DOI pattern: 10.XXXX/... where XXXX is 4+ digits
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

var magic = []byte("%PDF-")

// Info is what could be read from an uploaded document.
type Info struct {
	Pages int    `json:"pages"`
	DOI   string `json:"doi,omitempty"`
	Title string `json:"title,omitempty"`
}

// IsPDF reports whether header starts with the PDF signature.
func IsPDF(header []byte) bool {
	return bytes.HasPrefix(header, magic)
}

// Inspect reads page count, DOI and title from a PDF.
// A document without a detectable DOI or title is not an error.
func Inspect(r io.ReaderAt, size int64) (*Info, error) {
	header := make([]byte, len(magic))
	if _, err := r.ReadAt(header, 0); err != nil || !IsPDF(header) {
		return nil, ErrNotPDF
	}

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}

	info := &Info{Pages: reader.NumPage()}
	pages := min(maxScanPages, info.Pages)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if i == 1 {
			info.Title = findTitle(text)
		}
		if info.DOI == "" {
			info.DOI = findDOI(text)
		}
		if info.DOI != "" && info.Title != "" {
			break
		}
	}

	return info, nil
}

// findDOI finds a DOI in text.
func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		// Remove trailing punctuation
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

// isValidDOI performs basic validation on a DOI.
func isValidDOI(doi string) bool {
	if len(doi) < 10 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slashIdx := strings.Index(doi, "/")
	return slashIdx != -1 && slashIdx < len(doi)-1
}

// findTitle returns the first substantial line that isn't a running header.
func findTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !isHeaderLine(line) {
			return line
		}
	}
	return ""
}

// isHeaderLine checks if a line is likely a header/footer.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"):
		return true
	case strings.Contains(lower, "volume") && strings.Contains(lower, "issue"):
		return true
	case strings.Contains(lower, "copyright"):
		return true
	case strings.Contains(lower, "article") && strings.Contains(lower, "published"):
		return true
	}
	return false
}
