package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/matsen/pubsync/internal/apperr"
	"github.com/matsen/pubsync/internal/provider"
	"github.com/matsen/pubsync/internal/reference"
)

// Output formatting constants.
const (
	ListTitleMaxLen   = 60 // Used in list and preview output
	DetailTitleMaxLen = 70 // Used in single-record output
	MaxAuthorsInList  = 40 // Author string truncation in lists

	kindFetchFailure = "fetch_failure"
	kindCLI          = "cli_error"
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...any) {
	fmt.Printf(format, args...)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...any) {
	emitError(code, kindCLI, fmt.Sprintf(format, args...))
}

// exitWithAppError reports a service error with its taxonomy kind and exits
// with the matching code.
func exitWithAppError(err error) {
	code, kind := classify(err)
	emitError(code, kind, err.Error())
}

func emitError(code int, kind, msg string) {
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: kind, Message: msg})
	}
	os.Exit(code)
}

// classify maps an error onto an exit code and kind name.
func classify(err error) (int, string) {
	if provider.IsFetchFailure(err) {
		return ExitFetchError, kindFetchFailure
	}
	kind := apperr.Kind(err)
	switch kind {
	case apperr.KindValidation, apperr.KindConflict:
		return ExitDataError, kind
	case apperr.KindNotFound:
		return ExitNotFound, kind
	case apperr.KindNotAuthorized:
		return ExitNotAuthorized, kind
	case apperr.KindStore:
		return ExitStoreError, kind
	}
	return ExitError, kind
}

// truncateString shortens s to max runes, adding an ellipsis.
func truncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// printRecordLine prints one record as a compact list line.
func printRecordLine(r reference.Record) {
	marker := "M"
	if r.IsExternal() {
		marker = "E"
	}
	outputHuman("[%s] %s  %d  %s\n", marker, r.ID, r.Year, truncateString(r.Title, ListTitleMaxLen))
	outputHuman("      %s\n", truncateString(r.Authors, MaxAuthorsInList))
}

// printRecordDetail prints every populated field of a record.
func printRecordDetail(r reference.Record) {
	outputHuman("%s\n", truncateString(r.Title, DetailTitleMaxLen))
	outputHuman("  id:       %s\n", r.ID)
	outputHuman("  authors:  %s\n", r.Authors)
	outputHuman("  year:     %d\n", r.Year)
	outputHuman("  type:     %s\n", r.Type)
	if r.Journal != "" {
		outputHuman("  journal:  %s\n", r.Journal)
	}
	if r.DOI != "" {
		outputHuman("  doi:      %s\n", r.DOI)
	}
	if r.URL != "" {
		outputHuman("  url:      %s\n", r.URL)
	}
	outputHuman("  source:   %s\n", sourceLabel(r))
	if r.AttachmentURL != "" {
		outputHuman("  document: %s\n", r.AttachmentURL)
	}
}

func sourceLabel(r reference.Record) string {
	if r.IsExternal() {
		return fmt.Sprintf("external (%s)", r.ExternalSourceID)
	}
	return string(r.SourceKind)
}

// printCandidate prints one preview candidate with its duplicate flag.
func printCandidate(i int, c reference.Candidate) {
	status := "new"
	if c.AlreadyExists {
		status = "have (" + c.Match + ")"
	}
	outputHuman("%3d. %-12s %d  %s\n", i+1, status, c.Year, truncateString(c.Title, ListTitleMaxLen))
	if c.DOI != "" {
		outputHuman("     doi: %s\n", c.DOI)
	}
}
