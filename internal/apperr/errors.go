// Package apperr defines the error kinds shared by the sync and record services.
package apperr

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotAuthorized = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrStore         = errors.New("store failure")
)

// Kind names returned by Kind.
const (
	KindValidation    = "validation_failure"
	KindNotAuthorized = "not_authorized"
	KindNotFound      = "not_found"
	KindConflict      = "conflict"
	KindStore         = "store_failure"
	KindInternal      = "internal"
)

// Kind classifies err into one of the exported kind names.
// Errors that match none of the sentinels are reported as internal.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotAuthorized):
		return KindNotAuthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrStore):
		return KindStore
	}
	return KindInternal
}
