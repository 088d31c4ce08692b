package provider

import (
	"errors"
	"fmt"
)

// Common errors returned by the provider client. Every one of them is a fetch
// failure: callers can test the whole family with IsFetchFailure.
var (
	// ErrFetchFailure is the umbrella for any failure to obtain records.
	ErrFetchFailure = errors.New("fetch failure")

	// ErrNotFound indicates the provider has no researcher for the identifier.
	ErrNotFound = fmt.Errorf("%w: researcher not found", ErrFetchFailure)

	// ErrAuthError indicates a missing or invalid provider API key.
	ErrAuthError = fmt.Errorf("%w: provider authentication error", ErrFetchFailure)

	// ErrRateLimited indicates the provider rejected the request rate.
	ErrRateLimited = fmt.Errorf("%w: provider rate limit exceeded", ErrFetchFailure)

	// ErrNetworkError indicates a network connectivity issue.
	ErrNetworkError = fmt.Errorf("%w: network error communicating with provider", ErrFetchFailure)

	// ErrInvalidResponse indicates a malformed provider response.
	ErrInvalidResponse = fmt.Errorf("%w: invalid response from provider", ErrFetchFailure)
)

// APIError represents an unexpected HTTP status from the provider.
type APIError struct {
	StatusCode int
	Message    string
	ExternalID string
}

func (e *APIError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("provider API error (status %d): %s (researcher: %s)", e.StatusCode, e.Message, e.ExternalID)
	}
	return fmt.Sprintf("provider API error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap places every APIError in the fetch failure family.
func (e *APIError) Unwrap() error {
	return ErrFetchFailure
}

// IsFetchFailure returns true if err came from the provider.
func IsFetchFailure(err error) bool {
	return errors.Is(err, ErrFetchFailure)
}

// IsNotFound returns true if the error indicates an unknown researcher.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
