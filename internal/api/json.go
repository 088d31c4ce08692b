package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/matsen/pubsync/internal/apperr"
	"github.com/matsen/pubsync/internal/provider"
)

// kindFetch is reported for provider failures, which apperr does not classify.
const kindFetch = "fetch_failure"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 10 << 20

type errResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("json encode failed")
	}
}

// writeError maps err onto a status code and the {"error","message"} body.
// Server-side failures are logged; their message is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status, kind := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		msg = http.StatusText(status)
	}
	writeJSON(w, log, status, errResponse{Error: kind, Message: msg})
}

func classify(err error) (int, string) {
	if provider.IsFetchFailure(err) {
		return http.StatusBadGateway, kindFetch
	}
	kind := apperr.Kind(err)
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest, kind
	case apperr.KindNotAuthorized:
		return http.StatusForbidden, kind
	case apperr.KindNotFound:
		return http.StatusNotFound, kind
	case apperr.KindConflict:
		return http.StatusConflict, kind
	}
	return http.StatusInternalServerError, kind
}

// decodeJSON reads a JSON body into v. Malformed bodies are validation failures.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return validationErr("request body too large")
		}
		return validationErr("invalid JSON body: " + err.Error())
	}
	return nil
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, msg)
}
