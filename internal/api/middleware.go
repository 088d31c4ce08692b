// Package api exposes the sync and record operations over HTTP using chi.
package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/matsen/pubsync/internal/apperr"
	"github.com/matsen/pubsync/internal/config"
)

// OwnerHeader carries the caller's owner id when authentication is disabled.
const OwnerHeader = "X-Owner-ID"

const kindUnauthenticated = "unauthenticated"

type contextKey string

const ownerKey contextKey = "owner_id"

// OwnerFromContext returns the authenticated owner id set by the auth middleware.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

// WithOwner returns a context carrying ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}

// Authenticator resolves the owner of a request.
type Authenticator struct {
	enabled bool
	tokens  []config.Token
}

// NewAuthenticator builds an Authenticator from the auth config section.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{enabled: cfg.AuthEnabled(), tokens: cfg.Tokens}
}

// Owner returns the owner id for r, or "" if the request is not authenticated.
// In disabled mode the X-Owner-ID header is trusted as is.
func (a *Authenticator) Owner(r *http.Request) string {
	if !a.enabled {
		return strings.TrimSpace(r.Header.Get(OwnerHeader))
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	secret := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if secret == "" {
		return ""
	}
	for _, t := range a.tokens {
		if bcrypt.CompareHashAndPassword([]byte(t.TokenHash), []byte(secret)) == nil {
			return t.OwnerID
		}
	}
	return ""
}

// AuthMiddleware rejects requests without an owner identity and stores the
// owner id in the request context otherwise.
func AuthMiddleware(a *Authenticator, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := a.Owner(r)
			if owner == "" {
				writeJSON(w, log, http.StatusUnauthorized, errResponse{
					Error:   kindUnauthenticated,
					Message: "missing or invalid credentials",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestLogger logs one line per request: info for 1xx-3xx, warn for 4xx,
// error for 5xx.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			var ev *zerolog.Event
			switch {
			case wrapped.statusCode >= 500:
				ev = log.Error()
			case wrapped.statusCode >= 400:
				ev = log.Warn()
			default:
				ev = log.Info()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Int64("bytes", wrapped.written).
				Str("remote_addr", r.RemoteAddr).
				Msg("http request")
		})
	}
}

// Recovery turns a handler panic into a logged 500.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error().
						Interface("panic", rec).
						Str("method", r.Method).
						Str("url", r.URL.String()).
						Bytes("stack", debug.Stack()).
						Msg("panic recovered")
					writeJSON(w, log, http.StatusInternalServerError, errResponse{
						Error:   apperr.KindInternal,
						Message: http.StatusText(http.StatusInternalServerError),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
