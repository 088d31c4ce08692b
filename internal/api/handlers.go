package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/matsen/pubsync/internal/export"
	"github.com/matsen/pubsync/internal/manual"
	"github.com/matsen/pubsync/internal/pubsync"
	"github.com/matsen/pubsync/internal/reference"
	"github.com/matsen/pubsync/internal/sitecache"
	"github.com/matsen/pubsync/internal/storage"
)

// Handler holds the route handlers.
type Handler struct {
	sync    *pubsync.Service
	records *manual.Manager
	store   storage.Store
	site    *sitecache.Cache
	log     zerolog.Logger
}

type commitRequest struct {
	ExternalID string                `json:"external_id"`
	Selected   []reference.RawRecord `json:"selected"`
}

type resyncRequest struct {
	ExternalID string `json:"external_id"`
}

type deleteManyRequest struct {
	IDs []string `json:"ids"`
}

// externalID falls back to the identifier used by the owner's last sync.
func (h *Handler) externalID(r *http.Request, given string) (string, error) {
	if id := strings.TrimSpace(given); id != "" {
		return id, nil
	}
	owner, err := h.store.GetOwner(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		return "", err
	}
	return owner.ExternalID, nil
}

// Preview handles GET /api/sync/preview?external_id=.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	extID, err := h.externalID(r, r.URL.Query().Get("external_id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.sync.Preview(r.Context(), OwnerFromContext(r.Context()), extID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, res)
}

// Commit handles POST /api/sync/commit.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	extID, err := h.externalID(r, req.ExternalID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.sync.Commit(r.Context(), OwnerFromContext(r.Context()), extID, req.Selected)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, res)
}

// Resync handles POST /api/sync/resync.
func (h *Handler) Resync(w http.ResponseWriter, r *http.Request) {
	var req resyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	extID, err := h.externalID(r, req.ExternalID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.sync.FullResync(r.Context(), OwnerFromContext(r.Context()), extID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, res)
}

// ListPublications handles GET /api/publications?kind=&q=&limit=.
func (h *Handler) ListPublications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := manual.ListOptions{
		Kind:  reference.SourceKind(q.Get("kind")),
		Query: strings.TrimSpace(q.Get("q")),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, h.log, validationErr("limit must be a non-negative integer"))
			return
		}
		opts.Limit = n
	}

	recs, err := h.records.List(r.Context(), OwnerFromContext(r.Context()), opts)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]any{
		"publications": recs,
		"total":        len(recs),
	})
}

// CreatePublication handles POST /api/publications.
func (h *Handler) CreatePublication(w http.ResponseWriter, r *http.Request) {
	var fields reference.Fields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rec, err := h.records.Create(r.Context(), OwnerFromContext(r.Context()), fields)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, rec)
}

// GetPublication handles GET /api/publications/{id}.
func (h *Handler) GetPublication(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, rec)
}

// UpdatePublication handles PATCH /api/publications/{id}.
func (h *Handler) UpdatePublication(w http.ResponseWriter, r *http.Request) {
	var patch reference.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rec, err := h.records.Update(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, rec)
}

// DeletePublication handles DELETE /api/publications/{id}.
func (h *Handler) DeletePublication(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Delete(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePublications handles POST /api/publications/delete.
// Per-item failures are reported in the body; the request itself succeeds.
func (h *Handler) DeletePublications(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, h.log, validationErr("ids: cannot be blank"))
		return
	}
	writeJSON(w, h.log, http.StatusOK, h.records.DeleteMany(r.Context(), OwnerFromContext(r.Context()), req.IDs))
}

// Owner handles GET /api/owner.
func (h *Handler) Owner(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerFromContext(r.Context())
	owner, err := h.store.GetOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	owner.OwnerID = ownerID
	writeJSON(w, h.log, http.StatusOK, owner)
}

// SitePublications handles GET /sites/{ownerID}/publications.
func (h *Handler) SitePublications(w http.ResponseWriter, r *http.Request) {
	recs, err := h.site.Publications(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]any{
		"publications": recs,
	})
}

// SiteBibTeX handles GET /sites/{ownerID}/publications.bib.
func (h *Handler) SiteBibTeX(w http.ResponseWriter, r *http.Request) {
	recs, err := h.site.Publications(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-bibtex; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, export.ToBibTeXList(recs)); err != nil {
		h.log.Warn().Err(err).Msg("writing bibtex failed")
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "ok"})
}
