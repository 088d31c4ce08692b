package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/matsen/pubsync/internal/manual"
	"github.com/matsen/pubsync/internal/pdf"
	"github.com/matsen/pubsync/internal/reference"
)

// attachmentPrefix is the URL path attachments are served under.
const attachmentPrefix = "/attachments/"

// multipartSlack covers form boundaries and headers around the file part.
const multipartSlack = 1 << 20

// AttachmentHandler accepts PDF uploads and serves stored documents.
type AttachmentHandler struct {
	dir      string
	maxBytes int64
	records  *manual.Manager
	log      zerolog.Logger
}

type uploadResponse struct {
	Publication *reference.Record `json:"publication"`
	Document    *pdf.Info         `json:"document"`
	Size        int64             `json:"size"`
	// DOIMismatch is set when the document carries a DOI different from the record's.
	DOIMismatch bool `json:"doi_mismatch,omitempty"`
}

// safeName validates that name is a plain file name and returns its path
// under the attachments directory.
func (h *AttachmentHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", errors.New("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(h.dir, cleaned)
	if !strings.HasPrefix(abs, filepath.Clean(h.dir)+string(os.PathSeparator)) {
		return "", errors.New("path escapes attachments directory")
	}
	return abs, nil
}

// ServeFile handles GET /attachments/{name}.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safeName(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, h.log, validationErr(err.Error()))
		return
	}
	if _, statErr := os.Stat(abs); statErr != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/publications/{id}/attachment (multipart, field "file").
// The document is inspected but never changes the record's identity fields.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	rec, err := h.records.Get(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartSlack)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeError(w, r, h.log, validationErr("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.log, validationErr("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		writeError(w, r, h.log, validationErr(fmt.Sprintf("file exceeds %d bytes", h.maxBytes)))
		return
	}

	info, err := pdf.Inspect(file, header.Size)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	name := uuid.NewString() + ".pdf"
	abs, err := h.safeName(name)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	written, err := h.save(abs, file)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	updated, err := h.records.AttachDocument(r.Context(), ownerID, rec.ID, attachmentPrefix+name)
	if err != nil {
		_ = os.Remove(abs)
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, h.log, http.StatusCreated, uploadResponse{
		Publication: updated,
		Document:    info,
		Size:        written,
		DOIMismatch: info.DOI != "" && rec.DOI != "" && !strings.EqualFold(info.DOI, rec.DOI),
	})
}

func (h *AttachmentHandler) save(abs string, src io.ReadSeeker) (int64, error) {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating attachments dir: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding upload: %w", err)
	}

	dst, err := os.Create(abs)
	if err != nil {
		return 0, fmt.Errorf("creating attachment: %w", err)
	}
	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(abs)
		return 0, fmt.Errorf("writing attachment: %w", err)
	}
	return written, nil
}
