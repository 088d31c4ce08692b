package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/matsen/pubsync/internal/config"
	"github.com/matsen/pubsync/internal/manual"
	"github.com/matsen/pubsync/internal/pubsync"
	"github.com/matsen/pubsync/internal/sitecache"
	"github.com/matsen/pubsync/internal/storage"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Sync        *pubsync.Service
	Records     *manual.Manager
	Store       storage.Store
	Site        *sitecache.Cache
	Auth        *Authenticator
	Attachments config.AttachmentsConfig
	Log         zerolog.Logger
}

// NewRouter creates a chi router with every route mounted.
// Owner routes live under /api behind the auth middleware; the public site
// list, attachments, health and metrics are unauthenticated.
func NewRouter(d Deps) chi.Router {
	h := &Handler{
		sync:    d.Sync,
		records: d.Records,
		store:   d.Store,
		site:    d.Site,
		log:     d.Log,
	}
	ah := &AttachmentHandler{
		dir:      d.Attachments.Dir,
		maxBytes: d.Attachments.MaxBytes,
		records:  d.Records,
		log:      d.Log,
	}

	r := chi.NewRouter()
	r.Use(Recovery(d.Log))
	r.Use(RequestLogger(d.Log))

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/sites/{ownerID}/publications", h.SitePublications)
	r.Get("/sites/{ownerID}/publications.bib", h.SiteBibTeX)
	r.Get("/attachments/{name}", ah.ServeFile)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(d.Auth, d.Log))

		r.Get("/owner", h.Owner)

		r.Get("/sync/preview", h.Preview)
		r.Post("/sync/commit", h.Commit)
		r.Post("/sync/resync", h.Resync)

		r.Get("/publications", h.ListPublications)
		r.Post("/publications", h.CreatePublication)
		r.Post("/publications/delete", h.DeletePublications)
		r.Get("/publications/{id}", h.GetPublication)
		r.Patch("/publications/{id}", h.UpdatePublication)
		r.Delete("/publications/{id}", h.DeletePublication)
		r.Post("/publications/{id}/attachment", ah.Upload)
	})

	return r
}
