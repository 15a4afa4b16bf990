package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ostberg/quire/internal/sessionservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *sessionservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	sh := NewSnapshotHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Open documents.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.CreateDocument)
	r.Get("/documents/*", h.GetDocument)
	r.Put("/documents/*", h.UpdateBuffer)
	r.Delete("/documents/*", h.CloseDocument)

	// Session lifecycle. chi wildcards must be terminal, so each verb gets
	// its own prefix.
	r.Post("/open/*", h.OpenDocument)
	r.Post("/save/*", h.SaveDocument)
	r.Post("/touch/*", h.MarkDirty)

	// Workspace files.
	r.Get("/files", h.ListFiles)
	r.Delete("/files/*", h.RemoveFile)
	r.Post("/move", h.MoveFile)

	// Backups.
	r.Get("/backups/*", h.ListBackups)
	r.Post("/restore/*", h.RestoreBackup)
	r.Post("/prune/*", h.PruneBackups)
	r.Get("/snapshots/*", sh.Download)

	// Search over last-saved content.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
