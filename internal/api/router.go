package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// attachmentsDir is the absolute attachments root used for downloads.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler, attachmentsDir string) chi.Router {
	h := NewHandler(svc)
	ah := NewAttachmentHandler(svc, attachmentsDir)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Get("/notes/{id}/backlinks", h.Backlinks)

	// Search.
	r.Get("/search", h.Search)
	r.Get("/suggest", h.Suggest)

	// Tags.
	r.Get("/tags", h.Tags)

	// Index maintenance.
	r.Post("/rebuild", h.Rebuild)

	// Attachments.
	r.Post("/notes/{id}/attachments", ah.Upload)
	r.Get("/attachments/{noteID}/{filename}", ah.ServeFile)

	// Index lifecycle events over SSE (protected by the same auth).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
