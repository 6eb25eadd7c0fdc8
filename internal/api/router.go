package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lattice/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/spaces", h.ListSpaces)

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Route("/notes/{id}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Put("/", h.UpdateNote)
		r.Patch("/", h.EditNote)
		r.Delete("/", h.DeleteNote)
		r.Post("/select", h.SelectNote)
		r.Get("/outline", h.Outline)
	})

	// Links.
	r.Get("/links", h.ListLinks)
	r.Post("/links", h.CreateLink)

	r.Get("/search", h.Search)
	r.Get("/graph", h.Graph)

	// Suggestions for the active note.
	r.Get("/suggestions", h.Suggestions)
	r.Post("/suggestions/links/{id}/accept", h.AcceptLink)
	r.Post("/suggestions/notes/accept", h.AcceptNote)

	// Import.
	r.Post("/import", h.Import)
	r.Post("/import/drive/{fileId}", h.ImportDrive)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
