package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/supervisor"
)

// NewRouter creates a chi router with all API routes mounted. Reads are
// public; writes require a Bearer token when authEnabled is set.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(sv *supervisor.Supervisor, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(sv)

	r := chi.NewRouter()

	// Articles.
	r.Get("/articles", h.ListArticles)
	r.Get("/articles/{slug}", h.GetArticle)
	r.Get("/articles/{slug}/versions", h.ListVersions)
	r.Get("/articles/{slug}/versions/{version}", h.GetVersion)

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/*", h.GetNote)

	// Taxonomy.
	r.Get("/tags", h.Tags)
	r.Get("/categories", h.Categories)

	// Search.
	r.Get("/search", h.Search)
	r.Get("/search/popular", h.PopularSearches)

	// Explicit writes.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))
		r.Post("/articles", h.CreateArticle)
		r.Put("/articles/{slug}", h.UpdateArticle)
		r.Post("/articles/{slug}/versions/{version}/restore", h.RestoreVersion)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
