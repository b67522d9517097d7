package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/supervisor"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	sv *supervisor.Supervisor
}

// NewHandler creates a new Handler.
func NewHandler(sv *supervisor.Supervisor) *Handler {
	return &Handler{sv: sv}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Supports encoded slashes from OpenAPI clients (e.g. ideas%2Fnote).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps domain errors to HTTP statuses with a stable code.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorCode(codeNotFound, "not found"))
	case errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrInvalidTitle),
		errors.Is(err, apperr.ErrCapacityExceeded),
		errors.Is(err, apperr.ErrEmptyQuery),
		errors.Is(err, apperr.ErrInvalidFileName):
		writeJSON(w, http.StatusBadRequest, errorCode(codeBadRequest, err.Error()))
	case errors.Is(err, apperr.ErrParse), errors.Is(err, apperr.ErrMissingFrontMatter):
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorCode(codeParse, "content could not be parsed"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorCode(codeInternal, "internal error"))
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, c supervisor.Collection) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	f := supervisor.Filter{
		Tag:      q.Get("tag"),
		Category: q.Get("category"),
		Query:    q.Get("q"),
	}
	p, err := h.sv.List(r.Context(), c, f, page, limit)
	if err != nil {
		writeError(w, "list "+string(c), err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(p))
}

// ListArticles handles GET /api/articles.
//
//	@Summary		List published articles, newest first
//	@Tags			articles
//	@Produce		json
//	@Param			page		query		int		false	"Page number (1-based)"
//	@Param			limit		query		int		false	"Page size"
//	@Param			tag			query		string	false	"Filter by tag"
//	@Param			category	query		string	false	"Filter by category"
//	@Param			q			query		string	false	"Filter by search query"
//	@Success		200			{object}	ListResponse
//	@Router			/articles [get]
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, supervisor.Articles)
}

// ListNotes handles GET /api/notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, supervisor.Notes)
}

// GetArticle handles GET /api/articles/{slug}.
//
//	@Summary		Get a published article with its body
//	@Tags			articles
//	@Produce		json
//	@Param			slug	path		string	true	"Article slug"
//	@Success		200		{object}	ContentResponse
//	@Failure		404		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Router			/articles/{slug} [get]
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	c, err := h.sv.Article(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "get article", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a published note by "category/slug" or "slug"
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	ContentResponse
//	@Failure		404		{object}	errResponse
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorCode(codeBadRequest, "path is required"))
		return
	}
	c, err := h.sv.Note(path)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListVersions handles GET /api/articles/{slug}/versions.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.sv.Versions(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "list versions", err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func versionParam(r *http.Request) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
	return v, err == nil && v > 0
}

// GetVersion handles GET /api/articles/{slug}/versions/{version}.
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorCode(codeBadRequest, "invalid version"))
		return
	}
	rec, err := h.sv.Version(chi.URLParam(r, "slug"), version)
	if err != nil {
		writeError(w, "get version", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func decodeDraft(w http.ResponseWriter, r *http.Request) (ArticleRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorCode(codeBadRequest, "invalid JSON body"))
		return req, false
	}
	return req, true
}

// CreateArticle handles POST /api/articles.
//
//	@Summary		Create an article
//	@Tags			articles
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ArticleRequest	true	"Article to create"
//	@Success		201		{object}	WriteResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles [post]
func (h *Handler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDraft(w, r)
	if !ok {
		return
	}
	e, err := h.sv.CreateArticle(r.Context(), req)
	if err != nil {
		writeError(w, "create article", err)
		return
	}
	writeJSON(w, http.StatusCreated, WriteResponse{Slug: e.Slug, Version: e.Version, Message: "Article created"})
}

// UpdateArticle handles PUT /api/articles/{slug}.
//
//	@Summary		Update an article, keeping its author and date
//	@Tags			articles
//	@Accept			json
//	@Produce		json
//	@Param			slug	path		string			true	"Article slug"
//	@Param			body	body		ArticleRequest	true	"Updated article"
//	@Success		200		{object}	WriteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles/{slug} [put]
func (h *Handler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDraft(w, r)
	if !ok {
		return
	}
	e, err := h.sv.UpdateArticle(r.Context(), chi.URLParam(r, "slug"), req)
	if err != nil {
		writeError(w, "update article", err)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Slug: e.Slug, Version: e.Version, Message: "Article updated"})
}

// RestoreVersion handles POST /api/articles/{slug}/versions/{version}/restore.
func (h *Handler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorCode(codeBadRequest, "invalid version"))
		return
	}
	rec, err := h.sv.RestoreVersion(r.Context(), chi.URLParam(r, "slug"), version)
	if err != nil {
		writeError(w, "restore version", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func collectionParam(r *http.Request) supervisor.Collection {
	if c := r.URL.Query().Get("collection"); c != "" {
		return supervisor.Collection(c)
	}
	return supervisor.Articles
}

// Tags handles GET /api/tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.sv.Tags(collectionParam(r))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorCode(codeBadRequest, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// Categories handles GET /api/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.sv.Categories(collectionParam(r))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorCode(codeBadRequest, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across articles and notes
//	@Tags			search
//	@Produce		json
//	@Param			q			query		string	true	"Search query"
//	@Param			limit		query		int		false	"Max results"
//	@Param			highlights	query		bool	false	"Include highlight snippets (default true)"
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	highlights := true
	if v := q.Get("highlights"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			highlights = b
		}
	}
	res, err := h.sv.Search(r.Context(), q.Get("q"), limit, highlights)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: res.Hits, Degraded: res.Degraded})
}

// PopularSearches handles GET /api/search/popular.
func (h *Handler) PopularSearches(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	writeJSON(w, http.StatusOK, PopularResponse{Searches: h.sv.PopularSearches(limit)})
}
