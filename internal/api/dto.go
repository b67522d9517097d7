package api

import (
	"time"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/supervisor"
)

// ArticleRequest is the request body for creating or updating an article.
type ArticleRequest = supervisor.Draft

// EntryItem is a lightweight item in a list response.
type EntryItem struct {
	Slug      string          `json:"slug" example:"hello-world" validate:"required"`
	Metadata  models.Metadata `json:"metadata" validate:"required"`
	Version   int             `json:"version" example:"2"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ListResponse wraps a page of entries.
type ListResponse struct {
	Items      []EntryItem `json:"items" validate:"required"`
	Total      int         `json:"total" example:"42" validate:"required"`
	Page       int         `json:"page" example:"1" validate:"required"`
	Limit      int         `json:"limit" example:"10" validate:"required"`
	TotalPages int         `json:"total_pages" example:"5" validate:"required"`
}

// ContentResponse is a single article or note with its body.
type ContentResponse = models.Content

// SearchResponse wraps search results.
type SearchResponse struct {
	Results  []search.Hit `json:"results" validate:"required"`
	Degraded bool         `json:"degraded"`
}

// PopularResponse wraps the most frequent queries.
type PopularResponse struct {
	Searches []search.QueryCount `json:"searches" validate:"required"`
}

// WriteResponse is returned after an explicit article write.
type WriteResponse struct {
	Slug    string `json:"slug" example:"hello-world" validate:"required"`
	Version int    `json:"version" example:"2"`
	Message string `json:"message" example:"Article created"`
}

func newListResponse(p supervisor.Page) ListResponse {
	items := make([]EntryItem, len(p.Items))
	for i, e := range p.Items {
		items[i] = EntryItem{Slug: e.Slug, Metadata: e.Metadata, Version: e.Version, UpdatedAt: e.UpdatedAt}
	}
	return ListResponse{Items: items, Total: p.Total, Page: p.Page, Limit: p.Limit, TotalPages: p.TotalPages}
}
