package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/catalog"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
)

// Default paging for List.
const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// filterSearchLimit caps the hits consulted when a list is narrowed by a
// search query.
const filterSearchLimit = 1000

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Tag      string
	Category string
	Query    string
}

// Page is one window of a listing.
type Page struct {
	Items      []models.Entry `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

// SearchResult carries hits and whether they came from the linear
// fallback instead of the index.
type SearchResult struct {
	Hits     []search.Hit `json:"hits"`
	Degraded bool         `json:"degraded"`
}

// Article returns a published article with its body.
func (s *Supervisor) Article(slug string) (models.Content, error) {
	r := s.articles
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.cat.GetBySlug(slug)
	if !ok || e.Metadata.Draft {
		return models.Content{}, fmt.Errorf("supervisor: article %q: %w", slug, apperr.ErrNotFound)
	}
	return s.content(r, e)
}

// Note returns a published note addressed as "category/slug" or "slug".
func (s *Supervisor) Note(p string) (models.Content, error) {
	r := s.notes
	r.mu.RLock()
	defer r.mu.RUnlock()

	p = strings.Trim(strings.TrimSuffix(p, ".md"), "/")
	var found *models.Entry
	for e := range r.cat.Query(func(e *models.Entry) bool { return !e.Metadata.Draft && e.SlugWithCategory() == p }, 0, 1) {
		found = e
	}
	if found == nil {
		if e, ok := r.cat.GetBySlug(p); ok && !e.Metadata.Draft {
			found = e
		}
	}
	if found == nil {
		return models.Content{}, fmt.Errorf("supervisor: note %q: %w", p, apperr.ErrNotFound)
	}
	return s.content(r, found)
}

func (s *Supervisor) content(r *root, e *models.Entry) (models.Content, error) {
	body, err := r.cat.LoadBody(e)
	if err != nil {
		return models.Content{}, fmt.Errorf("supervisor: load %q: %w", e.Slug, err)
	}
	return models.Content{Slug: e.Slug, Metadata: e.Metadata.Clone(), Body: body}, nil
}

// List returns one page of published entries of c, newest first. A
// non-empty Query keeps entries the search index matches, or entries whose
// title or description contains it when search is unavailable.
func (s *Supervisor) List(ctx context.Context, c Collection, f Filter, page, limit int) (Page, error) {
	r, err := s.root(c)
	if err != nil {
		return Page{}, err
	}
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}

	pred, err := s.listPredicate(ctx, r, f)
	if err != nil {
		return Page{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := r.cat.Count(pred)
	items := make([]models.Entry, 0, limit)
	for e := range r.cat.Query(pred, (page-1)*limit, limit) {
		items = append(items, copyEntry(e))
	}
	return Page{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

func (s *Supervisor) listPredicate(ctx context.Context, r *root, f Filter) (catalog.Predicate, error) {
	var matched map[string]struct{}
	q := strings.TrimSpace(f.Query)
	if q != "" && s.index != nil {
		hits, err := s.index.Search(ctx, q, filterSearchLimit, false)
		if err != nil {
			s.logger.Warn("supervisor: list search failed, using substring match", slog.String("error", err.Error()))
		} else {
			matched = make(map[string]struct{}, len(hits))
			for _, h := range hits {
				if slug, ok := strings.CutPrefix(h.Slug, r.prefix); ok {
					matched[slug] = struct{}{}
				}
			}
		}
	}
	lower := strings.ToLower(q)

	return func(e *models.Entry) bool {
		if e.Metadata.Draft {
			return false
		}
		if f.Tag != "" && !e.Metadata.HasTag(f.Tag) {
			return false
		}
		if f.Category != "" && e.Metadata.CategoryName() != f.Category {
			return false
		}
		switch {
		case q == "":
			return true
		case matched != nil:
			_, ok := matched[e.Slug]
			return ok
		default:
			return matchesText(e, lower)
		}
	}, nil
}

func matchesText(e *models.Entry, lower string) bool {
	return strings.Contains(strings.ToLower(e.Metadata.Title), lower) ||
		strings.Contains(strings.ToLower(e.Metadata.Description), lower)
}

// Latest returns the n newest published articles. A non-positive n uses
// the configured count.
func (s *Supervisor) Latest(n int) []models.Entry {
	if n <= 0 {
		n = s.cfg.LatestCount
	}
	r := s.articles
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Entry, 0, max(n, 0))
	for e := range r.cat.Query(published, 0, n) {
		out = append(out, copyEntry(e))
	}
	return out
}

func published(e *models.Entry) bool { return !e.Metadata.Draft }

// Tags returns the sorted tag set of c.
func (s *Supervisor) Tags(c Collection) ([]string, error) {
	r, err := s.root(c)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cat.Tags(), nil
}

// Categories returns the sorted category set of c.
func (s *Supervisor) Categories(c Collection) ([]string, error) {
	r, err := s.root(c)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cat.Categories(), nil
}

// Search queries the index, or scans titles and descriptions of both
// catalogs when no index is attached or the index fails.
func (s *Supervisor) Search(ctx context.Context, q string, limit int, highlights bool) (SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return SearchResult{}, apperr.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = search.DefaultLimit
	}

	if s.index != nil {
		hits, err := s.index.Search(ctx, q, limit, highlights)
		if err == nil {
			return SearchResult{Hits: hits}, nil
		}
		if errors.Is(err, apperr.ErrEmptyQuery) {
			return SearchResult{}, err
		}
		s.logger.Warn("supervisor: search index failed, scanning catalogs", slog.String("error", err.Error()))
	} else {
		s.stats.Record(q)
	}
	return SearchResult{Hits: s.scan(q, limit, highlights), Degraded: true}, nil
}

// scan matches q against the title and description of every published
// entry, articles first.
func (s *Supervisor) scan(q string, limit int, highlights bool) []search.Hit {
	lower := strings.ToLower(q)
	hits := []search.Hit{}
	for _, r := range s.roots() {
		r.mu.RLock()
		for e := range r.cat.Query(published, 0, 0) {
			if len(hits) >= limit {
				break
			}
			if !matchesText(e, lower) {
				continue
			}
			h := search.Hit{
				Slug:        r.prefix + e.Slug,
				Title:       e.Metadata.Title,
				Description: e.Metadata.Description,
				Category:    e.Metadata.CategoryName(),
				Score:       1,
			}
			if highlights {
				h.Highlights = search.Highlights(q, h.Title, h.Description)
			}
			hits = append(hits, h)
		}
		r.mu.RUnlock()
	}
	return hits
}

// PopularSearches returns the k most frequent queries.
func (s *Supervisor) PopularSearches(k int) []search.QueryCount {
	return s.stats.Top(k)
}

// Reindex rebuilds the search index from both catalogs.
func (s *Supervisor) Reindex(ctx context.Context) error {
	if s.index == nil {
		return apperr.ErrSearchDisabled
	}
	var docs []models.Document
	for _, r := range s.roots() {
		r.mu.RLock()
		snap := r.cat.SnapshotFull()
		r.mu.RUnlock()
		for _, c := range snap {
			docs = append(docs, search.NewDocument(c, r.prefix, s.cfg.ContentLimit))
		}
	}
	if err := s.index.Rebuild(ctx, docs, s.cfg.HeapSize); err != nil {
		return fmt.Errorf("supervisor: reindex: %w", err)
	}
	s.logger.Info("supervisor: search index rebuilt", slog.Int("documents", len(docs)))
	return nil
}
