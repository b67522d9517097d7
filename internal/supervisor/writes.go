package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/archive"
	"github.com/starford/quire/internal/frontmatter"
	"github.com/starford/quire/internal/models"
)

// Draft is the input of an explicit article write. Nil optional fields
// default to empty on create and to the existing value on update.
type Draft struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Description *string  `json:"description,omitempty"`
	Draft       *bool    `json:"draft,omitempty"`
}

// Validate checks that title and content are not blank and the category
// is a relative path.
func (d Draft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required, validation.By(notBlank)),
		validation.Field(&d.Content, validation.Required, validation.By(notBlank)),
		validation.Field(&d.Category, validation.By(relativeDir)),
	)
}

func notBlank(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

func relativeDir(v any) error {
	p, _ := v.(*string)
	if p == nil || *p == "" {
		return nil
	}
	c := *p
	if strings.HasPrefix(c, "/") || strings.Contains(c, `\`) || path.Clean(c) != c || c == ".." || strings.HasPrefix(c, "../") {
		return errors.New("must be a clean relative path")
	}
	return nil
}

// CreateArticle writes a new article under a slug derived from its title
// and returns the catalog entry.
func (s *Supervisor) CreateArticle(_ context.Context, d Draft) (models.Entry, error) {
	if err := d.Validate(); err != nil {
		return models.Entry{}, fmt.Errorf("supervisor: create article: %w: %w", apperr.ErrInvalidInput, err)
	}
	r := s.articles
	now := time.Now().UTC()

	r.mu.Lock()
	slug, err := r.cat.UniqueSlug(d.Title)
	if err != nil {
		r.mu.Unlock()
		return models.Entry{}, fmt.Errorf("supervisor: create article: %w", err)
	}
	meta := models.Metadata{
		Title:       d.Title,
		Author:      archive.Editor,
		Date:        now,
		Description: deref(d.Description, ""),
		Tags:        nonNil(d.Tags),
		Draft:       deref(d.Draft, false),
		Category:    nonEmpty(d.Category),
	}
	e, err := s.writeArticle(r, slug, meta, d.Content, "")
	r.mu.Unlock()
	if err != nil {
		return models.Entry{}, fmt.Errorf("supervisor: create article: %w", err)
	}

	s.logger.Info("supervisor: article created", slog.String("slug", slug))
	s.invalidate(Invalidation{Collection: Articles, Changes: 1, Slugs: []string{slug}})
	return e, nil
}

// UpdateArticle rewrites an existing article. Author and date are kept and
// last_updated is set to now.
func (s *Supervisor) UpdateArticle(_ context.Context, slug string, d Draft) (models.Entry, error) {
	if err := d.Validate(); err != nil {
		return models.Entry{}, fmt.Errorf("supervisor: update article: %w: %w", apperr.ErrInvalidInput, err)
	}
	r := s.articles

	r.mu.Lock()
	existing, ok := r.cat.GetBySlug(slug)
	if !ok {
		r.mu.Unlock()
		return models.Entry{}, fmt.Errorf("supervisor: article %q: %w", slug, apperr.ErrNotFound)
	}
	prev := existing.Metadata.Clone()
	updated := time.Now().UTC().Format(time.RFC3339)
	meta := models.Metadata{
		Title:       d.Title,
		Author:      prev.Author,
		Date:        prev.Date,
		Description: deref(d.Description, prev.Description),
		Tags:        prev.Tags,
		Draft:       deref(d.Draft, prev.Draft),
		Category:    prev.Category,
		LastUpdated: &updated,
	}
	if d.Tags != nil {
		meta.Tags = d.Tags
	}
	if d.Category != nil {
		meta.Category = nonEmpty(d.Category)
	}
	e, err := s.writeArticle(r, slug, meta, d.Content, existing.FilePath)
	r.mu.Unlock()
	if err != nil {
		return models.Entry{}, fmt.Errorf("supervisor: update article: %w", err)
	}

	s.logger.Info("supervisor: article updated", slog.String("slug", slug))
	s.invalidate(Invalidation{Collection: Articles, Changes: 1, Slugs: []string{slug}})
	return e, nil
}

// RestoreVersion writes the body of a stored snapshot back under the
// article's current front matter and records it as a new snapshot.
func (s *Supervisor) RestoreVersion(_ context.Context, slug string, version int64) (models.VersionRecord, error) {
	r := s.articles

	r.mu.Lock()
	existing, ok := r.cat.GetBySlug(slug)
	if !ok {
		r.mu.Unlock()
		return models.VersionRecord{}, fmt.Errorf("supervisor: article %q: %w", slug, apperr.ErrNotFound)
	}
	rec, err := s.archive.Get(slug, version)
	if err != nil {
		r.mu.Unlock()
		return models.VersionRecord{}, fmt.Errorf("supervisor: restore %q: %w", slug, err)
	}
	_, err = s.writeArticle(r, slug, existing.Metadata.Clone(), rec.Content, existing.FilePath)
	r.mu.Unlock()
	if err != nil {
		return models.VersionRecord{}, fmt.Errorf("supervisor: restore %q: %w", slug, err)
	}

	s.logger.Info("supervisor: version restored", slog.String("slug", slug), slog.Int64("version", version))
	s.invalidate(Invalidation{Collection: Articles, Changes: 1, Slugs: []string{slug}})
	rec.Timestamp = time.Now().UTC()
	return rec, nil
}

// Versions lists the stored snapshots of an article, oldest first.
func (s *Supervisor) Versions(slug string) ([]models.VersionRecord, error) {
	if _, err := s.liveArticle(slug); err != nil {
		return nil, err
	}
	return s.archive.List(slug)
}

// Version returns one stored snapshot of an article.
func (s *Supervisor) Version(slug string, version int64) (models.VersionRecord, error) {
	if _, err := s.liveArticle(slug); err != nil {
		return models.VersionRecord{}, err
	}
	return s.archive.Get(slug, version)
}

func (s *Supervisor) liveArticle(slug string) (models.Entry, error) {
	s.articles.mu.RLock()
	defer s.articles.mu.RUnlock()
	e, ok := s.articles.cat.GetBySlug(slug)
	if !ok {
		return models.Entry{}, fmt.Errorf("supervisor: article %q: %w", slug, apperr.ErrNotFound)
	}
	return copyEntry(e), nil
}

// writeArticle renders and atomically writes an article, snapshots its
// body and applies it to the catalog. oldPath, when set and different from
// the new location, is deleted. The caller holds r.mu for writing.
func (s *Supervisor) writeArticle(r *root, slug string, meta models.Metadata, body, oldPath string) (models.Entry, error) {
	data, err := frontmatter.Render(meta, body)
	if err != nil {
		return models.Entry{}, err
	}
	rel := slug + ".md"
	if c := meta.CategoryName(); c != "" && r.cfg.Nested {
		rel = c + "/" + rel
	}
	store := r.cat.Store()
	if err := store.Write(rel, data); err != nil {
		return models.Entry{}, err
	}
	abs, err := store.Abs(rel)
	if err != nil {
		return models.Entry{}, err
	}

	if oldPath != "" && oldPath != abs {
		if oldRel, err := store.Rel(oldPath); err == nil {
			if err := store.Delete(oldRel); err != nil {
				s.logger.Warn("supervisor: remove old article file failed",
					slog.String("path", oldPath),
					slog.String("error", err.Error()))
			}
		}
		r.cat.Forget(oldPath)
	}

	// the snapshot is counted in the entry's version, as on a fresh build
	if _, err := s.archive.Save(slug, abs); err != nil {
		return models.Entry{}, err
	}
	if err := r.cat.UpdateSingle(abs); err != nil {
		return models.Entry{}, err
	}

	e, ok := r.cat.GetBySlug(slug)
	if !ok {
		return models.Entry{}, fmt.Errorf("article %q missing after write: %w", slug, apperr.ErrNotFound)
	}
	doc, err := s.document(r, e)
	if err != nil {
		return models.Entry{}, err
	}
	s.enqueue(upsertJob(doc))
	return copyEntry(e), nil
}

func copyEntry(e *models.Entry) models.Entry {
	out := *e
	out.Metadata = e.Metadata.Clone()
	return out
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func nonEmpty(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	c := *p
	return &c
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
