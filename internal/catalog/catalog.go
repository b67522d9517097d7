// Package catalog keeps the in-memory view of one content root: every
// Markdown entry ordered by date, its slug index, the tag and category
// sets, and the caches used to detect and serve changes.
//
// A Catalog is not safe for concurrent mutation. Callers guard it with a
// sync.RWMutex: mutating methods need the write lock, lookups and LoadBody
// only the read lock. The body cache is internally synchronised.
package catalog

import (
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

// DefaultBodyCacheSize bounds the body cache when no option overrides it.
const DefaultBodyCacheSize = 1000

// VersionCounter reports how many snapshots the archive holds for a slug.
type VersionCounter interface {
	Count(slug string) (int, error)
}

// Predicate selects entries in Query and Count.
type Predicate func(*models.Entry) bool

// All admits every entry.
func All(*models.Entry) bool { return true }

// Catalog is the entry set of one content root.
type Catalog struct {
	store  *storage.FS
	nested bool

	entries    []*models.Entry
	slugIndex  map[string]int
	tags       map[string]struct{}
	categories map[string]struct{}
	mtimes     map[string]time.Time
	bodies     *expirable.LRU[string, string]

	versions VersionCounter
	logger   *slog.Logger

	cacheSize int
	cacheTTL  time.Duration
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used for per-file warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBodyCache bounds the body cache. A zero size leaves it unbounded and
// a zero ttl disables expiry.
func WithBodyCache(size int, ttl time.Duration) Option {
	return func(c *Catalog) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// WithVersions sets the archive consulted for entry version numbers.
func WithVersions(v VersionCounter) Option {
	return func(c *Catalog) { c.versions = v }
}

// Build scans root and parses every Markdown file in it. With nested set
// the whole tree is walked and each file's directory becomes its category.
// Any unreadable or unparsable file fails the build.
func Build(root string, nested bool, opts ...Option) (*Catalog, error) {
	store, err := storage.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("catalog: build: %w", err)
	}
	c := &Catalog{
		store:      store,
		nested:     nested,
		slugIndex:  make(map[string]int),
		tags:       make(map[string]struct{}),
		categories: make(map[string]struct{}),
		mtimes:     make(map[string]time.Time),
		logger:     slog.Default(),
		cacheSize:  DefaultBodyCacheSize,
	}
	for _, o := range opts {
		o(c)
	}
	c.bodies = expirable.NewLRU[string, string](c.cacheSize, nil, c.cacheTTL)

	files, err := c.scan()
	if err != nil {
		return nil, fmt.Errorf("catalog: build: %w", err)
	}
	for _, f := range files {
		e, err := c.load(f.Path, f.ModTime)
		if err != nil {
			return nil, fmt.Errorf("catalog: build: %w", err)
		}
		c.upsert(e)
		c.mtimes[f.Path] = f.ModTime
	}
	c.reindex()
	return c, nil
}

// Root returns the absolute content root.
func (c *Catalog) Root() string { return c.store.Root() }

// Nested reports whether the catalog walks subdirectories.
func (c *Catalog) Nested() bool { return c.nested }

// Store returns the file provider for the content root.
func (c *Catalog) Store() *storage.FS { return c.store }

// GetBySlug returns the live entry for slug. Tombstones are never returned.
func (c *Catalog) GetBySlug(slug string) (*models.Entry, bool) {
	i, ok := c.slugIndex[slug]
	if !ok {
		return nil, false
	}
	return c.entries[i], true
}

// ByPath returns the live entry backed by the file at path.
func (c *Catalog) ByPath(path string) (*models.Entry, bool) {
	for _, e := range c.entries {
		if !e.Deleted && e.FilePath == path {
			return e, true
		}
	}
	return nil, false
}

// Query yields live entries admitted by pred in date-descending order,
// skipping the first offset matches. A non-positive limit means no limit.
// The yielded entries are owned by the catalog and valid only while the
// caller holds its lock.
func (c *Catalog) Query(pred Predicate, offset, limit int) iter.Seq[*models.Entry] {
	return func(yield func(*models.Entry) bool) {
		skipped, taken := 0, 0
		for _, e := range c.entries {
			if e.Deleted || !pred(e) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && taken >= limit {
				return
			}
			taken++
			if !yield(e) {
				return
			}
		}
	}
}

// Count returns the number of live entries admitted by pred.
func (c *Catalog) Count(pred Predicate) int {
	n := 0
	for _, e := range c.entries {
		if !e.Deleted && pred(e) {
			n++
		}
	}
	return n
}

// Tags returns the tag set, sorted.
func (c *Catalog) Tags() []string {
	return slices.Sorted(maps.Keys(c.tags))
}

// Categories returns the category set, sorted.
func (c *Catalog) Categories() []string {
	return slices.Sorted(maps.Keys(c.categories))
}

// merge adds the entry's tags and category to the derived sets. Drafts
// contribute only their category.
func (c *Catalog) merge(e *models.Entry) {
	if cat := e.Metadata.CategoryName(); cat != "" {
		c.categories[cat] = struct{}{}
	}
	if e.Metadata.Draft {
		return
	}
	for _, t := range e.Metadata.Tags {
		c.tags[t] = struct{}{}
	}
}

// reindex restores date-descending order and rebuilds the slug index over
// live entries. Equal dates keep no particular order.
func (c *Catalog) reindex() {
	slices.SortStableFunc(c.entries, func(a, b *models.Entry) int {
		return b.Metadata.Date.Compare(a.Metadata.Date)
	})
	clear(c.slugIndex)
	for i, e := range c.entries {
		if !e.Deleted {
			c.slugIndex[e.Slug] = i
		}
	}
}
