// Package supervisor binds the articles and notes catalogs, the version
// archive and the optional search index into one coordinated store.
//
// Each catalog sits behind its own sync.RWMutex. Filesystem events and
// explicit writes mutate a catalog under the write lock and forward the
// resulting upserts and removals to a single indexer worker through an
// unbounded queue.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/archive"
	"github.com/starford/quire/internal/catalog"
	"github.com/starford/quire/internal/search"
)

// Collection names a content root.
type Collection string

const (
	Articles Collection = "articles"
	Notes    Collection = "notes"
)

// DefaultDebounce is the quiet window after a filesystem event before the
// catalog is resynchronised.
const DefaultDebounce = 500 * time.Millisecond

// Root is one content directory.
type Root struct {
	Path   string
	Nested bool
}

// Config holds what the supervisor needs to build and serve its catalogs.
type Config struct {
	Articles Root
	Notes    Root
	DataDir  string

	Debounce     time.Duration
	HeapSize     int
	ContentLimit int
	LatestCount  int

	CacheCapacity int
	CacheTTL      time.Duration
}

// Invalidation describes one applied mutation batch.
// Full is set when the whole catalog was rebuilt and Slugs is empty.
type Invalidation struct {
	Collection Collection `json:"collection"`
	Changes    int        `json:"changes"`
	Slugs      []string   `json:"slugs,omitempty"`
	Full       bool       `json:"full,omitempty"`
}

// InvalidateFunc is called after every successful mutation batch.
type InvalidateFunc func(Invalidation)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIndex enables full-text search through ix. The supervisor does not
// close it.
func WithIndex(ix *search.Index) Option {
	return func(s *Supervisor) { s.index = ix }
}

// Supervisor owns the catalogs and keeps the search index in step with
// them.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	archive *archive.Archive
	index   *search.Index
	stats   *search.Stats
	jobs    *queue

	articles *root
	notes    *root

	hooksMu sync.Mutex
	hooks   []InvalidateFunc
}

// root is a catalog and the lock guarding it.
type root struct {
	name   Collection
	prefix string
	cfg    Root

	mu  sync.RWMutex
	cat *catalog.Catalog
}

// New builds both catalogs. A file that cannot be loaded fails the call.
func New(cfg Config, opts ...Option) (*Supervisor, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.HeapSize <= 0 {
		cfg.HeapSize = search.MinHeapSize
	}
	s := &Supervisor{
		cfg:     cfg,
		logger:  slog.Default(),
		archive: archive.New(cfg.DataDir),
		jobs:    newQueue(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.index != nil {
		s.stats = s.index.Stats()
	} else {
		s.stats = search.NewStats()
	}

	s.articles = &root{name: Articles, cfg: cfg.Articles}
	s.notes = &root{name: Notes, prefix: search.NotesPrefix, cfg: cfg.Notes}
	for _, r := range s.roots() {
		cat, err := s.build(r)
		if err != nil {
			return nil, fmt.Errorf("supervisor: build %s: %w", r.name, err)
		}
		r.cat = cat
		s.logger.Info("supervisor: catalog loaded",
			slog.String("collection", string(r.name)),
			slog.Int("entries", cat.Count(catalog.All)))
	}
	return s, nil
}

// OnInvalidate registers fn to be called after every applied mutation
// batch.
func (s *Supervisor) OnInvalidate(fn InvalidateFunc) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// SearchEnabled reports whether a search index is attached.
func (s *Supervisor) SearchEnabled() bool { return s.index != nil }

// Run rebuilds the search index, then watches both content roots and
// drives the indexer worker until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.index != nil {
		if err := s.Reindex(ctx); err != nil {
			s.logger.Error("supervisor: initial reindex failed", slog.String("error", err.Error()))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if s.index != nil {
		g.Go(func() error { return s.indexWorker(ctx) })
	}
	for _, r := range s.roots() {
		g.Go(func() error { return s.watch(ctx, r) })
	}
	return g.Wait()
}

func (s *Supervisor) roots() []*root { return []*root{s.articles, s.notes} }

func (s *Supervisor) root(c Collection) (*root, error) {
	switch c {
	case Articles:
		return s.articles, nil
	case Notes:
		return s.notes, nil
	}
	return nil, fmt.Errorf("supervisor: unknown collection %q", c)
}

func (s *Supervisor) build(r *root) (*catalog.Catalog, error) {
	opts := []catalog.Option{
		catalog.WithLogger(s.logger),
		catalog.WithBodyCache(s.cfg.CacheCapacity, s.cfg.CacheTTL),
	}
	if r.name == Articles {
		opts = append(opts, catalog.WithVersions(s.archive))
	}
	return catalog.Build(r.cfg.Path, r.cfg.Nested, opts...)
}

func (s *Supervisor) invalidate(inv Invalidation) {
	s.hooksMu.Lock()
	hooks := append([]InvalidateFunc(nil), s.hooks...)
	s.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(inv)
	}
}
