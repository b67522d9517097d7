package supervisor

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/catalog"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
)

// watch observes one content root and resynchronises its catalog after
// each burst of events, until ctx is cancelled.
func (s *Supervisor) watch(ctx context.Context, r *root) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	rootDir := r.current().Root()
	if r.cfg.Nested {
		err = addDirsRecursive(w, rootDir)
	} else {
		err = w.Add(rootDir)
	}
	if err != nil {
		return err
	}

	logger := s.logger.With(slog.String("collection", string(r.name)))
	logger.Info("watcher: started", slog.String("root", rootDir))

	tokens := make(chan struct{}, 1)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.debounce(ctx, r, tokens)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				logger.Info("watcher: stopped")
				return nil

			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if ev.Op&fsnotify.Create != 0 && r.cfg.Nested {
					if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
						if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
							logger.Warn("watcher: add new dir failed",
								slog.String("path", ev.Name),
								slog.String("error", addErr.Error()))
						}
						signal(tokens)
						continue
					}
				}
				if !relevant(ev) {
					continue
				}
				logger.Debug("watcher: event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				signal(tokens)

			case watchErr, ok := <-w.Errors:
				if !ok {
					return nil
				}
				logger.Error("watcher: error", slog.String("error", watchErr.Error()))
			}
		}
	})
	return g.Wait()
}

// relevant reports whether ev can change the catalog. Removed or renamed
// directories count since their files vanish without their own events.
func relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasSuffix(ev.Name, ".md") {
		return true
	}
	return ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0
}

func signal(tokens chan<- struct{}) {
	select {
	case tokens <- struct{}{}:
	default:
	}
}

// debounce waits for a token, sleeps through the quiet window so a burst
// of events collapses into one pass, then resynchronises.
func (s *Supervisor) debounce(ctx context.Context, r *root, tokens <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tokens:
		}

		t := time.NewTimer(s.cfg.Debounce)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		// events that arrived while sleeping are covered by this pass
		select {
		case <-tokens:
		default:
		}
		s.resync(ctx, r)
	}
}

// resync applies on-disk changes to the catalog and forwards them to the
// indexer. If the incremental update fails the catalog is rebuilt from
// scratch and the index with it.
func (s *Supervisor) resync(ctx context.Context, r *root) {
	logger := s.logger.With(slog.String("collection", string(r.name)))

	r.mu.Lock()
	changes, err := r.cat.DetectChanges()
	if err != nil {
		r.mu.Unlock()
		logger.Warn("watcher: detect changes failed", slog.String("error", err.Error()))
		s.reload(ctx, r)
		return
	}
	if len(changes) == 0 {
		r.mu.Unlock()
		return
	}
	logger.Info("watcher: change detected", slog.Int("changes", len(changes)))

	// slugs of removed files must be read before the entries are tombstoned
	removed := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.Kind != models.Removed {
			continue
		}
		if e, ok := r.cat.ByPath(ch.Path); ok {
			removed = append(removed, e.Slug)
		} else if slug, err := catalog.SlugFromPath(ch.Path); err == nil {
			removed = append(removed, slug)
		}
	}

	applied, err := r.cat.ApplyChanges(changes)
	if err != nil {
		r.mu.Unlock()
		logger.Warn("watcher: incremental update failed", slog.String("error", err.Error()))
		s.reload(ctx, r)
		return
	}
	if !applied {
		r.mu.Unlock()
		return
	}

	var jobs []job
	var touched []string
	for _, slug := range removed {
		// a file moved within the root keeps its slug alive
		if _, live := r.cat.GetBySlug(slug); live {
			continue
		}
		touched = append(touched, slug)
		jobs = append(jobs, removeJob(r.prefix+slug))
	}
	for _, ch := range changes {
		if ch.Kind == models.Removed {
			continue
		}
		e, ok := r.cat.ByPath(ch.Path)
		if !ok {
			continue
		}
		touched = append(touched, e.Slug)
		doc, err := s.document(r, e)
		if err != nil {
			logger.Warn("watcher: load body failed",
				slog.String("path", ch.Path),
				slog.String("error", err.Error()))
			continue
		}
		jobs = append(jobs, upsertJob(doc))
	}
	// queued under the lock so a concurrent write cannot land its job first
	s.enqueue(jobs...)
	r.mu.Unlock()

	logger.Info("watcher: incremental update applied", slog.Int("changes", len(changes)))
	s.invalidate(Invalidation{Collection: r.name, Changes: len(changes), Slugs: touched})
}

// reload replaces the catalog with a fresh build and reindexes. On failure
// the previous catalog stays in place.
func (s *Supervisor) reload(ctx context.Context, r *root) {
	cat, err := s.build(r)
	if err != nil {
		s.logger.Error("supervisor: full reload failed",
			slog.String("collection", string(r.name)),
			slog.String("error", err.Error()))
		return
	}
	r.mu.Lock()
	r.cat = cat
	r.mu.Unlock()
	s.logger.Info("supervisor: full reload performed", slog.String("collection", string(r.name)))

	if s.index != nil {
		if err := s.Reindex(ctx); err != nil {
			s.logger.Error("supervisor: reindex after reload failed", slog.String("error", err.Error()))
		}
	}
	s.invalidate(Invalidation{Collection: r.name, Changes: cat.Count(catalog.All), Full: true})
}

// document loads the body of e and converts it for the index. The caller
// holds r.mu.
func (s *Supervisor) document(r *root, e *models.Entry) (models.Document, error) {
	body, err := r.cat.LoadBody(e)
	if err != nil {
		return models.Document{}, err
	}
	return search.NewDocument(models.Content{
		Slug:     e.Slug,
		Metadata: e.Metadata,
		Body:     body,
	}, r.prefix, s.cfg.ContentLimit), nil
}

func (r *root) current() *catalog.Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cat
}

// addDirsRecursive adds dir and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
