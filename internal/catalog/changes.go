package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// DetectChanges compares a fresh scan of the root against the mtime cache.
// Files missing from the cache are Added, files with a strictly newer mtime
// are Modified and cached paths no longer on disk are Removed. The result
// is sorted by path.
func (c *Catalog) DetectChanges() ([]models.Change, error) {
	files, err := c.scan()
	if err != nil {
		return nil, fmt.Errorf("catalog: detect changes: %w", err)
	}

	var changes []models.Change
	current := make(map[string]struct{}, len(files))
	for _, f := range files {
		current[f.Path] = struct{}{}
		cached, ok := c.mtimes[f.Path]
		switch {
		case !ok:
			changes = append(changes, models.Change{Path: f.Path, Kind: models.Added})
		case f.ModTime.After(cached):
			changes = append(changes, models.Change{Path: f.Path, Kind: models.Modified})
		}
	}
	for p := range c.mtimes {
		if _, ok := current[p]; !ok {
			changes = append(changes, models.Change{Path: p, Kind: models.Removed})
		}
	}
	slices.SortFunc(changes, func(a, b models.Change) int { return strings.Compare(a.Path, b.Path) })
	return changes, nil
}

// IncrementalUpdate detects and applies changes. It reports whether any
// entry was added, replaced or tombstoned.
func (c *Catalog) IncrementalUpdate() (bool, error) {
	changes, err := c.DetectChanges()
	if err != nil {
		return false, err
	}
	return c.ApplyChanges(changes)
}

// ApplyChanges applies a change set produced by DetectChanges. A file that
// fails to load is logged and skipped. Afterwards the order and slug index
// are rebuilt and the mtime cache is refreshed from a new scan; files that
// changed again after detection keep their old cache state so the next
// pass reports them.
func (c *Catalog) ApplyChanges(changes []models.Change) (bool, error) {
	if len(changes) == 0 {
		return false, nil
	}

	applied := false
	handled := make(map[string]struct{}, len(changes))
	for _, ch := range changes {
		switch ch.Kind {
		case models.Added, models.Modified:
			handled[ch.Path] = struct{}{}
			if err := c.updateSingle(ch.Path); err != nil {
				c.logger.Warn("catalog: update failed",
					slog.String("path", ch.Path),
					slog.String("change", ch.Kind.String()),
					slog.String("error", err.Error()))
				continue
			}
			applied = true
		case models.Removed:
			if c.RemoveByPath(ch.Path) {
				applied = true
			}
		}
	}

	if applied {
		c.reindex()
	}
	if err := c.refreshMtimes(handled); err != nil {
		return applied, err
	}
	return applied, nil
}

// UpdateSingle reparses one file and records its mtime. On failure the
// previous entry for the file is left untouched.
func (c *Catalog) UpdateSingle(p string) error {
	abs, err := c.abs(p)
	if err != nil {
		return err
	}
	if err := c.updateSingle(abs); err != nil {
		return err
	}
	c.reindex()
	return nil
}

func (c *Catalog) updateSingle(p string) error {
	c.bodies.Remove(p)
	if isReadme(p) {
		return nil
	}
	info, err := os.Stat(p)
	if err != nil {
		return apperr.IOError("catalog: stat", p, err)
	}
	e, err := c.load(p, info.ModTime())
	if err != nil {
		return err
	}
	c.upsert(e)
	c.mtimes[p] = info.ModTime()
	return nil
}

// upsert replaces the entry holding e's slug, live or tombstoned, or
// appends e. Positions stay valid until the next reindex.
func (c *Catalog) upsert(e *models.Entry) {
	i, ok := c.slugIndex[e.Slug]
	if !ok {
		i = slices.IndexFunc(c.entries, func(x *models.Entry) bool { return x.Slug == e.Slug })
	}
	if i >= 0 {
		if prev := c.entries[i]; !prev.Deleted && prev.FilePath != e.FilePath {
			c.logger.Warn("catalog: slug collision, replacing entry",
				slog.String("slug", e.Slug),
				slog.String("previous", prev.FilePath),
				slog.String("path", e.FilePath))
		}
		c.entries[i] = e
	} else {
		c.entries = append(c.entries, e)
		i = len(c.entries) - 1
	}
	c.slugIndex[e.Slug] = i
	c.merge(e)
}

// RemoveByPath tombstones the live entry backed by path. Tag and category
// sets are left as they are until the next full build.
func (c *Catalog) RemoveByPath(p string) bool {
	c.bodies.Remove(p)
	for i, e := range c.entries {
		if e.Deleted || e.FilePath != p {
			continue
		}
		e.Deleted = true
		if c.slugIndex[e.Slug] == i {
			delete(c.slugIndex, e.Slug)
		}
		c.logger.Info("catalog: entry removed", slog.String("slug", e.Slug))
		return true
	}
	return false
}

// Forget tombstones any live entry backed by p and drops p from the mtime
// cache, so a file deleted by an explicit write is not reported again as
// Removed.
func (c *Catalog) Forget(p string) bool {
	abs, err := c.abs(p)
	if err != nil {
		return false
	}
	delete(c.mtimes, abs)
	return c.RemoveByPath(abs)
}

// refreshMtimes rebuilds the mtime cache from a new scan and drops body
// cache entries for files that no longer exist.
func (c *Catalog) refreshMtimes(handled map[string]struct{}) error {
	files, err := c.scan()
	if err != nil {
		return fmt.Errorf("catalog: refresh mtimes: %w", err)
	}
	fresh := make(map[string]struct{}, len(files))
	for _, f := range files {
		fresh[f.Path] = struct{}{}
		old, known := c.mtimes[f.Path]
		_, done := handled[f.Path]
		if done || (known && !f.ModTime.After(old)) {
			c.mtimes[f.Path] = f.ModTime
		}
	}
	for p := range c.mtimes {
		if _, ok := fresh[p]; !ok {
			delete(c.mtimes, p)
		}
	}

	for _, p := range c.bodies.Keys() {
		if _, ok := fresh[p]; !ok {
			c.bodies.Remove(p)
		}
	}
	return nil
}
