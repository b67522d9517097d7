package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/frontmatter"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

// scan lists the source files of the root, leaving out readme files.
func (c *Catalog) scan() ([]storage.File, error) {
	files, err := c.store.List(c.nested)
	if err != nil {
		return nil, err
	}
	out := files[:0]
	for _, f := range files {
		if isReadme(f.Path) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func isReadme(p string) bool {
	return strings.EqualFold(stem(p), "readme")
}

func stem(p string) string {
	return strings.TrimSuffix(filepath.Base(p), ".md")
}

// SlugFromPath derives the slug of a source file from its stem.
func SlugFromPath(p string) (string, error) {
	s := stem(p)
	if s == "" || !utf8.ValidString(s) {
		return "", &apperr.FileError{Op: "catalog: slug", Path: p, Kind: apperr.ErrInvalidFileName}
	}
	return s, nil
}

// category returns the "/"-separated directory of p relative to the root,
// or nil for files directly in the root or when nesting is off.
func (c *Catalog) category(p string) *string {
	if !c.nested {
		return nil
	}
	rel, err := c.store.Rel(p)
	if err != nil {
		return nil
	}
	dir := path.Dir(rel)
	if dir == "." || dir == "" {
		return nil
	}
	return &dir
}

// load reads and parses one source file into a fresh entry.
func (c *Catalog) load(p string, modTime time.Time) (*models.Entry, error) {
	slug, err := SlugFromPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, apperr.IOError("catalog: read", p, err)
	}
	meta, _, err := frontmatter.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", p, err)
	}
	if cat := c.category(p); cat != nil {
		meta.Category = cat
	}

	return &models.Entry{
		Slug:         slug,
		Metadata:     meta,
		Version:      c.version(slug),
		FilePath:     p,
		LastModified: modTime,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

func (c *Catalog) version(slug string) int {
	if c.versions == nil {
		return 1
	}
	n, err := c.versions.Count(slug)
	if err != nil {
		c.logger.Warn("catalog: count versions failed",
			slog.String("slug", slug),
			slog.String("error", err.Error()))
		return 1
	}
	return n + 1
}

// abs resolves p against the root when it is relative.
func (c *Catalog) abs(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return c.store.Abs(p)
}
