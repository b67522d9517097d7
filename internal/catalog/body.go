package catalog

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/frontmatter"
	"github.com/starford/quire/internal/models"
)

// LoadBody returns the body text of e, reading the file on a cache miss.
// Safe to call under the read lock.
func (c *Catalog) LoadBody(e *models.Entry) (string, error) {
	if body, ok := c.bodies.Get(e.FilePath); ok {
		return body, nil
	}
	data, err := os.ReadFile(e.FilePath)
	if err != nil {
		return "", apperr.IOError("catalog: load body", e.FilePath, err)
	}
	body, err := frontmatter.Body(data)
	if err != nil {
		return "", fmt.Errorf("catalog: load body %s: %w", e.FilePath, err)
	}
	c.bodies.Add(e.FilePath, body)
	return body, nil
}

// Cached reports whether the body for path is currently cached.
func (c *Catalog) Cached(path string) bool {
	return c.bodies.Contains(path)
}

// SnapshotFull returns every live, non-draft entry with its body. Entries
// whose body cannot be loaded are skipped with a warning.
func (c *Catalog) SnapshotFull() []models.Content {
	out := make([]models.Content, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Deleted || e.Metadata.Draft {
			continue
		}
		body, err := c.LoadBody(e)
		if err != nil {
			c.logger.Warn("catalog: snapshot skipped entry",
				slog.String("slug", e.Slug),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, models.Content{
			Slug:     e.Slug,
			Metadata: e.Metadata.Clone(),
			Body:     body,
		})
	}
	return out
}
