package search

import (
	"strings"

	"github.com/starford/quire/internal/models"
)

// NotesPrefix marks note slugs so they coexist with articles in one index.
const NotesPrefix = "notes/"

// NewDocument converts loaded content into its search representation.
// Content longer than limit runes is truncated; a non-positive limit keeps
// it whole.
func NewDocument(c models.Content, prefix string, limit int) models.Document {
	return models.Document{
		Slug:        prefix + c.Slug,
		Title:       c.Metadata.Title,
		Content:     truncate(c.Body, limit),
		Description: c.Metadata.Description,
		Tags:        strings.Join(c.Metadata.Tags, " "),
		Category:    c.Metadata.CategoryName(),
		Draft:       c.Metadata.Draft,
	}
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
