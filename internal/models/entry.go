// Package models defines the domain types for Quire.
package models

import "time"

// Metadata is the YAML front matter of an article or note.
type Metadata struct {
	Title       string    `yaml:"title" json:"title"`
	Author      string    `yaml:"author" json:"author"`
	Date        time.Time `yaml:"date" json:"date"`
	Description string    `yaml:"description" json:"description"`
	Tags        []string  `yaml:"tags" json:"tags"`
	Draft       bool      `yaml:"draft,omitempty" json:"draft"`
	Category    *string   `yaml:"category,omitempty" json:"category,omitempty"`
	LastUpdated *string   `yaml:"last_updated,omitempty" json:"last_updated,omitempty"`
}

// CategoryName returns the category or "" when none is set.
func (m Metadata) CategoryName() string {
	if m.Category == nil {
		return ""
	}
	return *m.Category
}

// HasTag reports whether tag is listed in the metadata.
func (m Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hold metadata past a lock.
func (m Metadata) Clone() Metadata {
	out := m
	out.Tags = append([]string(nil), m.Tags...)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if m.Category != nil {
		c := *m.Category
		out.Category = &c
	}
	if m.LastUpdated != nil {
		u := *m.LastUpdated
		out.LastUpdated = &u
	}
	return out
}

// Entry is one source file tracked by a catalog.
type Entry struct {
	Slug         string    `json:"slug"`
	Metadata     Metadata  `json:"metadata"`
	Version      int       `json:"version"`
	FilePath     string    `json:"-"`
	LastModified time.Time `json:"-"`
	UpdatedAt    time.Time `json:"updated_at"`
	Deleted      bool      `json:"-"`
}

// SlugWithCategory returns "category/slug", or the bare slug when the
// entry has no category.
func (e *Entry) SlugWithCategory() string {
	if c := e.Metadata.CategoryName(); c != "" {
		return c + "/" + e.Slug
	}
	return e.Slug
}

// Content is an entry's metadata paired with its body text.
type Content struct {
	Slug     string   `json:"slug"`
	Metadata Metadata `json:"metadata"`
	Body     string   `json:"content"`
}

// Document is the search representation of one entry.
type Document struct {
	Slug        string
	Title       string
	Content     string
	Description string
	Tags        string
	Category    string
	Draft       bool
}

// VersionRecord is one body snapshot in the version archive.
type VersionRecord struct {
	ArticleID string    `json:"article_id"`
	Version   int64     `json:"version"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Editor    string    `json:"editor"`
}

// ChangeKind classifies a detected source file change.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is a single entry of a change set.
type Change struct {
	Path string
	Kind ChangeKind
}
