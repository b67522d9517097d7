// Package storage defines the content-root file-system abstraction.
package storage

import "time"

// File describes one Markdown source found under a content root.
type File struct {
	// Path is the absolute path on disk.
	Path string
	// Rel is the path relative to the root, always with "/" separators.
	Rel     string
	ModTime time.Time
}

// Provider is the interface for content-root file operations.
type Provider interface {
	// Root returns the absolute content root.
	Root() string
	// List returns every .md file directly under the root, or the whole
	// tree when nested is true.
	List(nested bool) ([]File, error)
	// Stat returns the modification time of path (relative to root).
	Stat(path string) (time.Time, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to root).
	Delete(path string) error
}
