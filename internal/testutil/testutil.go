// Package testutil provides shared test helpers for setting up content roots.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/quire/internal/frontmatter"
	"github.com/starford/quire/internal/models"
)

// Fixture describes one source file. Zero fields get harmless defaults.
type Fixture struct {
	Title       string
	Author      string
	Date        time.Time
	Description string
	Tags        []string
	Draft       bool
	Category    string
	Body        string
}

// Metadata converts the fixture into front matter values.
func (f Fixture) Metadata() models.Metadata {
	m := models.Metadata{
		Title:       f.Title,
		Author:      f.Author,
		Date:        f.Date,
		Description: f.Description,
		Tags:        f.Tags,
		Draft:       f.Draft,
	}
	if m.Title == "" {
		m.Title = "Untitled"
	}
	if m.Author == "" {
		m.Author = "tester"
	}
	if m.Date.IsZero() {
		m.Date = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if m.Description == "" {
		m.Description = m.Title + " description"
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if f.Category != "" {
		c := f.Category
		m.Category = &c
	}
	return m
}

// Date is shorthand for a UTC midnight date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// WriteEntry renders f and writes it to root/rel, creating directories.
// It returns the absolute path.
func WriteEntry(t *testing.T, root, rel string, f Fixture) string {
	t.Helper()
	data, err := frontmatter.Render(f.Metadata(), f.Body)
	if err != nil {
		t.Fatalf("render %s: %v", rel, err)
	}
	return WriteFile(t, root, rel, data)
}

// WriteFile writes raw bytes to root/rel, creating directories.
func WriteFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatal(err)
	}
	return abs
}

// Touch moves the mtime of path forward by d.
func Touch(t *testing.T, path string, d time.Duration) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	mt := info.ModTime().Add(d)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatal(err)
	}
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
