package storage

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/starford/quire/internal/apperr"
)

const filePerms = 0o644

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the content root
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperr.IOError("storage: stat root", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute content root.
func (f *FS) Root() string { return f.root }

// Abs resolves a root-relative path, rejecting traversal outside the root.
func (f *FS) Abs(rel string) (string, error) { return f.safePath(rel) }

// Rel converts an absolute path under the root into a "/"-separated
// root-relative path.
func (f *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return "", fmt.Errorf("storage: rel %s: %w", abs, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path outside root: %s", abs)
	}
	return filepath.ToSlash(rel), nil
}

// safePath resolves a relative path against the root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

// List enumerates .md files. Hidden directories are not descended into.
func (f *FS) List(nested bool) ([]File, error) {
	if !nested {
		return f.listFlat()
	}
	var out []File
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != f.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, f.file(p, info))
		return nil
	})
	if err != nil {
		return nil, apperr.IOError("storage: list", f.root, err)
	}
	return out, nil
}

func (f *FS) listFlat() ([]File, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, apperr.IOError("storage: list", f.root, err)
	}
	out := make([]File, 0, len(entries))
	for _, d := range entries {
		if d.IsDir() || !isMarkdown(d.Name()) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, f.file(filepath.Join(f.root, d.Name()), info))
	}
	return out, nil
}

func (f *FS) file(abs string, info fs.FileInfo) File {
	rel, _ := filepath.Rel(f.root, abs)
	return File{Path: abs, Rel: filepath.ToSlash(rel), ModTime: info.ModTime()}
}

// Stat returns the modification time of a file under the root.
func (f *FS) Stat(path string) (time.Time, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return time.Time{}, apperr.IOError("storage: stat", path, err)
	}
	return info.ModTime(), nil
}

// Read returns the raw bytes of a file under the root.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, apperr.IOError("storage: read", path, err)
	}
	return data, nil
}

// Write replaces the file contents atomically, creating parent directories.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return apperr.IOError("storage: mkdir", path, err)
	}
	if err := atomic.WriteFile(abs, bytes.NewReader(content)); err != nil {
		return apperr.IOError("storage: write", path, err)
	}
	// atomic.WriteFile keeps the temp file's 0600 mode on new files.
	if err := os.Chmod(abs, filePerms); err != nil {
		return apperr.IOError("storage: chmod", path, err)
	}
	return nil
}

// Delete removes a file under the root.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return apperr.IOError("storage: delete", path, err)
	}
	return nil
}

func isMarkdown(name string) bool {
	return strings.HasSuffix(name, ".md")
}
