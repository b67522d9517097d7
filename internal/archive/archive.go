// Package archive stores prior body snapshots of articles on disk.
//
// Snapshots live at {data}/articles/{slug}/versions/{N}.md where N starts
// from the wall clock in milliseconds and is bumped on collision, so two
// saves in the same millisecond both succeed.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/frontmatter"
	"github.com/starford/quire/internal/models"
)

// Editor is recorded on every snapshot; the core has no user identity.
const Editor = "system"

// Archive is safe for concurrent use; exclusive file creation serialises
// competing writers.
type Archive struct {
	root string
	now  func() time.Time
}

// New returns an archive rooted at dataDir.
func New(dataDir string) *Archive {
	return &Archive{root: filepath.Join(dataDir, "articles"), now: time.Now}
}

// Dir returns the versions directory for slug.
func (a *Archive) Dir(slug string) string {
	return filepath.Join(a.root, slug, "versions")
}

// Save snapshots the body of the source file at sourcePath.
func (a *Archive) Save(slug, sourcePath string) (int64, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return 0, apperr.IOError("archive: read source", sourcePath, err)
	}
	body, err := frontmatter.Body(data)
	if err != nil {
		return 0, &apperr.FileError{Op: "archive: extract body", Path: sourcePath, Kind: apperr.ErrParse, Err: err}
	}
	return a.SaveBody(slug, []byte(body))
}

// SaveBody writes body as a new snapshot and returns its version number.
func (a *Archive) SaveBody(slug string, body []byte) (int64, error) {
	if err := checkSlug(slug); err != nil {
		return 0, err
	}
	dir := a.Dir(slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, apperr.IOError("archive: mkdir", dir, err)
	}

	candidate := a.now().UnixMilli()
	for {
		path := filepath.Join(dir, strconv.FormatInt(candidate, 10)+".md")
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			candidate++
			continue
		}
		if err != nil {
			return 0, apperr.IOError("archive: create", path, err)
		}
		_, werr := f.Write(body)
		cerr := f.Close()
		if werr != nil {
			return 0, apperr.IOError("archive: write", path, werr)
		}
		if cerr != nil {
			return 0, apperr.IOError("archive: close", path, cerr)
		}
		return candidate, nil
	}
}

// Count returns the number of snapshots stored for slug.
func (a *Archive) Count(slug string) (int, error) {
	if checkSlug(slug) != nil {
		return 0, nil
	}
	entries, err := os.ReadDir(a.Dir(slug))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.IOError("archive: list", a.Dir(slug), err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			n++
		}
	}
	return n, nil
}

// List returns every snapshot for slug ordered by version ascending.
// A slug without snapshots yields an empty list.
func (a *Archive) List(slug string) ([]models.VersionRecord, error) {
	if err := checkSlug(slug); err != nil {
		return nil, err
	}
	dir := a.Dir(slug)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.VersionRecord{}, nil
	}
	if err != nil {
		return nil, apperr.IOError("archive: list", dir, err)
	}

	out := make([]models.VersionRecord, 0, len(entries))
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".md")
		if e.IsDir() || !ok {
			continue
		}
		version, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		rec, err := a.read(slug, version)
		if err != nil {
			// vanished or unreadable; skip like a torn listing
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(x, y models.VersionRecord) int {
		switch {
		case x.Version < y.Version:
			return -1
		case x.Version > y.Version:
			return 1
		}
		return 0
	})
	return out, nil
}

// Get returns one snapshot. A missing snapshot yields apperr.ErrNotFound.
func (a *Archive) Get(slug string, version int64) (models.VersionRecord, error) {
	if err := checkSlug(slug); err != nil {
		return models.VersionRecord{}, err
	}
	rec, err := a.read(slug, version)
	if errors.Is(err, fs.ErrNotExist) {
		return models.VersionRecord{}, fmt.Errorf("archive: version %d of %s: %w", version, slug, apperr.ErrNotFound)
	}
	return rec, err
}

func (a *Archive) read(slug string, version int64) (models.VersionRecord, error) {
	path := filepath.Join(a.Dir(slug), strconv.FormatInt(version, 10)+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		return models.VersionRecord{}, apperr.IOError("archive: read", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return models.VersionRecord{}, apperr.IOError("archive: stat", path, err)
	}
	return models.VersionRecord{
		ArticleID: slug,
		Version:   version,
		Content:   string(data),
		Timestamp: info.ModTime().UTC(),
		Editor:    Editor,
	}, nil
}

func checkSlug(slug string) error {
	if slug == "" || slug == "." || slug == ".." || strings.ContainsAny(slug, `/\`) {
		return &apperr.FileError{Op: "archive", Path: slug, Kind: apperr.ErrInvalidFileName}
	}
	return nil
}
