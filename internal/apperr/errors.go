// Package apperr defines the error kinds shared across the content core.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	ErrIO                 = errors.New("io error")
	ErrParse              = errors.New("parse error")
	ErrInvalidFileName    = errors.New("invalid file name")
	ErrMissingFrontMatter = errors.New("missing front matter")
	ErrIndexer            = errors.New("indexer error")
	ErrCapacityExceeded   = errors.New("slug capacity exceeded")
	ErrInvalidTitle       = errors.New("invalid title")
	ErrEmptyQuery         = errors.New("empty search query")
	ErrSearchDisabled     = errors.New("full-text search is disabled")
	ErrInvalidInput       = errors.New("invalid input")
)

// FileError reports a failure tied to one source file.
// errors.Is matches Kind as well as anything in the Err chain.
type FileError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *FileError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

func (e *FileError) Is(target error) bool { return target == e.Kind }

// IOError wraps a filesystem failure on path.
func IOError(op, path string, err error) error {
	return &FileError{Op: op, Path: path, Kind: ErrIO, Err: err}
}
