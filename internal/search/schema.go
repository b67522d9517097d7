// Package search provides the SQLite-backed full-text index over articles
// and notes, with FTS5 when built with the sqlite_fts5 tag and a LIKE
// fallback otherwise.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/quire/internal/apperr"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	slug        TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT ''
);
`

// MinHeapSize is the smallest writer memory budget accepted, in bytes.
const MinHeapSize = 1_000_000

// DefaultLimit caps search results when the caller passes no limit.
const DefaultLimit = 20

// Index wraps a sql.DB holding the search documents.
// Writes are serialized; reads run concurrently.
type Index struct {
	conn  *sql.DB
	mu    sync.Mutex
	stats *Stats
}

// Open opens the index database at path, creating it and its parent
// directory when missing.
func Open(path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("search: %w", apperr.IOError("mkdir", dir, err))
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, indexerError("open db", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, indexerError("ping", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, indexerError("apply core schema", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, indexerError("apply fts schema", err)
	}
	return &Index{conn: conn, stats: NewStats()}, nil
}

// Close closes the underlying database connection.
func (ix *Index) Close() error {
	return ix.conn.Close()
}

// Len returns the number of indexed documents.
func (ix *Index) Len(ctx context.Context) (int, error) {
	var n int
	if err := ix.conn.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, indexerError("count", err)
	}
	return n, nil
}

func indexerError(op string, err error) error {
	return fmt.Errorf("search: %s: %w: %w", op, apperr.ErrIndexer, err)
}
