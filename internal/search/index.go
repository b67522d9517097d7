package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// Hit is one search result.
type Hit struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Score       float64  `json:"score"`
	Highlights  []string `json:"highlights,omitempty"`
}

// Rebuild replaces the whole index with docs, skipping drafts. On failure
// nothing is committed and the previous documents stay searchable.
func (ix *Index) Rebuild(ctx context.Context, docs []models.Document, heap int) error {
	return ix.write(ctx, "rebuild", heap, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
			return err
		}
		if err := ftsClear(ctx, tx); err != nil {
			return err
		}
		for _, d := range docs {
			if err := insert(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// Upsert replaces the document with d's slug. A draft is removed and not
// added back.
func (ix *Index) Upsert(ctx context.Context, d models.Document, heap int) error {
	return ix.write(ctx, "upsert", heap, func(tx *sql.Tx) error {
		if err := remove(ctx, tx, d.Slug); err != nil {
			return err
		}
		return insert(ctx, tx, d)
	})
}

// Remove deletes the document with slug.
func (ix *Index) Remove(ctx context.Context, slug string, heap int) error {
	return ix.write(ctx, "remove", heap, func(tx *sql.Tx) error {
		return remove(ctx, tx, slug)
	})
}

// ApplyBatch applies every removal and then every upsert, in order, in one
// transaction. The last upsert for a slug wins.
func (ix *Index) ApplyBatch(ctx context.Context, upserts []models.Document, removes []string, heap int) error {
	return ix.write(ctx, "apply batch", heap, func(tx *sql.Tx) error {
		for _, slug := range removes {
			if err := remove(ctx, tx, slug); err != nil {
				return err
			}
		}
		for _, d := range upserts {
			if err := remove(ctx, tx, d.Slug); err != nil {
				return err
			}
			if err := insert(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// write runs fn in a single writer session bounded by heap bytes of page
// cache.
func (ix *Index) write(ctx context.Context, op string, heap int, fn func(*sql.Tx) error) error {
	if heap < MinHeapSize {
		return fmt.Errorf("search: %s: %w: heap size %d below minimum %d", op, apperr.ErrIndexer, heap, MinHeapSize)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.conn.BeginTx(ctx, nil)
	if err != nil {
		return indexerError(op+": begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA cache_size = -%d", heap/1024)); err != nil {
		return indexerError(op+": cache size", err)
	}
	if err := fn(tx); err != nil {
		return indexerError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return indexerError(op+": commit", err)
	}
	return nil
}

func insert(ctx context.Context, tx *sql.Tx, d models.Document) error {
	if d.Draft {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (slug, title, content, description, tags, category)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title       = excluded.title,
			content     = excluded.content,
			description = excluded.description,
			tags        = excluded.tags,
			category    = excluded.category
	`, d.Slug, d.Title, d.Content, d.Description, d.Tags, d.Category)
	if err != nil {
		return fmt.Errorf("insert %s: %w", d.Slug, err)
	}
	return ftsInsert(ctx, tx, d)
}

func remove(ctx context.Context, tx *sql.Tx, slug string) error {
	if err := ftsDelete(ctx, tx, slug); err != nil {
		return fmt.Errorf("delete fts %s: %w", slug, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("delete %s: %w", slug, err)
	}
	return nil
}

// Search returns the top hits for text over title, content, description
// and tags. Every call is recorded in the search stats.
func (ix *Index) Search(ctx context.Context, text string, limit int, highlights bool) ([]Hit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.ErrEmptyQuery
	}
	ix.stats.Record(text)
	if limit <= 0 {
		limit = DefaultLimit
	}

	terms := Terms(text)
	if len(terms) == 0 {
		return []Hit{}, nil
	}
	hits, err := ix.query(ctx, terms, limit)
	if err != nil {
		return nil, err
	}
	if highlights {
		for i := range hits {
			hits[i].Highlights = Highlights(text, hits[i].Title, hits[i].Description)
		}
	}
	return hits, nil
}

// Stats returns the query statistics collected by Search.
func (ix *Index) Stats() *Stats { return ix.stats }

// Terms splits text into lowercase words.
func Terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func scanHits(rows *sql.Rows) ([]Hit, error) {
	out := []Hit{}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Slug, &h.Title, &h.Description, &h.Category, &h.Score); err != nil {
			return nil, indexerError("scan", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, indexerError("rows", err)
	}
	return out, nil
}
