//go:build sqlite_fts5

package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/quire/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			slug UNINDEXED,
			title,
			content,
			description,
			tags,
			category,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(ctx context.Context, tx *sql.Tx, d models.Document) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents_fts (slug, title, content, description, tags, category)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.Slug, d.Title, d.Content, d.Description, d.Tags, d.Category)
	if err != nil {
		return fmt.Errorf("insert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, slug string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE slug = ?`, slug)
	return err
}

func ftsClear(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM documents_fts`)
	return err
}

// matchExpr restricts the query to the default fields and ORs the quoted
// terms so user input never reaches the FTS5 query grammar.
func matchExpr(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return "{title content description tags} : (" + strings.Join(quoted, " OR ") + ")"
}

func (ix *Index) query(ctx context.Context, terms []string, limit int) ([]Hit, error) {
	rows, err := ix.conn.QueryContext(ctx, `
		SELECT slug, title, description, category, -bm25(documents_fts)
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY bm25(documents_fts)
		LIMIT ?
	`, matchExpr(terms), limit)
	if err != nil {
		return nil, indexerError("search", err)
	}
	defer rows.Close()
	return scanHits(rows)
}
