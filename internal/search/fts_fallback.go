//go:build !sqlite_fts5

package search

import (
	"context"
	"database/sql"
	"strings"

	"github.com/starford/quire/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over the documents table.
	return nil
}

func ftsInsert(_ context.Context, _ *sql.Tx, _ models.Document) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) error { return nil }

func ftsClear(_ context.Context, _ *sql.Tx) error { return nil }

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// fieldWeights score a term match per field; title ranks highest.
var fieldWeights = []struct {
	column string
	weight string
}{
	{"title", "3.0"},
	{"tags", "2.0"},
	{"description", "1.5"},
	{"content", "1.0"},
}

// query matches documents containing any term in a default field, scored
// by the weighted number of field hits.
func (ix *Index) query(ctx context.Context, terms []string, limit int) ([]Hit, error) {
	var (
		score []string
		where []string
		sargs []any
		wargs []any
	)
	for _, t := range terms {
		like := "%" + likeEscaper.Replace(t) + "%"
		var ors []string
		for _, f := range fieldWeights {
			score = append(score, "(CASE WHEN "+f.column+" LIKE ? ESCAPE '!' THEN "+f.weight+" ELSE 0 END)")
			ors = append(ors, f.column+" LIKE ? ESCAPE '!'")
			sargs = append(sargs, like)
			wargs = append(wargs, like)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}

	q := `SELECT slug, title, description, category, (` + strings.Join(score, " + ") + `) AS score
		FROM documents
		WHERE ` + strings.Join(where, " OR ") + `
		ORDER BY score DESC, slug
		LIMIT ?`
	args := append(append(sargs, wargs...), limit)

	rows, err := ix.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, indexerError("search", err)
	}
	defer rows.Close()
	return scanHits(rows)
}
