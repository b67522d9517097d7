//go:build sqlite_fts5

package search

import (
	"context"
	"testing"

	"github.com/starford/quire/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	ix := testIndex(t)
	var count int
	if err := ix.conn.QueryRow(`SELECT count(*) FROM documents_fts`).Scan(&count); err != nil {
		t.Fatalf("documents_fts table missing: %v", err)
	}
}

func TestFTS5_QuotesUserInput(t *testing.T) {
	ix := testIndex(t)
	ctx := context.Background()
	if err := ix.Upsert(ctx, models.Document{Slug: "q", Title: "Near", Content: "near and or not"}, heap); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	// FTS5 keywords and column filters are treated as plain words.
	for _, q := range []string{"NEAR", "title:near", `"or"`, "AND NOT"} {
		if _, err := ix.Search(ctx, q, 10, false); err != nil {
			t.Errorf("Search(%q): %v", q, err)
		}
	}
}

func TestFTS5_CategoryNotSearchedByDefault(t *testing.T) {
	ix := testIndex(t)
	ctx := context.Background()
	if err := ix.Upsert(ctx, models.Document{Slug: "c", Title: "T", Content: "body", Category: "astronomy"}, heap); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	hits, err := ix.Search(ctx, "astronomy", 10, false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("category matched by default: %+v", hits)
	}
}

func TestFTS5_MatchExpr(t *testing.T) {
	got := matchExpr([]string{"go", `a"b`})
	want := `{title content description tags} : ("go" OR "a""b")`
	if got != want {
		t.Errorf("matchExpr = %q, want %q", got, want)
	}
}
