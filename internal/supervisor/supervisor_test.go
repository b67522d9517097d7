package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/frontmatter"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/testutil"
)

type env struct {
	articles string
	notes    string
	data     string
}

func newEnv(t *testing.T) env {
	t.Helper()
	base := t.TempDir()
	e := env{
		articles: filepath.Join(base, "article"),
		notes:    filepath.Join(base, "notes"),
		data:     filepath.Join(base, "data"),
	}
	for _, d := range []string{e.articles, e.notes} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	return e
}

func (e env) config() Config {
	return Config{
		Articles:      Root{Path: e.articles, Nested: true},
		Notes:         Root{Path: e.notes, Nested: true},
		DataDir:       e.data,
		Debounce:      20 * time.Millisecond,
		HeapSize:      search.MinHeapSize,
		LatestCount:   5,
		CacheCapacity: 100,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func openIndex(t *testing.T) *search.Index {
	t.Helper()
	ix, err := search.Open(filepath.Join(t.TempDir(), "search", "quire.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func newSupervisor(t *testing.T, e env, opts ...Option) *Supervisor {
	t.Helper()
	s, err := New(e.config(), append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return s
}

// start runs s until the test ends.
func start(t *testing.T, s *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not stop")
		}
	})
	// give the watchers time to register
	time.Sleep(100 * time.Millisecond)
}

func hitSlugs(hits []search.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Slug
	}
	return out
}

func TestNew_MissingRoot(t *testing.T) {
	e := newEnv(t)
	cfg := e.config()
	cfg.Notes.Path = filepath.Join(e.notes, "missing")
	_, err := New(cfg, WithLogger(quietLogger()))
	require.ErrorIs(t, err, apperr.ErrIO)
}

func TestSearch_NoteHasPrefix(t *testing.T) {
	e := newEnv(t)
	testutil.WriteEntry(t, e.articles, "a.md", testutil.Fixture{Title: "A", Body: "plain words"})
	testutil.WriteEntry(t, e.articles, "b.md", testutil.Fixture{Title: "B", Body: "more plain words"})
	testutil.WriteEntry(t, e.notes, "n.md", testutil.Fixture{Title: "N", Body: "a capybara appears"})

	s := newSupervisor(t, e, WithIndex(openIndex(t)))
	require.NoError(t, s.Reindex(context.Background()))

	res, err := s.Search(context.Background(), "capybara", 10, false)
	require.NoError(t, err)
	require.False(t, res.Degraded)
	require.Equal(t, []string{"notes/n"}, hitSlugs(res.Hits))
}

func TestSearch_DegradedWithoutIndex(t *testing.T) {
	e := newEnv(t)
	testutil.WriteEntry(t, e.articles, "a.md", testutil.Fixture{Title: "Gardening tips", Description: "soil"})
	testutil.WriteEntry(t, e.articles, "d.md", testutil.Fixture{Title: "Gardening drafts", Draft: true})
	testutil.WriteEntry(t, e.notes, "n.md", testutil.Fixture{Title: "Note", Description: "more GARDENING"})

	s := newSupervisor(t, e)
	res, err := s.Search(context.Background(), "gardening", 0, true)
	require.NoError(t, err)
	require.True(t, res.Degraded)
	require.Equal(t, []string{"a", "notes/n"}, hitSlugs(res.Hits))
	require.Equal(t, []string{"Title: Gardening tips"}, res.Hits[0].Highlights)

	_, err = s.Search(context.Background(), " ", 0, false)
	require.ErrorIs(t, err, apperr.ErrEmptyQuery)

	require.Equal(t, []search.QueryCount{{Query: "gardening", Count: 1}}, s.PopularSearches(5))
	require.ErrorIs(t, s.Reindex(context.Background()), apperr.ErrSearchDisabled)
}

func TestSearch_FallsBackWhenIndexFails(t *testing.T) {
	e := newEnv(t)
	testutil.WriteEntry(t, e.articles, "a.md", testutil.Fixture{Title: "Broken index"})
	ix := openIndex(t)
	s := newSupervisor(t, e, WithIndex(ix))
	require.NoError(t, ix.Close())

	res, err := s.Search(context.Background(), "broken", 0, false)
	require.NoError(t, err)
	require.True(t, res.Degraded)
	require.Equal(t, []string{"a"}, hitSlugs(res.Hits))
}

func TestReads(t *testing.T) {
	e := newEnv(t)
	testutil.WriteEntry(t, e.articles, "go/one.md", testutil.Fixture{Title: "One", Date: testutil.Date(2024, 3, 1), Tags: []string{"go"}, Body: "first"})
	testutil.WriteEntry(t, e.articles, "two.md", testutil.Fixture{Title: "Two", Date: testutil.Date(2024, 2, 1), Tags: []string{"misc"}})
	testutil.WriteEntry(t, e.articles, "three.md", testutil.Fixture{Title: "Three", Date: testutil.Date(2024, 1, 1), Tags: []string{"go"}})
	testutil.WriteEntry(t, e.articles, "hidden.md", testutil.Fixture{Title: "Hidden", Date: testutil.Date(2024, 4, 1), Draft: true})
	testutil.WriteEntry(t, e.notes, "ideas/n.md", testutil.Fixture{Title: "Idea", Body: "note body"})

	s := newSupervisor(t, e)
	ctx := context.Background()

	c, err := s.Article("one")
	require.NoError(t, err)
	require.Equal(t, "first", c.Body)
	require.Equal(t, "go", c.Metadata.CategoryName())

	_, err = s.Article("hidden")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Article("nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	n, err := s.Note("ideas/n")
	require.NoError(t, err)
	require.Equal(t, "note body", n.Body)
	n, err = s.Note("n")
	require.NoError(t, err)
	require.Equal(t, "Idea", n.Metadata.Title)

	page, err := s.List(ctx, Articles, Filter{}, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, []string{"one", "two"}, entrySlugs(page.Items))

	page, err = s.List(ctx, Articles, Filter{}, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"three"}, entrySlugs(page.Items))

	page, err = s.List(ctx, Articles, Filter{Tag: "go"}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "three"}, entrySlugs(page.Items))
	require.Equal(t, DefaultLimit, page.Limit)

	page, err = s.List(ctx, Articles, Filter{Category: "go"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"one"}, entrySlugs(page.Items))

	page, err = s.List(ctx, Articles, Filter{Query: "TWO"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"two"}, entrySlugs(page.Items))

	_, err = s.List(ctx, Collection("other"), Filter{}, 1, 10)
	require.Error(t, err)

	require.Equal(t, []string{"one", "two"}, entrySlugs(s.Latest(2)))
	require.Len(t, s.Latest(0), 3)

	tags, err := s.Tags(Articles)
	require.NoError(t, err)
	require.Equal(t, []string{"go", "misc"}, tags)
	cats, err := s.Categories(Notes)
	require.NoError(t, err)
	require.Equal(t, []string{"ideas"}, cats)
}

func TestList_QueryUsesIndex(t *testing.T) {
	e := newEnv(t)
	testutil.WriteEntry(t, e.articles, "a.md", testutil.Fixture{Title: "A", Body: "mentions lighthouse in the body only"})
	testutil.WriteEntry(t, e.articles, "b.md", testutil.Fixture{Title: "B", Body: "nothing"})
	testutil.WriteEntry(t, e.notes, "a.md", testutil.Fixture{Title: "Note A", Body: "lighthouse"})

	s := newSupervisor(t, e, WithIndex(openIndex(t)))
	require.NoError(t, s.Reindex(context.Background()))

	page, err := s.List(context.Background(), Articles, Filter{Query: "lighthouse"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, entrySlugs(page.Items))
}

func entrySlugs(entries []models.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Slug
	}
	return out
}

func TestCreateArticle(t *testing.T) {
	e := newEnv(t)
	s := newSupervisor(t, e)
	ctx := context.Background()

	var mu sync.Mutex
	var invalidations []Invalidation
	s.OnInvalidate(func(inv Invalidation) {
		mu.Lock()
		invalidations = append(invalidations, inv)
		mu.Unlock()
	})

	cat := "dev"
	first, err := s.CreateArticle(ctx, Draft{Title: "Hello World", Content: "body one", Category: &cat, Tags: []string{"go"}})
	require.NoError(t, err)
	require.Equal(t, "hello-world", first.Slug)
	require.Equal(t, "system", first.Metadata.Author)
	require.Equal(t, filepath.Join(e.articles, "dev", "hello-world.md"), first.FilePath)

	second, err := s.CreateArticle(ctx, Draft{Title: "Hello World", Content: "body two"})
	require.NoError(t, err)
	require.Equal(t, "hello-world-1", second.Slug)

	c, err := s.Article("hello-world")
	require.NoError(t, err)
	require.Equal(t, "body one", c.Body)
	require.Equal(t, "dev", c.Metadata.CategoryName())

	versions, err := s.Versions("hello-world")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "body one", versions[0].Content)

	// the explicit write is already known to the catalog
	changes, err := s.articles.cat.DetectChanges()
	require.NoError(t, err)
	require.Empty(t, changes)

	mu.Lock()
	want := []Invalidation{
		{Collection: Articles, Changes: 1, Slugs: []string{"hello-world"}},
		{Collection: Articles, Changes: 1, Slugs: []string{"hello-world-1"}},
	}
	if diff := cmp.Diff(want, invalidations); diff != "" {
		t.Errorf("invalidations mismatch (-want +got):\n%s", diff)
	}
	mu.Unlock()
}

func TestCreateArticle_Invalid(t *testing.T) {
	e := newEnv(t)
	s := newSupervisor(t, e)
	ctx := context.Background()

	bad := "../escape"
	for name, d := range map[string]Draft{
		"empty title":   {Content: "x"},
		"blank content": {Title: "T", Content: "  "},
		"bad category":  {Title: "T", Content: "x", Category: &bad},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.CreateArticle(ctx, d)
			require.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}

	_, err := s.CreateArticle(ctx, Draft{Title: "!!!", Content: "x"})
	require.ErrorIs(t, err, apperr.ErrInvalidTitle)
}

func TestUpdateArticle(t *testing.T) {
	e := newEnv(t)
	path := testutil.WriteEntry(t, e.articles, "old/post.md", testutil.Fixture{
		Title: "Post", Author: "ana", Date: testutil.Date(2023, 5, 1), Description: "d", Tags: []string{"x"}, Body: "v1",
	})
	s := newSupervisor(t, e)
	ctx := context.Background()

	_, err := s.UpdateArticle(ctx, "missing", Draft{Title: "T", Content: "c"})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := s.UpdateArticle(ctx, "post", Draft{Title: "Post v2", Content: "v2"})
	require.NoError(t, err)
	require.Equal(t, "ana", got.Metadata.Author)
	require.True(t, got.Metadata.Date.Equal(testutil.Date(2023, 5, 1)))
	require.Equal(t, []string{"x"}, got.Metadata.Tags)
	require.Equal(t, "d", got.Metadata.Description)
	require.NotNil(t, got.Metadata.LastUpdated)
	_, err = time.Parse(time.RFC3339, *got.Metadata.LastUpdated)
	require.NoError(t, err)
	require.Equal(t, path, got.FilePath)

	// moving to another category removes the old file
	newCat := "new"
	got, err = s.UpdateArticle(ctx, "post", Draft{Title: "Post v3", Content: "v3", Category: &newCat})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(e.articles, "new", "post.md"), got.FilePath)
	_, err = os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))

	c, err := s.Article("post")
	require.NoError(t, err)
	require.Equal(t, "v3", c.Body)
	require.Equal(t, "new", c.Metadata.CategoryName())

	changes, err := s.articles.cat.DetectChanges()
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestRestoreVersion(t *testing.T) {
	e := newEnv(t)
	s := newSupervisor(t, e)
	ctx := context.Background()

	created, err := s.CreateArticle(ctx, Draft{Title: "Story", Content: "original"})
	require.NoError(t, err)
	_, err = s.UpdateArticle(ctx, created.Slug, Draft{Title: "Story", Content: "rewritten"})
	require.NoError(t, err)

	versions, err := s.Versions(created.Slug)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Less(t, versions[0].Version, versions[1].Version)

	rec, err := s.RestoreVersion(ctx, created.Slug, versions[0].Version)
	require.NoError(t, err)
	require.Equal(t, "original", rec.Content)

	c, err := s.Article(created.Slug)
	require.NoError(t, err)
	require.Equal(t, "original", c.Body)
	require.Equal(t, "Story", c.Metadata.Title)

	versions, err = s.Versions(created.Slug)
	require.NoError(t, err)
	require.Len(t, versions, 3)

	data, err := os.ReadFile(created.FilePath)
	require.NoError(t, err)
	meta, body, err := frontmatter.Parse(data)
	require.NoError(t, err)
	require.Equal(t, "original", body)
	require.NotNil(t, meta.LastUpdated)

	_, err = s.RestoreVersion(ctx, created.Slug, 1)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.RestoreVersion(ctx, "missing", versions[0].Version)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Version(created.Slug, 1)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWatcher_SyncsCatalogAndIndex(t *testing.T) {
	e := newEnv(t)
	testutil.WriteEntry(t, e.articles, "keep.md", testutil.Fixture{Title: "Keep", Body: "steady"})
	s := newSupervisor(t, e, WithIndex(openIndex(t)))

	var mu sync.Mutex
	var invalidated []Collection
	touched := map[string]bool{}
	s.OnInvalidate(func(inv Invalidation) {
		mu.Lock()
		invalidated = append(invalidated, inv.Collection)
		for _, slug := range inv.Slugs {
			touched[slug] = true
		}
		mu.Unlock()
	})
	start(t, s)
	ctx := context.Background()

	searchSlugs := func(q string) []string {
		res, err := s.Search(ctx, q, 10, false)
		if err != nil {
			return nil
		}
		return hitSlugs(res.Hits)
	}

	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return cmp.Equal([]string{"keep"}, searchSlugs("steady"))
	}, "initial reindex not applied")

	path := testutil.WriteEntry(t, e.articles, "topic/fresh.md", testutil.Fixture{Title: "Fresh", Body: "wombat"})
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		_, err := s.Article("fresh")
		return err == nil
	}, "new file not picked up")
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return cmp.Equal([]string{"fresh"}, searchSlugs("wombat"))
	}, "new file not indexed")

	notePath := testutil.WriteEntry(t, e.notes, "jot.md", testutil.Fixture{Title: "Jot", Body: "platypus"})
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return cmp.Equal([]string{"notes/jot"}, searchSlugs("platypus"))
	}, "new note not indexed")

	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Remove(notePath))
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		_, err := s.Article("fresh")
		return errors.Is(err, apperr.ErrNotFound)
	}, "removed file still in catalog")
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return len(searchSlugs("wombat")) == 0 && len(searchSlugs("platypus")) == 0
	}, "removed files still indexed")

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, invalidated, Articles)
	require.Contains(t, invalidated, Notes)
	require.True(t, touched["fresh"], "fresh missing from %v", touched)
	require.True(t, touched["jot"], "jot missing from %v", touched)
}

func TestWatcher_DraftLeavesIndex(t *testing.T) {
	e := newEnv(t)
	path := testutil.WriteEntry(t, e.articles, "p.md", testutil.Fixture{Title: "P", Body: "narwhal"})
	s := newSupervisor(t, e, WithIndex(openIndex(t)))
	start(t, s)
	ctx := context.Background()

	found := func() int {
		res, err := s.Search(ctx, "narwhal", 10, false)
		if err != nil {
			return -1
		}
		return len(res.Hits)
	}
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool { return found() == 1 }, "not indexed")

	testutil.WriteEntry(t, e.articles, "p.md", testutil.Fixture{Title: "P", Body: "narwhal", Draft: true})
	testutil.Touch(t, path, time.Second)
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool { return found() == 0 }, "draft still indexed")
}

func TestCollapse(t *testing.T) {
	a1 := models.Document{Slug: "a", Title: "1"}
	a2 := models.Document{Slug: "a", Title: "2"}
	b := models.Document{Slug: "b"}

	upserts, removes := collapse([]job{
		upsertJob(a1),
		upsertJob(b),
		removeJob("a"),
		upsertJob(a2),
		removeJob("b"),
	})
	if diff := cmp.Diff([]models.Document{a2}, upserts); diff != "" {
		t.Errorf("upserts mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"a", "b"}, removes)
}

func TestQueue_TakeDrainsEverything(t *testing.T) {
	q := newQueue()
	q.push(removeJob("a"))
	q.push(removeJob("b"), removeJob("c"))

	jobs, ok := q.take(context.Background())
	require.True(t, ok)
	require.Len(t, jobs, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = q.take(ctx)
	require.False(t, ok)
}

func TestResync_QueueOrderMatchesCatalog(t *testing.T) {
	e := newEnv(t)
	path := testutil.WriteEntry(t, e.articles, "post.md", testutil.Fixture{Title: "Post", Body: "v0"})
	s := newSupervisor(t, e, WithIndex(openIndex(t)))
	ctx := context.Background()

	for i := range 200 {
		testutil.WriteEntry(t, e.articles, "post.md", testutil.Fixture{Title: "Post", Body: "external"})
		testutil.Touch(t, path, time.Duration(i+1)*time.Second)

		var wg sync.WaitGroup
		var updateErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.resync(ctx, s.articles)
		}()
		go func() {
			defer wg.Done()
			_, updateErr = s.UpdateArticle(ctx, "post", Draft{Title: "Post", Content: "edited"})
		}()
		wg.Wait()
		require.NoError(t, updateErr)

		jobs, ok := s.jobs.take(ctx)
		require.True(t, ok)
		upserts, _ := collapse(jobs)
		var last string
		for _, d := range upserts {
			if d.Slug == "post" {
				last = d.Content
			}
		}
		c, err := s.Article("post")
		require.NoError(t, err)
		require.Equal(t, c.Body, last, "iteration %d", i)
	}
}
