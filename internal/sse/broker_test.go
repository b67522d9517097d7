package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/quire/internal/supervisor"
)

// drain collects the frames buffered on c after the loop has caught up.
func drain(c *client) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg, ok := <-c.ch:
			if !ok {
				return out
			}
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func countEvents(frames []string, event string) int {
	n := 0
	for _, f := range frames {
		if strings.HasPrefix(f, "event: "+event+"\n") {
			n++
		}
	}
	return n
}

func TestJoinLeave(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	c := b.join("")
	b.leave(c)
	select {
	case _, ok := <-c.ch:
		if ok {
			t.Fatal("expected channel closed after leave")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close")
	}
}

func TestNotify_PayloadCarriesSlugs(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	c := b.join("")
	defer b.leave(c)

	b.Notify(supervisor.Invalidation{Collection: supervisor.Articles, Changes: 2, Slugs: []string{"a", "b"}})

	frames := drain(c)
	if len(frames) != 2 {
		t.Fatalf("frames = %q, want catalog.updated and cache.invalidated", frames)
	}
	want := "event: catalog.updated\ndata: {\"collection\":\"articles\",\"changes\":2,\"slugs\":[\"a\",\"b\"]}\n\n"
	if frames[0] != want {
		t.Errorf("frame = %q, want %q", frames[0], want)
	}
	if !strings.Contains(frames[1], `{"collection":"articles"}`) {
		t.Errorf("invalidation frame = %q", frames[1])
	}
}

func TestNotify_ThrottlePerCollection(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	c := b.join("")
	defer b.leave(c)

	b.Notify(supervisor.Invalidation{Collection: supervisor.Articles, Changes: 1})
	b.Notify(supervisor.Invalidation{Collection: supervisor.Articles, Changes: 1})
	b.Notify(supervisor.Invalidation{Collection: supervisor.Notes, Changes: 1})

	frames := drain(c)
	if n := countEvents(frames, EventCatalogUpdated); n != 3 {
		t.Errorf("catalog events = %d, want 3", n)
	}
	// the second articles change falls inside the window, notes has its own
	if n := countEvents(frames, EventCacheInvalidated); n != 2 {
		t.Errorf("invalidation events = %d, want 2", n)
	}
}

func TestNotify_FullReload(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	c := b.join("")
	defer b.leave(c)

	b.Notify(supervisor.Invalidation{Collection: supervisor.Notes, Changes: 7, Full: true})

	frames := drain(c)
	if len(frames) == 0 || !strings.Contains(frames[0], `"full":true`) {
		t.Errorf("frames = %q", frames)
	}
}

func TestServeHTTP_CollectionFilter(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?collection=notes", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	b.Notify(supervisor.Invalidation{Collection: supervisor.Articles, Changes: 1, Slugs: []string{"post"}})
	b.Notify(supervisor.Invalidation{Collection: supervisor.Notes, Changes: 1, Slugs: []string{"jot"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"slugs":["jot"]`) {
		t.Errorf("notes event missing: %q", body)
	}
	if strings.Contains(body, `"post"`) {
		t.Errorf("articles event leaked into notes stream: %q", body)
	}
}

func TestServeHTTP_UnknownCollection(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	w := httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events?collection=drafts", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestNotify_SlowReaderDoesNotBlock(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	c := b.join("")
	defer b.leave(c)

	for range clientBuffer + 10 {
		b.Notify(supervisor.Invalidation{Collection: supervisor.Articles, Changes: 1})
	}
	if frames := drain(c); len(frames) != clientBuffer {
		t.Errorf("buffered frames = %d, want %d", len(frames), clientBuffer)
	}
}

func TestClose_EndsStreams(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	c := b.join("")

	b.Close()

	select {
	case _, ok := <-c.ch:
		if ok {
			t.Fatal("expected channel closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	// no-ops once closed
	b.Notify(supervisor.Invalidation{Collection: supervisor.Articles})
	late := b.join("")
	if _, ok := <-late.ch; ok {
		t.Error("join after close should return a closed channel")
	}
}
