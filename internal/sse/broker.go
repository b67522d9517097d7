// Package sse streams catalog invalidations to browsers as Server-Sent
// Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/quire/internal/supervisor"
)

// Event names written to the stream.
const (
	EventCatalogUpdated   = "catalog.updated"
	EventCacheInvalidated = "cache.invalidated"
)

const clientBuffer = 64

// CatalogChange is the data of a catalog.updated event.
type CatalogChange struct {
	Collection string   `json:"collection"`
	Changes    int      `json:"changes"`
	Slugs      []string `json:"slugs,omitempty"`
	Full       bool     `json:"full,omitempty"`
}

// CacheInvalidation is the data of a cache.invalidated event.
type CacheInvalidation struct {
	Collection string `json:"collection"`
}

// client is one open stream. An empty collection receives every event.
type client struct {
	ch         chan []byte
	collection string
}

// Broker fans supervisor invalidations out to connected streams.
//
// The client set and the per-collection throttle state belong to the run
// loop.
type Broker struct {
	throttle time.Duration

	joinCh   chan *client
	leaveCh  chan *client
	changeCh chan CatalogChange

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. cache.invalidated is sent at most once per
// throttle for each collection.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		throttle: throttle,
		joinCh:   make(chan *client),
		leaveCh:  make(chan *client),
		changeCh: make(chan CatalogChange, 256),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go b.run()
	return b
}

func frame(event string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event, payload)
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[*client]struct{})
	lastFlush := make(map[string]time.Time)

	send := func(collection string, msg []byte) {
		if msg == nil {
			return
		}
		for c := range clients {
			if c.collection != "" && c.collection != collection {
				continue
			}
			select {
			case c.ch <- msg:
			default:
				// slow reader, frame dropped
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for c := range clients {
				close(c.ch)
			}
			return

		case c := <-b.joinCh:
			clients[c] = struct{}{}

		case c := <-b.leaveCh:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.ch)
			}

		case change := <-b.changeCh:
			send(change.Collection, frame(EventCatalogUpdated, change))

			now := time.Now()
			if now.Sub(lastFlush[change.Collection]) >= b.throttle {
				lastFlush[change.Collection] = now
				send(change.Collection, frame(EventCacheInvalidated, CacheInvalidation{Collection: change.Collection}))
			}
		}
	}
}

// Close stops the loop and ends every open stream.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

func (b *Broker) join(collection string) *client {
	c := &client{ch: make(chan []byte, clientBuffer), collection: collection}
	if b.closed.Load() {
		close(c.ch)
		return c
	}
	select {
	case b.joinCh <- c:
	case <-b.stopped:
		close(c.ch)
	}
	return c
}

func (b *Broker) leave(c *client) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaveCh <- c:
	case <-b.stopped:
	}
}

// Notify queues inv for broadcast. It has the signature of a supervisor
// invalidation hook.
func (b *Broker) Notify(inv supervisor.Invalidation) {
	if b.closed.Load() {
		return
	}
	change := CatalogChange{
		Collection: string(inv.Collection),
		Changes:    inv.Changes,
		Slugs:      inv.Slugs,
		Full:       inv.Full,
	}
	select {
	case b.changeCh <- change:
	case <-b.stopped:
	}
}

// ServeHTTP streams events until the client disconnects. The optional
// collection query parameter limits the stream to articles or notes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	collection := r.URL.Query().Get("collection")
	switch supervisor.Collection(collection) {
	case "", supervisor.Articles, supervisor.Notes:
	default:
		http.Error(w, "unknown collection", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	c := b.join(collection)
	defer b.leave(c)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-c.ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
