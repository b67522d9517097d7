package search

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// RecentCapacity is the number of query events kept by Stats.
const RecentCapacity = 1000

// QueryCount is a query with the number of times it was searched.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// QueryEvent is one recorded search.
type QueryEvent struct {
	Query string    `json:"query"`
	At    time.Time `json:"at"`
}

// Stats counts searched queries and keeps a ring of the latest ones.
type Stats struct {
	mu     sync.Mutex
	counts map[string]int
	recent []QueryEvent
	next   int
	now    func() time.Time
}

func NewStats() *Stats {
	return &Stats{
		counts: make(map[string]int),
		recent: make([]QueryEvent, 0, RecentCapacity),
		now:    time.Now,
	}
}

// Record counts one search for q.
func (s *Stats) Record(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[q]++
	ev := QueryEvent{Query: q, At: s.now().UTC()}
	if len(s.recent) < RecentCapacity {
		s.recent = append(s.recent, ev)
		return
	}
	s.recent[s.next] = ev
	s.next = (s.next + 1) % RecentCapacity
}

// Top returns the k most searched queries, most frequent first. Ties are
// ordered by query text.
func (s *Stats) Top(k int) []QueryCount {
	s.mu.Lock()
	out := make([]QueryCount, 0, len(s.counts))
	for q, n := range s.counts {
		out = append(out, QueryCount{Query: q, Count: n})
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if k >= 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

// Recent returns the recorded events, oldest first.
func (s *Stats) Recent() []QueryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]QueryEvent, 0, len(s.recent))
	out = append(out, s.recent[s.next:]...)
	out = append(out, s.recent[:s.next]...)
	return out
}
