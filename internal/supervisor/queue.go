package supervisor

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/quire/internal/models"
)

// job is either an upsert of doc or a removal of slug.
type job struct {
	doc    *models.Document
	remove string
}

func upsertJob(d models.Document) job { return job{doc: &d} }

func removeJob(slug string) job { return job{remove: slug} }

// queue is an unbounded FIFO of index jobs. push never blocks.
type queue struct {
	mu     sync.Mutex
	jobs   []job
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(jobs ...job) {
	if len(jobs) == 0 {
		return
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, jobs...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// take waits until at least one job is queued and returns every queued
// job. It returns false once ctx is done.
func (q *queue) take(ctx context.Context) ([]job, bool) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			batch := q.jobs
			q.jobs = nil
			q.mu.Unlock()
			return batch, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.notify:
		}
	}
}

// collapse turns a job sequence into one batch for ApplyBatch, where
// removals run before upserts. An upsert followed by a removal of the same
// slug is dropped so the removal still wins.
func collapse(jobs []job) (upserts []models.Document, removes []string) {
	for _, j := range jobs {
		if j.doc != nil {
			upserts = append(upserts, *j.doc)
			continue
		}
		upserts = slices.DeleteFunc(upserts, func(d models.Document) bool { return d.Slug == j.remove })
		removes = append(removes, j.remove)
	}
	return upserts, removes
}

// indexWorker drains the queue into index batches until ctx is done. A
// failed batch is logged and dropped; the next full reindex restores
// convergence.
func (s *Supervisor) indexWorker(ctx context.Context) error {
	for {
		jobs, ok := s.jobs.take(ctx)
		if !ok {
			return nil
		}
		upserts, removes := collapse(jobs)
		if err := s.index.ApplyBatch(ctx, upserts, removes, s.cfg.HeapSize); err != nil {
			s.logger.Error("indexer: batch failed",
				slog.Int("jobs", len(jobs)),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Debug("indexer: batch applied",
			slog.Int("upserts", len(upserts)),
			slog.Int("removes", len(removes)))
	}
}

// enqueue forwards jobs to the indexer when search is enabled.
func (s *Supervisor) enqueue(jobs ...job) {
	if s.index == nil {
		return
	}
	s.jobs.push(jobs...)
}
