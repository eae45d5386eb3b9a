package storage

import (
	"context"
	"sync"
	"time"
)

// saveJob is either a snapshot to write or, when data is nil, a flush barrier
type saveJob struct {
	data []byte
	done chan struct{}
}

// saveQueue writes snapshots one at a time in submission order. A failed
// write never blocks the writes queued behind it.
type saveQueue struct {
	path  string
	jobs  chan saveJob
	write func(path string, data []byte) error
	hook  func(err error, elapsed time.Duration)

	mu        sync.Mutex
	lastErr   error
	completed int64
	failed    int64
	pending   int

	stopped chan struct{}
}

func newSaveQueue(path string, depth int, hook func(error, time.Duration)) *saveQueue {
	q := &saveQueue{
		path:    path,
		jobs:    make(chan saveJob, depth),
		write:   atomicWrite,
		hook:    hook,
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *saveQueue) run() {
	defer close(q.stopped)

	for job := range q.jobs {
		if job.data == nil {
			close(job.done)
			continue
		}

		start := time.Now()
		err := q.write(q.path, job.data)
		elapsed := time.Since(start)

		q.mu.Lock()
		q.pending--
		q.lastErr = err
		if err != nil {
			q.failed++
		} else {
			q.completed++
		}
		q.mu.Unlock()

		if q.hook != nil {
			q.hook(err, elapsed)
		}
	}
}

// enqueue submits a snapshot. Callers serialize enqueue calls to fix the write order.
func (q *saveQueue) enqueue(data []byte) {
	q.mu.Lock()
	q.pending++
	q.mu.Unlock()
	q.jobs <- saveJob{data: data}
}

// barrier submits a marker that settles once every earlier save has settled
func (q *saveQueue) barrier(ctx context.Context) (chan struct{}, error) {
	done := make(chan struct{})
	select {
	case q.jobs <- saveJob{done: done}:
		return done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// wait blocks until the barrier settles and returns the most recent save outcome
func (q *saveQueue) wait(ctx context.Context, done chan struct{}) error {
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

// stop drains queued saves and stops the worker
func (q *saveQueue) stop(ctx context.Context) error {
	close(q.jobs)
	select {
	case <-q.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type queueStats struct {
	Pending   int
	Completed int64
	Failed    int64
	LastErr   error
}

func (q *saveQueue) stats() queueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return queueStats{Pending: q.pending, Completed: q.completed, Failed: q.failed, LastErr: q.lastErr}
}
