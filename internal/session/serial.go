package session

import (
	"context"
	"sync"
)

// serialQueue runs jobs one at a time per key, in enqueue order. Jobs under different
// keys run concurrently. It replaces a single shared "save in flight" flag, which would
// starve unrelated questions.
type serialQueue struct {
	mu          sync.Mutex
	pending     map[string][]serialJob
	running     map[string]bool
	outstanding int
	idle        []chan struct{}
}

type serialJob struct {
	fn   func() error
	done chan error
}

func newSerialQueue() *serialQueue {
	return &serialQueue{
		pending: make(map[string][]serialJob),
		running: make(map[string]bool),
	}
}

// Enqueue schedules fn behind every earlier job for key. The returned channel receives
// fn's error exactly once; callers may ignore it.
func (q *serialQueue) Enqueue(key string, fn func() error) <-chan error {
	job := serialJob{fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	q.pending[key] = append(q.pending[key], job)
	q.outstanding++
	start := !q.running[key]
	if start {
		q.running[key] = true
	}
	q.mu.Unlock()

	if start {
		go q.run(key)
	}
	return job.done
}

func (q *serialQueue) run(key string) {
	for {
		q.mu.Lock()
		jobs := q.pending[key]
		if len(jobs) == 0 {
			delete(q.pending, key)
			delete(q.running, key)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		q.pending[key] = jobs[1:]
		q.mu.Unlock()

		job.done <- job.fn()

		q.mu.Lock()
		q.outstanding--
		if q.outstanding == 0 {
			for _, ch := range q.idle {
				close(ch)
			}
			q.idle = nil
		}
		q.mu.Unlock()
	}
}

// Drain blocks until every job enqueued so far (and any enqueued meanwhile) has finished.
func (q *serialQueue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if q.outstanding == 0 {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.idle = append(q.idle, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
