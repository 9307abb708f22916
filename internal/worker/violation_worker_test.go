package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/docstore"
	"github.com/stemsi/exstem-portal/internal/model"
)

type fakeQueue struct {
	mu       sync.Mutex
	pending  []model.ViolationEvent
	requeued []model.ViolationEvent
	popErr   error
}

func (q *fakeQueue) Pop(ctx context.Context, _ time.Duration) (*model.ViolationEvent, error) {
	q.mu.Lock()
	if q.popErr != nil {
		err := q.popErr
		q.popErr = nil
		q.mu.Unlock()
		return nil, err
	}
	if len(q.pending) == 0 {
		q.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}
	ev := q.pending[0]
	q.pending = q.pending[1:]
	q.mu.Unlock()
	return &ev, nil
}

func (q *fakeQueue) Requeue(_ context.Context, events []model.ViolationEvent) error {
	q.mu.Lock()
	q.requeued = append(q.requeued, events...)
	q.mu.Unlock()
	return nil
}

func (q *fakeQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0
}

func violation(id string, kind model.SignalKind) model.ViolationEvent {
	return model.ViolationEvent{
		ID:         id,
		Attempt:    docstore.NewRef("a1"),
		Student:    docstore.NewRef("s1"),
		Exam:       docstore.NewRef("e1"),
		Kind:       kind,
		Count:      1,
		OccurredAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestFlushSafeBulkPath(t *testing.T) {
	store := docstore.NewMemoryStore()
	w := newViolationWorker(store, &fakeQueue{}, zerolog.Nop())

	w.flushSafe(context.Background(), []model.ViolationEvent{
		violation("v1", model.SignalTabSwitch),
		violation("v2", model.SignalClipboard),
	})

	recs := store.All(docstore.ViolationEvents)
	if len(recs) != 2 || recs[1]["kind"] != "clipboard" {
		t.Fatalf("records = %v", recs)
	}
}

func TestFlushSafeFallbackRequeuesOnlyFailures(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.SetFault(func(_ context.Context, op docstore.Op, _ string, data docstore.Record) error {
		if op == docstore.OpCreate && data["kind"] == "fullscreen_exit" {
			return errors.New("disk full")
		}
		return nil
	})
	q := &fakeQueue{}
	w := newViolationWorker(store, q, zerolog.Nop())
	w.backoff = 0

	w.flushSafe(context.Background(), []model.ViolationEvent{
		violation("v1", model.SignalTabSwitch),
		violation("v2", model.SignalFullscreenExit),
		violation("v3", model.SignalClipboard),
	})

	if n := len(store.All(docstore.ViolationEvents)); n != 2 {
		t.Fatalf("stored = %d, want 2", n)
	}
	if len(q.requeued) != 1 || q.requeued[0].ID != "v2" {
		t.Fatalf("requeued = %+v", q.requeued)
	}
}

func TestStartPersistsAndFlushesOnShutdown(t *testing.T) {
	store := docstore.NewMemoryStore()
	q := &fakeQueue{
		pending: []model.ViolationEvent{
			violation("v1", model.SignalTabSwitch),
			violation("v2", model.SignalTabSwitch),
		},
		popErr: ErrMalformedPayload,
	}
	w := newViolationWorker(store, q, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !q.empty() {
		if time.Now().After(deadline) {
			t.Fatal("queue not drained")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if n := len(store.All(docstore.ViolationEvents)); n != 2 {
		t.Fatalf("stored = %d, want 2", n)
	}
}
