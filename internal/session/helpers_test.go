package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/docstore"
	"github.com/stemsi/exstem-portal/internal/model"
)

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type manualTicks struct {
	ch chan time.Time
}

func newManualTicks() *manualTicks {
	return &manualTicks{ch: make(chan time.Time)}
}

func (m *manualTicks) source(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() {}
}

// fire delivers one tick, failing the test if nobody is listening.
func (m *manualTicks) fire(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- testNow:
	case <-time.After(time.Second):
		t.Fatal("countdown is not receiving ticks")
	}
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *noticeLog) record(n Notice) {
	l.mu.Lock()
	l.notices = append(l.notices, n)
	l.mu.Unlock()
}

func (l *noticeLog) count(typ NoticeType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, x := range l.notices {
		if x.Type == typ {
			n++
		}
	}
	return n
}

// seedExam stores exam "e1" with one question per mark value. Question qN has four
// options and option 1 is correct.
func seedExam(store *docstore.MemoryStore, durationMinutes int, marks ...float64) {
	store.Seed(docstore.Exams, docstore.Record{"id": "e1", "name": "Matematika", "duration": durationMinutes})
	for i, m := range marks {
		qid := fmt.Sprintf("q%d", i+1)
		store.Seed(docstore.Questions, docstore.Record{
			"id":     qid,
			"prompt": map[string]any{"text": "Soal " + qid},
			"options": []any{
				map[string]any{"text": "A"},
				map[string]any{"text": "B"},
				map[string]any{"text": "C"},
				map[string]any{"text": "D"},
			},
			"correct_option": 1,
		})
		store.Seed(docstore.ExamQuestions, docstore.Record{
			"id":       fmt.Sprintf("m%d", i+1),
			"exam":     "e1",
			"question": map[string]any{"id": qid},
			"order":    i + 1,
			"marks":    m,
		})
	}
}

func newTestController(t *testing.T, store docstore.Store, ticks *manualTicks) *Controller {
	t.Helper()
	c := NewController(Deps{
		Store: store,
		Ticks: ticks.source,
		Now:   func() time.Time { return testNow },
		Log:   zerolog.Nop(),
	}, "s1", "e1")
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not finish")
	}
}

func drain(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.responses.Drain(ctx); err != nil {
		t.Fatalf("drain responses: %v", err)
	}
	if err := c.attemptWrites.Drain(ctx); err != nil {
		t.Fatalf("drain attempt writes: %v", err)
	}
}

// eventually polls cond for up to a second.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func intp(v int) *int { return &v }

func attemptsFor(store *docstore.MemoryStore) []model.Attempt {
	var out []model.Attempt
	for _, rec := range store.All(docstore.Attempts) {
		var a model.Attempt
		if err := docstore.Decode(rec, &a); err == nil {
			out = append(out, a)
		}
	}
	return out
}
