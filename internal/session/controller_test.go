package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stemsi/exstem-portal/internal/docstore"
	"github.com/stemsi/exstem-portal/internal/model"
)

func TestStartCreatesAttemptAndReloadResumesIt(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 2, 3)
	ctx := context.Background()

	first := newTestController(t, store, newManualTicks())
	if err := first.Start(ctx); err != nil {
		t.Fatal(err)
	}
	first.Signal(model.SignalTabSwitch)
	first.Signal(model.SignalTabSwitch)
	first.Select("q1", 1)
	if err := first.Close(ctx); err != nil {
		t.Fatal(err)
	}

	second := newTestController(t, store, newManualTicks())
	if err := second.Start(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err := second.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	attempts := attemptsFor(store)
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}
	if !snap.Resumed || snap.AttemptID != attempts[0].ID {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Violations.TabSwitches != 2 || attempts[0].Status != model.AttemptStatusInProgress {
		t.Fatalf("violations=%+v status=%s", snap.Violations, attempts[0].Status)
	}
	if snap.Answers["q1"] != 1 {
		t.Fatalf("answers = %v", snap.Answers)
	}
}

func TestStartNeverSendsAnswerKey(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1)
	c := newTestController(t, store, newManualTicks())
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap, _ := c.Snapshot()
	if len(snap.Questions) != 1 || len(snap.Questions[0].Options) != 4 {
		t.Fatalf("questions = %+v", snap.Questions)
	}
	if snap.RemainingSeconds != 3600 {
		t.Fatalf("remaining = %d", snap.RemainingSeconds)
	}
}

func TestStartFatalWhenExamMissing(t *testing.T) {
	store := docstore.NewMemoryStore()
	c := newTestController(t, store, newManualTicks())

	err := c.Start(context.Background())
	if !IsFatal(err) || !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("err = %v, want fatal exam-not-found", err)
	}
	if len(store.All(docstore.Attempts)) != 0 {
		t.Fatal("attempt created for a missing exam")
	}
	if _, err := c.Snapshot(); !errors.Is(err, ErrNotActive) {
		t.Fatalf("snapshot err = %v", err)
	}
	waitDone(t, c)
}

func TestStartRejectsSubmittedAttempt(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1)
	store.Seed(docstore.Attempts, docstore.Record{
		"id": "a0", "student": "s1", "exam": "e1",
		"status": "submitted", "started_at": testNow.Add(-time.Hour),
	})

	err := newTestController(t, store, newManualTicks()).Start(context.Background())
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestResumeUsesSmallerOfSnapshotAndWallClock(t *testing.T) {
	tests := []struct {
		name     string
		started  time.Duration
		snapshot *int
		want     int
	}{
		{"wall clock only", -10 * time.Minute, nil, 3000},
		{"snapshot smaller", -10 * time.Minute, intp(1200), 1200},
		{"wall clock smaller", -50 * time.Minute, intp(1200), 600},
		{"overdue", -2 * time.Hour, intp(60), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := docstore.NewMemoryStore()
			seedExam(store, 60, 1)
			rec := docstore.Record{
				"id": "a1", "student": "s1", "exam": "e1", "status": "in_progress",
				"started_at": testNow.Add(tt.started),
			}
			if tt.snapshot != nil {
				rec["remaining_seconds"] = *tt.snapshot
			}
			store.Seed(docstore.Attempts, rec)

			c := newTestController(t, store, newManualTicks())
			if err := c.Start(context.Background()); err != nil {
				t.Fatal(err)
			}
			if tt.want == 0 {
				waitDone(t, c)
				return
			}
			snap, _ := c.Snapshot()
			if snap.RemainingSeconds != tt.want {
				t.Fatalf("remaining = %d, want %d", snap.RemainingSeconds, tt.want)
			}
		})
	}
}

func TestNavigationRoundTripKeepsSelection(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1, 1)
	c := newTestController(t, store, newManualTicks())
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.Select("q1", 2)
	c.Next()
	c.Prev()

	snap, _ := c.Snapshot()
	if snap.Answers["q1"] != 2 || snap.CurrentIndex != 0 {
		t.Fatalf("answers=%v current=%d", snap.Answers, snap.CurrentIndex)
	}
	if err := c.Select("q1", 9); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("err = %v, want ErrInvalidOption", err)
	}
}

func TestSubmitScoresAndFinalizes(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 2, 3)
	store.Seed(docstore.Enrollments, docstore.Record{"id": "en1", "student": "s1", "exam": "e1", "status": "enrolled"})
	c := newTestController(t, store, newManualTicks())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	c.Select("q1", 1)
	c.Next()
	c.Select("q2", 3)

	if _, err := c.Submit(ctx, SubmitOptions{}); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v, want ErrConfirmationRequired", err)
	}
	res, err := c.Submit(ctx, SubmitOptions{Confirmed: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 2 || res.TotalMarks != 5 || res.Percentage != 40 || res.Status != model.ResultStatusPassed {
		t.Fatalf("result = %+v", res)
	}

	if n := len(store.All(docstore.Results)); n != 1 {
		t.Fatalf("results = %d", n)
	}
	if n := len(store.All(docstore.Responses)); n != 2 {
		t.Fatalf("responses = %d", n)
	}
	enr, _ := store.Get(ctx, docstore.Enrollments, "en1")
	if enr["status"] != "completed" {
		t.Fatalf("enrollment = %v", enr)
	}
	a := attemptsFor(store)[0]
	if a.Status != model.AttemptStatusSubmitted || a.SubmittedAt == nil {
		t.Fatalf("attempt = %+v", a)
	}
	if c.State() != StateSubmitted {
		t.Fatalf("state = %s", c.State())
	}

	if _, err := c.Submit(ctx, SubmitOptions{Confirmed: true}); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second submit err = %v", err)
	}
	if err := c.Select("q1", 0); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("select after submit err = %v", err)
	}
}

func TestViolationsCountedAtSubmission(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1)
	c := newTestController(t, store, newManualTicks())
	notices := &noticeLog{}
	c.Observe(notices.record)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := c.Signal(model.SignalTabSwitch); err != nil {
			t.Fatal(err)
		}
	}
	c.Signal(model.SignalContextMenu)
	if err := c.Signal("print_screen"); !errors.Is(err, ErrUnknownSignal) {
		t.Fatalf("err = %v", err)
	}

	if _, err := c.Submit(ctx, SubmitOptions{Confirmed: true}); err != nil {
		t.Fatal(err)
	}

	a := attemptsFor(store)[0]
	if a.TabSwitches != 3 || a.Total() != 3 {
		t.Fatalf("counters = %+v", a.ViolationCounters)
	}
	if notices.count(NoticeWarning) != 3 || notices.count(NoticeSuppressed) != 1 {
		t.Fatalf("warnings=%d suppressed=%d", notices.count(NoticeWarning), notices.count(NoticeSuppressed))
	}
	if c.monitor.Attached() {
		t.Fatal("monitor still attached after submission")
	}
	if err := c.Signal(model.SignalTabSwitch); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("signal after submit err = %v", err)
	}
}

func TestMarkedOnlyQuestionPersistsWithoutSelection(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1, 1, 4)
	c := newTestController(t, store, newManualTicks())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	c.Jump(2)
	c.Mark("q3", true)
	res, err := c.Submit(ctx, SubmitOptions{Confirmed: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 0 || res.TotalMarks != 6 {
		t.Fatalf("result = %+v", res)
	}

	recs := store.All(docstore.Responses)
	if len(recs) != 1 {
		t.Fatalf("responses = %v", recs)
	}
	if !docstore.RefersTo(recs[0]["question"], "q3") || recs[0]["selected_option"] != nil || recs[0]["marked_for_review"] != true {
		t.Fatalf("response = %v", recs[0])
	}
}

func TestExpiryDuringManualSubmitYieldsOneResult(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1)
	c := newTestController(t, store, newManualTicks())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	c.Select("q1", 1)

	entered := make(chan struct{})
	release := make(chan struct{})
	store.SetFault(func(ctx context.Context, op docstore.Op, collection string, _ docstore.Record) error {
		if op == docstore.OpCreate && collection == docstore.Results {
			close(entered)
			<-release
		}
		return nil
	})

	errc := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, SubmitOptions{Confirmed: true})
		errc <- err
	}()
	<-entered

	// The timer reaching zero while the manual submission is in flight.
	c.onExpire()
	if _, err := c.Submit(ctx, SubmitOptions{Forced: true}); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("forced submit err = %v, want ErrSubmitInProgress", err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if n := len(store.All(docstore.Results)); n != 1 {
		t.Fatalf("results = %d, want 1", n)
	}
}

func TestTimerExpiryForcesSubmission(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1)
	store.Seed(docstore.Attempts, docstore.Record{
		"id": "a1", "student": "s1", "exam": "e1", "status": "in_progress",
		"started_at": testNow.Add(-59 * time.Minute), "remaining_seconds": 2,
	})
	ticks := newManualTicks()
	c := newTestController(t, store, ticks)
	notices := &noticeLog{}
	c.Observe(notices.record)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ticks.fire(t)
	ticks.fire(t)
	waitDone(t, c)

	if c.State() != StateSubmitted {
		t.Fatalf("state = %s", c.State())
	}
	if n := len(store.All(docstore.Results)); n != 1 {
		t.Fatalf("results = %d", n)
	}
	a := attemptsFor(store)[0]
	if a.Status != model.AttemptStatusSubmitted || a.RemainingSeconds == nil || *a.RemainingSeconds != 0 {
		t.Fatalf("attempt = %+v", a)
	}
	if notices.count(NoticeTick) != 2 || notices.count(NoticeGraded) != 1 {
		t.Fatalf("ticks=%d graded=%d", notices.count(NoticeTick), notices.count(NoticeGraded))
	}
}

func TestSubmissionFailureIsTerminal(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1)
	c := newTestController(t, store, newManualTicks())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("connection reset")
	store.SetFault(func(_ context.Context, op docstore.Op, collection string, _ docstore.Record) error {
		if op == docstore.OpCreate && collection == docstore.Results {
			return boom
		}
		return nil
	})

	_, err := c.Submit(ctx, SubmitOptions{Confirmed: true})
	var serr *SubmissionError
	if !errors.As(err, &serr) || serr.Step != "create result" || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.State() != StateFailed {
		t.Fatalf("state = %s", c.State())
	}

	store.SetFault(nil)
	if _, again := c.Submit(ctx, SubmitOptions{Confirmed: true}); !errors.As(again, &serr) {
		t.Fatalf("retry err = %v, want the original SubmissionError", again)
	}
	if store.Calls(docstore.OpCreate, docstore.Results) != 1 {
		t.Fatal("submission was retried")
	}
	if attemptsFor(store)[0].Status == model.AttemptStatusSubmitted {
		t.Fatal("attempt finalized despite failure")
	}
}

func TestUnauthorizedResponseWritesSurface(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1)
	c := newTestController(t, store, newManualTicks())
	notices := &noticeLog{}
	c.Observe(notices.record)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	store.SetFault(func(_ context.Context, _ docstore.Op, collection string, _ docstore.Record) error {
		if collection == docstore.Responses {
			return docstore.ErrPermissionDenied
		}
		return nil
	})
	c.Select("q1", 0)
	drain(t, c)

	snap, _ := c.Snapshot()
	if !snap.ResponsesUnauthorized || notices.count(NoticeSaveError) != 1 {
		t.Fatalf("unauthorized=%v save_errors=%d", snap.ResponsesUnauthorized, notices.count(NoticeSaveError))
	}
}

func TestCloseKeepsAttemptResumable(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1)
	ticks := newManualTicks()
	c := newTestController(t, store, ticks)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	ticks.fire(t)
	eventually(t, func() bool { return c.timer.Remaining() == 3599 })

	if err := c.Close(ctx); err != nil {
		t.Fatal(err)
	}
	waitDone(t, c)

	a := attemptsFor(store)[0]
	if !a.Status.Live() || a.RemainingSeconds == nil || *a.RemainingSeconds != 3599 {
		t.Fatalf("attempt = %+v", a)
	}
	if err := c.Select("q1", 0); !errors.Is(err, ErrNotActive) {
		t.Fatalf("select after close err = %v", err)
	}
}

func TestStartFatalWhenAttemptStoreFails(t *testing.T) {
	boom := errors.New("connection refused")
	cases := []struct {
		name string
		seed bool
		op   docstore.Op
	}{
		{"create", false, docstore.OpCreate},
		{"resume", true, docstore.OpUpdate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := docstore.NewMemoryStore()
			seedExam(store, 60, 1)
			if tc.seed {
				store.Seed(docstore.Attempts, docstore.Record{
					"id": "a0", "student": "s1", "exam": "e1",
					"status": "in_progress", "started_at": testNow.Add(-time.Minute),
				})
			}
			store.SetFault(func(_ context.Context, op docstore.Op, collection string, _ docstore.Record) error {
				if op == tc.op && collection == docstore.Attempts {
					return boom
				}
				return nil
			})

			c := newTestController(t, store, newManualTicks())
			err := c.Start(context.Background())
			if !IsFatal(err) || !errors.Is(err, boom) {
				t.Fatalf("err = %v, want fatal wrapping the store error", err)
			}
			if _, err := c.Snapshot(); !errors.Is(err, ErrNotActive) {
				t.Fatalf("snapshot err = %v", err)
			}
			waitDone(t, c)
		})
	}
}

func TestViolationCounterWriteFailuresAreIgnored(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1)
	c := newTestController(t, store, newManualTicks())
	notices := &noticeLog{}
	c.Observe(notices.record)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	var failed atomic.Int32
	store.SetFault(func(_ context.Context, op docstore.Op, collection string, _ docstore.Record) error {
		if op == docstore.OpUpdate && collection == docstore.Attempts && failed.Add(1) <= 3 {
			return errors.New("write timeout")
		}
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := c.Signal(model.SignalTabSwitch); err != nil {
			t.Fatalf("signal %d: %v", i, err)
		}
	}
	drain(t, c)
	if notices.count(NoticeWarning) != 3 {
		t.Fatalf("warnings = %d, want 3", notices.count(NoticeWarning))
	}

	if _, err := c.Submit(ctx, SubmitOptions{Confirmed: true}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	a := attemptsFor(store)[0]
	if a.TabSwitches != 3 || a.Status != model.AttemptStatusSubmitted {
		t.Fatalf("tab switches = %d status = %s", a.TabSwitches, a.Status)
	}
}

func TestSubmitRetriesFailedClearOnEarlierQuestion(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1, 1, 1)
	c := newTestController(t, store, newManualTicks())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	c.Select("q1", 1)
	if err := c.Jump(2); err != nil {
		t.Fatal(err)
	}
	drain(t, c)

	store.SetFault(func(_ context.Context, op docstore.Op, collection string, _ docstore.Record) error {
		if op == docstore.OpUpdate && collection == docstore.Responses {
			return errors.New("connection reset")
		}
		return nil
	})
	if err := c.Clear("q1"); err != nil {
		t.Fatal(err)
	}
	drain(t, c)
	store.SetFault(nil)

	res, err := c.Submit(ctx, SubmitOptions{Confirmed: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 0 {
		t.Fatalf("score = %v, want 0", res.Score)
	}

	recs := store.All(docstore.Responses)
	if len(recs) != 1 {
		t.Fatalf("responses = %d, want 1", len(recs))
	}
	var q1 model.Response
	if err := docstore.Decode(recs[0], &q1); err != nil {
		t.Fatal(err)
	}
	if q1.SelectedOption != nil {
		t.Fatalf("q1 still stores option %d after being cleared and graded unanswered", *q1.SelectedOption)
	}
}

func TestResumeOpensOnLastTouchedQuestion(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1, 1, 1)
	store.Seed(docstore.Attempts, docstore.Record{
		"id": "a0", "student": "s1", "exam": "e1",
		"status": "in_progress", "started_at": testNow.Add(-10 * time.Minute),
	})
	response := func(id, qid string, age time.Duration) docstore.Record {
		return docstore.Record{
			"id": id, "student": "s1", "exam": "e1", "question": qid,
			"selected_option": 0, "marked_for_review": false,
			"updated_at": testNow.Add(-age),
		}
	}
	store.Seed(docstore.Responses,
		response("r1", "q1", 8*time.Minute),
		response("r3", "q3", 3*time.Minute),
		response("r2", "q2", 5*time.Minute),
	)

	c := newTestController(t, store, newManualTicks())
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap, _ := c.Snapshot()
	if snap.CurrentIndex != 2 {
		t.Fatalf("current index = %d, want 2 (q3)", snap.CurrentIndex)
	}
	if len(snap.Answers) != 3 {
		t.Fatalf("answers = %v", snap.Answers)
	}
}

func TestConcurrentSignalsNeverLowerStoredCounters(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedExam(store, 60, 1)
	c := newTestController(t, store, newManualTicks())
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var (
		mu      sync.Mutex
		written []int
	)
	store.SetFault(func(_ context.Context, op docstore.Op, collection string, data docstore.Record) error {
		if op == docstore.OpUpdate && collection == docstore.Attempts {
			if n, ok := data["tab_switch_count"].(int); ok {
				mu.Lock()
				written = append(written, n)
				mu.Unlock()
			}
		}
		return nil
	})

	const signals = 20
	var wg sync.WaitGroup
	for i := 0; i < signals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Signal(model.SignalTabSwitch)
		}()
	}
	wg.Wait()
	drain(t, c)

	mu.Lock()
	defer mu.Unlock()
	if len(written) != signals {
		t.Fatalf("counter writes = %d, want %d", len(written), signals)
	}
	for i := 1; i < len(written); i++ {
		if written[i] < written[i-1] {
			t.Fatalf("stored tab switches went from %d to %d: %v", written[i-1], written[i], written)
		}
	}
	if written[len(written)-1] != signals || attemptsFor(store)[0].TabSwitches != signals {
		t.Fatalf("final count = %d, stored = %d", written[len(written)-1], attemptsFor(store)[0].TabSwitches)
	}
}
