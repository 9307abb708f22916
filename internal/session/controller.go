// Package session is the timed assessment engine: one Controller per live
// (student, exam) pair owns the attempt lifecycle, countdown, violation monitor,
// answer persistence and final scoring.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/docstore"
	"github.com/stemsi/exstem-portal/internal/event"
	"github.com/stemsi/exstem-portal/internal/logger"
	"github.com/stemsi/exstem-portal/internal/model"
)

const (
	submitTimeout = 30 * time.Second
	closeTimeout  = 5 * time.Second
	attemptKey    = "attempt"
)

// State is the controller lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateActive     State = "active"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateFailed     State = "failed"
	StateClosed     State = "closed"
)

// ViolationLog receives the append-only audit trail of counted violations.
type ViolationLog interface {
	Append(ctx context.Context, ev model.ViolationEvent) error
}

// Deps are the controller's collaborators.
type Deps struct {
	Store        docstore.Store
	Locker       Locker
	Publisher    event.Publisher
	ViolationLog ViolationLog
	Ticks        TickSource
	Now          func() time.Time
	// LockKey builds the attempt lock key. Defaults to "<student>:<exam>".
	LockKey          func(studentID, examID string) string
	SnapshotInterval time.Duration
	Log              zerolog.Logger
}

// SubmitOptions qualify a submission request.
type SubmitOptions struct {
	// Confirmed is the student's explicit confirmation; required unless Forced.
	Confirmed bool
	// Forced marks the timer-driven submission.
	Forced bool
}

// Snapshot is the full session state a client needs to render or recover.
type Snapshot struct {
	State                 State                      `json:"state"`
	AttemptID             string                     `json:"attempt_id"`
	AttemptStatus         model.AttemptStatus        `json:"attempt_status"`
	Resumed               bool                       `json:"resumed"`
	ExamID                string                     `json:"exam_id"`
	ExamName              string                     `json:"exam_name"`
	DurationMinutes       int                        `json:"duration_minutes"`
	Questions             []model.QuestionForStudent `json:"questions"`
	Answers               map[string]int             `json:"answers"`
	Marked                map[string]bool            `json:"marked"`
	CurrentIndex          int                        `json:"current_index"`
	CurrentQuestionID     string                     `json:"current_question_id"`
	Palette               []PaletteEntry             `json:"palette"`
	RemainingSeconds      int                        `json:"remaining_seconds"`
	Violations            model.ViolationCounters    `json:"violations"`
	ResponsesUnauthorized bool                       `json:"responses_unauthorized"`
	Result                *model.Result              `json:"result,omitempty"`
}

// Controller drives one student's attempt at one exam.
type Controller struct {
	deps      Deps
	studentID string
	examID    string
	log       zerolog.Logger

	mu            sync.Mutex
	state         State
	resumed       bool
	def           *model.ExamDefinition
	questions     map[string]model.Question
	attempt       model.Attempt
	nav           *Navigator
	responses     *ResponseStore
	monitor       *Monitor
	timer         *Countdown
	sinceSnapshot int
	result        *model.Result
	submitErr     error

	signals       *Bus[Signal]
	notices       *Bus[Notice]
	attemptWrites *serialQueue

	done     chan struct{}
	doneOnce sync.Once
}

// NewController creates an idle controller. Call Start before anything else.
func NewController(deps Deps, studentID, examID string) *Controller {
	if deps.Locker == nil {
		deps.Locker = NopLocker{}
	}
	if deps.Publisher == nil {
		deps.Publisher = event.Nop{}
	}
	if deps.Ticks == nil {
		deps.Ticks = RealTicks
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.LockKey == nil {
		deps.LockKey = func(s, e string) string { return s + ":" + e }
	}

	return &Controller{
		deps:          deps,
		studentID:     studentID,
		examID:        examID,
		log:           logger.Session(deps.Log, studentID, examID),
		state:         StateIdle,
		signals:       &Bus[Signal]{},
		notices:       &Bus[Notice]{},
		attemptWrites: newSerialQueue(),
		done:          make(chan struct{}),
	}
}

// StudentID returns the owning student.
func (c *Controller) StudentID() string { return c.studentID }

// ExamID returns the exam.
func (c *Controller) ExamID() string { return c.examID }

// Done is closed once the controller reaches a terminal state or is closed.
func (c *Controller) Done() <-chan struct{} { return c.done }

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Observe registers fn for every outbound notice until the returned func is called.
func (c *Controller) Observe(fn func(Notice)) func() {
	return c.notices.Subscribe(fn)
}

// Start loads the exam, opens or resumes the attempt and starts the countdown.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	if err := c.open(ctx); err != nil {
		c.state = StateClosed
		c.mu.Unlock()
		c.finish()
		c.log.Error().Err(err).Msg("Session failed to start")
		return err
	}

	// The attempt id is known from here on, so signals can be counted against it.
	c.state = StateActive
	c.timer.Start()
	c.monitor.Attach(c.signals)
	resumed := c.resumed
	remaining := c.timer.Remaining()
	c.mu.Unlock()

	typ := event.AttemptStarted
	if resumed {
		typ = event.AttemptResumed
	}
	c.publish(ctx, typ, map[string]any{"remaining_seconds": remaining})

	c.log.Info().
		Bool("resumed", resumed).
		Int("remaining_seconds", remaining).
		Msg("Session started")
	return nil
}

// open does the fallible part of Start. Caller holds c.mu.
func (c *Controller) open(ctx context.Context) error {
	def, questions, err := loadExam(ctx, c.deps.Store, c.examID)
	if err != nil {
		return &FatalError{Op: "load exam", Err: err}
	}
	c.def = def
	c.questions = questions

	release, err := c.deps.Locker.Acquire(ctx, c.deps.LockKey(c.studentID, c.examID))
	if err != nil {
		return &FatalError{Op: "lock attempt", Err: err}
	}
	defer release()

	attempt, resumed, err := c.openAttempt(ctx)
	if err != nil {
		return &FatalError{Op: "open attempt", Err: err}
	}
	c.attempt = attempt
	c.resumed = resumed
	c.log = c.log.With().Str("attempt_id", attempt.ID).Logger()

	c.responses = NewResponseStore(c.deps.Store, c.studentID, c.examID, c.onUnauthorized, c.log)
	existing, err := c.responses.Load(ctx)
	if err != nil {
		return &FatalError{Op: "load responses", Err: err}
	}
	c.responses.Hydrate(existing)

	c.nav = NewNavigator(def.QuestionIDs(), c.flushResponse)
	var latest *model.Response
	for i, r := range existing {
		c.nav.Restore(r.Question.ID(), AnswerState{Selected: r.SelectedOption, Marked: r.MarkedForReview})
		if latest == nil || !r.UpdatedAt.Before(latest.UpdatedAt) {
			latest = &existing[i]
		}
	}
	if latest != nil {
		c.nav.Seek(latest.Question.ID())
	}

	c.monitor = NewMonitor(attempt.ViolationCounters, MonitorHooks{
		Persist:    c.persistViolation,
		Warn:       c.onWarning,
		Suppressed: c.onSuppressed,
	}, c.log)
	c.timer = NewCountdown(c.initialRemaining(), c.deps.Ticks, c.onTick, c.onExpire)
	return nil
}

// openAttempt resumes the live attempt or creates the first one.
func (c *Controller) openAttempt(ctx context.Context) (model.Attempt, bool, error) {
	attempts, err := findAttempts(ctx, c.deps.Store, c.studentID, c.examID)
	if err != nil {
		return model.Attempt{}, false, err
	}

	now := c.deps.Now().UTC()
	submitted := false
	for _, a := range attempts {
		if !a.Status.Live() {
			submitted = submitted || a.Status == model.AttemptStatusSubmitted
			continue
		}
		rec, err := c.deps.Store.Update(ctx, docstore.Attempts, a.ID, docstore.Record{
			"status":         string(model.AttemptStatusInProgress),
			"last_active_at": now,
		})
		if err != nil {
			return model.Attempt{}, false, fmt.Errorf("resume attempt: %w", err)
		}
		var resumed model.Attempt
		if err := docstore.Decode(rec, &resumed); err != nil {
			return model.Attempt{}, false, err
		}
		if resumed.ID == "" {
			resumed.ID = a.ID
		}
		return resumed, true, nil
	}
	if submitted {
		return model.Attempt{}, false, ErrAlreadySubmitted
	}

	rec, err := c.deps.Store.Create(ctx, docstore.Attempts, docstore.Record{
		"student":               c.studentID,
		"exam":                  c.examID,
		"status":                string(model.AttemptStatusStarted),
		"tab_switch_count":      0,
		"fullscreen_exit_count": 0,
		"clipboard_count":       0,
		"started_at":            now,
		"last_active_at":        now,
	})
	if err != nil {
		return model.Attempt{}, false, fmt.Errorf("create attempt: %w", err)
	}
	var created model.Attempt
	if err := docstore.Decode(rec, &created); err != nil {
		return model.Attempt{}, false, err
	}
	return created, false, nil
}

// initialRemaining is the full allowance minus wall-clock time since start, capped by
// the last persisted snapshot.
func (c *Controller) initialRemaining() int {
	remaining := c.def.DurationSeconds()
	if !c.attempt.StartedAt.IsZero() {
		elapsed := int(c.deps.Now().Sub(c.attempt.StartedAt).Seconds())
		if elapsed > 0 {
			remaining -= elapsed
		}
	}
	if snap := c.attempt.RemainingSeconds; snap != nil && *snap < remaining {
		remaining = *snap
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.def == nil || c.nav == nil {
		return Snapshot{}, ErrNotActive
	}

	questions := make([]model.QuestionForStudent, 0, len(c.def.Questions))
	for _, ref := range c.def.Questions {
		q := c.questions[ref.QuestionID]
		questions = append(questions, q.StudentView(ref))
	}
	idx, qid := c.nav.Current()

	status := c.attempt.Status
	if c.state == StateSubmitted {
		status = model.AttemptStatusSubmitted
	}

	return Snapshot{
		State:                 c.state,
		AttemptID:             c.attempt.ID,
		AttemptStatus:         status,
		Resumed:               c.resumed,
		ExamID:                c.def.ID,
		ExamName:              c.def.Name,
		DurationMinutes:       c.def.DurationMinutes,
		Questions:             questions,
		Answers:               c.nav.Answers(),
		Marked:                c.nav.Marked(),
		CurrentIndex:          idx,
		CurrentQuestionID:     qid,
		Palette:               c.nav.Palette(),
		RemainingSeconds:      c.timer.Remaining(),
		Violations:            c.monitor.Counters(),
		ResponsesUnauthorized: c.responses.Unauthorized(),
		Result:                c.result,
	}, nil
}

// Select records an answer for a question.
func (c *Controller) Select(questionID string, option int) error {
	return c.mutate(func() error {
		q, ok := c.questions[questionID]
		if !ok {
			return ErrUnknownQuestion
		}
		if !q.ValidOption(option) {
			return ErrInvalidOption
		}
		return c.nav.Select(questionID, option)
	})
}

// Clear removes a question's answer.
func (c *Controller) Clear(questionID string) error {
	return c.mutate(func() error { return c.nav.Clear(questionID) })
}

// Mark flags or unflags a question for review.
func (c *Controller) Mark(questionID string, marked bool) error {
	return c.mutate(func() error { return c.nav.SetMarked(questionID, marked) })
}

// Next moves to the following question.
func (c *Controller) Next() error {
	return c.mutate(func() error { c.nav.Next(); return nil })
}

// Prev moves to the previous question.
func (c *Controller) Prev() error {
	return c.mutate(func() error { c.nav.Prev(); return nil })
}

// Jump moves to the question at index.
func (c *Controller) Jump(index int) error {
	return c.mutate(func() error {
		_, err := c.nav.Jump(index)
		return err
	})
}

func (c *Controller) mutate(fn func() error) error {
	c.mu.Lock()
	if err := c.activeLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	err := fn()
	palette := c.nav.Palette()
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.notify(Notice{Type: NoticePalette, Palette: palette})
	return nil
}

// activeLocked maps the lifecycle state to the error a mutation should see.
func (c *Controller) activeLocked() error {
	switch c.state {
	case StateActive:
		return nil
	case StateSubmitting:
		return ErrSubmitInProgress
	case StateSubmitted:
		return ErrAlreadySubmitted
	case StateFailed:
		return c.submitErr
	default:
		return ErrNotActive
	}
}

// Signal feeds one client integrity signal to the violation monitor.
func (c *Controller) Signal(kind model.SignalKind) error {
	if !kind.Known() {
		return ErrUnknownSignal
	}
	c.mu.Lock()
	err := c.activeLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.signals.Publish(Signal{Kind: kind, At: c.deps.Now().UTC()})
	return nil
}

// Submit grades the attempt. Only one submission can ever run.
func (c *Controller) Submit(ctx context.Context, opts SubmitOptions) (*model.Result, error) {
	if !opts.Forced && !opts.Confirmed {
		return nil, ErrConfirmationRequired
	}

	c.mu.Lock()
	if err := c.activeLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.state = StateSubmitting
	c.timer.Stop()

	// Every question with a stored record is flushed too, so an earlier failed
	// clear cannot leave a stale selection behind the graded result.
	states := c.nav.States()
	_, currentID := c.nav.Current()
	for _, qid := range append(c.responses.Recorded(), currentID) {
		if _, ok := states[qid]; !ok && c.nav.Contains(qid) {
			states[qid] = c.nav.State(qid)
		}
	}
	answers := c.nav.Answers()
	counters := c.monitor.Counters()
	remaining := c.timer.Remaining()
	attempt := c.attempt
	def := c.def
	key := make(map[string]int, len(c.questions))
	for id, q := range c.questions {
		key[id] = q.CorrectOption
	}
	c.mu.Unlock()

	c.log.Info().Bool("forced", opts.Forced).Msg("Submitting attempt")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
	defer cancel()

	// 1. Responses.
	if err := c.responses.FlushAll(ctx, states); err != nil {
		return nil, c.fail(ctx, "flush responses", err)
	}
	if err := c.responses.Drain(ctx); err != nil {
		return nil, c.fail(ctx, "flush responses", err)
	}

	// 2. Score.
	tally := Score(answers, def.Questions, key)
	now := c.deps.Now().UTC()

	// 3. Result.
	existing, err := findResult(ctx, c.deps.Store, attempt.ID)
	if err != nil {
		return nil, c.fail(ctx, "create result", err)
	}
	if existing != nil {
		return nil, c.fail(ctx, "create result", ErrResultExists)
	}
	result := model.Result{
		Student:          docstore.NewRef(c.studentID),
		Exam:             docstore.NewRef(c.examID),
		Attempt:          docstore.NewRef(attempt.ID),
		Score:            tally.Score,
		TotalMarks:       tally.TotalMarks,
		Percentage:       tally.Percentage,
		Status:           tally.Status,
		TimeTakenMinutes: TimeTakenMinutes(attempt.StartedAt, now),
		StartedAt:        attempt.StartedAt,
		EndedAt:          now,
	}
	rec, err := docstore.Encode(result)
	if err != nil {
		return nil, c.fail(ctx, "create result", err)
	}
	delete(rec, "id")
	created, err := c.deps.Store.Create(ctx, docstore.Results, rec)
	if err != nil {
		return nil, c.fail(ctx, "create result", err)
	}
	result.ID = created.ID()

	// 4. Enrollment.
	if err := c.completeEnrollment(ctx, now); err != nil {
		return nil, c.fail(ctx, "update enrollment", err)
	}

	// 5. Terminal attempt write, after any queued counter writes.
	if err := c.attemptWrites.Drain(ctx); err != nil {
		return nil, c.fail(ctx, "finalize attempt", err)
	}
	patch := counters.CounterPatch()
	patch["status"] = string(model.AttemptStatusSubmitted)
	patch["remaining_seconds"] = remaining
	patch["submitted_at"] = now
	patch["last_active_at"] = now
	if _, err := c.deps.Store.Update(ctx, docstore.Attempts, attempt.ID, patch); err != nil {
		return nil, c.fail(ctx, "finalize attempt", err)
	}

	c.mu.Lock()
	c.state = StateSubmitted
	c.result = &result
	c.attempt.Status = model.AttemptStatusSubmitted
	c.attempt.ViolationCounters = counters
	c.attempt.SubmittedAt = &now
	c.mu.Unlock()

	c.teardown()
	c.notify(Notice{Type: NoticeGraded, Result: &result})
	c.publish(ctx, event.ResultCreated, map[string]any{
		"result_id":  result.ID,
		"score":      result.Score,
		"percentage": result.Percentage,
		"status":     string(result.Status),
		"forced":     opts.Forced,
	})
	c.finish()

	c.log.Info().
		Float64("score", result.Score).
		Float64("percentage", result.Percentage).
		Str("status", string(result.Status)).
		Msg("Attempt submitted")
	return &result, nil
}

// completeEnrollment flips the student's enrollment to completed when one exists.
func (c *Controller) completeEnrollment(ctx context.Context, now time.Time) error {
	enrollments, err := findEnrollments(ctx, c.deps.Store, c.studentID, c.examID)
	if err != nil {
		return err
	}
	if len(enrollments) == 0 {
		c.log.Debug().Msg("No enrollment to complete")
		return nil
	}
	for _, e := range enrollments {
		if e.Status == model.EnrollmentStatusCompleted {
			continue
		}
		if _, err := c.deps.Store.Update(ctx, docstore.Enrollments, e.ID, docstore.Record{
			"status":       string(model.EnrollmentStatusCompleted),
			"completed_at": now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) fail(ctx context.Context, step string, err error) error {
	serr := &SubmissionError{Step: step, Err: err}

	c.mu.Lock()
	c.state = StateFailed
	c.submitErr = serr
	c.mu.Unlock()

	c.log.Error().Err(err).Str("step", step).Msg("Submission failed")
	c.teardown()
	c.notify(Notice{Type: NoticeSubmissionFailed, Err: serr, Persistent: true})
	c.publish(ctx, event.SubmissionFailed, map[string]any{"step": step})
	c.finish()
	return serr
}

// Close unmounts the session. The attempt and its responses stay resumable.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive {
		if c.state == StateIdle {
			c.state = StateClosed
			c.mu.Unlock()
			c.finish()
			return nil
		}
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.timer.Stop()
	remaining := c.timer.Remaining()
	counters := c.monitor.Counters()
	attemptID := c.attempt.ID
	c.mu.Unlock()

	c.teardown()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	patch := counters.CounterPatch()
	patch["remaining_seconds"] = remaining
	patch["last_active_at"] = c.deps.Now().UTC()
	c.enqueueAttemptWrite(ctx, "snapshot", attemptID, patch)

	if err := c.attemptWrites.Drain(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Attempt snapshot did not finish before close")
	}
	if err := c.responses.Drain(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Response writes did not finish before close")
	}

	c.publish(ctx, event.AttemptSuspended, map[string]any{"remaining_seconds": remaining})
	c.notify(Notice{Type: NoticeClosed, RemainingSeconds: remaining})
	c.finish()

	c.log.Info().Int("remaining_seconds", remaining).Msg("Session closed")
	return nil
}

// teardown detaches every listener. Idempotent.
func (c *Controller) teardown() {
	c.mu.Lock()
	monitor, timer := c.monitor, c.timer
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if monitor != nil {
		monitor.Release()
	}
}

func (c *Controller) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Controller) onTick(remaining int) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	snapshot := false
	if c.deps.SnapshotInterval > 0 {
		c.sinceSnapshot++
		if time.Duration(c.sinceSnapshot)*time.Second >= c.deps.SnapshotInterval {
			c.sinceSnapshot = 0
			snapshot = true
		}
	}
	attemptID := c.attempt.ID
	c.mu.Unlock()

	if snapshot {
		c.enqueueAttemptWrite(context.Background(), "snapshot", attemptID, docstore.Record{
			"remaining_seconds": remaining,
			"last_active_at":    c.deps.Now().UTC(),
		})
	}
	c.notify(Notice{Type: NoticeTick, RemainingSeconds: remaining})
}

func (c *Controller) onExpire() {
	c.log.Info().Msg("Time expired, forcing submission")
	if _, err := c.Submit(context.Background(), SubmitOptions{Forced: true}); err != nil &&
		!errors.Is(err, ErrSubmitInProgress) && !errors.Is(err, ErrAlreadySubmitted) {
		c.log.Error().Err(err).Msg("Forced submission failed")
	}
}

func (c *Controller) flushResponse(questionID string, state AnswerState) {
	done := c.responses.Enqueue(context.Background(), questionID, state)
	go func() {
		if err := <-done; err == nil {
			c.notify(Notice{Type: NoticeSaved, QuestionID: questionID})
		}
	}()
}

func (c *Controller) onUnauthorized(err error) {
	c.notify(Notice{
		Type:       NoticeSaveError,
		Err:        ErrResponsesNotRecorded,
		Persistent: true,
	})
}

func (c *Controller) onWarning(w Warning) {
	c.notify(Notice{Type: NoticeWarning, Kind: w.Kind, Warning: &w})
}

func (c *Controller) onSuppressed(kind model.SignalKind) {
	c.notify(Notice{Type: NoticeSuppressed, Kind: kind})
}

// persistViolation requests a background counter write and audit entry. Failures are
// logged and never surface to the student.
func (c *Controller) persistViolation(kind model.SignalKind, counters model.ViolationCounters) {
	c.mu.Lock()
	attemptID := c.attempt.ID
	monitor := c.monitor
	c.mu.Unlock()

	now := c.deps.Now().UTC()
	ctx := context.Background()
	// Counters are read when the job runs, not when it was queued, so concurrent
	// signals can never write an older count over a newer one.
	c.attemptWrites.Enqueue(attemptKey, func() error {
		patch := monitor.Counters().CounterPatch()
		patch["last_active_at"] = now
		if _, err := c.deps.Store.Update(ctx, docstore.Attempts, attemptID, patch); err != nil {
			c.log.Warn().Err(err).Str("write", "violation counters").Msg("Failed to persist attempt")
			return err
		}
		return nil
	})

	count := 0
	switch kind {
	case model.SignalTabSwitch:
		count = counters.TabSwitches
	case model.SignalFullscreenExit:
		count = counters.FullscreenExits
	case model.SignalClipboard:
		count = counters.ClipboardEvents
	}

	if c.deps.ViolationLog != nil {
		ev := model.ViolationEvent{
			Attempt:    docstore.NewRef(attemptID),
			Student:    docstore.NewRef(c.studentID),
			Exam:       docstore.NewRef(c.examID),
			Kind:       kind,
			Count:      count,
			OccurredAt: now,
		}
		c.attemptWrites.Enqueue(attemptKey+":audit", func() error {
			if err := c.deps.ViolationLog.Append(ctx, ev); err != nil {
				c.log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to queue violation event")
			}
			return nil
		})
	}

	c.publish(ctx, event.ViolationRecorded, map[string]any{
		"kind":  string(kind),
		"count": count,
		"total": counters.Total(),
	})
}

func (c *Controller) enqueueAttemptWrite(ctx context.Context, what, attemptID string, patch docstore.Record) {
	ctx = context.WithoutCancel(ctx)
	c.attemptWrites.Enqueue(attemptKey, func() error {
		if _, err := c.deps.Store.Update(ctx, docstore.Attempts, attemptID, patch); err != nil {
			c.log.Warn().Err(err).Str("write", what).Msg("Failed to persist attempt")
			return err
		}
		return nil
	})
}

func (c *Controller) notify(n Notice) {
	c.notices.Publish(n)
}

func (c *Controller) publish(ctx context.Context, typ event.Type, payload map[string]any) {
	c.mu.Lock()
	attemptID := c.attempt.ID
	c.mu.Unlock()

	err := c.deps.Publisher.Publish(context.WithoutCancel(ctx), event.Event{
		Type:       typ,
		ExamID:     c.examID,
		StudentID:  c.studentID,
		AttemptID:  attemptID,
		OccurredAt: c.deps.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("type", string(typ)).Msg("Failed to publish session event")
	}
}
