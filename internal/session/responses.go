package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/docstore"
	"github.com/stemsi/exstem-portal/internal/model"
)

// AnswerState is the in-memory state of one question.
type AnswerState struct {
	Selected *int
	Marked   bool
}

// Empty reports whether there is nothing worth persisting.
func (s AnswerState) Empty() bool {
	return s.Selected == nil && !s.Marked
}

// Equal compares by value.
func (s AnswerState) Equal(o AnswerState) bool {
	if s.Marked != o.Marked {
		return false
	}
	if s.Selected == nil || o.Selected == nil {
		return s.Selected == nil && o.Selected == nil
	}
	return *s.Selected == *o.Selected
}

func (s AnswerState) clone() AnswerState {
	if s.Selected != nil {
		v := *s.Selected
		s.Selected = &v
	}
	return s
}

// ResponseStore persists per-question answer state for one (student, exam) pair.
// At most one record exists per question: the first non-empty save creates it and
// later saves update it. Writes for the same question are serialized in call order.
type ResponseStore struct {
	store     docstore.Store
	studentID string
	examID    string
	log       zerolog.Logger
	queue     *serialQueue

	mu        sync.Mutex
	ids       map[string]string
	persisted map[string]AnswerState

	unauthorized   atomic.Bool
	onUnauthorized func(error)
}

// NewResponseStore creates a ResponseStore. onUnauthorized, if set, runs on every write the
// store refuses for permission reasons.
func NewResponseStore(store docstore.Store, studentID, examID string, onUnauthorized func(error), log zerolog.Logger) *ResponseStore {
	return &ResponseStore{
		store:          store,
		studentID:      studentID,
		examID:         examID,
		log:            log.With().Str("component", "response_store").Logger(),
		queue:          newSerialQueue(),
		ids:            make(map[string]string),
		persisted:      make(map[string]AnswerState),
		onUnauthorized: onUnauthorized,
	}
}

// Load fetches the persisted responses of this student for this exam. When a question has
// several records the most recently updated one wins.
func (r *ResponseStore) Load(ctx context.Context) ([]model.Response, error) {
	recs, err := r.store.List(ctx, docstore.Responses, docstore.Query{OrderBy: "updated_at"})
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}

	byQuestion := make(map[string]model.Response)
	var order []string
	for _, rec := range recs {
		if !docstore.RefersTo(rec["student"], r.studentID) || !docstore.RefersTo(rec["exam"], r.examID) {
			continue
		}
		var resp model.Response
		if err := docstore.Decode(rec, &resp); err != nil {
			r.log.Warn().Err(err).Str("response_id", rec.ID()).Msg("Skipping undecodable response")
			continue
		}
		qid := resp.Question.ID()
		if qid == "" {
			continue
		}
		if _, seen := byQuestion[qid]; !seen {
			order = append(order, qid)
		}
		byQuestion[qid] = resp
	}

	out := make([]model.Response, 0, len(order))
	for _, qid := range order {
		out = append(out, byQuestion[qid])
	}
	return out, nil
}

// Hydrate records which questions already have a persisted record and in what state.
func (r *ResponseStore) Hydrate(responses []model.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, resp := range responses {
		qid := resp.Question.ID()
		r.ids[qid] = resp.ID
		r.persisted[qid] = AnswerState{Selected: resp.SelectedOption, Marked: resp.MarkedForReview}.clone()
	}
}

// Enqueue schedules a save and returns at once. The channel receives the write's outcome.
func (r *ResponseStore) Enqueue(ctx context.Context, questionID string, state AnswerState) <-chan error {
	state = state.clone()
	ctx = context.WithoutCancel(ctx)
	return r.queue.Enqueue(questionID, func() error {
		return r.write(ctx, questionID, state)
	})
}

// Save writes and waits for the outcome.
func (r *ResponseStore) Save(ctx context.Context, questionID string, state AnswerState) error {
	select {
	case err := <-r.Enqueue(ctx, questionID, state):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FlushAll saves every given state and waits for all of them, returning the first error.
// Unchanged states are skipped, so this doubles as a retry of earlier failed saves.
func (r *ResponseStore) FlushAll(ctx context.Context, states map[string]AnswerState) error {
	pending := make([]<-chan error, 0, len(states))
	for qid, st := range states {
		pending = append(pending, r.Enqueue(ctx, qid, st))
	}

	var errs []error
	for _, ch := range pending {
		select {
		case err := <-ch:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Join(errs...)
}

// Drain waits for every queued write.
func (r *ResponseStore) Drain(ctx context.Context) error {
	return r.queue.Drain(ctx)
}

// Unauthorized reports whether the store has refused a response write.
func (r *ResponseStore) Unauthorized() bool {
	return r.unauthorized.Load()
}

// Recorded returns the ids of questions that have a stored record.
func (r *ResponseStore) Recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.ids))
	for qid := range r.ids {
		out = append(out, qid)
	}
	return out
}

func (r *ResponseStore) write(ctx context.Context, questionID string, state AnswerState) error {
	r.mu.Lock()
	id, exists := r.ids[questionID]
	last := r.persisted[questionID]
	r.mu.Unlock()

	if exists && last.Equal(state) {
		return nil
	}
	if !exists && state.Empty() {
		return nil
	}

	var selected any
	if state.Selected != nil {
		selected = *state.Selected
	}

	var err error
	if exists {
		_, err = r.store.Update(ctx, docstore.Responses, id, docstore.Record{
			"selected_option":   selected,
			"marked_for_review": state.Marked,
		})
	} else {
		var rec docstore.Record
		rec, err = r.store.Create(ctx, docstore.Responses, docstore.Record{
			"student":           r.studentID,
			"exam":              r.examID,
			"question":          questionID,
			"selected_option":   selected,
			"marked_for_review": state.Marked,
		})
		if err == nil {
			id = rec.ID()
		}
	}

	if err != nil {
		if errors.Is(err, docstore.ErrPermissionDenied) {
			r.unauthorized.Store(true)
			r.log.Error().Err(err).Str("question_id", questionID).Msg("Response write refused")
			if r.onUnauthorized != nil {
				r.onUnauthorized(err)
			}
			return fmt.Errorf("%w: %v", ErrResponsesNotRecorded, err)
		}
		r.log.Warn().Err(err).Str("question_id", questionID).Msg("Failed to save response")
		return fmt.Errorf("save response %s: %w", questionID, err)
	}

	r.mu.Lock()
	r.ids[questionID] = id
	r.persisted[questionID] = state
	r.mu.Unlock()

	r.log.Debug().Str("question_id", questionID).Msg("Response saved")
	return nil
}
