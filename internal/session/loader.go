package session

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/stemsi/exstem-portal/internal/docstore"
	"github.com/stemsi/exstem-portal/internal/model"
)

// ErrExamNotFound is wrapped in the FatalError returned for an unknown exam.
var ErrExamNotFound = errors.New("exam not found")

// loadExam reads the exam header, its question mapping and every mapped question.
func loadExam(ctx context.Context, store docstore.Store, examID string) (*model.ExamDefinition, map[string]model.Question, error) {
	rec, err := store.Get(ctx, docstore.Exams, examID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrExamNotFound, examID)
		}
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}
	var exam model.Exam
	if err := docstore.Decode(rec, &exam); err != nil {
		return nil, nil, err
	}
	if exam.ID == "" {
		exam.ID = examID
	}

	mapRecs, err := store.List(ctx, docstore.ExamQuestions, docstore.Query{})
	if err != nil {
		return nil, nil, fmt.Errorf("list exam questions: %w", err)
	}
	mappings := make([]model.ExamQuestion, 0, len(mapRecs))
	for _, r := range mapRecs {
		if !docstore.RefersTo(r["exam"], examID) {
			continue
		}
		var m model.ExamQuestion
		if err := docstore.Decode(r, &m); err != nil {
			return nil, nil, err
		}
		mappings = append(mappings, m)
	}

	def := model.NewExamDefinition(exam, mappings)
	if len(def.Questions) == 0 {
		return nil, nil, ErrNoQuestions
	}

	questions := make(map[string]model.Question, len(def.Questions))
	for _, ref := range def.Questions {
		qrec, err := store.Get(ctx, docstore.Questions, ref.QuestionID)
		if err != nil {
			return nil, nil, fmt.Errorf("get question %s: %w", ref.QuestionID, err)
		}
		var q model.Question
		if err := docstore.Decode(qrec, &q); err != nil {
			return nil, nil, err
		}
		if q.ID == "" {
			q.ID = ref.QuestionID
		}
		questions[ref.QuestionID] = q
	}
	return def, questions, nil
}

// findAttempts returns this student's attempts at this exam, newest first.
func findAttempts(ctx context.Context, store docstore.Store, studentID, examID string) ([]model.Attempt, error) {
	recs, err := store.List(ctx, docstore.Attempts, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	var out []model.Attempt
	for _, r := range recs {
		if !docstore.RefersTo(r["student"], studentID) || !docstore.RefersTo(r["exam"], examID) {
			continue
		}
		var a model.Attempt
		if err := docstore.Decode(r, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// findResult returns the result recorded for an attempt, if any.
func findResult(ctx context.Context, store docstore.Store, attemptID string) (*model.Result, error) {
	recs, err := store.List(ctx, docstore.Results, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	for _, r := range recs {
		if !docstore.RefersTo(r["attempt"], attemptID) {
			continue
		}
		var res model.Result
		if err := docstore.Decode(r, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}
	return nil, nil
}

// findEnrollments returns the enrollments linking this student to this exam.
func findEnrollments(ctx context.Context, store docstore.Store, studentID, examID string) ([]model.Enrollment, error) {
	recs, err := store.List(ctx, docstore.Enrollments, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	var out []model.Enrollment
	for _, r := range recs {
		if !docstore.RefersTo(r["student"], studentID) || !docstore.RefersTo(r["exam"], examID) {
			continue
		}
		var e model.Enrollment
		if err := docstore.Decode(r, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
