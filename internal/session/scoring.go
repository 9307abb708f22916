package session

import (
	"math"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

// PassThreshold is the minimum percentage that passes.
const PassThreshold = 30.0

// Tally is the outcome of scoring one attempt.
type Tally struct {
	Score      float64
	TotalMarks float64
	Percentage float64
	Status     model.ResultStatus
	Answered   int
	Correct    int
}

// Score is a pure function of the selected answers, the exam composition and the
// answer key. Unanswered and wrong questions contribute zero; there is no negative
// marking. Questions missing from the key cannot be verified and score zero.
func Score(answers map[string]int, refs []model.QuestionRef, key map[string]int) Tally {
	var t Tally
	for _, ref := range refs {
		t.TotalMarks += ref.Marks

		selected, ok := answers[ref.QuestionID]
		if !ok {
			continue
		}
		t.Answered++

		correct, known := key[ref.QuestionID]
		if known && selected == correct {
			t.Correct++
			t.Score += ref.Marks
		}
	}

	if t.TotalMarks > 0 {
		t.Percentage = t.Score / t.TotalMarks * 100
	}
	t.Status = model.ResultStatusFailed
	if t.Percentage >= PassThreshold {
		t.Status = model.ResultStatusPassed
	}
	return t
}

// TimeTakenMinutes rounds the elapsed time to whole minutes.
func TimeTakenMinutes(start, end time.Time) int {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Minutes()))
}
