package model

import (
	"sort"

	"github.com/stemsi/exstem-portal/internal/docstore"
)

// Exam is the stored exam header. Authoring happens elsewhere; the session engine only reads it.
type Exam struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration"`
}

// ExamQuestion maps one question into an exam with its position and marks.
type ExamQuestion struct {
	ID       string       `json:"id"`
	Exam     docstore.Ref `json:"exam"`
	Question docstore.Ref `json:"question"`
	Order    int          `json:"order"`
	Marks    float64      `json:"marks"`
}

// QuestionRef is one entry of an exam's composition.
type QuestionRef struct {
	QuestionID string  `json:"question_id"`
	Order      int     `json:"order"`
	Marks      float64 `json:"marks"`
}

// ExamDefinition is an exam plus its ordered question list. Immutable during an attempt.
type ExamDefinition struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	DurationMinutes int           `json:"duration_minutes"`
	Questions       []QuestionRef `json:"questions"`
}

// DurationSeconds is the full time allowance.
func (d *ExamDefinition) DurationSeconds() int {
	if d.DurationMinutes <= 0 {
		return 0
	}
	return d.DurationMinutes * 60
}

// QuestionIDs returns the question ids in exam order.
func (d *ExamDefinition) QuestionIDs() []string {
	ids := make([]string, len(d.Questions))
	for i, q := range d.Questions {
		ids[i] = q.QuestionID
	}
	return ids
}

// NewExamDefinition assembles a definition from an exam and its mapping rows, keeping only
// the rows that belong to the exam and ordering them by Order.
func NewExamDefinition(exam Exam, mappings []ExamQuestion) *ExamDefinition {
	def := &ExamDefinition{
		ID:              exam.ID,
		Name:            exam.Name,
		DurationMinutes: exam.DurationMinutes,
	}

	seen := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		qid := m.Question.ID()
		if !m.Exam.Is(exam.ID) || qid == "" || seen[qid] {
			continue
		}
		seen[qid] = true
		def.Questions = append(def.Questions, QuestionRef{
			QuestionID: qid,
			Order:      m.Order,
			Marks:      m.Marks,
		})
	}

	sort.SliceStable(def.Questions, func(i, j int) bool {
		return def.Questions[i].Order < def.Questions[j].Order
	})
	return def
}
