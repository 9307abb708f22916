package model

import (
	"time"

	"github.com/stemsi/exstem-portal/internal/docstore"
)

// ResultStatus is the pass/fail outcome.
type ResultStatus string

const (
	ResultStatusPassed ResultStatus = "passed"
	ResultStatusFailed ResultStatus = "failed"
)

// Result is the immutable outcome written once at submission.
type Result struct {
	ID               string       `json:"id,omitempty"`
	Student          docstore.Ref `json:"student"`
	Exam             docstore.Ref `json:"exam"`
	Attempt          docstore.Ref `json:"attempt"`
	Score            float64      `json:"score"`
	TotalMarks       float64      `json:"total_marks"`
	Percentage       float64      `json:"percentage"`
	Status           ResultStatus `json:"status"`
	TimeTakenMinutes int          `json:"time_taken"`
	StartedAt        time.Time    `json:"started_at"`
	EndedAt          time.Time    `json:"ended_at"`
}

// EnrollmentStatus enumerates enrollment states.
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// Enrollment links a student to an exam they may take.
type Enrollment struct {
	ID          string           `json:"id"`
	Student     docstore.Ref     `json:"student"`
	Exam        docstore.Ref     `json:"exam"`
	Status      EnrollmentStatus `json:"status"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}
