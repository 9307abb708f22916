package session

import (
	"errors"
	"fmt"
)

// Session errors.
var (
	ErrNotActive            = errors.New("session is not active")
	ErrAlreadyStarted       = errors.New("session already started")
	ErrAlreadySubmitted     = errors.New("attempt already submitted")
	ErrSubmitInProgress     = errors.New("submission already in progress")
	ErrConfirmationRequired = errors.New("submission requires confirmation")
	ErrUnknownQuestion      = errors.New("question is not part of this exam")
	ErrInvalidOption        = errors.New("option index out of range")
	ErrInvalidQuestionIndex = errors.New("question index out of range")
	ErrUnknownSignal        = errors.New("unknown signal kind")
	ErrNoQuestions          = errors.New("exam has no questions")
	ErrResultExists         = errors.New("a result already exists for this attempt")
	// ErrResponsesNotRecorded is returned when the store refuses response writes.
	// Unlike a network blip it means nothing the student answers is being saved.
	ErrResponsesNotRecorded = errors.New("responses are not being recorded")
)

// FatalError means the session could not start. No question content may be shown.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("session cannot start: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// SubmissionError is terminal for the attempt. The sequence is never retried because a
// partially applied submission could otherwise produce a second Result.
type SubmissionError struct {
	Step string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed at %s: %v", e.Step, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsFatal reports whether err prevents the session from starting.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
