// Package event publishes session lifecycle notices to downstream consumers
// (the live exam monitor over Redis, and other services over AMQP).
package event

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Type is the event routing key.
type Type string

const (
	AttemptStarted    Type = "attempt.started"
	AttemptResumed    Type = "attempt.resumed"
	AttemptSuspended  Type = "attempt.suspended"
	ViolationRecorded Type = "attempt.violation"
	ResultCreated     Type = "result.created"
	SubmissionFailed  Type = "attempt.submission_failed"
)

// Event is the envelope every publisher sends.
type Event struct {
	Type       Type           `json:"type"`
	ExamID     string         `json:"exam_id"`
	StudentID  string         `json:"student_id"`
	AttemptID  string         `json:"attempt_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout publishes to every wrapped publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	log zerolog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log.With().Str("component", "event_log").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.log.Debug().
		Str("type", string(e.Type)).
		Str("exam_id", e.ExamID).
		Str("student_id", e.StudentID).
		Str("attempt_id", e.AttemptID).
		Msg("Session event")
	return nil
}
