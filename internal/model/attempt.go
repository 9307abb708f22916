package model

import (
	"time"

	"github.com/stemsi/exstem-portal/internal/docstore"
)

// AttemptStatus enumerates attempt states.
type AttemptStatus string

const (
	AttemptStatusStarted    AttemptStatus = "started"
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
)

// Live reports whether the attempt can still be resumed.
func (s AttemptStatus) Live() bool {
	return s == AttemptStatusStarted || s == AttemptStatusInProgress
}

// ViolationCounters are the monotonic integrity counters of one attempt.
type ViolationCounters struct {
	TabSwitches     int `json:"tab_switch_count"`
	FullscreenExits int `json:"fullscreen_exit_count"`
	ClipboardEvents int `json:"clipboard_count"`
}

// Total is the sum of all counters.
func (c ViolationCounters) Total() int {
	return c.TabSwitches + c.FullscreenExits + c.ClipboardEvents
}

// Attempt is one student's try at one exam.
type Attempt struct {
	ID      string        `json:"id"`
	Student docstore.Ref  `json:"student"`
	Exam    docstore.Ref  `json:"exam"`
	Status  AttemptStatus `json:"status"`
	ViolationCounters
	StartedAt        time.Time  `json:"started_at"`
	LastActiveAt     time.Time  `json:"last_active_at"`
	RemainingSeconds *int       `json:"remaining_seconds,omitempty"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
}

// CounterPatch is the partial update that persists violation counters.
func (c ViolationCounters) CounterPatch() docstore.Record {
	return docstore.Record{
		"tab_switch_count":      c.TabSwitches,
		"fullscreen_exit_count": c.FullscreenExits,
		"clipboard_count":       c.ClipboardEvents,
	}
}
