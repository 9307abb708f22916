package websocket

import (
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/session"
)

// Protocol is the subprotocol the server selects on upgrade. Browsers that
// cannot put the token in the URL offer it alongside as TokenProtocolPrefix+jwt.
const (
	Protocol            = "exstem.v1"
	TokenProtocolPrefix = "bearer."
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect   Action = "select"
	ActionClear    Action = "clear"
	ActionMark     Action = "mark"
	ActionNavigate Action = "navigate"
	ActionSignal   Action = "signal"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// Direction values accepted by ActionNavigate.
const (
	DirectionNext = "next"
	DirectionPrev = "prev"
)

// RequestPayload is the single client frame. Which fields apply depends on Action.
type RequestPayload struct {
	Action     Action `json:"action" binding:"required,oneof=select clear mark navigate signal submit ping"`
	QuestionID string `json:"question_id,omitempty"`
	Option     *int   `json:"option,omitempty" binding:"omitempty,min=0"`
	Marked     *bool  `json:"marked,omitempty"`
	Direction  string `json:"direction,omitempty" binding:"omitempty,oneof=next prev"`
	Index      *int   `json:"index,omitempty" binding:"omitempty,min=0"`
	Kind       string `json:"kind,omitempty" binding:"omitempty,signal_kind"`
	Confirmed  bool   `json:"confirmed,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState      Event = "state"
	EventTick       Event = "tick"
	EventPalette    Event = "palette"
	EventSaved      Event = "saved"
	EventWarning    Event = "warning"
	EventSuppressed Event = "suppressed"
	EventSaveError  Event = "save_error"
	EventGraded     Event = "graded"
	EventClosed     Event = "closed"
	EventError      Event = "error"
	EventFatal      Event = "fatal"
	EventPong       Event = "pong"
)

// ResponsePayload is the envelope of every server frame.
type ResponsePayload struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type TickData struct {
	RemainingSeconds int `json:"remaining_seconds"`
}

type PaletteData struct {
	Palette []session.PaletteEntry `json:"palette"`
}

type SavedData struct {
	QuestionID string `json:"question_id"`
}

type WarningData struct {
	Kind           model.SignalKind `json:"kind"`
	Count          int              `json:"count"`
	Total          int              `json:"total"`
	DismissAfterMS int64            `json:"dismiss_after_ms"`
}

type SuppressedData struct {
	Kind model.SignalKind `json:"kind"`
}

type GradedData struct {
	Result *model.Result `json:"result"`
}

type ClosedData struct {
	RemainingSeconds int `json:"remaining_seconds"`
}

// ErrorData carries a machine-readable code next to the display message.
type ErrorData struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	Persistent bool              `json:"persistent,omitempty"`
}
