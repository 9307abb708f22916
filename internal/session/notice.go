package session

import (
	"github.com/stemsi/exstem-portal/internal/model"
)

// NoticeType names an outbound notice.
type NoticeType string

const (
	NoticeTick             NoticeType = "tick"
	NoticePalette          NoticeType = "palette"
	NoticeSaved            NoticeType = "saved"
	NoticeWarning          NoticeType = "warning"
	NoticeSuppressed       NoticeType = "suppressed"
	NoticeSaveError        NoticeType = "save_error"
	NoticeGraded           NoticeType = "graded"
	NoticeSubmissionFailed NoticeType = "submission_failed"
	NoticeClosed           NoticeType = "closed"
)

// Notice is what the controller tells its observers (WebSocket clients, tests).
type Notice struct {
	Type             NoticeType
	RemainingSeconds int
	QuestionID       string
	Kind             model.SignalKind
	Warning          *Warning
	Palette          []PaletteEntry
	Result           *model.Result
	Err              error
	// Persistent notices stay until the session ends.
	Persistent bool
}
