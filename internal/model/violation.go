package model

import (
	"time"

	"github.com/stemsi/exstem-portal/internal/docstore"
)

// SignalKind is an integrity-relevant client event.
type SignalKind string

const (
	SignalTabSwitch      SignalKind = "tab_switch"
	SignalFullscreenExit SignalKind = "fullscreen_exit"
	SignalClipboard      SignalKind = "clipboard"
	// Deterrence-only signals: suppressed on the client, never counted.
	SignalContextMenu      SignalKind = "context_menu"
	SignalDevtoolsShortcut SignalKind = "devtools_shortcut"
)

// Counted reports whether the signal increments a violation counter.
func (k SignalKind) Counted() bool {
	switch k {
	case SignalTabSwitch, SignalFullscreenExit, SignalClipboard:
		return true
	}
	return false
}

// Known reports whether the kind is recognised at all.
func (k SignalKind) Known() bool {
	return k.Counted() || k == SignalContextMenu || k == SignalDevtoolsShortcut
}

// ViolationEvent is one entry of the append-only violation audit log.
type ViolationEvent struct {
	ID         string       `json:"id,omitempty"`
	Attempt    docstore.Ref `json:"attempt"`
	Student    docstore.Ref `json:"student"`
	Exam       docstore.Ref `json:"exam"`
	Kind       SignalKind   `json:"kind"`
	Count      int          `json:"count"`
	OccurredAt time.Time    `json:"occurred_at"`
}
