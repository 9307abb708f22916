package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/model"
)

// WarningDismissAfter is how long a violation warning stays on screen.
const WarningDismissAfter = 4 * time.Second

// Warning is the visible notice raised for a counted violation.
type Warning struct {
	Kind         model.SignalKind `json:"kind"`
	Count        int              `json:"count"`
	Total        int              `json:"total"`
	DismissAfter time.Duration    `json:"-"`
}

// MonitorHooks are the monitor's outputs. Any hook may be nil.
type MonitorHooks struct {
	// Persist requests a background write of the counters. counters is the set
	// right after this signal. It must not block.
	Persist func(kind model.SignalKind, counters model.ViolationCounters)
	// Warn surfaces a counted violation to the student.
	Warn func(Warning)
	// Suppressed reports a deterrence-only signal.
	Suppressed func(kind model.SignalKind)
}

// Monitor counts integrity signals for one attempt. It owns its subscription: Attach
// subscribes exactly once and Release unsubscribes, after which nothing is counted.
type Monitor struct {
	mu          sync.Mutex
	counters    model.ViolationCounters
	unsubscribe func()
	hooks       MonitorHooks
	log         zerolog.Logger
}

// NewMonitor creates a detached monitor starting from the persisted counters.
func NewMonitor(initial model.ViolationCounters, hooks MonitorHooks, log zerolog.Logger) *Monitor {
	return &Monitor{
		counters: initial,
		hooks:    hooks,
		log:      log.With().Str("component", "violation_monitor").Logger(),
	}
}

// Attach subscribes to src. Calling it while already attached is a no-op.
func (m *Monitor) Attach(src SignalSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		return
	}
	m.unsubscribe = src.Subscribe(m.handle)
}

// Release unsubscribes. Safe to call more than once.
func (m *Monitor) Release() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Attached reports whether the monitor is listening.
func (m *Monitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribe != nil
}

// Counters returns the in-memory counters.
func (m *Monitor) Counters() model.ViolationCounters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters
}

func (m *Monitor) handle(sig Signal) {
	if !sig.Kind.Counted() {
		m.log.Debug().Str("kind", string(sig.Kind)).Msg("Deterrence signal suppressed")
		if m.hooks.Suppressed != nil {
			m.hooks.Suppressed(sig.Kind)
		}
		return
	}

	m.mu.Lock()
	// A signal racing Release is dropped.
	if m.unsubscribe == nil {
		m.mu.Unlock()
		return
	}
	var count int
	switch sig.Kind {
	case model.SignalTabSwitch:
		m.counters.TabSwitches++
		count = m.counters.TabSwitches
	case model.SignalFullscreenExit:
		m.counters.FullscreenExits++
		count = m.counters.FullscreenExits
	case model.SignalClipboard:
		m.counters.ClipboardEvents++
		count = m.counters.ClipboardEvents
	}
	snapshot := m.counters
	m.mu.Unlock()

	m.log.Info().
		Str("kind", string(sig.Kind)).
		Int("count", count).
		Msg("Violation recorded")

	if m.hooks.Persist != nil {
		m.hooks.Persist(sig.Kind, snapshot)
	}
	if m.hooks.Warn != nil {
		m.hooks.Warn(Warning{
			Kind:         sig.Kind,
			Count:        count,
			Total:        snapshot.Total(),
			DismissAfter: WarningDismissAfter,
		})
	}
	// The client has already blocked the copy, cut or paste.
	if sig.Kind == model.SignalClipboard && m.hooks.Suppressed != nil {
		m.hooks.Suppressed(sig.Kind)
	}
}
