package session

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/model"
)

func TestMonitorCountsOnlyWhileAttached(t *testing.T) {
	bus := &Bus[Signal]{}
	var (
		mu        sync.Mutex
		persisted []model.ViolationCounters
		warnings  []Warning
		quiet     []model.SignalKind
	)
	m := NewMonitor(model.ViolationCounters{TabSwitches: 1}, MonitorHooks{
		Persist: func(_ model.SignalKind, c model.ViolationCounters) {
			mu.Lock()
			persisted = append(persisted, c)
			mu.Unlock()
		},
		Warn:       func(w Warning) { warnings = append(warnings, w) },
		Suppressed: func(k model.SignalKind) { quiet = append(quiet, k) },
	}, zerolog.Nop())

	bus.Publish(Signal{Kind: model.SignalTabSwitch})
	if m.Counters().TabSwitches != 1 {
		t.Fatal("counted before Attach")
	}

	m.Attach(bus)
	m.Attach(bus)
	if bus.Len() != 1 {
		t.Fatalf("subscriptions = %d, want 1", bus.Len())
	}

	bus.Publish(Signal{Kind: model.SignalTabSwitch})
	bus.Publish(Signal{Kind: model.SignalClipboard})
	bus.Publish(Signal{Kind: model.SignalContextMenu})
	bus.Publish(Signal{Kind: model.SignalDevtoolsShortcut})

	m.Release()
	m.Release()
	bus.Publish(Signal{Kind: model.SignalFullscreenExit})

	got := m.Counters()
	want := model.ViolationCounters{TabSwitches: 2, ClipboardEvents: 1}
	if got != want {
		t.Fatalf("counters = %+v, want %+v", got, want)
	}
	if bus.Len() != 0 || m.Attached() {
		t.Fatal("still subscribed after Release")
	}
	if len(persisted) != 2 || persisted[0].TabSwitches != 2 || persisted[1].ClipboardEvents != 1 {
		t.Fatalf("persisted = %+v", persisted)
	}
	if len(warnings) != 2 || warnings[0].DismissAfter != WarningDismissAfter || warnings[0].Count != 2 {
		t.Fatalf("warnings = %+v", warnings)
	}
	// Clipboard is counted and also acknowledged as suppressed.
	wantQuiet := []model.SignalKind{model.SignalClipboard, model.SignalContextMenu, model.SignalDevtoolsShortcut}
	if len(quiet) != len(wantQuiet) {
		t.Fatalf("suppressed = %v, want %v", quiet, wantQuiet)
	}
	for i, k := range wantQuiet {
		if quiet[i] != k {
			t.Fatalf("suppressed = %v, want %v", quiet, wantQuiet)
		}
	}
}

func TestMonitorCountersMonotonic(t *testing.T) {
	bus := &Bus[Signal]{}
	var last int
	m := NewMonitor(model.ViolationCounters{}, MonitorHooks{
		Persist: func(_ model.SignalKind, c model.ViolationCounters) {
			if c.Total() <= last {
				t.Errorf("total went from %d to %d", last, c.Total())
			}
			last = c.Total()
		},
	}, zerolog.Nop())
	m.Attach(bus)
	for i := 0; i < 5; i++ {
		bus.Publish(Signal{Kind: model.SignalFullscreenExit})
	}
	if m.Counters().FullscreenExits != 5 {
		t.Fatalf("fullscreen exits = %d", m.Counters().FullscreenExits)
	}
}
