package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownTicksToZeroAndExpiresOnce(t *testing.T) {
	ticks := newManualTicks()
	var (
		mu      sync.Mutex
		seen    []int
		expired atomic.Int32
	)
	c := NewCountdown(3, ticks.source, func(r int) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	}, func() { expired.Add(1) })
	c.Start()

	for i := 0; i < 3; i++ {
		ticks.fire(t)
	}

	// The goroutine has exited; a further tick must not be consumed.
	select {
	case ticks.ch <- testNow:
		t.Fatal("countdown kept ticking after expiry")
	case <-time.After(50 * time.Millisecond):
	}

	eventually(t, func() bool { return expired.Load() >= 1 })
	if expired.Load() != 1 {
		t.Fatalf("onExpire fired %d times, want 1", expired.Load())
	}
	if c.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", c.Remaining())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != 2 || seen[2] != 0 {
		t.Fatalf("ticks = %v, want [2 1 0]", seen)
	}
}

func TestCountdownStop(t *testing.T) {
	ticks := newManualTicks()
	var fired atomic.Int32
	c := NewCountdown(10, ticks.source, func(int) { fired.Add(1) }, func() { t.Error("unexpected expiry") })
	c.Start()
	ticks.fire(t)
	eventually(t, func() bool { return fired.Load() == 1 })
	c.Stop()
	c.Stop()

	select {
	case ticks.ch <- testNow:
		t.Fatal("tick delivered after Stop")
	case <-time.After(50 * time.Millisecond):
	}
	if fired.Load() != 1 || c.Remaining() != 9 {
		t.Fatalf("fired=%d remaining=%d", fired.Load(), c.Remaining())
	}
}

func TestCountdownStartingAtZeroExpires(t *testing.T) {
	done := make(chan struct{})
	c := NewCountdown(-5, newManualTicks().source, nil, func() { close(done) })
	if c.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", c.Remaining())
	}
	c.Start()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero countdown did not expire")
	}
}
