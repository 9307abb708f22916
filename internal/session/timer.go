package session

import (
	"sync"
	"time"
)

// TickSource yields one tick per interval until stop is called.
type TickSource func(interval time.Duration) (ticks <-chan time.Time, stop func())

// RealTicks is the wall-clock TickSource.
func RealTicks(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// Countdown decrements once per second from an initial value. It never goes negative,
// fires onExpire at most once, and delivers nothing new after Stop.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	started   bool
	stopped   bool
	done      chan struct{}
	source    TickSource
	onTick    func(remaining int)
	onExpire  func()
}

// NewCountdown creates a stopped countdown. A nil source means RealTicks.
func NewCountdown(seconds int, source TickSource, onTick func(int), onExpire func()) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	if source == nil {
		source = RealTicks
	}
	return &Countdown{
		remaining: seconds,
		done:      make(chan struct{}),
		source:    source,
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Start begins ticking. A countdown created at zero expires right away.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	zero := c.remaining == 0
	if zero {
		c.stopped = true
		close(c.done)
	}
	c.mu.Unlock()

	if zero {
		go c.expire()
		return
	}

	ticks, stop := c.source(time.Second)
	go c.run(ticks, stop)
}

// Stop cancels the countdown. Safe to call more than once.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.done)
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) run(ticks <-chan time.Time, stop func()) {
	defer stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticks:
			if !c.tick() {
				return
			}
		}
	}
}

// tick returns false once the countdown has finished.
func (c *Countdown) tick() bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	expired := remaining == 0
	if expired {
		c.stopped = true
		close(c.done)
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(remaining)
	}
	if expired {
		c.expire()
		return false
	}
	return true
}

func (c *Countdown) expire() {
	if c.onExpire != nil {
		c.onExpire()
	}
}
