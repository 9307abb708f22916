package session

import (
	"sync"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

// Signal is one integrity-relevant client event.
type Signal struct {
	Kind model.SignalKind
	At   time.Time
}

// SignalSource is the subscribe/unsubscribe capability the violation monitor consumes.
type SignalSource interface {
	Subscribe(fn func(Signal)) (unsubscribe func())
}

// Bus is a small synchronous fan-out. Handlers run on the publisher's goroutine, in
// subscription order. The returned unsubscribe func is idempotent.
type Bus[T any] struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(T)
	keys []int
}

// Subscribe registers fn until the returned func is called.
func (b *Bus[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]func(T))
	}
	id := b.next
	b.next++
	b.subs[id] = fn
	b.keys = append(b.keys, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			for i, k := range b.keys {
				if k == id {
					b.keys = append(b.keys[:i], b.keys[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers v to every current subscriber.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	fns := make([]func(T), 0, len(b.keys))
	for _, k := range b.keys {
		fns = append(fns, b.subs[k])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.keys)
}
