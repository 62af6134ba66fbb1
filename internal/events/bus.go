// Package events fans cache lifecycle events out to registered listeners.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/stayfinder/go-stay-cache/model"
)

// Listener receives every published event. Listeners run synchronously on
// the publishing goroutine and must not retain the event's Err beyond the
// call.
type Listener func(model.Event)

type registration struct {
	id uint64
	fn Listener
}

// Bus delivers events to listeners in registration order. A listener panic
// is contained at the dispatch boundary: remaining listeners still run and
// the failure is reported only through the onError callback.
type Bus struct {
	mu        sync.RWMutex
	listeners []registration
	nextID    atomic.Uint64
	logger    *slog.Logger
	onError   func()
}

func New(logger *slog.Logger, onError func()) *Bus {
	if onError == nil {
		onError = func() {}
	}
	return &Bus{logger: logger, onError: onError}
}

// AddListener registers fn and returns a token for RemoveListener.
func (b *Bus) AddListener(fn Listener) uint64 {
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.listeners = append(b.listeners, registration{id: id, fn: fn})
	b.mu.Unlock()
	return id
}

func (b *Bus) RemoveListener(id uint64) {
	b.mu.Lock()
	// Copy-on-write so an in-flight Publish keeps iterating its own snapshot.
	next := make([]registration, 0, len(b.listeners))
	for _, reg := range b.listeners {
		if reg.id != id {
			next = append(next, reg)
		}
	}
	b.listeners = next
	b.mu.Unlock()
}

// Publish delivers ev to every listener in registration order.
func (b *Bus) Publish(ev model.Event) {
	b.mu.RLock()
	regs := b.listeners
	b.mu.RUnlock()

	for _, reg := range regs {
		b.dispatch(reg.fn, ev)
	}
}

func (b *Bus) dispatch(fn Listener, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.onError()
			b.logger.Error("cache event listener panicked",
				"event", string(ev.Type), "key", ev.Key, "panic", fmt.Sprint(r))
		}
	}()
	fn(ev)
}
