package bus

import (
	"log/slog"
	"sync"
)

type Handler func(payload any)

type subscription struct {
	fn Handler
}

// Bus is an in-process publish/subscribe registry. It decouples the unread
// count producer from the independently mounted consumers (header badge,
// bubble widget, messaging page). Construct one at application start and
// inject it; tests build isolated instances.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*subscription
}

func New() *Bus {
	return &Bus{
		subs: make(map[string][]*subscription),
	}
}

// Subscribe registers a handler for an event name and returns its
// unsubscribe function. Unsubscribing is idempotent and removes exactly the
// one registration it was returned for.
func (b *Bus) Subscribe(event string, fn Handler) func() {
	sub := &subscription{fn: fn}

	b.mu.Lock()
	b.subs[event] = append(b.subs[event], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(event, sub) })
	}
}

// Publish invokes all handlers currently registered for the event,
// synchronously and in subscription order. Iteration runs over a snapshot
// taken at publish time, so handlers may subscribe or unsubscribe mid-publish
// without corrupting the walk. A panicking handler is logged and must not
// stop the remaining handlers.
func (b *Bus) Publish(event string, payload any) {
	b.mu.RLock()
	snapshot := b.subs[event]
	b.mu.RUnlock()

	for _, sub := range snapshot {
		invoke(event, sub.fn, payload)
	}
}

func invoke(event string, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "event", event, "panic", r)
		}
	}()
	fn(payload)
}

func (b *Bus) remove(event string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[event]
	for i, cur := range list {
		if cur == sub {
			// Copy-on-write so an in-flight Publish keeps its snapshot intact.
			next := make([]*subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			b.subs[event] = next
			return
		}
	}
}
