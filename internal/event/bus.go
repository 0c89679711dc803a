package event

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// subscription represents a registered event handler.
type subscription struct {
	id      string
	pattern string
	match   glob.Glob
	handler Handler
}

// Bus is a synchronous pub-sub event bus.
// Subscriptions use glob patterns over event types with '.' as the
// separator, so "swap.*" receives every swap event and "*" is reserved
// for SubscribeAll.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *logging.Logger
}

// NewBus creates a new event bus. A nil logger discards handler panics'
// diagnostics.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a handler for every event type matching pattern.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(pattern string, handler Handler) (string, error) {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return "", fmt.Errorf("invalid event pattern %q: %w", pattern, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subs = append(b.subs, subscription{
		id:      id,
		pattern: pattern,
		match:   g,
		handler: handler,
	})
	return id, nil
}

// MustSubscribe is Subscribe for patterns known to be valid at compile time.
func (b *Bus) MustSubscribe(pattern string, handler Handler) string {
	id, err := b.Subscribe(pattern, handler)
	if err != nil {
		panic(err)
	}
	return id
}

// SubscribeAll registers a handler for all event types.
func (b *Bus) SubscribeAll(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subs = append(b.subs, subscription{id: id, pattern: "*", handler: handler})
	return id
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish dispatches an event to all matching handlers in registration
// order. A panicking handler is logged and recovered; the remaining
// handlers still run. Handlers run on the publisher's goroutine and must
// not block.
func (b *Bus) Publish(event Event) {
	eventType := event.EventType()

	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.match == nil || sub.match.Match(eventType) {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		b.safeCall(h, event)
	}
}

func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", event.EventType(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	handler(event)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
