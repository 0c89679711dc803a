package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Iron-Ham/mapswitch/internal/event"
	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// Info describes a registered session for status output.
type Info struct {
	Kind       Kind      `json:"kind"`
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	ShouldLock bool      `json:"should_lock"`
}

// Registry tracks the live session of each kind and owns the global gate
// serialising disruptive work. Events are published outside the lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Kind]Session

	// gate is a one-slot semaphore; a filled slot means held.
	gate chan struct{}

	bus    *event.Bus
	clock  clockwork.Clock
	logger *logging.Logger
}

// NewRegistry creates an empty registry. bus, clock and logger may be nil.
func NewRegistry(bus *event.Bus, clock clockwork.Clock, logger *logging.Logger) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry{
		sessions: make(map[Kind]Session),
		gate:     make(chan struct{}, 1),
		bus:      bus,
		clock:    clock,
		logger:   logger.With("component", "registry"),
	}
}

// Register makes s the session of its kind, replacing any previous one.
func (r *Registry) Register(s Session) {
	r.mu.Lock()
	prev := r.sessions[s.Kind()]
	r.sessions[s.Kind()] = s
	r.mu.Unlock()

	if prev != nil && prev != s {
		r.logger.Debug("session replaced", "kind", string(s.Kind()), "previous", prev.ID(), "session_id", s.ID())
	}
	r.registered(s)
}

// TryRegister registers s only if no session of its kind is registered.
func (r *Registry) TryRegister(s Session) bool {
	r.mu.Lock()
	if _, ok := r.sessions[s.Kind()]; ok {
		r.mu.Unlock()
		return false
	}
	r.sessions[s.Kind()] = s
	r.mu.Unlock()

	r.registered(s)
	return true
}

// Get returns the session registered for kind.
func (r *Registry) Get(kind Kind) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[kind]
	return s, ok
}

// IsAvailable reports whether no session of kind is registered.
func (r *Registry) IsAvailable(kind Kind) bool {
	_, ok := r.Get(kind)
	return !ok
}

// Clear unregisters whatever session holds kind.
func (r *Registry) Clear(kind Kind) {
	r.mu.Lock()
	s, ok := r.sessions[kind]
	delete(r.sessions, kind)
	r.mu.Unlock()

	if ok {
		r.cleared(s)
	}
}

// clearSession unregisters s only if it is still the registered session of
// its kind, so a finished instance never removes its successor.
func (r *Registry) clearSession(s Session) bool {
	r.mu.Lock()
	cur, ok := r.sessions[s.Kind()]
	if !ok || cur != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.Kind())
	r.mu.Unlock()

	r.cleared(s)
	return true
}

// AcquireGate blocks until the gate is free or ctx is done. It must not be
// called from the executor.
func (r *Registry) AcquireGate(ctx context.Context) error {
	select {
	case r.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquireGate takes the gate if it is free.
func (r *Registry) TryAcquireGate() bool {
	select {
	case r.gate <- struct{}{}:
		return true
	default:
		return false
	}
}

// ReleaseGate frees the gate.
func (r *Registry) ReleaseGate() {
	select {
	case <-r.gate:
	default:
		r.logger.Warn("gate released while not held")
	}
}

// GateHeld reports whether a disruptive operation holds the gate.
func (r *Registry) GateHeld() bool {
	return len(r.gate) == 1
}

// Snapshot lists the registered sessions in kind order.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.sessions))
	for _, kind := range Kinds() {
		s, ok := r.sessions[kind]
		if !ok {
			continue
		}
		infos = append(infos, Info{
			Kind:       kind,
			ID:         s.ID(),
			StartedAt:  s.StartedAt(),
			ShouldLock: s.ShouldLock(),
		})
	}
	return infos
}

// Shutdown interrupts every registered session.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	live := make([]Session, 0, len(r.sessions))
	for _, kind := range Kinds() {
		if s, ok := r.sessions[kind]; ok {
			live = append(live, s)
		}
	}
	r.mu.RUnlock()

	// Stop the roll first so a finishing swap cannot restart it.
	slices.Reverse(live)
	for _, s := range live {
		r.logger.Info("interrupting session", "kind", string(s.Kind()), "session_id", s.ID())
		s.Interrupt()
	}
}

func (r *Registry) registered(s Session) {
	r.logger.Debug("session registered", "kind", string(s.Kind()), "session_id", s.ID())
	if r.bus != nil {
		r.bus.Publish(event.NewSessionRegisteredEvent(r.clock.Now(), s.ID(), string(s.Kind())))
	}
}

func (r *Registry) cleared(s Session) {
	r.logger.Debug("session cleared", "kind", string(s.Kind()), "session_id", s.ID())
	if r.bus != nil {
		r.bus.Publish(event.NewSessionClearedEvent(r.clock.Now(), s.ID(), string(s.Kind())))
	}
}
