package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Iron-Ham/mapswitch/internal/event"
	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// DefaultBusyRetry is used when RollParams.BusyRetry is unset.
const DefaultBusyRetry = time.Minute

// remindSkipWindow suppresses reminders right before a roll.
const remindSkipWindow = time.Second

// PickFunc chooses the next slot given the current one.
type PickFunc func(current string) (string, error)

// RollParams configure an AutoRoll.
type RollParams struct {
	Interval       time.Duration
	RemindInterval time.Duration
	// BusyRetry is how long a roll waits when the gate is held.
	BusyRetry time.Duration
	Pick      PickFunc
}

// AutoRoll swaps to a picked slot every Interval and reminds players of
// the remaining time every RemindInterval. Each cycle is one instance;
// Restart replaces it with a fresh one.
type AutoRoll struct {
	base

	deps   Deps
	params RollParams
	logger *logging.Logger

	mu       sync.Mutex
	nextFire time.Time
	pending  bool
	// gen invalidates callbacks of timers armed before the latest re-arm.
	gen          uint64
	rollTimer    clockwork.Timer
	reminder     clockwork.Ticker
	reminderQuit chan struct{}
}

// NewAutoRoll creates an auto-roll cycle. Nothing is scheduled until Start.
func NewAutoRoll(deps Deps, params RollParams) (*AutoRoll, error) {
	deps, err := deps.normalize()
	if err != nil {
		return nil, err
	}
	if params.Interval <= 0 || params.RemindInterval <= 0 {
		return nil, fmt.Errorf("roll intervals must be positive (interval %s, remind %s)",
			params.Interval, params.RemindInterval)
	}
	if params.Pick == nil {
		return nil, errors.New("roll needs a pick function")
	}
	if params.BusyRetry <= 0 {
		params.BusyRetry = DefaultBusyRetry
	}

	r := &AutoRoll{deps: deps, params: params}
	r.init(KindAutoRoll, false, deps.now())
	r.logger = deps.Logger.WithKind(string(KindAutoRoll)).WithSession(r.id)
	return r, nil
}

// Start registers the roll, replacing and interrupting any previous one,
// and arms its timers.
func (r *AutoRoll) Start() {
	if prev, ok := r.deps.Registry.Get(KindAutoRoll); ok && prev != r {
		prev.Interrupt()
	}
	r.deps.Registry.Register(r)

	r.mu.Lock()
	r.nextFire = r.deps.now().Add(r.params.Interval)
	r.armLocked()
	r.startReminderLocked()
	next := r.nextFire
	r.mu.Unlock()

	r.logger.Info("auto-roll scheduled", "next_fire", next)
	r.deps.publish(event.NewRollScheduledEvent(r.deps.now(), r.id, next))
}

// NextFire returns when the next roll is due.
func (r *AutoRoll) NextFire() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextFire
}

// Remaining returns the time left until the next roll.
func (r *AutoRoll) Remaining() time.Duration {
	return r.deps.Clock.Until(r.NextFire())
}

// Pending reports whether a roll is armed and has not fired yet.
func (r *AutoRoll) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Params returns the parameters the roll was created with.
func (r *AutoRoll) Params() RollParams {
	return r.params
}

// Delay pushes the pending roll back by d.
func (r *AutoRoll) Delay(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDelay, d)
	}

	r.mu.Lock()
	if r.Terminated() || !r.pending {
		r.mu.Unlock()
		return ErrNothingToDelay
	}
	r.nextFire = r.nextFire.Add(d)
	r.armLocked()
	r.startReminderLocked()
	next := r.nextFire
	r.mu.Unlock()

	r.logger.Info("auto-roll delayed", "by", d.String(), "next_fire", next)
	r.deps.publish(event.NewRollDelayedEvent(r.deps.now(), r.id, d, next))
	return nil
}

// Interrupt stops both timers and unregisters the roll.
func (r *AutoRoll) Interrupt() {
	if !r.terminate() {
		return
	}
	r.mu.Lock()
	r.gen++
	r.pending = false
	if r.rollTimer != nil {
		r.rollTimer.Stop()
	}
	r.stopReminderLocked()
	r.mu.Unlock()

	r.logger.Info("auto-roll interrupted")
	r.deps.Registry.clearSession(r)
}

// Restart interrupts the roll and starts a fresh cycle with the same
// parameters.
func (r *AutoRoll) Restart() *AutoRoll {
	r.Interrupt()
	next := &AutoRoll{deps: r.deps, params: r.params}
	next.init(KindAutoRoll, false, r.deps.now())
	next.logger = r.deps.Logger.WithKind(string(KindAutoRoll)).WithSession(next.id)
	next.Start()
	return next
}

func (r *AutoRoll) armLocked() {
	if r.rollTimer != nil {
		r.rollTimer.Stop()
	}
	r.gen++
	gen := r.gen
	r.pending = true
	r.rollTimer = r.deps.Clock.AfterFunc(r.deps.Clock.Until(r.nextFire), func() { r.fire(gen) })
}

func (r *AutoRoll) startReminderLocked() {
	r.stopReminderLocked()
	ticker := r.deps.Clock.NewTicker(r.params.RemindInterval)
	quit := make(chan struct{})
	r.reminder = ticker
	r.reminderQuit = quit

	go func() {
		for {
			select {
			case <-ticker.Chan():
				r.remind()
			case <-quit:
				return
			}
		}
	}()
}

func (r *AutoRoll) stopReminderLocked() {
	if r.reminder == nil {
		return
	}
	r.reminder.Stop()
	close(r.reminderQuit)
	r.reminder = nil
	r.reminderQuit = nil
}

func (r *AutoRoll) remind() {
	r.mu.Lock()
	pending := r.pending
	remaining := r.nextFire.Sub(r.deps.now())
	r.mu.Unlock()

	if !pending || r.Terminated() || remaining <= remindSkipWindow {
		return
	}
	r.deps.Host.Broadcast(fmt.Sprintf("Next map in %s minute(s)", FormatMinutes(remaining)))
}

// fire runs on the clock's goroutine when the roll timer expires.
func (r *AutoRoll) fire(gen uint64) {
	r.mu.Lock()
	if r.Terminated() || gen != r.gen || !r.pending {
		r.mu.Unlock()
		return
	}
	r.pending = false
	r.stopReminderLocked()
	r.mu.Unlock()

	r.logger.Info("auto-roll firing")
	r.deps.Host.Schedule(r.roll)
}

// roll runs on the executor.
func (r *AutoRoll) roll(ctx context.Context) {
	if r.Terminated() {
		return
	}

	current := r.deps.Catalog.Current()
	target, err := r.params.Pick(current)
	if err != nil {
		r.logger.Error("failed to pick next slot", "current", current, "error", err)
		r.deps.Host.Broadcast(fmt.Sprintf("Could not pick the next map: %v", err))
		r.restartIfCurrent()
		return
	}

	swap, err := NewSlotSwap(r.deps, target, SwapOptions{
		SuppressErrors: true,
		ShouldLock:     true,
		Trigger:        TriggerRoll,
	})
	if err != nil {
		r.logger.Error("failed to prepare slot swap", "target", target, "error", err)
		r.restartIfCurrent()
		return
	}

	err = swap.Run(ctx)
	switch {
	case errors.Is(err, ErrGateBusy):
		r.deferRoll()
		return
	case err != nil:
		r.logger.Warn("auto-roll swap ended without loading", "target", target, "error", err)
	}
	r.restartIfCurrent()
}

// deferRoll re-arms the roll BusyRetry from now.
func (r *AutoRoll) deferRoll() {
	r.mu.Lock()
	if r.Terminated() {
		r.mu.Unlock()
		return
	}
	r.nextFire = r.deps.now().Add(r.params.BusyRetry)
	r.armLocked()
	r.startReminderLocked()
	next := r.nextFire
	r.mu.Unlock()

	r.logger.Info("auto-roll deferred, gate busy", "retry_at", next)
	r.deps.Host.Broadcast(fmt.Sprintf("Another operation is in progress, the next map is postponed by %s minute(s)",
		FormatMinutes(r.params.BusyRetry)))
	r.deps.publish(event.NewRollDeferredEvent(r.deps.now(), r.id, next, ErrGateBusy.Error()))
}

// restartIfCurrent starts a new cycle unless the roll was replaced (a
// committed swap restarts it) or stopped.
func (r *AutoRoll) restartIfCurrent() {
	cur, ok := r.deps.Registry.Get(KindAutoRoll)
	if !ok || cur != Session(r) {
		return
	}
	r.Restart()
}
