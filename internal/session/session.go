// Package session implements the disruptive operations mapswitch runs
// against the game server: slot swaps, votes and the auto-roll timer.
//
// At most one session of each kind is registered at a time, and a global
// gate owned by the Registry guarantees that only one disruptive routine
// touches the server at any instant. Work that stops, starts or rewrites
// the server runs on the host's executor goroutine; votes run on their own
// goroutine and never on the executor.
package session

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Iron-Ham/mapswitch/internal/event"
	"github.com/Iron-Ham/mapswitch/internal/fsutil"
	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// Kind identifies a session type. The registry holds at most one session
// per kind.
type Kind string

const (
	KindSlotSwap Kind = "slot_swap"
	KindVote     Kind = "vote"
	KindAutoRoll Kind = "auto_roll"
)

// Kinds returns every session kind in display order.
func Kinds() []Kind {
	return []Kind{KindSlotSwap, KindVote, KindAutoRoll}
}

// Session is a registered disruptive operation.
type Session interface {
	Kind() Kind
	ID() string
	// ShouldLock reports whether the session takes the global gate itself.
	ShouldLock() bool
	Terminated() bool
	// Interrupt stops the session. It is idempotent.
	Interrupt()
	StartedAt() time.Time
}

// SlotCatalog is the part of the slot catalog sessions need.
type SlotCatalog interface {
	Exists(name string) bool
	SlotDir(name string) string
	RecordUsage(name string, at time.Time) error
	Current() string
	SetCurrent(name string) error
}

// Host is the game server as seen by sessions.
type Host interface {
	Broadcast(msg string)
	IsRunning() bool
	Stop(ctx context.Context) error
	Start(ctx context.Context) error
	OnExecutor(ctx context.Context) bool
	Schedule(fn func(ctx context.Context))
}

// SwapSettings describes the server working directory a swap rewrites.
type SwapSettings struct {
	// ServerDir is the server's working directory.
	ServerDir string
	// TempFolder is the scratch directory name inside ServerDir.
	TempFolder string
	// WorldItems are always backed up and replaced.
	WorldItems []string
	// Ignore skips matching names while installing a slot.
	Ignore *fsutil.Matcher
	// Countdown is announced second by second before the server stops.
	Countdown time.Duration
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Registry *Registry
	Host     Host
	Catalog  SlotCatalog
	Clock    clockwork.Clock
	Bus      *event.Bus
	Logger   *logging.Logger
	Swap     SwapSettings
}

func (d Deps) normalize() (Deps, error) {
	if d.Registry == nil {
		return d, errors.New("session: registry is required")
	}
	if d.Host == nil {
		return d, errors.New("session: host is required")
	}
	if d.Catalog == nil {
		return d, errors.New("session: catalog is required")
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = logging.NopLogger()
	}
	return d, nil
}

func (d Deps) now() time.Time {
	return d.Clock.Now()
}

func (d Deps) publish(e event.Event) {
	if d.Bus != nil {
		d.Bus.Publish(e)
	}
}

// base carries the identity and termination state shared by all sessions.
type base struct {
	id         string
	kind       Kind
	shouldLock bool
	startedAt  time.Time

	terminated atomic.Bool
	stopOnce   sync.Once
	stop       chan struct{}
}

func (b *base) init(kind Kind, shouldLock bool, now time.Time) {
	b.id = uuid.NewString()
	b.kind = kind
	b.shouldLock = shouldLock
	b.startedAt = now
	b.stop = make(chan struct{})
}

func (b *base) ID() string           { return b.id }
func (b *base) Kind() Kind           { return b.kind }
func (b *base) ShouldLock() bool     { return b.shouldLock }
func (b *base) StartedAt() time.Time { return b.startedAt }
func (b *base) Terminated() bool     { return b.terminated.Load() }

// terminate marks the session terminated and closes its stop channel.
// It reports whether this call did so.
func (b *base) terminate() bool {
	if !b.terminated.CompareAndSwap(false, true) {
		return false
	}
	b.stopOnce.Do(func() { close(b.stop) })
	return true
}

// sleep waits d on clock. It returns false if stop closed first.
func sleep(clock clockwork.Clock, d time.Duration, stop <-chan struct{}) bool {
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return true
	case <-stop:
		return false
	}
}

// FormatMinutes renders d in minutes, rounded to two decimals.
func FormatMinutes(d time.Duration) string {
	return strconv.FormatFloat(math.Round(d.Minutes()*100)/100, 'f', -1, 64)
}
