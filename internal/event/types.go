// Package event defines event types for decoupling components in mapswitch.
// Sessions publish their lifecycle on the bus; the history recorder, the
// status view and the logs consume it without the sessions knowing them.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "swap.committed", "vote.resolved")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent stamps an event with at, which sessions take from their
// clock so fake-clock tests see deterministic times.
func newBaseEvent(eventType string, at time.Time) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: at,
	}
}

// Event type names.
const (
	TypeSessionRegistered = "session.registered"
	TypeSessionCleared    = "session.cleared"
	TypeSwapStarted       = "swap.started"
	TypeSwapCommitted     = "swap.committed"
	TypeSwapRolledBack    = "swap.rolled_back"
	TypeVoteStarted       = "vote.started"
	TypeVoteOvertime      = "vote.overtime"
	TypeVoteResolved      = "vote.resolved"
	TypeRollScheduled     = "roll.scheduled"
	TypeRollDelayed       = "roll.delayed"
	TypeRollDeferred      = "roll.deferred"
)

// -----------------------------------------------------------------------------
// Registry Events
// -----------------------------------------------------------------------------

// SessionRegisteredEvent is emitted when a session takes its kind's registry slot.
type SessionRegisteredEvent struct {
	baseEvent
	SessionID string
	Kind      string
}

// NewSessionRegisteredEvent creates a SessionRegisteredEvent.
func NewSessionRegisteredEvent(at time.Time, sessionID, kind string) SessionRegisteredEvent {
	return SessionRegisteredEvent{
		baseEvent: newBaseEvent(TypeSessionRegistered, at),
		SessionID: sessionID,
		Kind:      kind,
	}
}

// SessionClearedEvent is emitted when a session leaves the registry.
type SessionClearedEvent struct {
	baseEvent
	SessionID string
	Kind      string
}

// NewSessionClearedEvent creates a SessionClearedEvent.
func NewSessionClearedEvent(at time.Time, sessionID, kind string) SessionClearedEvent {
	return SessionClearedEvent{
		baseEvent: newBaseEvent(TypeSessionCleared, at),
		SessionID: sessionID,
		Kind:      kind,
	}
}

// -----------------------------------------------------------------------------
// Swap Events
// -----------------------------------------------------------------------------

// SwapStartedEvent is emitted when a swap begins its countdown.
type SwapStartedEvent struct {
	baseEvent
	SessionID string
	Slot      string
	Trigger   string // "manual", "vote" or "roll"
}

// NewSwapStartedEvent creates a SwapStartedEvent.
func NewSwapStartedEvent(at time.Time, sessionID, slot, trigger string) SwapStartedEvent {
	return SwapStartedEvent{
		baseEvent: newBaseEvent(TypeSwapStarted, at),
		SessionID: sessionID,
		Slot:      slot,
		Trigger:   trigger,
	}
}

// SwapCommittedEvent is emitted when the target slot is fully installed.
type SwapCommittedEvent struct {
	baseEvent
	SessionID string
	Slot      string
	Previous  string // slot that was current before the swap, empty if unknown
	Trigger   string
	Duration  time.Duration
}

// NewSwapCommittedEvent creates a SwapCommittedEvent.
func NewSwapCommittedEvent(at time.Time, sessionID, slot, previous, trigger string, took time.Duration) SwapCommittedEvent {
	return SwapCommittedEvent{
		baseEvent: newBaseEvent(TypeSwapCommitted, at),
		SessionID: sessionID,
		Slot:      slot,
		Previous:  previous,
		Trigger:   trigger,
		Duration:  took,
	}
}

// SwapRolledBackEvent is emitted when a swap failed and the working
// directory was restored (or left untouched when the backup never finished).
type SwapRolledBackEvent struct {
	baseEvent
	SessionID string
	Slot      string
	Trigger   string
	Reason    string
	Restored  bool // false when the failure happened before the backup completed
}

// NewSwapRolledBackEvent creates a SwapRolledBackEvent.
func NewSwapRolledBackEvent(at time.Time, sessionID, slot, trigger, reason string, restored bool) SwapRolledBackEvent {
	return SwapRolledBackEvent{
		baseEvent: newBaseEvent(TypeSwapRolledBack, at),
		SessionID: sessionID,
		Slot:      slot,
		Trigger:   trigger,
		Reason:    reason,
		Restored:  restored,
	}
}

// -----------------------------------------------------------------------------
// Vote Events
// -----------------------------------------------------------------------------

// VoteStartedEvent is emitted when a ballot opens.
type VoteStartedEvent struct {
	baseEvent
	SessionID string
	Initiator string
	Target    string
	Options   []string
	TimeLimit time.Duration
}

// NewVoteStartedEvent creates a VoteStartedEvent.
func NewVoteStartedEvent(at time.Time, sessionID, initiator, target string, options []string, limit time.Duration) VoteStartedEvent {
	return VoteStartedEvent{
		baseEvent: newBaseEvent(TypeVoteStarted, at),
		SessionID: sessionID,
		Initiator: initiator,
		Target:    target,
		Options:   options,
		TimeLimit: limit,
	}
}

// VoteOvertimeEvent is emitted when a tie restarts collection on the tied options.
type VoteOvertimeEvent struct {
	baseEvent
	SessionID string
	Round     int
	Options   []string
}

// NewVoteOvertimeEvent creates a VoteOvertimeEvent.
func NewVoteOvertimeEvent(at time.Time, sessionID string, round int, options []string) VoteOvertimeEvent {
	return VoteOvertimeEvent{
		baseEvent: newBaseEvent(TypeVoteOvertime, at),
		SessionID: sessionID,
		Round:     round,
		Options:   options,
	}
}

// VoteResolvedEvent is emitted when a vote ends. Winners is empty when
// nobody voted or the vote was interrupted.
type VoteResolvedEvent struct {
	baseEvent
	SessionID   string
	Initiator   string
	Target      string
	Winners     []string
	Ballots     int
	Overtime    int
	Interrupted bool
}

// NewVoteResolvedEvent creates a VoteResolvedEvent.
func NewVoteResolvedEvent(at time.Time, sessionID, initiator, target string, winners []string, ballots, overtime int, interrupted bool) VoteResolvedEvent {
	return VoteResolvedEvent{
		baseEvent:   newBaseEvent(TypeVoteResolved, at),
		SessionID:   sessionID,
		Initiator:   initiator,
		Target:      target,
		Winners:     winners,
		Ballots:     ballots,
		Overtime:    overtime,
		Interrupted: interrupted,
	}
}

// -----------------------------------------------------------------------------
// Rolling Events
// -----------------------------------------------------------------------------

// RollScheduledEvent is emitted when a rolling cycle arms its timer.
type RollScheduledEvent struct {
	baseEvent
	SessionID string
	NextFire  time.Time
}

// NewRollScheduledEvent creates a RollScheduledEvent.
func NewRollScheduledEvent(at time.Time, sessionID string, nextFire time.Time) RollScheduledEvent {
	return RollScheduledEvent{
		baseEvent: newBaseEvent(TypeRollScheduled, at),
		SessionID: sessionID,
		NextFire:  nextFire,
	}
}

// RollDelayedEvent is emitted when the next roll is pushed back.
type RollDelayedEvent struct {
	baseEvent
	SessionID string
	By        time.Duration
	NextFire  time.Time
}

// NewRollDelayedEvent creates a RollDelayedEvent.
func NewRollDelayedEvent(at time.Time, sessionID string, by time.Duration, nextFire time.Time) RollDelayedEvent {
	return RollDelayedEvent{
		baseEvent: newBaseEvent(TypeRollDelayed, at),
		SessionID: sessionID,
		By:        by,
		NextFire:  nextFire,
	}
}

// RollDeferredEvent is emitted when a due roll could not take the gate.
type RollDeferredEvent struct {
	baseEvent
	SessionID string
	RetryAt   time.Time
	Reason    string
}

// NewRollDeferredEvent creates a RollDeferredEvent.
func NewRollDeferredEvent(at time.Time, sessionID string, retryAt time.Time, reason string) RollDeferredEvent {
	return RollDeferredEvent{
		baseEvent: newBaseEvent(TypeRollDeferred, at),
		SessionID: sessionID,
		RetryAt:   retryAt,
		Reason:    reason,
	}
}
