package session

import "errors"

// Sentinel errors returned by sessions and the registry. Callers match them
// with errors.Is; most are wrapped with the slot, option or delay involved.
var (
	// ErrSlotNotFound is returned when a swap targets a slot the catalog
	// does not know.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrWrongExecutionContext is returned when an operation runs on the
	// wrong goroutine: swaps must run on the executor, votes must not.
	ErrWrongExecutionContext = errors.New("wrong execution context")

	// ErrVoteAlreadyRunning is returned when a vote is started while
	// another one is registered.
	ErrVoteAlreadyRunning = errors.New("a vote is already running")

	// ErrUnknownOption is returned for ballots naming an option that is not
	// in the vote's active set.
	ErrUnknownOption = errors.New("unknown vote option")

	// ErrNoActiveVote is returned for ballots cast after the vote ended.
	ErrNoActiveVote = errors.New("no active vote")

	// ErrNothingToDelay is returned when no roll is pending.
	ErrNothingToDelay = errors.New("no pending roll to delay")

	// ErrGateBusy is returned when another disruptive operation holds the gate.
	ErrGateBusy = errors.New("another operation is in progress")

	// ErrSwapFailed wraps every failure between stopping the server and
	// restarting it.
	ErrSwapFailed = errors.New("slot swap failed")

	// ErrInvalidDelay is returned for non-positive delays.
	ErrInvalidDelay = errors.New("delay must be positive")

	// ErrNotRolling is returned when auto-rolling is not active.
	ErrNotRolling = errors.New("auto-rolling is not active")

	// ErrInterrupted is returned by a swap interrupted during its countdown.
	ErrInterrupted = errors.New("session interrupted")

	// ErrNoOptions is returned when a vote is created without options.
	ErrNoOptions = errors.New("vote needs at least one option")
)
