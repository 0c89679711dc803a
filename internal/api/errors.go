package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Iron-Ham/mapswitch/internal/catalog"
	"github.com/Iron-Ham/mapswitch/internal/orchestrator"
	"github.com/Iron-Ham/mapswitch/internal/session"
)

// API-level sentinel errors.
var (
	ErrRateLimited = errors.New("too many ballots, slow down")
	ErrBadRequest  = errors.New("bad request")
	// ErrInvalidConfig is returned by reloads of a configuration that does
	// not validate. The daemon keeps its current settings.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorCode ties a sentinel to its wire code and HTTP status.
type errorCode struct {
	err    error
	code   string
	status int
}

// errorCodes is checked in order; the first sentinel err matches wins.
var errorCodes = []errorCode{
	{session.ErrSwapFailed, "swap_failed", http.StatusInternalServerError},
	{session.ErrSlotNotFound, "slot_not_found", http.StatusNotFound},
	{catalog.ErrNotFound, "slot_not_found", http.StatusNotFound},
	{session.ErrGateBusy, "gate_busy", http.StatusConflict},
	{session.ErrVoteAlreadyRunning, "vote_already_running", http.StatusConflict},
	{session.ErrNoActiveVote, "no_active_vote", http.StatusConflict},
	{session.ErrNothingToDelay, "nothing_to_delay", http.StatusConflict},
	{session.ErrNotRolling, "not_rolling", http.StatusConflict},
	{orchestrator.ErrNotEnoughSlots, "not_enough_slots", http.StatusConflict},
	{orchestrator.ErrHistoryDisabled, "history_disabled", http.StatusConflict},
	{session.ErrInterrupted, "interrupted", http.StatusConflict},
	{session.ErrUnknownOption, "unknown_option", http.StatusUnprocessableEntity},
	{session.ErrInvalidDelay, "invalid_delay", http.StatusUnprocessableEntity},
	{orchestrator.ErrUnknownVoteKind, "unknown_vote_kind", http.StatusUnprocessableEntity},
	{orchestrator.ErrInvalidArgument, "invalid_argument", http.StatusUnprocessableEntity},
	{catalog.ErrInvalidName, "invalid_argument", http.StatusUnprocessableEntity},
	{ErrInvalidConfig, "invalid_config", http.StatusUnprocessableEntity},
	{ErrBadRequest, "bad_request", http.StatusBadRequest},
	{ErrRateLimited, "rate_limited", http.StatusTooManyRequests},
	{session.ErrWrongExecutionContext, "wrong_execution_context", http.StatusInternalServerError},
}

const codeInternal = "internal"

// classify returns the wire code and status for err.
func classify(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return codeInternal, http.StatusInternalServerError
}

// sentinelFor maps a wire code back to its sentinel, or nil.
func sentinelFor(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// StatusError is returned by the Client for non-2xx responses. It unwraps
// to the sentinel named by the response code, so errors.Is works across
// the HTTP boundary.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Unwrap returns the sentinel error named by Code.
func (e *StatusError) Unwrap() error {
	return sentinelFor(e.Code)
}
