package orchestrator

import (
	"time"

	"github.com/Iron-Ham/mapswitch/internal/host"
	"github.com/Iron-Ham/mapswitch/internal/session"
)

// recentBroadcasts is how many broadcasts Status carries.
const recentBroadcasts = 10

// RollingStatus describes the live rolling cycle.
type RollingStatus struct {
	SessionID string        `json:"session_id"`
	NextFire  time.Time     `json:"next_fire"`
	Remaining time.Duration `json:"remaining"`
	// Pending is false while a due roll is being executed.
	Pending bool `json:"pending"`
}

// Status is a point-in-time view of the daemon.
type Status struct {
	Current       string             `json:"current"`
	SlotCount     int                `json:"slot_count"`
	ServerRunning bool               `json:"server_running"`
	GateHeld      bool               `json:"gate_held"`
	Sessions      []session.Info     `json:"sessions"`
	Rolling       *RollingStatus     `json:"rolling,omitempty"`
	Vote          *session.VoteState `json:"vote,omitempty"`
	Broadcasts    []host.Message     `json:"broadcasts"`
}

// Status reports the current slot, live sessions and recent broadcasts.
func (s *Service) Status() Status {
	st := Status{
		Current:       s.catalog.Current(),
		ServerRunning: s.host.IsRunning(),
		GateHeld:      s.registry.GateHeld(),
		Sessions:      s.registry.Snapshot(),
		Broadcasts:    s.host.Recent(recentBroadcasts),
	}
	if n, err := s.catalog.Count(); err == nil {
		st.SlotCount = n
	} else {
		s.logger.Warn("failed to count slots", "error", err)
	}

	if roll, err := s.currentRoll(); err == nil {
		st.Rolling = &RollingStatus{
			SessionID: roll.ID(),
			NextFire:  roll.NextFire(),
			Remaining: roll.Remaining(),
			Pending:   roll.Pending(),
		}
	}
	if v, err := s.currentVote(); err == nil {
		state := v.State()
		st.Vote = &state
	}
	return st
}
