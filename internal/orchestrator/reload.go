package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/Iron-Ham/mapswitch/internal/session"
)

// Settings are the parts of the Service's configuration that can change
// while the daemon runs.
type Settings struct {
	Swap          session.SwapSettings
	VoteTimeLimit time.Duration
	Rolling       RollingOptions
}

// Settings returns the settings new sessions are created with.
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Settings{Swap: s.deps.Swap, VoteTimeLimit: s.voteTime, Rolling: s.rolling}
}

func (s *Service) sessionDeps() session.Deps {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deps
}

// Reconfigure replaces the swap, vote and rolling settings. Sessions
// already running finish with the settings they started with. A live
// rolling cycle is restarted on the new intervals, or stopped when rolling
// is now disabled. Rolling that was disabled and is now enabled starts; a
// cycle stopped by hand stays stopped.
func (s *Service) Reconfigure(st Settings) error {
	if st.VoteTimeLimit <= 0 {
		return fmt.Errorf("%w: vote time limit must be positive", ErrInvalidArgument)
	}
	if st.Rolling.Enabled && (st.Rolling.Interval <= 0 || st.Rolling.RemindInterval <= 0) {
		return fmt.Errorf("%w: rolling intervals must be positive", ErrInvalidArgument)
	}

	s.mu.Lock()
	wasEnabled := s.rolling.Enabled
	s.deps.Swap = st.Swap
	s.voteTime = st.VoteTimeLimit
	s.rolling = st.Rolling
	s.mu.Unlock()

	s.logger.Info("settings reloaded",
		"vote_time_limit", st.VoteTimeLimit.String(),
		"rolling_enabled", st.Rolling.Enabled,
		"rolling_interval", st.Rolling.Interval.String(),
		"countdown", st.Swap.Countdown.String())

	_, err := s.currentRoll()
	live := err == nil
	switch {
	case live && !st.Rolling.Enabled:
		return s.StopRolling()
	case live, st.Rolling.Enabled && !wasEnabled:
		next, err := s.StartRolling()
		if errors.Is(err, ErrNotEnoughSlots) {
			s.logger.Warn("automatic rolling not started", "error", err)
			return nil
		}
		if err != nil {
			return err
		}
		s.logger.Info("automatic rolling restarted", "next_fire", next)
	}
	return nil
}
