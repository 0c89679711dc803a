package orchestrator

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/mapswitch/internal/session"
)

// StartRolling starts (or restarts) the automatic rolling cycle and
// returns when the first roll is due. Rolling needs at least two slots.
func (s *Service) StartRolling() (time.Time, error) {
	n, err := s.catalog.Count()
	if err != nil {
		return time.Time{}, err
	}
	if n < 2 {
		return time.Time{}, fmt.Errorf("%w: rolling needs at least 2 slots, found %d", ErrNotEnoughSlots, n)
	}

	rolling := s.Settings().Rolling
	roll, err := session.NewAutoRoll(s.sessionDeps(), session.RollParams{
		Interval:       rolling.Interval,
		RemindInterval: rolling.RemindInterval,
		BusyRetry:      rolling.BusyRetry,
		Pick:           s.pick,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	roll.Start()
	return roll.NextFire(), nil
}

// StopRolling interrupts the rolling cycle.
func (s *Service) StopRolling() error {
	roll, err := s.currentRoll()
	if err != nil {
		return err
	}
	roll.Interrupt()
	s.logger.Info("automatic rolling stopped", "session_id", roll.ID())
	return nil
}

// DelayRolling pushes the next roll back by d, or by the default delay when
// d is zero, and returns the new due time.
func (s *Service) DelayRolling(d time.Duration) (time.Time, error) {
	if d == 0 {
		d = s.Settings().Rolling.DefaultDelay
	}
	roll, err := s.currentRoll()
	if err != nil {
		return time.Time{}, err
	}
	if err := roll.Delay(d); err != nil {
		return time.Time{}, err
	}
	s.host.Broadcast(fmt.Sprintf("The next map is delayed by %s minute(s)", session.FormatMinutes(d)))
	return roll.NextFire(), nil
}

// pick chooses the next slot at random, never the installed one.
func (s *Service) pick(current string) (string, error) {
	slot, err := s.catalog.PickRandom(current)
	if err != nil {
		return "", err
	}
	return slot.Name, nil
}

func (s *Service) currentRoll() (*session.AutoRoll, error) {
	cur, ok := s.registry.Get(session.KindAutoRoll)
	if !ok {
		return nil, session.ErrNotRolling
	}
	roll, ok := cur.(*session.AutoRoll)
	if !ok || roll.Terminated() {
		return nil, session.ErrNotRolling
	}
	return roll, nil
}
