package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/mapswitch/internal/session"
)

// VoteKind selects what a vote decides.
type VoteKind string

const (
	// VoteSwitch picks the next map among every other slot, or keeps the
	// current one.
	VoteSwitch VoteKind = "switch"
	// VoteDelay decides whether the next automatic roll is pushed back.
	VoteDelay VoteKind = "delay"
)

// Option names with a meaning of their own.
const (
	OptionKeep  = "keep"
	OptionDelay = "delay"
)

const keepColor = "gold"

// VoteRequest starts a vote.
type VoteRequest struct {
	Kind      VoteKind `json:"kind"`
	Initiator string   `json:"initiator"`
	// Minutes is the delay a VoteDelay proposes; zero means the default.
	Minutes int `json:"minutes,omitempty"`
}

// StartVote opens a vote and returns its initial state.
func (s *Service) StartVote(ctx context.Context, req VoteRequest) (session.VoteState, error) {
	if req.Initiator == "" {
		req.Initiator = "console"
	}

	var params session.VoteParams
	var err error
	switch req.Kind {
	case VoteSwitch:
		params, err = s.switchVote(req)
	case VoteDelay:
		params, err = s.delayVote(req)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownVoteKind, req.Kind)
	}
	if err != nil {
		return session.VoteState{}, err
	}

	params.Initiator = req.Initiator
	params.TimeLimit = s.Settings().VoteTimeLimit
	v, err := session.NewVote(s.sessionDeps(), params)
	if err != nil {
		return session.VoteState{}, err
	}
	if err := v.Start(ctx); err != nil {
		return session.VoteState{}, err
	}
	s.logger.Info("vote started", "kind", string(req.Kind), "initiator", req.Initiator, "session_id", v.ID())
	return v.State(), nil
}

// switchVote offers every slot but the current one plus keeping it. The
// winner is installed from the executor under the vote's gate.
func (s *Service) switchVote(req VoteRequest) (session.VoteParams, error) {
	slots, err := s.catalog.List(false)
	if err != nil {
		return session.VoteParams{}, err
	}
	current := s.catalog.Current()

	var options []session.Option
	for _, slot := range slots {
		if slot.Name != current {
			options = append(options, session.NewOption(slot.Name, "", ""))
		}
	}
	if len(options) == 0 {
		return session.VoteParams{}, fmt.Errorf("%w: no other slot to switch to", ErrNotEnoughSlots)
	}
	options = append(options, session.NewOption(OptionKeep, "Keep the current map", keepColor))

	return session.VoteParams{
		Target:             "switch map",
		Options:            options,
		DispatchOnExecutor: true,
		OnResolved:         s.switchResolved,
	}, nil
}

func (s *Service) switchResolved(ctx context.Context, winners []session.Option) {
	winner := winners[0]
	if winner.Name == OptionKeep {
		s.host.Broadcast("The vote decided to keep the current map")
		return
	}

	swap, err := session.NewSlotSwap(s.sessionDeps(), winner.Name, session.SwapOptions{
		SuppressErrors: true,
		ShouldLock:     false,
		Trigger:        session.TriggerVote,
	})
	if err != nil {
		s.logger.Error("voted slot unavailable", "slot", winner.Name, "error", err)
		s.host.Broadcast(fmt.Sprintf("Failed to load map %s: %v", winner.Name, err))
		return
	}
	// Swap failures are broadcast and logged by the swap itself; what
	// remains are refusals to run at all.
	if err := swap.Run(ctx); err != nil {
		s.logger.Error("voted swap did not run", "slot", winner.Name, "error", err)
	}
}

// delayVote asks whether to push the next roll back. It requires a live
// rolling cycle.
func (s *Service) delayVote(req VoteRequest) (session.VoteParams, error) {
	if req.Minutes < 0 {
		return session.VoteParams{}, fmt.Errorf("%w: %d minutes", session.ErrInvalidDelay, req.Minutes)
	}
	if _, err := s.currentRoll(); err != nil {
		return session.VoteParams{}, err
	}
	delay := s.Settings().Rolling.DefaultDelay
	if req.Minutes > 0 {
		delay = time.Duration(req.Minutes) * time.Minute
	}
	if delay <= 0 {
		return session.VoteParams{}, fmt.Errorf("%w: no delay configured", session.ErrInvalidDelay)
	}
	mins := int(delay / time.Minute)

	options := []session.Option{
		session.NewOption(OptionDelay, fmt.Sprintf("Delay the next map by %d minute(s)", mins), ""),
		session.NewOption(OptionKeep, "Keep the schedule", keepColor),
	}
	return session.VoteParams{
		Target:  fmt.Sprintf("delay the next map by %d minute(s)", mins),
		Options: options,
		OnResolved: func(_ context.Context, winners []session.Option) {
			s.delayResolved(winners[0], delay)
		},
	}, nil
}

func (s *Service) delayResolved(winner session.Option, delay time.Duration) {
	if winner.Name != OptionDelay {
		s.host.Broadcast("The vote decided to keep the schedule")
		return
	}
	roll, err := s.currentRoll()
	if err == nil {
		err = roll.Delay(delay)
	}
	if err != nil {
		s.logger.Warn("voted delay not applied", "error", err)
		s.host.Broadcast(fmt.Sprintf("Could not delay the next map: %v", err))
		return
	}
	s.host.Broadcast(fmt.Sprintf("The next map is delayed by %d minute(s)", int(delay/time.Minute)))
}

// CurrentVote returns the running vote's state.
func (s *Service) CurrentVote() (session.VoteState, error) {
	v, err := s.currentVote()
	if err != nil {
		return session.VoteState{}, err
	}
	return v.State(), nil
}

// Cast records voter's ballot in the running vote.
func (s *Service) Cast(voter, option string) (session.Option, error) {
	if voter == "" {
		return session.Option{}, fmt.Errorf("%w: voter is required", ErrInvalidArgument)
	}
	v, err := s.currentVote()
	if err != nil {
		return session.Option{}, err
	}
	return v.Cast(voter, option)
}

// CancelVote interrupts the running vote.
func (s *Service) CancelVote() error {
	v, err := s.currentVote()
	if err != nil {
		return err
	}
	v.Interrupt()
	return nil
}

func (s *Service) currentVote() (*session.Vote, error) {
	cur, ok := s.registry.Get(session.KindVote)
	if !ok {
		return nil, session.ErrNoActiveVote
	}
	v, ok := cur.(*session.Vote)
	if !ok || v.Terminated() {
		return nil, session.ErrNoActiveVote
	}
	return v, nil
}
