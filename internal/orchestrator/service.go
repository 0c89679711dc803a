// Package orchestrator wires the session core to the daemon's collaborators.
// The Service is what the control API calls: it builds swaps, votes and
// rolling cycles with the right options and reports status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Iron-Ham/mapswitch/internal/catalog"
	"github.com/Iron-Ham/mapswitch/internal/event"
	"github.com/Iron-Ham/mapswitch/internal/history"
	"github.com/Iron-Ham/mapswitch/internal/host"
	"github.com/Iron-Ham/mapswitch/internal/logging"
	"github.com/Iron-Ham/mapswitch/internal/session"
)

// Sentinel errors.
var (
	ErrNotEnoughSlots  = errors.New("not enough slots")
	ErrUnknownVoteKind = errors.New("unknown vote kind")
	ErrHistoryDisabled = errors.New("history is disabled")
	ErrInvalidArgument = errors.New("invalid argument")
)

// RollingOptions configure automatic rolling.
type RollingOptions struct {
	// Enabled starts rolling from Start when at least two slots exist.
	Enabled        bool
	Interval       time.Duration
	RemindInterval time.Duration
	BusyRetry      time.Duration
	// DefaultDelay is used by delay requests that name no amount.
	DefaultDelay time.Duration
}

// Config holds the Service's collaborators.
type Config struct {
	Host     *host.Host
	Catalog  *catalog.Catalog
	Registry *session.Registry
	// History may be nil when history is disabled.
	History *history.Store
	Bus     *event.Bus
	Clock   clockwork.Clock
	Logger  *logging.Logger

	Swap          session.SwapSettings
	VoteTimeLimit time.Duration
	Rolling       RollingOptions
}

// Service runs user and timer requests against the session core.
type Service struct {
	host     *host.Host
	catalog  *catalog.Catalog
	registry *session.Registry
	history  *history.Store
	logger   *logging.Logger

	// mu guards the settings below, which Reconfigure replaces.
	mu       sync.RWMutex
	deps     session.Deps
	voteTime time.Duration
	rolling  RollingOptions
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Host == nil || cfg.Catalog == nil || cfg.Registry == nil {
		return nil, fmt.Errorf("orchestrator needs a host, a catalog and a registry")
	}
	if cfg.VoteTimeLimit <= 0 {
		return nil, fmt.Errorf("%w: vote time limit must be positive", ErrInvalidArgument)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}

	return &Service{
		host:     cfg.Host,
		catalog:  cfg.Catalog,
		registry: cfg.Registry,
		history:  cfg.History,
		deps: session.Deps{
			Registry: cfg.Registry,
			Host:     cfg.Host,
			Catalog:  cfg.Catalog,
			Clock:    cfg.Clock,
			Bus:      cfg.Bus,
			Logger:   cfg.Logger,
			Swap:     cfg.Swap,
		},
		voteTime: cfg.VoteTimeLimit,
		rolling:  cfg.Rolling,
		logger:   cfg.Logger.With("component", "orchestrator"),
	}, nil
}

// Start begins automatic rolling when it is enabled and at least two slots
// exist. A catalog with fewer slots only logs a warning.
func (s *Service) Start() {
	if !s.Settings().Rolling.Enabled {
		s.logger.Info("automatic rolling disabled")
		return
	}
	next, err := s.StartRolling()
	if err != nil {
		s.logger.Warn("automatic rolling not started", "error", err)
		return
	}
	s.logger.Info("automatic rolling started", "next_fire", next)
}

// Shutdown interrupts every live session.
func (s *Service) Shutdown() {
	s.registry.Shutdown()
}

// Load swaps to slot. Without wait a busy gate fails with
// session.ErrGateBusy; with wait the call queues for the gate until ctx
// ends. Once the swap is queued it runs to completion even if ctx is
// cancelled.
func (s *Service) Load(ctx context.Context, slot string, wait bool) error {
	deps := s.sessionDeps()
	if !wait {
		swap, err := session.NewSlotSwap(deps, slot, session.SwapOptions{
			ShouldLock: true,
			Trigger:    session.TriggerManual,
		})
		if err != nil {
			return err
		}
		return s.host.Do(context.WithoutCancel(ctx), swap.Run)
	}

	swap, err := session.NewSlotSwap(deps, slot, session.SwapOptions{
		ShouldLock: false,
		Trigger:    session.TriggerManual,
	})
	if err != nil {
		return err
	}
	if err := s.registry.AcquireGate(ctx); err != nil {
		return fmt.Errorf("%w: gave up waiting: %w", session.ErrGateBusy, err)
	}
	defer s.registry.ReleaseGate()
	return s.host.Do(context.WithoutCancel(ctx), swap.Run)
}

// History returns up to limit recent swaps and votes.
func (s *Service) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Recent(ctx, limit)
}
