package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/mapswitch/internal/catalog"
	"github.com/Iron-Ham/mapswitch/internal/event"
	"github.com/Iron-Ham/mapswitch/internal/fsutil"
	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// Trigger records what started a swap.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerVote   Trigger = "vote"
	TriggerRoll   Trigger = "roll"
)

// SwapOptions tune a SlotSwap.
type SwapOptions struct {
	// SuppressErrors logs and broadcasts swap failures instead of
	// returning them.
	SuppressErrors bool
	// ShouldLock makes the swap take the gate itself. Swaps run on behalf
	// of a gate holder (a resolved vote, a waiting load) pass false.
	ShouldLock bool
	Trigger    Trigger
}

// SlotSwap replaces the server's working state with a slot. It either
// installs the slot completely or restores the previous state.
type SlotSwap struct {
	base

	deps    Deps
	target  string
	slotDir string
	opts    SwapOptions
	logger  *logging.Logger

	mu       sync.Mutex
	mutating bool
}

// swapState tracks progress for rollback.
type swapState struct {
	previous   string
	affected   []string
	backedUp   []string
	backupDone bool
	installed  []string
	committed  bool
}

// NewSlotSwap prepares a swap to target. It fails with ErrSlotNotFound
// before anything is touched.
func NewSlotSwap(deps Deps, target string, opts SwapOptions) (*SlotSwap, error) {
	deps, err := deps.normalize()
	if err != nil {
		return nil, err
	}
	if !deps.Catalog.Exists(target) {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, target)
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}

	s := &SlotSwap{
		deps:    deps,
		target:  target,
		slotDir: deps.Catalog.SlotDir(target),
		opts:    opts,
	}
	s.init(KindSlotSwap, opts.ShouldLock, deps.now())
	s.logger = deps.Logger.WithKind(string(KindSlotSwap)).WithSession(s.id).WithSlot(target)
	return s, nil
}

// Target returns the slot being installed.
func (s *SlotSwap) Target() string {
	return s.target
}

// Run performs the swap. It must be called on the executor.
func (s *SlotSwap) Run(ctx context.Context) error {
	if !s.deps.Host.OnExecutor(ctx) {
		return fmt.Errorf("slot swap must run on the executor: %w", ErrWrongExecutionContext)
	}
	if s.shouldLock {
		if !s.deps.Registry.TryAcquireGate() {
			s.logger.Info("swap refused, gate busy")
			return fmt.Errorf("load %s: %w", s.target, ErrGateBusy)
		}
		defer s.deps.Registry.ReleaseGate()
	}
	if s.Terminated() {
		return ErrInterrupted
	}

	s.deps.Registry.Register(s)
	defer s.deps.Registry.clearSession(s)
	defer s.terminate()

	err := s.execute(ctx)
	if err == nil || errors.Is(err, ErrInterrupted) {
		return err
	}
	s.logger.Error("slot swap failed", "error", err, "suppressed", s.opts.SuppressErrors)
	s.deps.Host.Broadcast(fmt.Sprintf("Failed to load map %s: %v", s.target, err))
	if s.opts.SuppressErrors {
		return nil
	}
	return err
}

func (s *SlotSwap) execute(ctx context.Context) error {
	started := s.deps.now()
	s.deps.publish(event.NewSwapStartedEvent(started, s.id, s.target, string(s.opts.Trigger)))
	s.logger.Info("slot swap started", "trigger", string(s.opts.Trigger))

	if err := s.countdown(); err != nil {
		s.logger.Info("slot swap interrupted during countdown")
		s.deps.Host.Broadcast(fmt.Sprintf("Loading map %s was cancelled", s.target))
		s.deps.publish(event.NewSwapRolledBackEvent(s.deps.now(), s.id, s.target, string(s.opts.Trigger), "interrupted", true))
		return err
	}

	s.mu.Lock()
	if s.Terminated() {
		s.mu.Unlock()
		return ErrInterrupted
	}
	s.mutating = true
	s.mu.Unlock()

	st := &swapState{previous: s.deps.Catalog.Current()}
	if err := s.install(ctx, st); err != nil {
		restored := s.rollback(ctx, st)
		s.deps.publish(event.NewSwapRolledBackEvent(s.deps.now(), s.id, s.target, string(s.opts.Trigger), err.Error(), restored))
		return fmt.Errorf("%w: load %s: %w", ErrSwapFailed, s.target, err)
	}

	took := s.deps.Clock.Since(started)
	s.logger.Info("slot swap committed", "previous", st.previous, "took", took.String())
	s.deps.publish(event.NewSwapCommittedEvent(s.deps.now(), s.id, s.target, st.previous, string(s.opts.Trigger), took))

	if roll, ok := s.deps.Registry.Get(KindAutoRoll); ok {
		if r, ok := roll.(*AutoRoll); ok {
			r.Restart()
		}
	}
	return nil
}

// countdown announces the target and counts down on the clock.
func (s *SlotSwap) countdown() error {
	s.deps.Host.Broadcast(fmt.Sprintf("Next map: %s", s.target))

	secs := int(s.deps.Swap.Countdown.Seconds())
	if secs <= 0 {
		return nil
	}
	s.deps.Host.Broadcast(fmt.Sprintf("The server restarts in %d seconds", secs))
	for left := secs; left > 0; left-- {
		s.deps.Host.Broadcast(fmt.Sprintf("%d...", left))
		if !sleep(s.deps.Clock, time.Second, s.stop) {
			return ErrInterrupted
		}
	}
	return nil
}

func (s *SlotSwap) scratchDir() string {
	return filepath.Join(s.deps.Swap.ServerDir, s.deps.Swap.TempFolder)
}

func (s *SlotSwap) serverPath(item string) string {
	return filepath.Join(s.deps.Swap.ServerDir, item)
}

// slotEntries lists the slot's top-level entries that get installed.
func (s *SlotSwap) slotEntries() ([]string, error) {
	entries, err := os.ReadDir(s.slotDir)
	if err != nil {
		return nil, fmt.Errorf("read slot: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if name == catalog.InfoFileName || name == s.deps.Swap.TempFolder || s.deps.Swap.Ignore.Match(name) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// affectedItems is the world items plus every slot entry already present
// in the working directory, so nothing the install overwrites is lost.
func (s *SlotSwap) affectedItems(entries []string) []string {
	affected := slices.Clone(s.deps.Swap.WorldItems)
	for _, name := range entries {
		if slices.Contains(affected, name) {
			continue
		}
		if fsutil.Exists(s.serverPath(name)) {
			affected = append(affected, name)
		}
	}
	return affected
}

func (s *SlotSwap) install(ctx context.Context, st *swapState) error {
	if err := s.deps.Host.Stop(ctx); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}

	entries, err := s.slotEntries()
	if err != nil {
		return err
	}
	st.affected = s.affectedItems(entries)

	scratch := s.scratchDir()
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	for _, item := range st.affected {
		src := s.serverPath(item)
		if !fsutil.Exists(src) {
			continue
		}
		if err := fsutil.Backup(src, filepath.Join(scratch, item)); err != nil {
			return fmt.Errorf("back up %s: %w", item, err)
		}
		st.backedUp = append(st.backedUp, item)
	}
	st.backupDone = true
	s.logger.Debug("backup finished", "items", st.backedUp)

	for _, item := range st.affected {
		if err := fsutil.Remove(s.serverPath(item)); err != nil {
			return fmt.Errorf("remove %s: %w", item, err)
		}
	}

	for _, name := range entries {
		st.installed = append(st.installed, name)
		if err := fsutil.Copy(filepath.Join(s.slotDir, name), s.serverPath(name), s.deps.Swap.Ignore); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}

	if err := fsutil.Remove(scratch); err != nil {
		return fmt.Errorf("discard scratch dir: %w", err)
	}

	if err := s.deps.Catalog.SetCurrent(s.target); err != nil {
		return fmt.Errorf("record current slot: %w", err)
	}
	st.committed = true
	if err := s.deps.Catalog.RecordUsage(s.target, s.deps.now()); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	if err := s.deps.Host.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	return nil
}

// rollback restores the working directory from scratch and makes sure the
// server runs again. It reports whether the pre-swap state was restored.
func (s *SlotSwap) rollback(ctx context.Context, st *swapState) bool {
	s.logger.Warn("rolling back slot swap", "backup_done", st.backupDone)
	restored := true

	if st.backupDone {
		remove := slices.Clone(st.affected)
		for _, item := range st.installed {
			if !slices.Contains(remove, item) {
				remove = append(remove, item)
			}
		}
		for _, item := range remove {
			if err := fsutil.Remove(s.serverPath(item)); err != nil {
				s.logger.Error("rollback remove failed", "item", item, "error", err)
				restored = false
			}
		}
		for _, item := range st.backedUp {
			if err := fsutil.Backup(filepath.Join(s.scratchDir(), item), s.serverPath(item)); err != nil {
				s.logger.Error("rollback restore failed", "item", item, "error", err)
				restored = false
			}
		}
	}

	if err := fsutil.Remove(s.scratchDir()); err != nil {
		s.logger.Warn("failed to discard scratch dir", "error", err)
	}

	if st.committed && st.previous != s.target {
		if err := s.deps.Catalog.SetCurrent(st.previous); err != nil {
			s.logger.Warn("failed to restore current slot", "error", err)
		}
	}

	if !s.deps.Host.IsRunning() {
		if err := s.deps.Host.Start(ctx); err != nil {
			s.logger.Error("failed to restart server after rollback", "error", err)
		}
	}
	return restored
}

// Interrupt cancels the swap if it has not started mutating the working
// directory. Once mutation started the swap runs to completion or rollback.
func (s *SlotSwap) Interrupt() {
	s.mu.Lock()
	if s.mutating && !s.Terminated() {
		s.mu.Unlock()
		s.logger.Info("interrupt ignored, swap already mutating")
		return
	}
	first := s.terminate()
	s.mu.Unlock()

	if first {
		s.deps.Registry.clearSession(s)
	}
}
