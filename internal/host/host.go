// Package host owns the game server and the executor goroutine that is the
// only context allowed to stop, start, or rewrite the server's world.
package host

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// recentLimit bounds the broadcast history kept for status output.
const recentLimit = 20

// Message is a broadcast as shown to players.
type Message struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Host combines the executor and the server process. Broadcasts are logged
// and kept in a short history even when the server is down, so CLI users
// still see them through status.
type Host struct {
	exec   *Executor
	server Server
	clock  clockwork.Clock
	logger *logging.Logger

	mu     sync.Mutex
	recent []Message
}

// New creates a Host. clock may be nil.
func New(exec *Executor, server Server, clock clockwork.Clock, logger *logging.Logger) *Host {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Host{
		exec:   exec,
		server: server,
		clock:  clock,
		logger: logger.With("component", "host"),
	}
}

// Executor returns the underlying executor.
func (h *Host) Executor() *Executor {
	return h.exec
}

// Broadcast shows msg to players. Delivery failures are logged, never returned.
func (h *Host) Broadcast(msg string) {
	h.mu.Lock()
	h.recent = append(h.recent, Message{At: h.clock.Now(), Text: msg})
	if len(h.recent) > recentLimit {
		h.recent = append([]Message(nil), h.recent[len(h.recent)-recentLimit:]...)
	}
	h.mu.Unlock()

	h.logger.Info("broadcast", "text", msg)
	if !h.server.IsRunning() {
		return
	}
	if err := h.server.Say(msg); err != nil {
		h.logger.Warn("broadcast delivery failed", "error", err)
	}
}

// Recent returns up to n of the latest broadcasts, oldest first.
func (h *Host) Recent(n int) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.recent) {
		n = len(h.recent)
	}
	return append([]Message(nil), h.recent[len(h.recent)-n:]...)
}

// IsRunning reports whether the server is up.
func (h *Host) IsRunning() bool {
	return h.server.IsRunning()
}

// Stop stops the server and waits for it to exit.
func (h *Host) Stop(ctx context.Context) error {
	return h.server.Stop(ctx)
}

// Start starts the server.
func (h *Host) Start(ctx context.Context) error {
	return h.server.Start(ctx)
}

// OnExecutor reports whether ctx belongs to the executor goroutine.
func (h *Host) OnExecutor(ctx context.Context) bool {
	return h.exec.OnExecutor(ctx)
}

// Schedule queues fn on the executor.
func (h *Host) Schedule(fn func(ctx context.Context)) {
	h.exec.Schedule(fn)
}

// Do runs fn on the executor and waits for its result.
func (h *Host) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return h.exec.Do(ctx, fn)
}
