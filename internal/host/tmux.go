package host

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// SocketName is the tmux socket mapswitch sessions live on, so they never
// collide with a user's own tmux server.
const SocketName = "mapswitch"

// Default window size for the server console.
const (
	defaultWidth  = 200
	defaultHeight = 50
)

// TmuxConfig describes how the server is run inside tmux.
type TmuxConfig struct {
	Session string
	// Socket overrides SocketName.
	Socket  string
	WorkDir string
	Command string
	// BroadcastCommand is a console command with one %s for the text.
	BroadcastCommand string
	StopCommand      string
	StopTimeout      time.Duration
	// PollInterval is how often Stop checks whether the server exited.
	PollInterval time.Duration
	Clock        clockwork.Clock
	Logger       *logging.Logger
}

// runFunc executes one tmux command and returns its combined output.
type runFunc func(ctx context.Context, args ...string) ([]byte, error)

// TmuxServer runs the game server as the only pane of a detached tmux
// session. The session ends when the server process exits, so the session's
// existence is the server's liveness.
type TmuxServer struct {
	cfg    TmuxConfig
	run    runFunc
	mu     sync.Mutex // serialises Start/Stop
	logger *logging.Logger
}

// NewTmuxServer creates a TmuxServer.
func NewTmuxServer(cfg TmuxConfig) *TmuxServer {
	if cfg.Socket == "" {
		cfg.Socket = SocketName
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	socket := cfg.Socket
	return &TmuxServer{
		cfg: cfg,
		run: func(ctx context.Context, args ...string) ([]byte, error) {
			full := append([]string{"-L", socket}, args...)
			return exec.CommandContext(ctx, "tmux", full...).CombinedOutput()
		},
		logger: logger.With("component", "tmux", "session", cfg.Session),
	}
}

// target addresses the session by exact name.
func (s *TmuxServer) target() string {
	return "=" + s.cfg.Session
}

// IsRunning reports whether the tmux session exists.
func (s *TmuxServer) IsRunning() bool {
	_, err := s.run(context.Background(), "has-session", "-t", s.target())
	return err == nil
}

// Start creates the tmux session running the server command.
func (s *TmuxServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IsRunning() {
		return ErrAlreadyRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !workDirExists(s.cfg.WorkDir) {
		return fmt.Errorf("server directory %s does not exist", s.cfg.WorkDir)
	}

	out, err := s.run(ctx,
		"new-session",
		"-d",
		"-s", s.cfg.Session,
		"-c", s.cfg.WorkDir,
		"-x", fmt.Sprintf("%d", defaultWidth),
		"-y", fmt.Sprintf("%d", defaultHeight),
		s.cfg.Command,
	)
	if err != nil {
		return fmt.Errorf("failed to create tmux session: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if _, err := s.run(ctx, "set-option", "-t", s.target(), "history-limit", "10000"); err != nil {
		s.logger.Warn("failed to set history-limit", "error", err)
	}

	s.logger.Info("server started", "command", s.cfg.Command, "dir", s.cfg.WorkDir)
	return nil
}

// Stop types the stop command into the console and waits for the session
// to end. If the server is still up after StopTimeout the session is killed.
func (s *TmuxServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsRunning() {
		return nil
	}

	if err := s.sendLine(ctx, s.cfg.StopCommand); err != nil {
		s.logger.Warn("failed to send stop command, killing session", "error", err)
		return s.kill(ctx)
	}

	deadline := s.cfg.Clock.Now().Add(s.cfg.StopTimeout)
	for s.IsRunning() {
		if !s.cfg.Clock.Now().Before(deadline) {
			s.logger.Warn("server did not stop in time, killing session", "timeout", s.cfg.StopTimeout)
			return s.kill(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.cfg.Clock.After(s.cfg.PollInterval):
		}
	}

	s.logger.Info("server stopped")
	return nil
}

func (s *TmuxServer) kill(ctx context.Context) error {
	out, err := s.run(ctx, "kill-session", "-t", s.target())
	if err != nil && !isSessionNotFound(string(out)) {
		return fmt.Errorf("failed to kill tmux session: %w", err)
	}
	return nil
}

// Say runs the broadcast command once per line of msg.
func (s *TmuxServer) Say(msg string) error {
	if !s.IsRunning() {
		return ErrNotRunning
	}
	for _, line := range strings.Split(msg, "\n") {
		if line == "" {
			continue
		}
		if err := s.sendLine(context.Background(), fmt.Sprintf(s.cfg.BroadcastCommand, line)); err != nil {
			return err
		}
	}
	return nil
}

// sendLine types text literally, then Enter.
func (s *TmuxServer) sendLine(ctx context.Context, text string) error {
	if _, err := s.run(ctx, "send-keys", "-t", s.target(), "-l", text); err != nil {
		return fmt.Errorf("failed to send keys: %w", err)
	}
	if _, err := s.run(ctx, "send-keys", "-t", s.target(), "Enter"); err != nil {
		return fmt.Errorf("failed to send enter: %w", err)
	}
	return nil
}

// AttachCommand returns the shell command that attaches to the server console.
func (s *TmuxServer) AttachCommand() string {
	return fmt.Sprintf("tmux -L %s attach -t %s", s.cfg.Socket, s.cfg.Session)
}

// isSessionNotFound reports tmux output meaning the session is already gone.
func isSessionNotFound(out string) bool {
	return strings.Contains(out, "session not found") ||
		strings.Contains(out, "no server running") ||
		strings.Contains(out, "can't find session")
}

func workDirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
