package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mapswitch/internal/api"
	"github.com/Iron-Ham/mapswitch/internal/catalog"
	"github.com/Iron-Ham/mapswitch/internal/config"
	"github.com/Iron-Ham/mapswitch/internal/event"
	"github.com/Iron-Ham/mapswitch/internal/history"
	"github.com/Iron-Ham/mapswitch/internal/host"
	"github.com/Iron-Ham/mapswitch/internal/logging"
	"github.com/Iron-Ham/mapswitch/internal/orchestrator"
	"github.com/Iron-Ham/mapswitch/internal/pidlock"
	"github.com/Iron-Ham/mapswitch/internal/session"
)

// executorDrainTimeout bounds how long shutdown waits for the executor.
const executorDrainTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mapswitch daemon",
	Long: `Run the daemon that owns the game server.

The daemon starts the server inside a detached tmux session, serves the
control API other commands talk to, and runs automatic rolling when it is
enabled and at least two slots exist. Stop it with Ctrl+C or SIGTERM; the
game server keeps running unless --stop-server is given. SIGHUP reloads
the configuration like 'mapswitch reload'.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveNoStart    bool
	serveStopServer bool
	serveLogStderr  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoStart, "no-start", false, "Do not start the game server when the daemon starts")
	serveCmd.Flags().BoolVar(&serveStopServer, "stop-server", false, "Stop the game server when the daemon exits")
	serveCmd.Flags().BoolVar(&serveLogStderr, "log-stderr", false, "Log to stderr instead of the log directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newDaemonLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	cat, err := catalog.New(catalog.Options{
		Root:             cfg.Slots.Path,
		RandomPercentage: cfg.Slots.RandomPercentage,
		MaxRandom:        cfg.Slots.MaxRandom,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open slot directory: %w", err)
	}

	lock, err := pidlock.Acquire(cfg.Slots.Path, cfg.API.Listen, logger)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	settings, err := serviceSettings(cfg)
	if err != nil {
		return err
	}

	// Bind before anything starts so a taken port fails fast.
	ln, err := api.Listen(cfg.API.Listen)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	bus := event.NewBus(logger)
	registry := session.NewRegistry(bus, clock, logger)

	go func() {
		if err := cat.Watch(ctx); err != nil {
			logger.Warn("slot directory watch stopped, reading from disk", "error", err)
		}
	}()

	// The executor outlives ctx so interrupted sessions can still clean up
	// on it during shutdown.
	execCtx, stopExec := context.WithCancel(context.Background())
	defer stopExec()
	exec := host.NewExecutor(logger)
	go func() { _ = exec.Run(execCtx) }()

	server := host.NewTmuxServer(host.TmuxConfig{
		Session:          cfg.Server.TmuxSession,
		WorkDir:          cfg.Server.Path,
		Command:          cfg.Server.Command,
		BroadcastCommand: cfg.Server.BroadcastCommand,
		StopCommand:      cfg.Server.StopCommand,
		StopTimeout:      cfg.Server.StopTimeout(),
		Clock:            clock,
		Logger:           logger,
	})
	h := host.New(exec, server, clock, logger)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.HistoryPath())
		if err != nil {
			return err
		}
		defer store.Close()
		recorder := history.NewRecorder(store, bus, logger)
		recorder.Start()
		defer recorder.Stop()
	}

	svc, err := orchestrator.New(orchestrator.Config{
		Host:          h,
		Catalog:       cat,
		Registry:      registry,
		History:       store,
		Bus:           bus,
		Clock:         clock,
		Logger:        logger,
		Swap:          settings.Swap,
		VoteTimeLimit: settings.VoteTimeLimit,
		Rolling:       settings.Rolling,
	})
	if err != nil {
		return err
	}

	if !serveNoStart {
		if err := h.Do(ctx, startServer(h)); err != nil {
			logger.Error("failed to start game server", "error", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: game server did not start: %v\n", err)
		}
	}

	daemon := newDaemonService(svc, cfg, logger)
	reloadOnHangup(ctx, daemon, logger)
	svc.Start()
	fmt.Fprintf(cmd.OutOrStdout(), "mapswitch daemon serving on %s (slots in %s)\n", ln.Addr(), cfg.Slots.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "Attach to the server console with: %s\n", server.AttachCommand())

	limiter := api.NewBallotLimiter(cfg.API.BallotRatePerSecond, cfg.API.BallotBurst, clock)
	serveErr := api.NewServer(daemon, limiter, logger).Serve(ctx, ln)

	logger.Info("daemon shutting down")
	svc.Shutdown()
	if serveStopServer {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.StopTimeout()+executorDrainTimeout)
		if err := h.Do(stopCtx, h.Stop); err != nil && !errors.Is(err, host.ErrNotRunning) {
			logger.Error("failed to stop game server", "error", err)
		}
		cancel()
	}
	drainExecutor(exec, stopExec, logger)

	return serveErr
}

// newDaemonLogger builds the daemon logger from the logging section.
func newDaemonLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	dir := cfg.LogDir()
	if serveLogStderr {
		dir = ""
	}
	logger, err := logging.NewLogger(dir, cfg.Logging.Level, rotationConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger, nil
}

func rotationConfig(cfg *config.Config) logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	}
}

func startServer(h *host.Host) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if h.IsRunning() {
			return nil
		}
		return h.Start(ctx)
	}
}

// drainExecutor lets already queued work finish, then stops the executor.
func drainExecutor(exec *host.Executor, stop context.CancelFunc, logger *logging.Logger) {
	deadline := time.Now().Add(executorDrainTimeout)
	for exec.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	stop()
	select {
	case <-exec.Stopped():
	case <-time.After(executorDrainTimeout):
		logger.Warn("executor did not stop in time")
	}
}
