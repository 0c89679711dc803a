package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/mapswitch/internal/api"
	"github.com/Iron-Ham/mapswitch/internal/config"
	"github.com/Iron-Ham/mapswitch/internal/fsutil"
	"github.com/Iron-Ham/mapswitch/internal/logging"
	"github.com/Iron-Ham/mapswitch/internal/orchestrator"
	"github.com/Iron-Ham/mapswitch/internal/session"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Make the daemon re-read its configuration",
	Long: `Make the running daemon re-read its configuration file.

The swap, vote and rolling sections take effect for the next session; a
running rolling cycle restarts on the new intervals. The server, slots,
api, history and logging sections need a daemon restart. Sending SIGHUP
to the daemon does the same.`,
	Args: cobra.NoArgs,
	RunE: runReload,
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}

func runReload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := newClient(cfg).Reload(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration reloaded")
	return nil
}

// serviceSettings converts the reloadable sections of cfg.
func serviceSettings(cfg *config.Config) (orchestrator.Settings, error) {
	ignore, err := fsutil.NewMatcher(cfg.Swap.IgnoredFiles)
	if err != nil {
		return orchestrator.Settings{}, err
	}
	return orchestrator.Settings{
		Swap: session.SwapSettings{
			ServerDir:  cfg.Server.Path,
			TempFolder: cfg.Swap.TempFolder,
			WorldItems: cfg.Swap.WorldItems,
			Ignore:     ignore,
			Countdown:  time.Duration(cfg.Swap.CountdownSeconds) * time.Second,
		},
		VoteTimeLimit: cfg.Vote.VoteTimeLimit(),
		Rolling: orchestrator.RollingOptions{
			Enabled:        cfg.Rolling.Enabled,
			Interval:       cfg.Rolling.Interval(),
			RemindInterval: cfg.Rolling.RemindInterval(),
			BusyRetry:      cfg.Rolling.BusyRetry(),
			DefaultDelay:   time.Duration(cfg.Rolling.DefaultDelayMinutes) * time.Minute,
		},
	}, nil
}

// restartOnly names the sections that differ between old and cfg but are
// only read when the daemon starts.
func restartOnly(old, cfg *config.Config) []string {
	var changed []string
	if old.Server != cfg.Server {
		changed = append(changed, "server")
	}
	if old.Slots != cfg.Slots {
		changed = append(changed, "slots")
	}
	if old.API != cfg.API {
		changed = append(changed, "api")
	}
	if old.History != cfg.History {
		changed = append(changed, "history")
	}
	if old.Logging != cfg.Logging {
		changed = append(changed, "logging")
	}
	return changed
}

// daemonService is the orchestrator as the API serves it, plus reloads of
// the configuration file.
type daemonService struct {
	*orchestrator.Service

	mu sync.Mutex
	// started is the configuration the daemon was started with.
	started *config.Config
	logger  *logging.Logger
}

func newDaemonService(svc *orchestrator.Service, started *config.Config, logger *logging.Logger) *daemonService {
	return &daemonService{Service: svc, started: started, logger: logger}
}

// Reload re-reads the configuration and applies its reloadable sections.
// The server directory stays the one the daemon was started with.
func (d *daemonService) Reload(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("%w: %w", api.ErrInvalidConfig, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %w", api.ErrInvalidConfig, err)
	}
	settings, err := serviceSettings(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", api.ErrInvalidConfig, err)
	}
	settings.Swap.ServerDir = d.started.Server.Path

	if err := d.Reconfigure(settings); err != nil {
		return err
	}
	if changed := restartOnly(d.started, cfg); len(changed) > 0 {
		d.logger.Warn("configuration changes need a daemon restart", "sections", changed)
	}
	return nil
}

// reloadOnHangup reloads the configuration on every SIGHUP until ctx ends.
// The signal is caught from the moment it returns.
func reloadOnHangup(ctx context.Context, d *daemonService, logger *logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := d.Reload(ctx); err != nil {
					logger.Error("reload failed, keeping the previous settings", "error", err)
					continue
				}
				logger.Info("configuration reloaded on SIGHUP")
			}
		}
	}()
}
