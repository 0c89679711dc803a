package cmd

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/mapswitch/internal/api"
	"github.com/Iron-Ham/mapswitch/internal/catalog"
	"github.com/Iron-Ham/mapswitch/internal/config"
	"github.com/Iron-Ham/mapswitch/internal/event"
	"github.com/Iron-Ham/mapswitch/internal/host"
	"github.com/Iron-Ham/mapswitch/internal/logging"
	"github.com/Iron-Ham/mapswitch/internal/orchestrator"
	"github.com/Iron-Ham/mapswitch/internal/session"
)

// idleServer is a game server that is always up and ignores everything.
type idleServer struct{}

func (idleServer) Start(context.Context) error { return nil }
func (idleServer) Stop(context.Context) error  { return nil }
func (idleServer) IsRunning() bool             { return true }
func (idleServer) Say(string) error            { return nil }

func TestReloadCommand(t *testing.T) {
	setupTestEnvironment(t)
	viper.Set("api.listen", daemonStub(t, http.StatusNoContent, nil))

	out, err := executeCommand(rootCmd, "reload")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration reloaded")

	viper.Set("api.listen", daemonStub(t, http.StatusUnprocessableEntity, api.ErrorBody{
		Error: "invalid configuration: vote.time_limit_minutes must be positive",
		Code:  "invalid_config",
	}))
	_, err = executeCommand(rootCmd, "reload")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidConfig)
}

func TestServiceSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Swap.CountdownSeconds = 7
	cfg.Swap.IgnoredFiles = []string{"*.lock", "cache*"}
	cfg.Vote.TimeLimitMinutes = 1.5
	cfg.Rolling.IntervalMinutes = 30
	cfg.Rolling.DefaultDelayMinutes = 4

	st, err := serviceSettings(cfg)
	require.NoError(t, err)

	assert.Equal(t, cfg.Server.Path, st.Swap.ServerDir)
	assert.Equal(t, "temp", st.Swap.TempFolder)
	assert.Equal(t, []string{"world"}, st.Swap.WorldItems)
	assert.Equal(t, 7*time.Second, st.Swap.Countdown)
	assert.True(t, st.Swap.Ignore.Match("session.lock"))
	assert.True(t, st.Swap.Ignore.Match("cache-1"))
	assert.False(t, st.Swap.Ignore.Match("level.dat"))
	assert.Equal(t, 90*time.Second, st.VoteTimeLimit)
	assert.Equal(t, orchestrator.RollingOptions{
		Enabled:        true,
		Interval:       30 * time.Minute,
		RemindInterval: 10 * time.Minute,
		BusyRetry:      time.Minute,
		DefaultDelay:   4 * time.Minute,
	}, st.Rolling)
}

func TestRotationConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Compress = true
	cfg.Logging.MaxBackups = 5

	assert.Equal(t, logging.RotationConfig{MaxSizeMB: 10, MaxBackups: 5, Compress: true}, rotationConfig(cfg))
}

func TestRestartOnly(t *testing.T) {
	old := config.Default()
	cfg := config.Default()
	assert.Empty(t, restartOnly(old, cfg))

	cfg.Vote.TimeLimitMinutes = 5
	cfg.Rolling.Enabled = false
	assert.Empty(t, restartOnly(old, cfg), "reloadable sections need no restart")

	cfg.API.Listen = "127.0.0.1:9000"
	cfg.Logging.Level = "debug"
	assert.Equal(t, []string{"api", "logging"}, restartOnly(old, cfg))
}

func TestDaemonServiceReload(t *testing.T) {
	slots := setupTestEnvironment(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig := func(body string) {
		t.Helper()
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
	writeConfig("server:\n  path: /srv/game\nrolling:\n  enabled: false\n")

	config.SetDefaults()
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())
	started, err := loadConfig()
	require.NoError(t, err)
	settings, err := serviceSettings(started)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	exec := host.NewExecutor(nil)
	go func() { _ = exec.Run(ctx) }()
	clock := clockwork.NewFakeClock()
	bus := event.NewBus(nil)
	registry := session.NewRegistry(bus, clock, nil)
	t.Cleanup(func() {
		registry.Shutdown()
		cancel()
		<-exec.Stopped()
	})
	cat, err := catalog.New(catalog.Options{Root: slots, RandomPercentage: 100, MaxRandom: 10})
	require.NoError(t, err)

	svc, err := orchestrator.New(orchestrator.Config{
		Host:          host.New(exec, idleServer{}, clock, nil),
		Catalog:       cat,
		Registry:      registry,
		Bus:           bus,
		Clock:         clock,
		Swap:          settings.Swap,
		VoteTimeLimit: settings.VoteTimeLimit,
		Rolling:       settings.Rolling,
	})
	require.NoError(t, err)
	daemon := newDaemonService(svc, started, logging.NopLogger())

	writeConfig("server:\n  path: /srv/other\nswap:\n  countdown_seconds: 2\nvote:\n  time_limit_minutes: 3\nrolling:\n  enabled: false\n  default_delay_minutes: 15\n")
	require.NoError(t, daemon.Reload(context.Background()))

	got := svc.Settings()
	assert.Equal(t, 3*time.Minute, got.VoteTimeLimit)
	assert.Equal(t, 2*time.Second, got.Swap.Countdown)
	assert.Equal(t, 15*time.Minute, got.Rolling.DefaultDelay)
	assert.Equal(t, "/srv/game", got.Swap.ServerDir, "the server directory needs a restart")

	t.Run("broken file keeps the previous settings", func(t *testing.T) {
		writeConfig("vote: [\n")
		err := daemon.Reload(context.Background())
		assert.ErrorIs(t, err, api.ErrInvalidConfig)
		assert.Equal(t, 3*time.Minute, svc.Settings().VoteTimeLimit)
	})

	t.Run("invalid values keep the previous settings", func(t *testing.T) {
		writeConfig("vote:\n  time_limit_minutes: -1\n")
		err := daemon.Reload(context.Background())
		assert.ErrorIs(t, err, api.ErrInvalidConfig)
		assert.Equal(t, 3*time.Minute, svc.Settings().VoteTimeLimit)
	})
}
