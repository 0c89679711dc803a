package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete mapswitch configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Slots   SlotsConfig   `mapstructure:"slots" yaml:"slots"`
	Swap    SwapConfig    `mapstructure:"swap" yaml:"swap"`
	Vote    VoteConfig    `mapstructure:"vote" yaml:"vote"`
	Rolling RollingConfig `mapstructure:"rolling" yaml:"rolling"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig describes the game server whose working directory is swapped
type ServerConfig struct {
	// Path is the server's working directory
	Path string `mapstructure:"path" yaml:"path"`
	// Command starts the server inside the tmux session
	Command string `mapstructure:"command" yaml:"command"`
	// TmuxSession is the name of the tmux session hosting the server
	TmuxSession string `mapstructure:"tmux_session" yaml:"tmux_session"`
	// BroadcastCommand is the console command used to message players; %s is replaced by the text
	BroadcastCommand string `mapstructure:"broadcast_command" yaml:"broadcast_command"`
	// StopCommand is typed into the console to stop the server cleanly
	StopCommand string `mapstructure:"stop_command" yaml:"stop_command"`
	// StopTimeoutSeconds bounds the wait for a clean stop before the session is killed
	StopTimeoutSeconds int `mapstructure:"stop_timeout_seconds" yaml:"stop_timeout_seconds"`
}

// SlotsConfig controls the slot catalog
type SlotsConfig struct {
	// Path is the directory holding one sub-directory per slot
	Path string `mapstructure:"path" yaml:"path"`
	// RandomPercentage is the share of least-recently-used slots eligible for random rolls (0-100]
	RandomPercentage float64 `mapstructure:"random_percentage" yaml:"random_percentage"`
	// MaxRandom caps the number of slots eligible for random rolls
	MaxRandom int `mapstructure:"max_random" yaml:"max_random"`
}

// SwapConfig controls the slot swap procedure
type SwapConfig struct {
	// CountdownSeconds is announced second by second before the server stops
	CountdownSeconds int `mapstructure:"countdown_seconds" yaml:"countdown_seconds"`
	// TempFolder is the scratch directory (relative to server.path) used for backups
	TempFolder string `mapstructure:"temp_folder" yaml:"temp_folder"`
	// WorldItems are the top-level working-state entries replaced on every swap
	WorldItems []string `mapstructure:"world_items" yaml:"world_items"`
	// IgnoredFiles are skipped while copying ("*suffix", "prefix*" or exact names)
	IgnoredFiles []string `mapstructure:"ignored_files" yaml:"ignored_files"`
}

// VoteConfig controls ballots
type VoteConfig struct {
	// TimeLimitMinutes is how long every voting round stays open
	TimeLimitMinutes float64 `mapstructure:"time_limit_minutes" yaml:"time_limit_minutes"`
}

// RollingConfig controls the automatic rolling timer
type RollingConfig struct {
	// Enabled starts rolling when the daemon starts (requires at least two slots)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// IntervalMinutes is the time between two automatic swaps
	IntervalMinutes float64 `mapstructure:"interval_minutes" yaml:"interval_minutes"`
	// RemindIntervalMinutes is the time between two "next map in" reminders
	RemindIntervalMinutes float64 `mapstructure:"remind_interval_minutes" yaml:"remind_interval_minutes"`
	// DefaultDelayMinutes is used by "vote delay" and "delay" when no amount is given
	DefaultDelayMinutes int `mapstructure:"default_delay_minutes" yaml:"default_delay_minutes"`
	// BusyRetrySeconds is how long a roll is deferred when another operation holds the gate
	BusyRetrySeconds int `mapstructure:"busy_retry_seconds" yaml:"busy_retry_seconds"`
}

// APIConfig controls the local control API
type APIConfig struct {
	// Listen is the host:port the daemon serves on and the CLI connects to
	Listen string `mapstructure:"listen" yaml:"listen"`
	// BallotRatePerSecond is the sustained ballot rate allowed per voter
	BallotRatePerSecond float64 `mapstructure:"ballot_rate_per_second" yaml:"ballot_rate_per_second"`
	// BallotBurst is the ballot burst allowed per voter
	BallotBurst int `mapstructure:"ballot_burst" yaml:"ballot_burst"`
}

// HistoryConfig controls the swap/vote history database
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Path of the SQLite file; empty means <slots.path>/history.db
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig controls daemon logging
type LoggingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where mapswitch.log is written; empty means <slots.path>/logs
	Dir        string `mapstructure:"dir" yaml:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated log files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Path:               "./server",
			Command:            "java -jar server.jar nogui",
			TmuxSession:        "mapswitch",
			BroadcastCommand:   "say %s",
			StopCommand:        "stop",
			StopTimeoutSeconds: 60,
		},
		Slots: SlotsConfig{
			Path:             "./pre_saved_maps",
			RandomPercentage: 50,
			MaxRandom:        10,
		},
		Swap: SwapConfig{
			CountdownSeconds: 5,
			TempFolder:       "temp",
			WorldItems:       []string{"world"},
			IgnoredFiles:     []string{"session.lock"},
		},
		Vote: VoteConfig{
			TimeLimitMinutes: 2,
		},
		Rolling: RollingConfig{
			Enabled:               true,
			IntervalMinutes:       60,
			RemindIntervalMinutes: 10,
			DefaultDelayMinutes:   10,
			BusyRetrySeconds:      60,
		},
		API: APIConfig{
			Listen:              "127.0.0.1:8642",
			BallotRatePerSecond: 1,
			BallotBurst:         3,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// VoteTimeLimit returns the vote window as a time.Duration
func (c *VoteConfig) VoteTimeLimit() time.Duration {
	return minutes(c.TimeLimitMinutes)
}

// Interval returns the rolling interval as a time.Duration
func (c *RollingConfig) Interval() time.Duration {
	return minutes(c.IntervalMinutes)
}

// RemindInterval returns the reminder interval as a time.Duration
func (c *RollingConfig) RemindInterval() time.Duration {
	return minutes(c.RemindIntervalMinutes)
}

// BusyRetry returns the deferral used when the gate is busy at roll time
func (c *RollingConfig) BusyRetry() time.Duration {
	return time.Duration(c.BusyRetrySeconds) * time.Second
}

// StopTimeout returns the clean-stop timeout as a time.Duration
func (c *ServerConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// HistoryPath resolves the history database location
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.Slots.Path, "history.db")
}

// LogDir resolves the log directory
func (c *Config) LogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	return filepath.Join(c.Slots.Path, "logs")
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// SetDefaults registers default values with viper
func SetDefaults() {
	d := Default()

	viper.SetDefault("server.path", d.Server.Path)
	viper.SetDefault("server.command", d.Server.Command)
	viper.SetDefault("server.tmux_session", d.Server.TmuxSession)
	viper.SetDefault("server.broadcast_command", d.Server.BroadcastCommand)
	viper.SetDefault("server.stop_command", d.Server.StopCommand)
	viper.SetDefault("server.stop_timeout_seconds", d.Server.StopTimeoutSeconds)

	viper.SetDefault("slots.path", d.Slots.Path)
	viper.SetDefault("slots.random_percentage", d.Slots.RandomPercentage)
	viper.SetDefault("slots.max_random", d.Slots.MaxRandom)

	viper.SetDefault("swap.countdown_seconds", d.Swap.CountdownSeconds)
	viper.SetDefault("swap.temp_folder", d.Swap.TempFolder)
	viper.SetDefault("swap.world_items", d.Swap.WorldItems)
	viper.SetDefault("swap.ignored_files", d.Swap.IgnoredFiles)

	viper.SetDefault("vote.time_limit_minutes", d.Vote.TimeLimitMinutes)

	viper.SetDefault("rolling.enabled", d.Rolling.Enabled)
	viper.SetDefault("rolling.interval_minutes", d.Rolling.IntervalMinutes)
	viper.SetDefault("rolling.remind_interval_minutes", d.Rolling.RemindIntervalMinutes)
	viper.SetDefault("rolling.default_delay_minutes", d.Rolling.DefaultDelayMinutes)
	viper.SetDefault("rolling.busy_retry_seconds", d.Rolling.BusyRetrySeconds)

	viper.SetDefault("api.listen", d.API.Listen)
	viper.SetDefault("api.ballot_rate_per_second", d.API.BallotRatePerSecond)
	viper.SetDefault("api.ballot_burst", d.API.BallotBurst)

	viper.SetDefault("history.enabled", d.History.Enabled)
	viper.SetDefault("history.path", d.History.Path)

	viper.SetDefault("logging.enabled", d.Logging.Enabled)
	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.dir", d.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	viper.SetDefault("logging.compress", d.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration does not validate
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mapswitch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mapswitch"
	}
	return filepath.Join(home, ".config", "mapswitch")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
