package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got: %v", ValidationErrors(errs))
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty server path", func(c *Config) { c.Server.Path = " " }, "server.path"},
		{"empty tmux session", func(c *Config) { c.Server.TmuxSession = "" }, "server.tmux_session"},
		{"tmux session with colon", func(c *Config) { c.Server.TmuxSession = "a:b" }, "server.tmux_session"},
		{"broadcast without placeholder", func(c *Config) { c.Server.BroadcastCommand = "say" }, "server.broadcast_command"},
		{"broadcast with two placeholders", func(c *Config) { c.Server.BroadcastCommand = "say %s %s" }, "server.broadcast_command"},
		{"zero stop timeout", func(c *Config) { c.Server.StopTimeoutSeconds = 0 }, "server.stop_timeout_seconds"},
		{"empty slots path", func(c *Config) { c.Slots.Path = "" }, "slots.path"},
		{"zero percentage", func(c *Config) { c.Slots.RandomPercentage = 0 }, "slots.random_percentage"},
		{"percentage over 100", func(c *Config) { c.Slots.RandomPercentage = 101 }, "slots.random_percentage"},
		{"zero max random", func(c *Config) { c.Slots.MaxRandom = 0 }, "slots.max_random"},
		{"negative countdown", func(c *Config) { c.Swap.CountdownSeconds = -1 }, "swap.countdown_seconds"},
		{"nested temp folder", func(c *Config) { c.Swap.TempFolder = "a/b" }, "swap.temp_folder"},
		{"dot temp folder", func(c *Config) { c.Swap.TempFolder = ".." }, "swap.temp_folder"},
		{"no world items", func(c *Config) { c.Swap.WorldItems = nil }, "swap.world_items"},
		{"world item is temp", func(c *Config) { c.Swap.WorldItems = []string{"temp"} }, "swap.world_items"},
		{"bad ignore pattern", func(c *Config) { c.Swap.IgnoredFiles = []string{"[abc"} }, "swap.ignored_files"},
		{"zero vote limit", func(c *Config) { c.Vote.TimeLimitMinutes = 0 }, "vote.time_limit_minutes"},
		{"zero interval", func(c *Config) { c.Rolling.IntervalMinutes = 0 }, "rolling.interval_minutes"},
		{"zero remind", func(c *Config) { c.Rolling.RemindIntervalMinutes = -5 }, "rolling.remind_interval_minutes"},
		{"zero default delay", func(c *Config) { c.Rolling.DefaultDelayMinutes = 0 }, "rolling.default_delay_minutes"},
		{"zero busy retry", func(c *Config) { c.Rolling.BusyRetrySeconds = 0 }, "rolling.busy_retry_seconds"},
		{"listen without port", func(c *Config) { c.API.Listen = "localhost" }, "api.listen"},
		{"zero ballot rate", func(c *Config) { c.API.BallotRatePerSecond = 0 }, "api.ballot_rate_per_second"},
		{"zero ballot burst", func(c *Config) { c.API.BallotBurst = 0 }, "api.ballot_burst"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"negative max size", func(c *Config) { c.Logging.MaxSizeMB = -1 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected validation error for %s, got %v", tt.field, ValidationErrors(errs))
			}
		})
	}
}

func TestConfig_Validate_LogLevelCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "DEBUG"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("upper-case log level should be accepted, got %v", ValidationErrors(errs))
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Vote.TimeLimitMinutes = 0
	cfg.Slots.MaxRandom = 0
	cfg.API.BallotBurst = 0

	if errs := cfg.Validate(); len(errs) != 3 {
		t.Errorf("Validate() returned %d errors, want 3: %v", len(errs), ValidationErrors(errs))
	}
}
