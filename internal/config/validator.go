package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "swap.countdown_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateSlots()...)
	errors = append(errors, c.validateSwap()...)
	errors = append(errors, c.validateVote()...)
	errors = append(errors, c.validateRolling()...)
	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Server.Path) == "" {
		errors = append(errors, ValidationError{
			Field:   "server.path",
			Value:   c.Server.Path,
			Message: "must not be empty",
		})
	}
	if strings.TrimSpace(c.Server.TmuxSession) == "" {
		errors = append(errors, ValidationError{
			Field:   "server.tmux_session",
			Value:   c.Server.TmuxSession,
			Message: "must not be empty",
		})
	}
	// tmux treats these as target separators
	if strings.ContainsAny(c.Server.TmuxSession, ":.") {
		errors = append(errors, ValidationError{
			Field:   "server.tmux_session",
			Value:   c.Server.TmuxSession,
			Message: "must not contain ':' or '.'",
		})
	}
	if strings.Count(c.Server.BroadcastCommand, "%s") != 1 {
		errors = append(errors, ValidationError{
			Field:   "server.broadcast_command",
			Value:   c.Server.BroadcastCommand,
			Message: "must contain exactly one %s placeholder",
		})
	}
	if c.Server.StopTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.stop_timeout_seconds",
			Value:   c.Server.StopTimeoutSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateSlots() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Slots.Path) == "" {
		errors = append(errors, ValidationError{
			Field:   "slots.path",
			Value:   c.Slots.Path,
			Message: "must not be empty",
		})
	}
	if c.Slots.RandomPercentage <= 0 || c.Slots.RandomPercentage > 100 {
		errors = append(errors, ValidationError{
			Field:   "slots.random_percentage",
			Value:   c.Slots.RandomPercentage,
			Message: "must be greater than 0 and at most 100",
		})
	}
	if c.Slots.MaxRandom < 1 {
		errors = append(errors, ValidationError{
			Field:   "slots.max_random",
			Value:   c.Slots.MaxRandom,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateSwap() []ValidationError {
	var errors []ValidationError

	if c.Swap.CountdownSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "swap.countdown_seconds",
			Value:   c.Swap.CountdownSeconds,
			Message: "must be non-negative",
		})
	}
	if !isPlainName(c.Swap.TempFolder) {
		errors = append(errors, ValidationError{
			Field:   "swap.temp_folder",
			Value:   c.Swap.TempFolder,
			Message: "must be a single path element",
		})
	}
	if len(c.Swap.WorldItems) == 0 {
		errors = append(errors, ValidationError{
			Field:   "swap.world_items",
			Value:   c.Swap.WorldItems,
			Message: "must list at least one item",
		})
	}
	for _, item := range c.Swap.WorldItems {
		if !isPlainName(item) {
			errors = append(errors, ValidationError{
				Field:   "swap.world_items",
				Value:   item,
				Message: "must be a single path element",
			})
		}
		if item == c.Swap.TempFolder {
			errors = append(errors, ValidationError{
				Field:   "swap.world_items",
				Value:   item,
				Message: "must not include the temp folder",
			})
		}
	}
	for _, pattern := range c.Swap.IgnoredFiles {
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   "swap.ignored_files",
				Value:   pattern,
				Message: fmt.Sprintf("invalid pattern: %v", err),
			})
		}
	}

	return errors
}

func (c *Config) validateVote() []ValidationError {
	var errors []ValidationError

	if c.Vote.TimeLimitMinutes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "vote.time_limit_minutes",
			Value:   c.Vote.TimeLimitMinutes,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateRolling() []ValidationError {
	var errors []ValidationError

	if c.Rolling.IntervalMinutes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "rolling.interval_minutes",
			Value:   c.Rolling.IntervalMinutes,
			Message: "must be positive",
		})
	}
	if c.Rolling.RemindIntervalMinutes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "rolling.remind_interval_minutes",
			Value:   c.Rolling.RemindIntervalMinutes,
			Message: "must be positive",
		})
	}
	if c.Rolling.DefaultDelayMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "rolling.default_delay_minutes",
			Value:   c.Rolling.DefaultDelayMinutes,
			Message: "must be at least 1",
		})
	}
	if c.Rolling.BusyRetrySeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "rolling.busy_retry_seconds",
			Value:   c.Rolling.BusyRetrySeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateAPI() []ValidationError {
	var errors []ValidationError

	if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
		errors = append(errors, ValidationError{
			Field:   "api.listen",
			Value:   c.API.Listen,
			Message: "must be host:port",
		})
	}
	if c.API.BallotRatePerSecond <= 0 {
		errors = append(errors, ValidationError{
			Field:   "api.ballot_rate_per_second",
			Value:   c.API.BallotRatePerSecond,
			Message: "must be positive",
		})
	}
	if c.API.BallotBurst < 1 {
		errors = append(errors, ValidationError{
			Field:   "api.ballot_burst",
			Value:   c.API.BallotBurst,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func isPlainName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
