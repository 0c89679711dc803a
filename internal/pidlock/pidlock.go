// Package pidlock keeps a second mapswitch daemon from managing the same
// slot directory. The lock is a JSON file holding the owner's PID; a lock
// whose process is gone is treated as stale and replaced.
package pidlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// FileName is the name of the lock file within the guarded directory.
const FileName = "mapswitch.pid"

// ErrLocked is returned when another live daemon holds the lock.
var ErrLocked = errors.New("another mapswitch daemon is running")

// Lock represents an acquired daemon lock.
type Lock struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Listen    string    `json:"listen"`
	StartedAt time.Time `json:"started_at"`

	path   string
	logger *logging.Logger
}

// Acquire takes the lock in dir. listen is recorded so users can see where
// the running daemon serves its API. logger may be nil.
func Acquire(dir, listen string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	path := filepath.Join(dir, FileName)

	if existing, err := Read(path); err == nil {
		if isProcessAlive(existing.PID) {
			return nil, fmt.Errorf("%w: PID %d on %s (api %s)", ErrLocked, existing.PID, existing.Hostname, existing.Listen)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale daemon lock cleaned", "old_pid", existing.PID)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		PID:       os.Getpid(),
		Hostname:  hostname,
		Listen:    listen,
		StartedAt: time.Now(),
		path:      path,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL closes the race between two daemons starting together.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if existing, readErr := Read(path); readErr == nil {
				return nil, fmt.Errorf("%w: PID %d on %s", ErrLocked, existing.PID, existing.Hostname)
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Info("daemon lock acquired", "pid", lock.PID, "path", path)
	return lock, nil
}

// Release removes the lock file if this process still owns it.
// Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	existing, err := Read(l.path)
	if err != nil || existing.PID != l.PID {
		return nil
	}
	if err := os.Remove(l.path); err != nil {
		return err
	}
	l.logger.Info("daemon lock released")
	return nil
}

// Read parses the lock file at path.
func Read(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.path = path
	return &lock, nil
}

// Holder returns the live lock in dir, if any.
func Holder(dir string) (*Lock, bool) {
	lock, err := Read(filepath.Join(dir, FileName))
	if err != nil || !isProcessAlive(lock.PID) {
		return nil, false
	}
	return lock, true
}

// isProcessAlive sends signal 0, which checks existence without affecting the process.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
