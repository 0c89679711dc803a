package host

import (
	"context"
	"errors"
)

// Server errors.
var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotRunning     = errors.New("server not running")
)

// Server is the game server process behind the working directory.
type Server interface {
	// Start launches the server. It fails with ErrAlreadyRunning if it is up.
	Start(ctx context.Context) error
	// Stop asks the server to stop and waits until it has fully exited.
	// Stopping a stopped server is a no-op.
	Stop(ctx context.Context) error
	// IsRunning reports whether the server process is alive.
	IsRunning() bool
	// Say shows msg to everyone on the server.
	Say(msg string) error
}
