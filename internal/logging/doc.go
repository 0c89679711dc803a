// Package logging provides structured logging for the mapswitch daemon.
//
// This package wraps Go's log/slog to write JSON lines to a size-rotated
// file. Every session gets a child logger carrying its ID and kind, so a
// single swap, vote or rolling cycle can be followed through the log:
//
//	logger, err := logging.NewLogger("/var/lib/mapswitch/logs", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	swapLog := logger.WithSession(id).WithKind("slot_swap").WithSlot("parkour_3")
//	swapLog.Info("backup finished", "items", 2)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"backup finished","session_id":"...","kind":"slot_swap","slot":"parkour_3","items":2}
//
// # Log Rotation
//
// Rotated files are named mapswitch.log.1, mapswitch.log.2, ... where .1 is
// the most recent. With Compress set they become mapswitch.log.1.gz, etc.
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Child loggers
// share the parent's writer.
package logging
