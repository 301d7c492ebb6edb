// Package logging provides structured logging for botdas upgrade runs.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// persistent context attributes, so that a single upgrade run can be
// followed across tree fetching, the three agent stages, and publishing.
//
// # Thread Safety
//
// [Logger] is safe for concurrent use. Child loggers created via With* methods
// share the underlying handler. Dashboard fan-out relies on this: every
// repository gets its own child logger over the same writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/botdas", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithRunID(runID).WithRepository("octo/app")
//	runLog.WithStage("plan").Info("stage started")
//
// When the directory is empty, logs go to stderr. [NopLogger] discards everything.
package logging
