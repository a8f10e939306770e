// Package logger builds the *slog.Logger instances used across sesslock.
//
// New creates a logger from functional options (format, level, output, static
// attributes, context extractors). Records pass through a decorator that pulls
// request-scoped values such as the active session identifier out of the
// context at log time.
//
// Attribute helpers in attr.go keep key names consistent: every component logs
// the session identifier under "session_id", the storage technology under
// "backend" and failures under "error".
//
// Library packages never log to the default logger on their own. They accept a
// *slog.Logger through an option and fall back to Discard.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithFormat(logger.FormatText),
//	    logger.WithLevel(slog.LevelDebug),
//	    logger.WithAttr(logger.Component("sessiond")),
//	)
//	log.WarnContext(ctx, "lock wait exceeded", logger.SessionID(id), logger.Backend("file"))
package logger
