// Package logging configures the engine's structured logger.
//
// Grounded on smilemakc-mbflow's internal/infrastructure/logger.Setup(level
// string) shape (parse a level string, configure a process-wide logger,
// return it), generalized from log/slog to zerolog to match the
// field-chaining texture the engine's own node executors already use ad
// hoc (log.Debug().Str("node_id", nodeID).Msgf(...) in
// node_executors.go) — zerolog is the library this stack actually reaches
// for per-call, so Setup gives it the same one-time construction point
// slog's Setup has, rather than leaving every call site build its own
// *zerolog.Logger.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Setup configures the process's base logger at level (case-insensitive
// "debug"/"info"/"warn"/"error", defaulting to info) and returns it. Like
// the teacher's Setup, this also installs the logger as
// zerolog.DefaultContextLogger, so library code calling zerolog.Ctx on a
// context with no logger attached picks it up; the zerolog/log global
// logger is left unchanged.
func Setup(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).Level(parseLevel(level)).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithRun returns logger scoped to a single run, the same
// Str("node_id", nodeID)-chaining pattern node_executors.go's ad hoc log
// calls use, lifted to a reusable per-run child logger instead of
// repeating the field at every call site.
func WithRun(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Logger()
}
