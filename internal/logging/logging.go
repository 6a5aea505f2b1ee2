// Package logging wraps zerolog behind the same small surface the
// teacher's pkg/logger exposes (Init/Debug/Info/Error, LOG_LEVEL env
// var), so callers throughout this repo never import zerolog directly.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

// Init configures the package logger from the LOG_LEVEL environment
// variable (debug, info, error; default info), writing structured JSON
// to stderr.
func Init() {
	level := zerolog.InfoLevel
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = zerolog.DebugLevel
	case "error":
		level = zerolog.ErrorLevel
	case "info", "":
		level = zerolog.InfoLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func init() {
	// Sensible default if Init is never called (e.g. in tests).
	logger = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// Debug logs at debug level with structured key/value fields.
func Debug(msg string, fields map[string]interface{}) {
	logger.Debug().Fields(fields).Msg(msg)
}

// Info logs at info level with structured key/value fields.
func Info(msg string, fields map[string]interface{}) {
	logger.Info().Fields(fields).Msg(msg)
}

// Error logs at error level, attaching err and any structured fields.
func Error(msg string, err error, fields map[string]interface{}) {
	logger.Error().Err(err).Fields(fields).Msg(msg)
}

// Logger returns the underlying zerolog.Logger for collaborators that
// want request-scoped child loggers. Nothing in this repo calls it;
// internal/httpapi's access log uses chi's middleware.Logger.
func Logger() zerolog.Logger {
	return logger
}
