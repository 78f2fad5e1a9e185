// Package logging provides structured logging for the runtime using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level aliases zerolog's level type so callers don't import zerolog for
// configuration alone.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level emitted.
	Level Level
	// Output defaults to os.Stderr.
	Output io.Writer
	// Pretty switches to human-readable console output.
	Pretty bool
}

// Init initializes the global logger.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

// ParseLevel parses a case-insensitive level name, defaulting to info.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Debug starts a debug level message on the global logger.
func Debug() *zerolog.Event { return Logger.Debug() }

// Info starts an info level message on the global logger.
func Info() *zerolog.Event { return Logger.Info() }

// Warn starts a warn level message on the global logger.
func Warn() *zerolog.Event { return Logger.Warn() }

// Error starts an error level message on the global logger.
func Error() *zerolog.Event { return Logger.Error() }

// With creates a child logger context with additional fields.
func With() zerolog.Context { return Logger.With() }

func init() {
	Init(Config{Level: InfoLevel})
}
