// Package obslog provides the daemon's shared structured logger.
package obslog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the global logger instance used throughout the daemon.
var Log zerolog.Logger

func init() {
	Log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()

	if os.Getenv("APP_ENV") != "production" {
		Log = Log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// Configure applies a log level parsed from config to the global logger.
// An empty or unrecognized level leaves the logger at zerolog's default.
func Configure(level string) {
	if level == "" {
		return
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		Log.Warn().Str("level", level).Msg("unrecognized log level, ignoring")
		return
	}
	Log = Log.Level(parsed)
}

// GetLogger returns the global logger instance.
func GetLogger() zerolog.Logger {
	return Log
}
