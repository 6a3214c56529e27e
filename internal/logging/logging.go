// Package logging configures the process-wide zerolog logger. Diagnostics
// go to stderr so stdout stays reserved for results.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global level and a human-readable writer on stderr.
func Init(debug bool) {
	Setup(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, debug)
}

// Setup installs w as the global log output.
func Setup(w io.Writer, debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// DebugEnabled reports whether debug logging is on.
func DebugEnabled() bool {
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}
