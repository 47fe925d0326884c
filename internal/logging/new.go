package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DriverSlog    = "slog"
	DriverZerolog = "zerolog"

	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options selects the logging backend.
type Options struct {
	Driver string // slog, zerolog
	Format string // json, console
	Level  string // debug, info, warn, error
	Output io.Writer
}

// New builds a Logger from opts. Unknown drivers fall back to slog and
// unknown levels to info.
func New(opts Options) Logger {
	if opts.Driver == DriverZerolog {
		return NewZerologLogger(newZerolog(opts))
	}
	return NewSlog(opts)
}

func newZerolog(opts Options) zerolog.Logger {
	out := opts.Output
	if opts.Format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: opts.Output, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(zerologLevel(opts.Level)).With().Timestamp().Logger()
}

func zerologLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return NewSlog(Options{Level: "error", Output: io.Discard})
}
