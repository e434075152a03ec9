// Package zerologger adapts zerolog to the accounts Logger interface.
//
//	TRACE (-1) → DEBUG (0) → INFO (1) → WARN (2) → ERROR (3)
package zerologger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger behaviour at initialisation time.
type Options struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Defaults to "info" when empty or unrecognised.
	Level string
	// Pretty enables human friendly console output.
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer
	// Component is added to every entry when set.
	Component string
}

// Logger implements accounts.Logger on top of a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger from opts.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp()

	if opts.Component != "" {
		ctx = ctx.Str("component", opts.Component)
	}

	return &Logger{zl: ctx.Logger()}
}

// Wrap adapts an existing zerolog logger.
func Wrap(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Debug(msg string, args ...any) {
	l.zl.Debug().Fields(args).Msg(msg)
}

func (l *Logger) Info(msg string, args ...any) {
	l.zl.Info().Fields(args).Msg(msg)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.zl.Warn().Fields(args).Msg(msg)
}

func (l *Logger) Error(msg string, args ...any) {
	l.zl.Error().Fields(args).Msg(msg)
}

// ParseLevel converts a string to a zerolog.Level.
//
//	"trace" → TraceLevel (-1)
//	"debug" → DebugLevel ( 0)
//	"info"  → InfoLevel  ( 1)  ← default
//	"warn"  → WarnLevel  ( 2)
//	"error" → ErrorLevel ( 3)
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
