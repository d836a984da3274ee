// Package logging wraps zerolog behind an explicit handle type.
//
// The task graph and streamed cache never reach for a global logger; every
// constructor that wants to log takes a *Logger, and Nop() provides a
// zero-cost default for callers that don't care.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is an explicit structured-logging handle. The zero value is not
// usable; construct one with New or Nop.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger writing human-readable console output at the given
// level ("debug", "info", "warn", "error"). Unrecognized levels fall back
// to info.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}).
		Level(lvl).
		With().Timestamp().Logger()
	return &Logger{z: z}
}

// Nop returns a Logger that discards everything, safe to pass as a default
// when the caller doesn't supply one.
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

// With returns a child Logger carrying an additional string field,
// mirroring zerolog's component-tagging idiom used across the task graph
// (e.g. With("component", "sink")).
func (l *Logger) With(key, value string) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{z: l.z.With().Str(key, value).Logger()}
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.z.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.z.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.z.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.z.Error().Msgf(format, args...)
}

// Err logs err at error level with an explanatory message, a common pattern
// for the cache and sink error paths.
func (l *Logger) Err(err error, msg string) {
	if l == nil || err == nil {
		return
	}
	l.z.Error().Err(err).Msg(msg)
}
