// Package zlog is the default collaborators.Logger, backed by
// github.com/rs/zerolog.
package zlog

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/siteforge/pipeline/collaborators"
)

// Logger adapts a zerolog.Logger to collaborators.Logger, additionally
// counting records at or above each FailureLogLevel check so the engine
// can decide whether to raise a failure-log error after execution.
type Logger struct {
	zl     zerolog.Logger
	debug  atomic.Int64
	info   atomic.Int64
	warn   atomic.Int64
	errorN atomic.Int64
}

// New returns a Logger that writes zerolog's JSON records, each with a
// timestamp, to w (os.Stdout if nil).
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	l.debug.Add(1)
	l.zl.Debug().Fields(fields).Msg(msg)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	l.info.Add(1)
	l.zl.Info().Fields(fields).Msg(msg)
}

func (l *Logger) Warn(msg string, fields map[string]any) {
	l.warn.Add(1)
	l.zl.Warn().Fields(fields).Msg(msg)
}

func (l *Logger) Error(msg string, fields map[string]any) {
	l.errorN.Add(1)
	l.zl.Error().Fields(fields).Msg(msg)
}

// FailureCount returns how many records at or above minLevel have been
// logged since construction or the last ResetFailureCount.
func (l *Logger) FailureCount(minLevel collaborators.Level) int {
	var n int64
	if minLevel <= collaborators.LevelDebug {
		n += l.debug.Load()
	}
	if minLevel <= collaborators.LevelInfo {
		n += l.info.Load()
	}
	if minLevel <= collaborators.LevelWarn {
		n += l.warn.Load()
	}
	if minLevel <= collaborators.LevelError {
		n += l.errorN.Load()
	}
	return int(n)
}

// ResetFailureCount zeroes every level counter.
func (l *Logger) ResetFailureCount() {
	l.debug.Store(0)
	l.info.Store(0)
	l.warn.Store(0)
	l.errorN.Store(0)
}

var _ collaborators.Logger = (*Logger)(nil)
