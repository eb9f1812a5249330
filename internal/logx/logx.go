// Package logx provides a small leveled logger for CLI diagnostics and
// training progress, so callers can silence or redirect output without a
// global logger singleton.
package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Level controls which messages a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelSilent suppresses all output.
	LevelSilent
)

// Logger writes leveled, formatted messages to an underlying writer.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

// New creates a Logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{out: w, level: level}
}

// Default returns a Logger writing to os.Stderr at LevelInfo.
func Default() *Logger {
	return New(os.Stderr, LevelInfo)
}

// SetLevel changes the minimum level that will be emitted.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) logf(level Level, prefix, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	fmt.Fprintf(l.out, prefix+format+"\n", args...)
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, "debug: ", format, args...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, "", format, args...) }

// Warnf logs a warn-level message.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, "warning: ", format, args...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, "error: ", format, args...) }
