// Package logger provides levelled logging for ctitrans.
// Warnings and errors are printed by default. --verbose adds progress
// messages, --debug adds per-element tracing and --quiet keeps errors only.
// All messages go to stderr so that sink output on stdout stays clean.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level controls which messages are printed.
type Level int

const (
	// LevelQuiet prints errors only.
	LevelQuiet Level = iota
	// LevelWarn prints warnings and errors.
	LevelWarn
	// LevelInfo adds progress messages.
	LevelInfo
	// LevelDebug adds tracing.
	LevelDebug
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelQuiet:
		return "quiet"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a level name ("quiet", "warn", "info", "debug").
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quiet", "error":
		return LevelQuiet, nil
	case "", "warn", "warning":
		return LevelWarn, nil
	case "info", "verbose":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelWarn, fmt.Errorf("unknown log level %q", s)
}

// Logger writes levelled messages to a writer. It is safe for concurrent use.
// Core services receive a *Logger explicitly; the package-level functions
// write through Default().
type Logger struct {
	mu     sync.RWMutex
	level  Level
	output io.Writer
}

// New creates a logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{level: level, output: w}
}

var std = New(os.Stderr, LevelWarn)

// Default returns the process-wide logger configured by the CLI flags.
func Default() *Logger {
	return std
}

// Discard returns a logger that prints nothing.
func Discard() *Logger {
	return New(io.Discard, LevelQuiet)
}

// SetLevel sets the minimum level printed.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the current level.
func (l *Logger) Level() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetOutput sets the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

func (l *Logger) logf(min Level, prefix, format string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.level >= min {
		fmt.Fprintf(l.output, prefix+format+"\n", args...)
	}
}

// Debug prints a message at debug level.
func (l *Logger) Debug(format string, args ...any) {
	l.logf(LevelDebug, "[DEBUG] ", format, args...)
}

// Info prints a message at info level.
func (l *Logger) Info(format string, args ...any) {
	l.logf(LevelInfo, "[INFO] ", format, args...)
}

// Warn prints a warning unless quiet.
func (l *Logger) Warn(format string, args ...any) {
	l.logf(LevelWarn, "[WARN] ", format, args...)
}

// Error always prints.
func (l *Logger) Error(format string, args ...any) {
	l.logf(LevelQuiet, "[ERROR] ", format, args...)
}

// Section prints a section header at info level.
func (l *Logger) Section(name string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.level >= LevelInfo {
		fmt.Fprintf(l.output, "\n=== %s ===\n", name)
	}
}

// SetLevel sets the level of the default logger.
func SetLevel(level Level) { std.SetLevel(level) }

// GetLevel returns the level of the default logger.
func GetLevel() Level { return std.Level() }

// SetVerbose switches the default logger between LevelInfo and LevelWarn.
func SetVerbose(v bool) {
	if v {
		SetLevel(LevelInfo)
		return
	}
	SetLevel(LevelWarn)
}

// IsVerbose returns true if progress messages are printed.
func IsVerbose() bool {
	return GetLevel() >= LevelInfo
}

// SetOutput sets the output writer of the default logger.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) { std.SetOutput(w) }

// Debug prints a message at debug level.
func Debug(format string, args ...any) { std.Debug(format, args...) }

// Section prints a section header at info level.
func Section(name string) { std.Section(name) }

// Info prints a message at info level.
func Info(format string, args ...any) { std.Info(format, args...) }

// Warn prints a warning unless quiet.
func Warn(format string, args ...any) { std.Warn(format, args...) }

// Error always prints.
func Error(format string, args ...any) { std.Error(format, args...) }
