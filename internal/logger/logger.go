package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents a logging level
type Level int

const (
	// LevelDebug is the most verbose logging level
	LevelDebug Level = iota
	// LevelInfo logs informational messages
	LevelInfo
	// LevelWarn logs warnings
	LevelWarn
	// LevelError logs errors
	LevelError
	// LevelNone disables all logging
	LevelNone
)

// String returns the string representation of a log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level, defaulting to info
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	case "none", "NONE":
		return LevelNone
	default:
		return LevelInfo
	}
}

// Logger writes leveled, timestamped log lines to a writer or file
type Logger struct {
	mu     sync.RWMutex
	level  Level
	out    *log.Logger
	prefix string
	file   *os.File
}

// New creates a logger that writes to the given writer
func New(level Level, w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{
		level: level,
		out:   log.New(w, "", 0),
	}
}

// NewFile creates a logger that appends to the given file path, creating
// parent directories as needed
func NewFile(level Level, path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		level: level,
		out:   log.New(file, "", 0),
		file:  file,
	}, nil
}

// Discard returns a logger that drops everything. Useful as a default for
// components constructed without a logger.
func Discard() *Logger {
	return New(LevelNone, io.Discard)
}

// WithPrefix returns a logger that tags every line with the given subsystem
// prefix, chained onto any existing prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.prefix != "" {
		prefix = l.prefix + ":" + prefix
	}

	return &Logger{
		level:  l.level,
		out:    l.out,
		prefix: prefix,
		file:   l.file,
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// Log writes a line at the given level. Exposed so callers that receive a
// level name over the wire can forward it without a switch.
func (l *Logger) Log(level Level, format string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if level < l.level || l.level == LevelNone {
		return
	}

	prefix := l.prefix
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	l.out.Printf("%s [%s] %s%s", timestamp, level.String(), prefix, fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...any) {
	l.Log(LevelDebug, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...any) {
	l.Log(LevelInfo, format, args...)
}

// Warn logs a warning
func (l *Logger) Warn(format string, args ...any) {
	l.Log(LevelWarn, format, args...)
}

// Error logs an error
func (l *Logger) Error(format string, args ...any) {
	l.Log(LevelError, format, args...)
}

// Close closes the underlying file, if any
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
