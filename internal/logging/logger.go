// =============================================================================
// NFe to XLSX Converter - Logging
// =============================================================================
//
// Leveled printf-style logger shared by the converter, the tracker and the
// HTTP server, backed by log/slog text records. Output goes to stdout and,
// when configured, to a log file.
//
// LEVELS:
//   debug < info < warn < error
//
// =============================================================================

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logger is an interface for logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Level is a logging threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a config value into a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// slogLevel maps a Level onto the slog scale.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelInfo:
		return slog.LevelInfo
	}
	return slog.LevelError + 4
}

// =============================================================================
// SLOG-BACKED LOGGER
// =============================================================================

// slogLogger formats printf-style messages and hands them to a slog.Logger.
type slogLogger struct {
	out *slog.Logger
}

// New creates a logger writing text records (time, level, msg) to w at the
// given level.
func New(w io.Writer, level Level) Logger {
	return NewWithHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.slogLevel()}))
}

// NewWithHandler wraps an existing slog handler.
func NewWithHandler(h slog.Handler) Logger {
	return &slogLogger{out: slog.New(h)}
}

// NewFromConfig creates a logger writing to stdout and, if logFile is set, to
// that file as well. The returned closer releases the file.
//
// PARAMETERS:
//   - level: one of "debug", "info", "warn", "error".
//   - logFile: optional path; parent directories are created.
//
// RETURNS:
//   - The logger and a closer (never nil).
//   - An error if the log file cannot be opened.
func NewFromConfig(level, logFile string) (Logger, io.Closer, error) {
	if logFile == "" {
		return New(os.Stdout, ParseLevel(level)), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return New(io.MultiWriter(os.Stdout, f), ParseLevel(level)), f, nil
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return NewWithHandler(slog.DiscardHandler)
}

func (l *slogLogger) logf(level slog.Level, msg string, args ...interface{}) {
	ctx := context.Background()
	if !l.out.Enabled(ctx, level) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.out.Log(ctx, level, msg)
}

func (l *slogLogger) Debug(msg string, args ...interface{}) {
	l.logf(slog.LevelDebug, msg, args...)
}

func (l *slogLogger) Info(msg string, args ...interface{}) {
	l.logf(slog.LevelInfo, msg, args...)
}

func (l *slogLogger) Warn(msg string, args ...interface{}) {
	l.logf(slog.LevelWarn, msg, args...)
}

func (l *slogLogger) Error(msg string, args ...interface{}) {
	l.logf(slog.LevelError, msg, args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
