// Package logging provides structured logging for stream-ripper.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Extra levels beyond slog's four.
const (
	LevelTrace = slog.LevelDebug - 4
	LevelOff   = slog.LevelError + 100
)

// FileLayout names log files after the time the program started.
const FileLayout = "2006-01-02_15-04-05"

// Options configures Open.
type Options struct {
	Format  string    // "text", "json" or "journal"
	Level   string    // off, error, warn, info, debug, trace
	Dir     string    // directory for the timestamped log file; empty disables the file
	Console io.Writer // duplicate of every record; nil disables
	Program string    // file name prefix and journal identifier
}

// NewLogger creates a stderr logger with the specified format and level,
// for short-lived commands that do not open a log file.
func NewLogger(format, level string) *slog.Logger {
	return slog.New(newHandler(os.Stderr, format, parseLevel(level)))
}

// NewLoggerWithWriter creates a logger that writes to w.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	return slog.New(newHandler(w, format, parseLevel(level)))
}

// Open creates the logger used by the program. Records go to a timestamped
// file in opts.Dir and are duplicated to opts.Console. With the journal
// format, records go to the systemd journal instead when it is reachable.
// The returned closer releases the log file.
func Open(opts Options, now time.Time) (*slog.Logger, io.Closer, error) {
	level := parseLevel(opts.Level)
	program := opts.Program
	if program == "" {
		program = "stream-ripper"
	}

	if opts.Format == "journal" && IsJournalAvailable() {
		return slog.New(NewJournalHandler(level, program)), nopCloser{}, nil
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create logs folder: %w", err)
		}
		name := filepath.Join(opts.Dir, fmt.Sprintf("%s_%s.log", program, now.Format(FileLayout)))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}
	if opts.Console != nil {
		writers = append(writers, opts.Console)
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	return slog.New(newHandler(w, opts.Format, level)), closer, nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location for debug level
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}

	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "off":
		return LevelOff
	default:
		return slog.LevelInfo
	}
}

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
