package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kingrea/save-the-trash/internal/workflow"
)

// FileName is the structured log written inside the logs directory.
const FileName = "savethetrash.log"

// Logger writes JSON lines to .savethetrash/logs/savethetrash.log so the
// terminal stays free for the TUI.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New creates (or reuses) the log file in logsDir.
func New(logsDir, level string) (*Logger, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logsDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{Logger: newZerolog(f, level), file: f}, nil
}

// NewWriter builds a logger over an arbitrary writer.
func NewWriter(w io.Writer, level string) *Logger {
	return &Logger{Logger: newZerolog(w, level)}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: zerolog.New(io.Discard)}
}

func newZerolog(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("app", "savethetrash").
		Logger()
}

// ParseLevel maps config levels onto zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Observer records every workflow event as a structured line.
func (l *Logger) Observer() workflow.Observer {
	return workflow.ObserverFunc(func(ev workflow.Event) {
		if l == nil {
			return
		}
		var entry *zerolog.Event
		switch {
		case ev.Type == workflow.EventRejected:
			entry = l.Warn()
		case ev.Err != nil:
			entry = l.Error().Err(ev.Err)
		case ev.Type == workflow.EventDiscarded:
			entry = l.Info()
		default:
			entry = l.Debug()
			if ev.To == workflow.StatusUploaded || ev.To == workflow.StatusAnalyzed {
				entry = l.Info()
			}
		}
		entry.
			Str("event", string(ev.Type)).
			Str("op", ev.Op).
			Str("submission_id", ev.SubmissionID).
			Str("from", string(ev.From)).
			Str("to", string(ev.To)).
			Msg("submission " + string(ev.Type))
	})
}
