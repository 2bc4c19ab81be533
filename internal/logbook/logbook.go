package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/save-the-trash/internal/workflow"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logbook keeps a plain-text journal of what happened to each submission.
// It is the history the TUI shows under the results.
type Logbook struct {
	path  string
	mu    sync.Mutex
	clock func() time.Time
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path, clock: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s\n",
		l.clock().Format("15:04:05"),
		string(level),
		strings.TrimSpace(message),
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Tail returns up to maxLines of the most recent entries along with the
// total number of entries in the file.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

// Record turns a workflow event into a journal line.
func (l *Logbook) Record(ev workflow.Event) {
	switch ev.Type {
	case workflow.EventRejected:
		l.Warn("%s ignored while %s", ev.Op, ev.From)
	case workflow.EventDiscarded:
		l.Warn("late %s response discarded", ev.Op)
	default:
		if ev.Err != nil {
			l.Error("%s: %s", ev.Op, workflow.UserMessage(ev.Err))
			return
		}
		l.Info("%s", describe(ev))
	}
}

// Observer adapts the logbook to the workflow's subscription API.
func (l *Logbook) Observer() workflow.Observer {
	return workflow.ObserverFunc(l.Record)
}

func describe(ev workflow.Event) string {
	switch ev.To {
	case workflow.StatusIdle:
		return "started over"
	case workflow.StatusSelected:
		return "photo selected"
	case workflow.StatusUploading:
		return "upload started"
	case workflow.StatusUploaded:
		return "photo uploaded"
	case workflow.StatusAnalyzing:
		return "analysis started"
	case workflow.StatusAnalyzed:
		return "analysis ready"
	default:
		return fmt.Sprintf("%s -> %s", ev.From, ev.To)
	}
}
