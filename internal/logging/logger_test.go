package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kingrea/save-the-trash/internal/workflow"
)

func TestNewWritesJSONLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := New(dir, "info")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info().Str("submission_id", "s1").Msg("hello")
	logger.Debug().Msg("hidden")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at info level, got %d: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "hello" || entry["submission_id"] != "s1" || entry["app"] != "savethetrash" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestObserverLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "info")
	obs := logger.Observer()

	obs.OnEvent(workflow.Event{Type: workflow.EventTransition, Op: "select image", From: workflow.StatusIdle, To: workflow.StatusSelected})
	obs.OnEvent(workflow.Event{
		Type:         workflow.EventTransition,
		Op:           "upload",
		SubmissionID: "s1",
		From:         workflow.StatusUploading,
		To:           workflow.StatusFailed,
		Err:          &workflow.UploadError{Reason: "network", Err: errors.New("dial tcp")},
	})

	out := buf.String()
	if strings.Contains(out, "select image") {
		t.Fatalf("selection should only be logged at debug level: %s", out)
	}
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, `"submission_id":"s1"`) {
		t.Fatalf("expected error line with submission id, got %s", out)
	}
	if !strings.Contains(out, "upload failed: network") {
		t.Fatalf("expected error text in log, got %s", out)
	}
}

func TestDiscardAndNilClose(t *testing.T) {
	Discard().Info().Msg("dropped")
	var l *Logger
	if err := l.Close(); err != nil {
		t.Fatalf("nil Close returned %v", err)
	}
}
