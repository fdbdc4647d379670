package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithJobUUID_And_JobUUIDFromContext(t *testing.T) {
	ctx := context.Background()
	jobUUID := "0d9f7a2e-job"

	// Initially empty
	if got := JobUUIDFromContext(ctx); got != "" {
		t.Errorf("JobUUIDFromContext() on empty ctx = %v, want empty", got)
	}

	// After setting
	ctx = WithJobUUID(ctx, jobUUID)
	if got := JobUUIDFromContext(ctx); got != jobUUID {
		t.Errorf("JobUUIDFromContext() = %v, want %v", got, jobUUID)
	}
}

func TestFromContext_AttachesJobUUID(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, "info")

	ctx := WithJobUUID(context.Background(), "job-42")
	FromContext(ctx, base).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["job_uuid"] != "job-42" {
		t.Errorf("job_uuid = %v, want job-42", entry["job_uuid"])
	}
}

func TestFromContext_WithoutJobUUID(t *testing.T) {
	base := New("info")
	if got := FromContext(context.Background(), base); got != base {
		t.Error("FromContext() without a job uuid should return the base logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info line written at warn level: %q", buf.String())
	}
	l.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn line not written at warn level")
	}
}
