package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"jobstats/internal/backend"
	"jobstats/internal/config"
	"jobstats/internal/store"
	"jobstats/internal/store/memory"
	"jobstats/internal/worker"

	"github.com/google/uuid"
)

// useMemoryBackend points the commands at an in-memory store and queue for
// the duration of the test.
func useMemoryBackend(t *testing.T) *backend.Backend {
	t.Helper()
	b := &backend.Backend{Stats: memory.New(), Queue: worker.NewMemoryQueue()}

	prevLoad, prevOpen := loadConfig, openBackend
	loadConfig = func(string) (*config.Config, error) {
		return &config.Config{
			Store:           "memory",
			QueueDriver:     "memory",
			QueueConnection: "default",
			QueueName:       "emails",
			LogLevel:        "error",
		}, nil
	}
	openBackend = func(context.Context, *config.Config, *slog.Logger) (*backend.Backend, error) {
		return b, nil
	}
	t.Cleanup(func() { loadConfig, openBackend = prevLoad, prevOpen })
	return b
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatusCommand_ShowsJobAndAttempts(t *testing.T) {
	b := useMemoryBackend(t)
	ctx := context.Background()

	queued := time.Now().Add(-time.Minute).UTC()
	job := &store.Job{
		ID:         uuid.New(),
		UUID:       "job-123",
		Connection: "database",
		Queue:      "emails",
		Status:     store.JobStatusSuccess,
		QueuedAt:   queued,
	}
	if err := b.Stats.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	msg := "smtp timeout"
	first := queued.Add(2 * time.Second)
	firstEnd := first.Add(1500 * time.Millisecond)
	handled1, handled2 := 1.5, 0.25
	second := firstEnd.Add(10 * time.Second)
	secondEnd := second.Add(250 * time.Millisecond)

	attempts := []*store.Attempt{
		{ID: uuid.New(), JobID: job.ID, AttemptNumber: 1, Status: store.AttemptStatusFailed, StartedAt: first, FinishedAt: &firstEnd, WaitingDuration: 2, HandlingDuration: &handled1, ExceptionMessage: &msg},
		{ID: uuid.New(), JobID: job.ID, AttemptNumber: 2, Status: store.AttemptStatusCompleted, StartedAt: second, FinishedAt: &secondEnd, WaitingDuration: 10, HandlingDuration: &handled2},
	}
	for _, a := range attempts {
		if err := b.Stats.CreateAttempt(ctx, a); err != nil {
			t.Fatalf("create attempt: %v", err)
		}
	}

	output, err := execute(t, "status", "job-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"job-123", "success", "emails", "database", "smtp timeout", "1.5s", "250ms", "10.0s"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Count(output, "\n1 ") != 1 || strings.Count(output, "\n2 ") != 1 {
		t.Errorf("expected one row per attempt, got: %s", output)
	}
}

func TestStatusCommand_NoAttempts(t *testing.T) {
	b := useMemoryBackend(t)
	job := &store.Job{ID: uuid.New(), UUID: "fresh", Status: store.JobStatusQueued, QueuedAt: time.Now().UTC()}
	if err := b.Stats.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	output, err := execute(t, "status", "fresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "queued") {
		t.Errorf("expected queued status, got: %s", output)
	}
	if strings.Contains(output, "WAITED") {
		t.Errorf("expected no attempt table, got: %s", output)
	}
}

func TestStatusCommand_UnknownJob(t *testing.T) {
	useMemoryBackend(t)

	_, err := execute(t, "status", "missing")
	if err == nil {
		t.Fatal("expected error for unknown job")
	}
	if !strings.Contains(err.Error(), "no statistics recorded") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStatusCommand_RequiresArgument(t *testing.T) {
	useMemoryBackend(t)

	if _, err := execute(t, "status"); err == nil {
		t.Fatal("expected error when job uuid is missing")
	}
}

func TestEnqueueSleepCommand(t *testing.T) {
	b := useMemoryBackend(t)

	output, err := execute(t, "enqueue", "sleep", "--millis", "5", "--fail-attempts", "1", "--max-tries", "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "Job enqueued:") {
		t.Fatalf("expected confirmation, got: %s", output)
	}

	jobUUID := strings.TrimSpace(strings.SplitN(strings.TrimPrefix(output, "Job enqueued: "), "\n", 2)[0])
	job, err := b.Stats.GetJobByUUID(context.Background(), jobUUID)
	if err != nil {
		t.Fatalf("job record not created: %v", err)
	}
	if job.Status != store.JobStatusQueued {
		t.Errorf("expected queued status, got %s", job.Status)
	}
	if job.Queue != "emails" {
		t.Errorf("expected queue from config, got %q", job.Queue)
	}

	n, err := b.Queue.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 queued item, got %d", n)
	}
}

func TestMigrateCommand_RequiresPostgres(t *testing.T) {
	useMemoryBackend(t)

	_, err := execute(t, "migrate")
	if err == nil {
		t.Fatal("expected error without a PostgreSQL connection")
	}
	if !strings.Contains(err.Error(), "PostgreSQL") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestColorizeStatus(t *testing.T) {
	for _, status := range []string{"queued", "processing", "success", "failed"} {
		got := colorizeStatus(status)
		if !strings.Contains(got, status) || got == status {
			t.Errorf("colorizeStatus(%q) = %q, want decorated status", status, got)
		}
	}
	if got := colorizeStatus("other"); got != "other" {
		t.Errorf("unknown status should be returned as is, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 50, "short"},
		{strings.Repeat("a", 60), 50, strings.Repeat("a", 47) + "..."},
		{strings.Repeat("é", 60), 50, strings.Repeat("é", 47) + "..."},
		{strings.Repeat("日", 50), 50, strings.Repeat("日", 50)},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
		}
	}
}
