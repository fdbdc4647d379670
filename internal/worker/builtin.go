package worker

import (
	"context"
	"fmt"
	"time"

	"jobstats/internal/stats"
)

type attemptKey struct{}

// WithAttempt returns a context carrying the 1-based attempt number.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// AttemptFromContext returns the attempt number a handler is running as,
// or 0 outside of the agent.
func AttemptFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(attemptKey{}).(int); ok {
		return v
	}
	return 0
}

// SleepJobName is the registry name of SleepJob.
const SleepJobName = "jobstats.sleep"

// SleepJob waits for Millis milliseconds and fails its first FailAttempts
// attempts. It is a tracked job for smoke-testing a deployment.
type SleepJob struct {
	stats.Tracked
	Millis       int `json:"millis"`
	FailAttempts int `json:"fail_attempts,omitempty"`
}

func (j *SleepJob) Handle(ctx context.Context) error {
	select {
	case <-time.After(time.Duration(j.Millis) * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	if attempt := AttemptFromContext(ctx); attempt <= j.FailAttempts {
		return fmt.Errorf("sleep job: failing attempt %d of %d", attempt, j.FailAttempts)
	}
	return nil
}

// RegisterBuiltins adds the handlers shipped with the worker.
func RegisterBuiltins(r *Registry) {
	r.Register(SleepJobName, func() Handler { return &SleepJob{} })
}
