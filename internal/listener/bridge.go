// Package listener attaches statistics recording to a queue engine's
// lifecycle events.
//
// The Bridge never reports failures back to the engine: every error is
// classified, logged and dropped so a job's own outcome is unaffected by
// its instrumentation.
package listener

import (
	"context"
	"errors"
	"log/slog"

	"jobstats/internal/logger"
	"jobstats/internal/stats"
)

// EventSource is the registration contract a queue engine exposes.
// Callbacks are invoked synchronously on the goroutine that processes
// the job.
type EventSource interface {
	OnBeforeExecute(func(context.Context, stats.BeforeExecute))
	OnAfterExecute(func(context.Context, stats.AfterExecute))
	OnFinalFailure(func(context.Context, stats.FinalFailure))
	OnExceptionOccurred(func(context.Context, stats.ExceptionOccurred))
}

// Recorder applies lifecycle transitions. Implemented by *stats.Recorder.
type Recorder interface {
	BeforeExecute(context.Context, stats.BeforeExecute) error
	AfterExecute(context.Context, stats.AfterExecute) error
	FinalFailure(context.Context, stats.FinalFailure) error
	ExceptionOccurred(context.Context, stats.ExceptionOccurred) error
}

// Bridge runs each event through filter, identity resolution and recorder.
type Bridge struct {
	filter   *stats.Filter
	resolver *stats.Resolver
	recorder Recorder
	logger   *slog.Logger
}

// New creates a Bridge. A nil logger uses slog.Default().
func New(filter *stats.Filter, resolver *stats.Resolver, recorder Recorder, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		filter:   filter,
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
	}
}

// Attach registers the four lifecycle callbacks on src.
func (b *Bridge) Attach(src EventSource) {
	src.OnBeforeExecute(func(ctx context.Context, ev stats.BeforeExecute) {
		b.handle(ctx, "before_execute", ev.Job, func(ctx context.Context, job stats.JobInfo) error {
			ev.Job = job
			return b.recorder.BeforeExecute(ctx, ev)
		})
	})
	src.OnAfterExecute(func(ctx context.Context, ev stats.AfterExecute) {
		b.handle(ctx, "after_execute", ev.Job, func(ctx context.Context, job stats.JobInfo) error {
			ev.Job = job
			return b.recorder.AfterExecute(ctx, ev)
		})
	})
	src.OnFinalFailure(func(ctx context.Context, ev stats.FinalFailure) {
		b.handle(ctx, "final_failure", ev.Job, func(ctx context.Context, job stats.JobInfo) error {
			ev.Job = job
			return b.recorder.FinalFailure(ctx, ev)
		})
	})
	src.OnExceptionOccurred(func(ctx context.Context, ev stats.ExceptionOccurred) {
		b.handle(ctx, "exception_occurred", ev.Job, func(ctx context.Context, job stats.JobInfo) error {
			ev.Job = job
			return b.recorder.ExceptionOccurred(ctx, ev)
		})
	})
}

func (b *Bridge) handle(ctx context.Context, event string, job stats.JobInfo, apply func(context.Context, stats.JobInfo) error) {
	log := b.logger.With("event", event, "job_name", job.Name, "attempt", job.Attempts)

	defer func() {
		if r := recover(); r != nil {
			log.Error("statistics listener panicked", "panic", r)
		}
	}()

	if err := b.filter.Eligible(job); err != nil {
		log.Debug("event skipped", "reason", err)
		return
	}

	id, err := b.resolver.Resolve(job)
	if err != nil {
		log.Warn("event skipped", "error", err)
		return
	}
	job.UUID = id
	ctx = logger.WithJobUUID(ctx, id)
	log = logger.FromContext(ctx, log)

	if err := apply(ctx, job); err != nil {
		b.report(log, err)
	}
}

func (b *Bridge) report(log *slog.Logger, err error) {
	switch {
	case errors.Is(err, stats.ErrAttemptFinalized):
		log.Debug("redelivered event ignored", "error", err)
	case errors.Is(err, stats.ErrJobNotFound),
		errors.Is(err, stats.ErrAttemptNotFound),
		errors.Is(err, stats.ErrDuplicateAttempt),
		errors.Is(err, stats.ErrInvalidAttempt),
		errors.Is(err, stats.ErrIdentityResolution):
		log.Warn("event not recorded", "error", err)
	default:
		log.Error("failed to record statistics", "error", err)
	}
}
