// Package stats records per-job, per-attempt execution statistics from
// queue lifecycle events.
//
// Events pass through a Filter (driver allow-list and the Collector
// capability), a Resolver (stable job identity) and finally a Recorder,
// which drives the Attempt state machine against a store.StatsStore.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jobstats/internal/logger"
	"jobstats/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "jobstats/internal/stats"

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithMeter sets the meter used for attempt instruments.
func WithMeter(m metric.Meter) Option {
	return func(r *Recorder) { r.meter = m }
}

// WithTracer sets the tracer used for transition spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Recorder) { r.tracer = t }
}

// Recorder applies lifecycle transitions to Job and Attempt records.
// It holds no per-job state; correctness relies on a single writer per job.
type Recorder struct {
	store  store.StatsStore
	now    func() time.Time
	logger *slog.Logger
	meter  metric.Meter
	tracer trace.Tracer

	started  metric.Int64Counter
	finished metric.Int64Counter
	waiting  metric.Float64Histogram
	handling metric.Float64Histogram
}

// NewRecorder returns a Recorder writing to s.
func NewRecorder(s store.StatsStore, opts ...Option) *Recorder {
	r := &Recorder{
		store:  s,
		now:    time.Now,
		logger: slog.Default(),
		meter:  otel.Meter(instrumentationName),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, o := range opts {
		o(r)
	}

	// The metric API hands back noop instruments alongside any error.
	r.started, _ = r.meter.Int64Counter("jobstats.attempt.started",
		metric.WithDescription("Attempts that entered the started state"),
		metric.WithUnit("{attempt}"),
	)
	r.finished, _ = r.meter.Int64Counter("jobstats.attempt.finished",
		metric.WithDescription("Attempts finalized, by status"),
		metric.WithUnit("{attempt}"),
	)
	r.waiting, _ = r.meter.Float64Histogram("jobstats.attempt.waiting_duration",
		metric.WithDescription("Time between enqueue or the previous attempt and the start of an attempt"),
		metric.WithUnit("s"),
	)
	r.handling, _ = r.meter.Float64Histogram("jobstats.attempt.handling_duration",
		metric.WithDescription("Time spent executing an attempt"),
		metric.WithUnit("s"),
	)
	return r
}

// clock reads the injected clock at the resolution the SQL store keeps.
func (r *Recorder) clock() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *Recorder) startSpan(ctx context.Context, name string, job JobInfo) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("jobstats.job.uuid", job.UUID),
			attribute.String("jobstats.job.name", job.Name),
			attribute.String("jobstats.queue", job.Queue),
			attribute.Int("jobstats.attempt", job.Attempts),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (r *Recorder) loadJob(ctx context.Context, job JobInfo) (*store.Job, error) {
	if job.UUID == "" {
		return nil, fmt.Errorf("%w: event carries no identity", ErrIdentityResolution)
	}
	j, err := r.store.GetJobByUUID(ctx, job.UUID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return nil, fmt.Errorf("job %s: %w", job.UUID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("load job %s: %w", job.UUID, err)
	}
	return j, nil
}

func (r *Recorder) saveJob(ctx context.Context, j *store.Job, status store.JobStatus, now time.Time) error {
	j.Status = status
	j.UpdatedAt = now
	if err := r.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("update job %s: %w", j.UUID, err)
	}
	return nil
}

// BeforeExecute opens a new started attempt for the reported attempt number
// and marks the job as processing.
func (r *Recorder) BeforeExecute(ctx context.Context, ev BeforeExecute) (err error) {
	ctx, span := r.startSpan(ctx, "jobstats.before_execute", ev.Job)
	defer func() { endSpan(span, err) }()
	log := logger.FromContext(ctx, r.logger)

	j, err := r.loadJob(ctx, ev.Job)
	if err != nil {
		return err
	}

	number := ev.Job.Attempts
	if number < 1 {
		return fmt.Errorf("attempt %d: %w", number, ErrInvalidAttempt)
	}

	_, err = r.store.GetAttempt(ctx, j.ID, number)
	switch {
	case err == nil:
		return fmt.Errorf("attempt %d: %w", number, ErrDuplicateAttempt)
	case !errors.Is(err, store.ErrAttemptNotFound):
		return fmt.Errorf("check attempt %d: %w", number, err)
	}

	previousEnd, err := r.previousEnd(ctx, log, j, number)
	if err != nil {
		return err
	}

	now := r.clock()
	waiting := durationSeconds(previousEnd, now)
	attempt := &store.Attempt{
		ID:              uuid.New(),
		JobID:           j.ID,
		AttemptNumber:   number,
		Status:          store.AttemptStatusStarted,
		StartedAt:       now,
		WaitingDuration: waiting,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.store.CreateAttempt(ctx, attempt); err != nil {
		if errors.Is(err, store.ErrDuplicateAttempt) {
			return fmt.Errorf("attempt %d: %w", number, ErrDuplicateAttempt)
		}
		return fmt.Errorf("create attempt %d: %w", number, err)
	}

	j.Connection = ev.Job.Connection
	j.Queue = ev.Job.Queue
	if err := r.saveJob(ctx, j, store.JobStatusProcessing, now); err != nil {
		return err
	}

	attrs := metric.WithAttributes(
		attribute.String("connection", j.Connection),
		attribute.String("queue", j.Queue),
	)
	r.started.Add(ctx, 1, attrs)
	r.waiting.Record(ctx, waiting, attrs)

	log.Debug("attempt started", "attempt", number, "waiting_seconds", waiting)
	return nil
}

// previousEnd is the instant the job became ready for this attempt: enqueue
// time for the first attempt, otherwise the end of the previous one.
func (r *Recorder) previousEnd(ctx context.Context, log *slog.Logger, j *store.Job, number int) (time.Time, error) {
	if number == 1 {
		return j.QueuedAt, nil
	}

	prev, err := r.store.GetAttempt(ctx, j.ID, number-1)
	if errors.Is(err, store.ErrAttemptNotFound) {
		log.Warn("previous attempt not recorded, measuring from enqueue", "attempt", number)
		return j.QueuedAt, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load attempt %d: %w", number-1, err)
	}
	if prev.FinishedAt == nil {
		log.Warn("previous attempt never finished, measuring from its start", "attempt", number)
		return prev.StartedAt, nil
	}
	return *prev.FinishedAt, nil
}

// AfterExecute marks the job successful and completes its latest started attempt.
func (r *Recorder) AfterExecute(ctx context.Context, ev AfterExecute) (err error) {
	ctx, span := r.startSpan(ctx, "jobstats.after_execute", ev.Job)
	defer func() { endSpan(span, err) }()

	j, err := r.loadJob(ctx, ev.Job)
	if err != nil {
		return err
	}

	now := r.clock()
	if err := r.saveJob(ctx, j, store.JobStatusSuccess, now); err != nil {
		return err
	}

	attempt, err := r.latestStarted(ctx, j)
	if err != nil {
		return err
	}
	return r.finalize(ctx, j, attempt, store.AttemptStatusCompleted, now, nil)
}

// FinalFailure marks the job failed and fails its latest started attempt.
func (r *Recorder) FinalFailure(ctx context.Context, ev FinalFailure) (err error) {
	ctx, span := r.startSpan(ctx, "jobstats.final_failure", ev.Job)
	defer func() { endSpan(span, err) }()

	j, err := r.loadJob(ctx, ev.Job)
	if err != nil {
		return err
	}

	now := r.clock()
	if err := r.saveJob(ctx, j, store.JobStatusFailed, now); err != nil {
		return err
	}

	attempt, err := r.latestStarted(ctx, j)
	if err != nil {
		return err
	}
	return r.finalize(ctx, j, attempt, store.AttemptStatusFailed, now, &ev.Exception)
}

// ExceptionOccurred fails the exact attempt the driver reported. The job
// status is left alone since another attempt may follow.
func (r *Recorder) ExceptionOccurred(ctx context.Context, ev ExceptionOccurred) (err error) {
	ctx, span := r.startSpan(ctx, "jobstats.exception_occurred", ev.Job)
	defer func() { endSpan(span, err) }()

	j, err := r.loadJob(ctx, ev.Job)
	if err != nil {
		return err
	}

	number := ev.Job.Attempts
	attempt, err := r.store.GetAttempt(ctx, j.ID, number)
	if err != nil {
		if errors.Is(err, store.ErrAttemptNotFound) {
			return fmt.Errorf("attempt %d: %w", number, ErrAttemptNotFound)
		}
		return fmt.Errorf("load attempt %d: %w", number, err)
	}
	if attempt.Status.IsTerminal() {
		return fmt.Errorf("attempt %d is %s: %w", number, attempt.Status, ErrAttemptFinalized)
	}

	return r.finalize(ctx, j, attempt, store.AttemptStatusFailed, r.clock(), &ev.Exception)
}

func (r *Recorder) latestStarted(ctx context.Context, j *store.Job) (*store.Attempt, error) {
	attempt, err := r.store.GetLatestStartedAttempt(ctx, j.ID)
	if err != nil {
		if errors.Is(err, store.ErrAttemptNotFound) {
			return nil, fmt.Errorf("job %s has no started attempt: %w", j.UUID, ErrAttemptNotFound)
		}
		return nil, fmt.Errorf("load latest attempt: %w", err)
	}
	return attempt, nil
}

func (r *Recorder) finalize(ctx context.Context, j *store.Job, a *store.Attempt, status store.AttemptStatus, now time.Time, ex *Exception) error {
	handling := durationSeconds(a.StartedAt, now)
	a.Status = status
	a.FinishedAt = &now
	a.HandlingDuration = &handling
	a.UpdatedAt = now

	if ex != nil {
		msg := ex.Message
		a.ExceptionMessage = &msg
		if len(ex.Trace) > 0 {
			stack, err := json.Marshal(ex.Trace)
			if err != nil {
				return fmt.Errorf("encode call stack: %w", err)
			}
			a.ExceptionCallStack = stack
		}
	}

	if err := r.store.UpdateAttempt(ctx, a); err != nil {
		return fmt.Errorf("update attempt %d: %w", a.AttemptNumber, err)
	}

	attrs := metric.WithAttributes(
		attribute.String("connection", j.Connection),
		attribute.String("queue", j.Queue),
		attribute.String("status", string(status)),
	)
	r.finished.Add(ctx, 1, attrs)
	r.handling.Record(ctx, handling, attrs)

	logger.FromContext(ctx, r.logger).Debug("attempt finished",
		"attempt", a.AttemptNumber,
		"status", status,
		"handling_seconds", handling,
	)
	return nil
}

// durationSeconds returns to-from in seconds, clamped at zero.
func durationSeconds(from, to time.Time) float64 {
	d := to.Sub(from).Seconds()
	if d < 0 {
		return 0
	}
	return d
}
