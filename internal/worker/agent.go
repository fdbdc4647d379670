// Package worker contains the worker-specific logic for job execution.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jobstats/internal/stats"
	"jobstats/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID           string
	Concurrency  int
	PollInterval time.Duration
	MaxBackoff   time.Duration // Maximum backoff when queue is empty (default: 30s)
	ReleaseDelay time.Duration // Delay before a failed job becomes visible again
	Timeout      time.Duration // Per-attempt handler timeout (default: 30m)

	// Driver is reported on every lifecycle event.
	Driver stats.Driver
}

// Events receives the lifecycle of every processed job.
// Implemented by *events.Dispatcher.
type Events interface {
	EmitBeforeExecute(context.Context, stats.BeforeExecute)
	EmitAfterExecute(context.Context, stats.AfterExecute)
	EmitExceptionOccurred(context.Context, stats.ExceptionOccurred)
	EmitFinalFailure(context.Context, stats.FinalFailure)
}

// Agent is the main worker agent that runs the pull-loop for job execution.
type Agent struct {
	queue    store.Queue
	registry *Registry
	events   Events
	config   AgentConfig
	logger   *slog.Logger
	done     chan struct{}
}

// New creates a new worker agent.
func New(q store.Queue, registry *Registry, events Events, config AgentConfig, logger *slog.Logger) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	if config.ReleaseDelay < 0 {
		config.ReleaseDelay = 0
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Minute
	}

	if config.Driver == "" {
		config.Driver = stats.DriverDatabase
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		queue:    q,
		registry: registry,
		events:   events,
		config:   config,
		logger:   logger.With("agent", config.ID),
		done:     make(chan struct{}),
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On SIGTERM, it stops dequeuing new work and allows in-flight jobs to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "concurrency", a.config.Concurrency, "driver", a.config.Driver)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty queue, resets on work found)
	currentBackoff := a.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context cancelled, waiting for running jobs to finish")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			items, err := a.queue.DequeueBatch(ctx, availableSlots)
			if err != nil {
				a.logger.Error("dequeue failed", "error", err)
				continue
			}

			if len(items) == 0 {
				// Empty queue - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			currentBackoff = a.config.PollInterval
			a.logger.Debug("claimed jobs", "count", len(items))

			for _, item := range items {
				sem <- struct{}{}

				wg.Add(1)
				go func(item store.QueueItem) {
					defer wg.Done()
					defer func() {
						<-sem
						triggerPoll()
					}()
					a.processItem(ctx, item)
				}(item)
			}

			if len(items) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processItem runs one attempt of a dequeued job and settles it on the queue.
func (a *Agent) processItem(ctx context.Context, item store.QueueItem) {
	log := a.logger.With("item_id", item.ID, "attempt", item.Attempts)

	// Settle the item even if the poll context is cancelled mid-run.
	ctx = context.WithoutCancel(ctx)

	var payload stats.Payload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		log.Error("invalid payload", "error", err)
		a.bury(ctx, log, item, fmt.Sprintf("invalid payload: %v", err))
		return
	}
	log = log.With("job_name", payload.Data.CommandName)

	h, ok := a.registry.New(payload.Data.CommandName)
	if !ok {
		log.Error("no handler registered")
		a.bury(ctx, log, item, fmt.Sprintf("no handler registered for %q", payload.Data.CommandName))
		return
	}
	if err := json.Unmarshal(payload.Data.Command, h); err != nil {
		log.Error("cannot decode handler", "error", err)
		a.bury(ctx, log, item, fmt.Sprintf("decode %s: %v", payload.Data.CommandName, err))
		return
	}

	info := stats.JobInfo{
		Name:       payload.Data.CommandName,
		Driver:     a.config.Driver,
		Connection: item.Connection,
		Queue:      item.Queue,
		Attempts:   item.Attempts,
		Payload:    item.Payload,
		Handler:    h,
	}
	if id, ok := h.(stats.Identifiable); ok {
		info.UUID = id.JobUUID()
	}

	tracer := otel.Tracer("worker-agent")
	spanCtx, span := tracer.Start(ctx, "process_job",
		trace.WithAttributes(
			attribute.String("job.uuid", info.UUID),
			attribute.String("job.name", info.Name),
			attribute.String("queue.item_id", item.ID.String()),
			attribute.String("queue.name", item.Queue),
			attribute.Int("job.attempt", item.Attempts),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	a.events.EmitBeforeExecute(spanCtx, stats.BeforeExecute{Job: info})

	ex := a.execute(WithAttempt(spanCtx, item.Attempts), h)
	if ex == nil {
		a.events.EmitAfterExecute(spanCtx, stats.AfterExecute{Job: info})
		if err := a.queue.Delete(ctx, item.ID); err != nil {
			log.Error("failed to delete completed job", "error", err)
		}
		span.SetStatus(codes.Ok, "")
		log.Info("job completed")
		return
	}

	span.SetStatus(codes.Error, ex.Message)

	maxTries := payload.MaxTries
	if maxTries <= 0 {
		maxTries = 1
	}

	if item.Attempts < maxTries {
		a.events.EmitExceptionOccurred(spanCtx, stats.ExceptionOccurred{Job: info, Exception: *ex})
		if err := a.queue.Release(ctx, item.ID, a.config.ReleaseDelay); err != nil {
			log.Error("failed to release job", "error", err)
		}
		log.Warn("job failed, will retry", "error", ex.Message, "max_tries", maxTries)
		return
	}

	a.events.EmitFinalFailure(spanCtx, stats.FinalFailure{Job: info, Exception: *ex})
	a.bury(ctx, log, item, ex.Message)
	log.Error("job failed permanently", "error", ex.Message, "max_tries", maxTries)
}

// execute runs the handler under the attempt timeout. A returned error or
// a panic becomes an Exception; nil means success.
func (a *Agent) execute(ctx context.Context, h Handler) (ex *stats.Exception) {
	execCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			captured := stats.CaptureException(fmt.Errorf("handler panicked: %v", r), 1)
			ex = &captured
		}
	}()

	if err := h.Handle(execCtx); err != nil {
		captured := stats.CaptureException(err, 0)
		return &captured
	}
	return nil
}

func (a *Agent) bury(ctx context.Context, log *slog.Logger, item store.QueueItem, reason string) {
	if err := a.queue.Bury(ctx, item.ID, reason); err != nil {
		log.Error("failed to bury job", "error", err)
	}
}
