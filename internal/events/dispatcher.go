// Package events fans queue lifecycle events out to registered listeners.
package events

import (
	"context"
	"log/slog"

	"jobstats/internal/stats"
)

// Dispatcher holds listeners for the four lifecycle events and notifies
// them in registration order. It implements listener.EventSource.
//
// Registration is expected to finish before the first Emit call.
type Dispatcher struct {
	logger *slog.Logger

	beforeExecute     []func(context.Context, stats.BeforeExecute)
	afterExecute      []func(context.Context, stats.AfterExecute)
	finalFailure      []func(context.Context, stats.FinalFailure)
	exceptionOccurred []func(context.Context, stats.ExceptionOccurred)
}

// NewDispatcher creates a Dispatcher with the given logger.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

func (d *Dispatcher) OnBeforeExecute(fn func(context.Context, stats.BeforeExecute)) {
	d.beforeExecute = append(d.beforeExecute, fn)
}

func (d *Dispatcher) OnAfterExecute(fn func(context.Context, stats.AfterExecute)) {
	d.afterExecute = append(d.afterExecute, fn)
}

func (d *Dispatcher) OnFinalFailure(fn func(context.Context, stats.FinalFailure)) {
	d.finalFailure = append(d.finalFailure, fn)
}

func (d *Dispatcher) OnExceptionOccurred(fn func(context.Context, stats.ExceptionOccurred)) {
	d.exceptionOccurred = append(d.exceptionOccurred, fn)
}

// ──────────────────────────────────────────────────
// Emitters
// ──────────────────────────────────────────────────

func (d *Dispatcher) EmitBeforeExecute(ctx context.Context, ev stats.BeforeExecute) {
	for _, fn := range d.beforeExecute {
		d.call("before_execute", func() { fn(ctx, ev) })
	}
}

func (d *Dispatcher) EmitAfterExecute(ctx context.Context, ev stats.AfterExecute) {
	for _, fn := range d.afterExecute {
		d.call("after_execute", func() { fn(ctx, ev) })
	}
}

func (d *Dispatcher) EmitFinalFailure(ctx context.Context, ev stats.FinalFailure) {
	for _, fn := range d.finalFailure {
		d.call("final_failure", func() { fn(ctx, ev) })
	}
}

func (d *Dispatcher) EmitExceptionOccurred(ctx context.Context, ev stats.ExceptionOccurred) {
	for _, fn := range d.exceptionOccurred {
		d.call("exception_occurred", func() { fn(ctx, ev) })
	}
}

// call runs one listener, containing any panic so the remaining listeners
// and the job itself still run.
func (d *Dispatcher) call(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event listener panicked", "event", event, "panic", r)
		}
	}()
	fn()
}
