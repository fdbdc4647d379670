// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// Counter is anything that can report how many items it holds.
// store.Queue satisfies it.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// RegisterQueueDepth publishes jobstats.queue.depth, an observable gauge
// that queries q only when scraped.
func RegisterQueueDepth(q Counter, logger *slog.Logger) error {
	meter := otel.Meter("jobstats-worker")
	_, err := meter.Int64ObservableGauge("jobstats.queue.depth",
		metric.WithDescription("Current number of jobs in the queue"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := q.Count(ctx)
			if err != nil {
				logger.Warn("failed to count queue depth", "error", err)
				return nil // Don't fail the scrape on DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("register queue depth gauge: %w", err)
	}
	return nil
}
