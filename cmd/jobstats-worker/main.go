// Package main is the entry point for the jobstats worker.
// The worker pulls jobs from the queue, runs them and records per-attempt
// statistics for every job that opts in.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobstats/internal/backend"
	"jobstats/internal/config"
	"jobstats/internal/events"
	"jobstats/internal/listener"
	"jobstats/internal/logger"
	"jobstats/internal/observability"
	"jobstats/internal/stats"
	"jobstats/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: jobstats.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("Worker exited: %v", err)
	}
}

func run(cfg *config.Config) error {
	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "jobstats-worker", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logr.Error("failed to shutdown tracer", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logr.Error("failed to shutdown metrics", "error", err)
		}
	}()

	b, err := backend.Open(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := observability.RegisterQueueDepth(b.Queue, logr); err != nil {
		return fmt.Errorf("register queue depth: %w", err)
	}

	drivers := make([]stats.Driver, 0, len(cfg.SupportedDrivers))
	for _, d := range cfg.SupportedDrivers {
		drivers = append(drivers, stats.Driver(d))
	}

	dispatcher := events.NewDispatcher(logr)
	recorder := stats.NewRecorder(b.Stats, stats.WithLogger(logr))
	listener.New(stats.NewFilter(drivers...), stats.NewResolver(), recorder, logr).Attach(dispatcher)

	registry := worker.NewRegistry()
	worker.RegisterBuiltins(registry)

	hostname, _ := os.Hostname()
	agent := worker.New(b.Queue, registry, dispatcher, worker.AgentConfig{
		ID:           hostname,
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		MaxBackoff:   cfg.WorkerMaxBackoff,
		ReleaseDelay: cfg.WorkerReleaseDelay,
		Timeout:      cfg.WorkerTimeout,
		Driver:       queueDriver(cfg.QueueDriver),
	}, logr)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := agent.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logr.Info("metrics listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logr.Info("shutting down worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// queueDriver maps the configured queue backend to the driver reported on
// lifecycle events.
func queueDriver(name string) stats.Driver {
	switch name {
	case "memory":
		return stats.DriverMemory
	default:
		return stats.DriverDatabase
	}
}
