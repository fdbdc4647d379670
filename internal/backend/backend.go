// Package backend opens the statistics store and job queue selected by
// configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"jobstats/internal/config"
	"jobstats/internal/store"
	"jobstats/internal/store/memory"
	"jobstats/internal/store/postgres"
	redisstore "jobstats/internal/store/redis"
	"jobstats/internal/worker"

	goredis "github.com/redis/go-redis/v9"
)

// Backend bundles the stores a worker or CLI needs.
type Backend struct {
	Stats store.StatsStore
	Queue store.Queue

	// Postgres is set whenever a database connection was opened.
	Postgres *postgres.Store

	closers []func() error
}

// Open connects to every backend cfg asks for. On error, anything already
// opened is closed again.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}

	if cfg.Store == "postgres" || cfg.QueueDriver == "database" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		b.Postgres = pg
		b.closers = append(b.closers, pg.Close)
	}

	switch cfg.Store {
	case "postgres":
		b.Stats = b.Postgres
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		b.closers = append(b.closers, client.Close)
		rs := redisstore.New(client)
		if err := rs.Ping(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		b.Stats = rs
	case "memory":
		logger.Warn("using in-memory statistics store, records are lost on exit")
		b.Stats = memory.New()
	default:
		b.Close()
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	switch cfg.QueueDriver {
	case "database":
		b.Queue = b.Postgres.Queue(cfg.QueueConnection, cfg.QueueName)
	case "memory":
		b.Queue = worker.NewMemoryQueue()
	default:
		b.Close()
		return nil, fmt.Errorf("unknown queue driver %q", cfg.QueueDriver)
	}

	return b, nil
}

// Close releases every connection opened by Open, last opened first.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
