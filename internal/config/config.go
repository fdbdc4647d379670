// Package config loads worker and CLI settings from an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Store selects the statistics repository: postgres, redis or memory.
	Store string

	// Database connection string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SupportedDrivers is the allow-list of queue drivers whose events are recorded.
	SupportedDrivers []string

	// QueueDriver selects the job queue backend: database or memory.
	QueueDriver     string
	QueueConnection string
	QueueName       string

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerMaxBackoff   time.Duration
	WorkerReleaseDelay time.Duration
	WorkerTimeout      time.Duration

	// Port for the Prometheus /metrics endpoint
	MetricsPort int

	// OTLP gRPC collector address
	OTELEndpoint string

	LogLevel string
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"store":                "JOBSTATS_STORE",
	"database_url":         "DATABASE_URL",
	"redis_addr":           "REDIS_ADDR",
	"redis_password":       "REDIS_PASSWORD",
	"redis_db":             "REDIS_DB",
	"supported_drivers":    "SUPPORTED_DRIVERS",
	"queue_driver":         "QUEUE_DRIVER",
	"queue_connection":     "QUEUE_CONNECTION",
	"queue_name":           "QUEUE_NAME",
	"worker_concurrency":   "WORKER_CONCURRENCY",
	"worker_poll_interval": "WORKER_POLL_INTERVAL",
	"worker_max_backoff":   "WORKER_MAX_BACKOFF",
	"worker_release_delay": "WORKER_RELEASE_DELAY",
	"worker_timeout":       "WORKER_TIMEOUT",
	"metrics_port":         "METRICS_PORT",
	"otel_endpoint":        "OTEL_EXPORTER_OTLP_ENDPOINT",
	"log_level":            "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store", "postgres")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("supported_drivers", "beanstalkd,database,redis")
	v.SetDefault("queue_driver", "database")
	v.SetDefault("queue_connection", "database")
	v.SetDefault("queue_name", "default")
	v.SetDefault("worker_concurrency", 1)
	v.SetDefault("worker_poll_interval", time.Second)
	v.SetDefault("worker_max_backoff", 30*time.Second)
	v.SetDefault("worker_release_delay", 10*time.Second)
	v.SetDefault("worker_timeout", 30*time.Minute)
	v.SetDefault("metrics_port", 6162)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("log_level", "info")
}

// Load reads configuration from path, or from jobstats.yaml in the current
// directory when path is empty. A missing default file is not an error.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("jobstats")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		Store:              strings.ToLower(v.GetString("store")),
		DatabaseURL:        v.GetString("database_url"),
		RedisAddr:          v.GetString("redis_addr"),
		RedisPassword:      v.GetString("redis_password"),
		RedisDB:            v.GetInt("redis_db"),
		SupportedDrivers:   stringList(v.Get("supported_drivers")),
		QueueDriver:        strings.ToLower(v.GetString("queue_driver")),
		QueueConnection:    v.GetString("queue_connection"),
		QueueName:          v.GetString("queue_name"),
		WorkerConcurrency:  v.GetInt("worker_concurrency"),
		WorkerPollInterval: v.GetDuration("worker_poll_interval"),
		WorkerMaxBackoff:   v.GetDuration("worker_max_backoff"),
		WorkerReleaseDelay: v.GetDuration("worker_release_delay"),
		WorkerTimeout:      v.GetDuration("worker_timeout"),
		MetricsPort:        v.GetInt("metrics_port"),
		OTELEndpoint:       v.GetString("otel_endpoint"),
		LogLevel:           v.GetString("log_level"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("invalid store %q (want postgres, redis or memory)", c.Store)
	}

	switch c.QueueDriver {
	case "database", "memory":
	default:
		return fmt.Errorf("invalid queue_driver %q (want database or memory)", c.QueueDriver)
	}

	if (c.Store == "postgres" || c.QueueDriver == "database") && c.DatabaseURL == "" {
		return errors.New("database_url is required (env: DATABASE_URL)")
	}

	if c.Store == "redis" && c.RedisAddr == "" {
		return errors.New("redis_addr is required when store is redis (env: REDIS_ADDR)")
	}

	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("worker_concurrency must be positive, got %d", c.WorkerConcurrency)
	}

	if len(c.SupportedDrivers) == 0 {
		return errors.New("supported_drivers must list at least one driver")
	}
	return nil
}

// stringList accepts either a YAML list or a comma separated string.
func stringList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
