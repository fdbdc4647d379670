package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jobstats/internal/stats"
	"jobstats/internal/store"

	"github.com/google/uuid"
)

// DefaultMaxTries is written into payloads when the client has no limit set.
const DefaultMaxTries = 3

// ClientConfig holds enqueue defaults.
type ClientConfig struct {
	Connection string
	Queue      string
	MaxTries   int
}

// Client pushes handlers onto a queue and opens their statistics record.
type Client struct {
	queue  store.Queue
	stats  store.StatsStore
	config ClientConfig
	now    func() time.Time
}

// NewClient creates a Client. statsStore may be nil when no statistics are kept.
func NewClient(q store.Queue, statsStore store.StatsStore, config ClientConfig) *Client {
	if config.Connection == "" {
		config.Connection = "default"
	}
	if config.Queue == "" {
		config.Queue = "default"
	}
	if config.MaxTries <= 0 {
		config.MaxTries = DefaultMaxTries
	}
	return &Client{queue: q, stats: statsStore, config: config, now: time.Now}
}

// jobIdentity is implemented by handlers embedding stats.Tracked.
type jobIdentity interface {
	stats.Identifiable
	AssignJobUUID(string)
}

// Enqueue serializes h under name and pushes it. Handlers that opt into
// statistics get a job uuid (unless they already carry one) and a queued
// Job record created before the push. It returns the job uuid, or an empty
// string for handlers that are not tracked.
func (c *Client) Enqueue(ctx context.Context, name string, h Handler) (string, error) {
	var jobUUID string
	if id, ok := h.(jobIdentity); ok {
		id.AssignJobUUID(uuid.NewString())
		jobUUID = id.JobUUID()
	}

	if _, ok := h.(stats.Collector); ok && jobUUID != "" && c.stats != nil {
		now := c.now().UTC()
		job := &store.Job{
			ID:         uuid.New(),
			UUID:       jobUUID,
			Connection: c.config.Connection,
			Queue:      c.config.Queue,
			Status:     store.JobStatusQueued,
			QueuedAt:   now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := c.stats.CreateJob(ctx, job); err != nil {
			return "", fmt.Errorf("create job record: %w", err)
		}
	}

	command, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	payload, err := json.Marshal(stats.Payload{
		UUID:        uuid.NewString(),
		DisplayName: name,
		Job:         "worker.Handle",
		MaxTries:    c.config.MaxTries,
		Data:        stats.PayloadData{CommandName: name, Command: command},
	})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	item := store.QueueItem{
		ID:         uuid.New(),
		Connection: c.config.Connection,
		Queue:      c.config.Queue,
		Payload:    payload,
	}
	if err := c.queue.Push(ctx, item); err != nil {
		return "", fmt.Errorf("push %s: %w", name, err)
	}
	return jobUUID, nil
}
