package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Queue defines the operations a worker needs from a queue backend.
// Implementations must hand each item to at most one worker at a time.
type Queue interface {
	// Push adds a new item to the queue.
	Push(ctx context.Context, item QueueItem) error

	// DequeueBatch claims up to 'limit' visible items and increments their attempt counter.
	// Returns nil slice if queue is empty.
	DequeueBatch(ctx context.Context, limit int) ([]QueueItem, error)

	// Delete removes an item after a successful run.
	Delete(ctx context.Context, id uuid.UUID) error

	// Release makes an item visible again after delay so it can be retried.
	Release(ctx context.Context, id uuid.UUID, delay time.Duration) error

	// Bury removes an item that failed for the last time and records the error.
	Bury(ctx context.Context, id uuid.UUID, errMsg string) error

	// Count tracks count of items in queue
	Count(ctx context.Context) (int64, error)
}

// QueueItem represents a queued job as seen by a worker.
type QueueItem struct {
	ID         uuid.UUID
	Connection string
	Queue      string
	Payload    json.RawMessage
	Attempts   int
}
