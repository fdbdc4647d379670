// Package store contains the persistence layer for jobstats.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is the statistics record of one logical unit of queued work.
// UUID is the stable external identifier and is unique across all jobs.
type Job struct {
	ID         uuid.UUID
	UUID       string
	Connection string
	Queue      string
	Status     JobStatus
	QueuedAt   time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// JobStatus represents the overall state of a job across its attempts.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSuccess    JobStatus = "success"
	JobStatusFailed     JobStatus = "failed"
)

// Attempt is a single execution try of a Job.
type Attempt struct {
	ID            uuid.UUID
	JobID         uuid.UUID
	AttemptNumber int
	Status        AttemptStatus
	StartedAt     time.Time
	FinishedAt    *time.Time

	// Durations are fractional seconds.
	WaitingDuration  float64
	HandlingDuration *float64

	ExceptionMessage   *string
	ExceptionCallStack json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttemptStatus represents the state of an attempt.
type AttemptStatus string

const (
	AttemptStatusStarted   AttemptStatus = "started"
	AttemptStatusCompleted AttemptStatus = "completed"
	AttemptStatusFailed    AttemptStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusFailed
}
