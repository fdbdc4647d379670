package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound      = errors.New("store: job not found")
	ErrAttemptNotFound  = errors.New("store: attempt not found")
	ErrDuplicateJob     = errors.New("store: job uuid already exists")
	ErrDuplicateAttempt = errors.New("store: attempt number already exists for job")
)

// StatsStore persists jobs and their attempts.
// Lookups report a missing row with ErrJobNotFound or ErrAttemptNotFound,
// never with a driver-specific error.
type StatsStore interface {
	// CreateJob inserts a new job. Returns ErrDuplicateJob if the uuid is taken.
	CreateJob(ctx context.Context, job *Job) error

	// GetJobByUUID returns the job with the given external uuid.
	GetJobByUUID(ctx context.Context, jobUUID string) (*Job, error)

	// UpdateJob persists connection, queue and status of an existing job.
	UpdateJob(ctx context.Context, job *Job) error

	// CreateAttempt inserts a new attempt under its job.
	// Returns ErrDuplicateAttempt if the attempt number already exists.
	CreateAttempt(ctx context.Context, attempt *Attempt) error

	// UpdateAttempt persists the mutable fields of an existing attempt.
	UpdateAttempt(ctx context.Context, attempt *Attempt) error

	// GetAttempt returns the attempt with the given number.
	GetAttempt(ctx context.Context, jobID uuid.UUID, number int) (*Attempt, error)

	// GetLatestStartedAttempt returns the most recently created attempt
	// still in the started state.
	GetLatestStartedAttempt(ctx context.Context, jobID uuid.UUID) (*Attempt, error)

	// ListAttempts returns all attempts of a job ordered by attempt number.
	ListAttempts(ctx context.Context, jobID uuid.UUID) ([]Attempt, error)
}
