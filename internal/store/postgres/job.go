package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jobstats/internal/store"
)

// CreateJob inserts a new job row.
// The uuid column is UNIQUE, so a second job with the same uuid is rejected.
func (s *Store) CreateJob(ctx context.Context, job *store.Job) error {
	query := `
		INSERT INTO jobs (id, uuid, connection, queue, status, queued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.UUID,
		job.Connection,
		job.Queue,
		job.Status,
		job.QueuedAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job %s: %w", job.UUID, store.ErrDuplicateJob)
		}
		return fmt.Errorf("failed to insert job %s: %w", job.UUID, err)
	}
	return nil
}

func (s *Store) GetJobByUUID(ctx context.Context, jobUUID string) (*store.Job, error) {
	query := `
		SELECT id, uuid, connection, queue, status, queued_at, created_at, updated_at
		FROM jobs
		WHERE uuid = $1
	`

	var job store.Job
	err := s.db.QueryRowContext(ctx, query, jobUUID).Scan(
		&job.ID, &job.UUID, &job.Connection, &job.Queue,
		&job.Status, &job.QueuedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, err
	}

	return &job, nil
}

// UpdateJob writes back the fields the lifecycle is allowed to change.
func (s *Store) UpdateJob(ctx context.Context, job *store.Job) error {
	query := `
		UPDATE jobs
		SET connection = $1, queue = $2, status = $3, updated_at = $4
		WHERE id = $5
	`

	res, err := s.db.ExecContext(ctx, query, job.Connection, job.Queue, job.Status, job.UpdatedAt, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.UUID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrJobNotFound
	}
	return nil
}
