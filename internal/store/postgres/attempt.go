package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jobstats/internal/store"

	"github.com/google/uuid"
)

const attemptColumns = `id, job_id, attempt_number, status, started_at, finished_at,
	waiting_duration, handling_duration, exception_message, exception_call_stack,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*store.Attempt, error) {
	var attempt store.Attempt
	var callStack []byte

	err := row.Scan(
		&attempt.ID, &attempt.JobID, &attempt.AttemptNumber, &attempt.Status,
		&attempt.StartedAt, &attempt.FinishedAt,
		&attempt.WaitingDuration, &attempt.HandlingDuration,
		&attempt.ExceptionMessage, &callStack,
		&attempt.CreatedAt, &attempt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(callStack) > 0 {
		attempt.ExceptionCallStack = callStack
	}
	return &attempt, nil
}

// nullableJSON keeps an empty call stack as SQL NULL instead of invalid JSONB.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

// CreateAttempt inserts a new attempt row.
// UNIQUE(job_id, attempt_number) turns a redelivered before-execute into ErrDuplicateAttempt.
func (s *Store) CreateAttempt(ctx context.Context, attempt *store.Attempt) error {
	query := `
		INSERT INTO attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.JobID,
		attempt.AttemptNumber,
		attempt.Status,
		attempt.StartedAt,
		attempt.FinishedAt,
		attempt.WaitingDuration,
		attempt.HandlingDuration,
		attempt.ExceptionMessage,
		nullableJSON(attempt.ExceptionCallStack),
		attempt.CreatedAt,
		attempt.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("attempt %d: %w", attempt.AttemptNumber, store.ErrDuplicateAttempt)
		}
		return fmt.Errorf("failed to insert attempt %d: %w", attempt.AttemptNumber, err)
	}
	return nil
}

func (s *Store) UpdateAttempt(ctx context.Context, attempt *store.Attempt) error {
	query := `
		UPDATE attempts
		SET status = $1, finished_at = $2, handling_duration = $3,
		    exception_message = $4, exception_call_stack = $5, updated_at = $6
		WHERE id = $7
	`

	res, err := s.db.ExecContext(ctx, query,
		attempt.Status,
		attempt.FinishedAt,
		attempt.HandlingDuration,
		attempt.ExceptionMessage,
		nullableJSON(attempt.ExceptionCallStack),
		attempt.UpdatedAt,
		attempt.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update attempt %d: %w", attempt.AttemptNumber, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAttemptNotFound
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, jobID uuid.UUID, number int) (*store.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE job_id = $1 AND attempt_number = $2`

	attempt, err := scanAttempt(s.db.QueryRowContext(ctx, query, jobID, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAttemptNotFound
		}
		return nil, err
	}
	return attempt, nil
}

func (s *Store) GetLatestStartedAttempt(ctx context.Context, jobID uuid.UUID) (*store.Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM attempts
		WHERE job_id = $1 AND status = $2
		ORDER BY created_at DESC, attempt_number DESC
		LIMIT 1
	`

	attempt, err := scanAttempt(s.db.QueryRowContext(ctx, query, jobID, store.AttemptStatusStarted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAttemptNotFound
		}
		return nil, err
	}
	return attempt, nil
}

func (s *Store) ListAttempts(ctx context.Context, jobID uuid.UUID) ([]store.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE job_id = $1 ORDER BY attempt_number ASC`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []store.Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}
