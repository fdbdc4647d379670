package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"jobstats/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var attemptRowColumns = []string{
	"id", "job_id", "attempt_number", "status", "started_at", "finished_at",
	"waiting_duration", "handling_duration", "exception_message", "exception_call_stack",
	"created_at", "updated_at",
}

func TestCreateAttempt_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	attempt := &store.Attempt{
		ID:              uuid.New(),
		JobID:           uuid.New(),
		AttemptNumber:   1,
		Status:          store.AttemptStatusStarted,
		StartedAt:       now,
		WaitingDuration: 1.5,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	mock.ExpectExec(`INSERT INTO attempts`).
		WithArgs(attempt.ID, attempt.JobID, 1, store.AttemptStatusStarted, now, nil, 1.5, nil, nil, nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateAttempt(context.Background(), attempt); err != nil {
		t.Fatalf("CreateAttempt failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateAttempt_Duplicate(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO attempts`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "attempts_job_number_key"})

	err := s.CreateAttempt(context.Background(), &store.Attempt{ID: uuid.New(), JobID: uuid.New(), AttemptNumber: 2})
	if !errors.Is(err, store.ErrDuplicateAttempt) {
		t.Errorf("expected ErrDuplicateAttempt, got %v", err)
	}
}

func TestUpdateAttempt_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	handling := 0.25
	msg := "boom"
	trace := json.RawMessage(`[{"function":"main.run","file":"main.go","line":10}]`)
	attempt := &store.Attempt{
		ID:                 uuid.New(),
		AttemptNumber:      1,
		Status:             store.AttemptStatusFailed,
		FinishedAt:         &now,
		HandlingDuration:   &handling,
		ExceptionMessage:   &msg,
		ExceptionCallStack: trace,
		UpdatedAt:          now,
	}

	mock.ExpectExec(`UPDATE attempts`).
		WithArgs(store.AttemptStatusFailed, now, 0.25, "boom", []byte(trace), now, attempt.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateAttempt(context.Background(), attempt); err != nil {
		t.Fatalf("UpdateAttempt failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateAttempt_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE attempts`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateAttempt(context.Background(), &store.Attempt{ID: uuid.New()})
	if !errors.Is(err, store.ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestGetAttempt_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()
	attemptID := uuid.New()
	startedAt := time.Now().Add(-time.Minute)
	finishedAt := startedAt.Add(2 * time.Second)

	mock.ExpectQuery(`SELECT .* FROM attempts WHERE job_id = \$1 AND attempt_number = \$2`).
		WithArgs(jobID, 2).
		WillReturnRows(sqlmock.NewRows(attemptRowColumns).AddRow(
			attemptID.String(), jobID.String(), 2, "failed", startedAt, finishedAt,
			0.5, 2.0, "timeout", []byte(`[]`), startedAt, finishedAt,
		))

	attempt, err := s.GetAttempt(context.Background(), jobID, 2)
	if err != nil {
		t.Fatalf("GetAttempt failed: %v", err)
	}
	if attempt.ID != attemptID {
		t.Errorf("got ID %v, want %v", attempt.ID, attemptID)
	}
	if attempt.Status != store.AttemptStatusFailed {
		t.Errorf("got Status %v, want failed", attempt.Status)
	}
	if attempt.FinishedAt == nil || !attempt.FinishedAt.Equal(finishedAt) {
		t.Errorf("got FinishedAt %v, want %v", attempt.FinishedAt, finishedAt)
	}
	if attempt.HandlingDuration == nil || *attempt.HandlingDuration != 2.0 {
		t.Errorf("got HandlingDuration %v, want 2.0", attempt.HandlingDuration)
	}
	if attempt.ExceptionMessage == nil || *attempt.ExceptionMessage != "timeout" {
		t.Errorf("got ExceptionMessage %v, want timeout", attempt.ExceptionMessage)
	}
	if string(attempt.ExceptionCallStack) != `[]` {
		t.Errorf("got ExceptionCallStack %s, want []", attempt.ExceptionCallStack)
	}
}

func TestGetAttempt_NullableColumns(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()
	startedAt := time.Now()

	mock.ExpectQuery(`SELECT .* FROM attempts`).
		WillReturnRows(sqlmock.NewRows(attemptRowColumns).AddRow(
			uuid.NewString(), jobID.String(), 1, "started", startedAt, nil,
			0.0, nil, nil, nil, startedAt, startedAt,
		))

	attempt, err := s.GetAttempt(context.Background(), jobID, 1)
	if err != nil {
		t.Fatalf("GetAttempt failed: %v", err)
	}
	if attempt.FinishedAt != nil || attempt.HandlingDuration != nil || attempt.ExceptionMessage != nil {
		t.Errorf("expected nil optional fields, got %+v", attempt)
	}
	if attempt.ExceptionCallStack != nil {
		t.Errorf("expected nil call stack, got %s", attempt.ExceptionCallStack)
	}
}

func TestGetAttempt_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM attempts`).WillReturnError(sql.ErrNoRows)

	_, err := s.GetAttempt(context.Background(), uuid.New(), 3)
	if !errors.Is(err, store.ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestGetLatestStartedAttempt_QueryStructure(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()
	startedAt := time.Now()

	// Latest-first ordering picks the most recently created started row.
	mock.ExpectQuery(`SELECT .* FROM attempts WHERE job_id = \$1 AND status = \$2 ORDER BY created_at DESC, attempt_number DESC LIMIT 1`).
		WithArgs(jobID, store.AttemptStatusStarted).
		WillReturnRows(sqlmock.NewRows(attemptRowColumns).AddRow(
			uuid.NewString(), jobID.String(), 3, "started", startedAt, nil,
			1.0, nil, nil, nil, startedAt, startedAt,
		))

	attempt, err := s.GetLatestStartedAttempt(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetLatestStartedAttempt failed: %v", err)
	}
	if attempt.AttemptNumber != 3 {
		t.Errorf("got AttemptNumber %d, want 3", attempt.AttemptNumber)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetLatestStartedAttempt_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM attempts`).WillReturnError(sql.ErrNoRows)

	_, err := s.GetLatestStartedAttempt(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestListAttempts(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM attempts WHERE job_id = \$1 ORDER BY attempt_number ASC`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows(attemptRowColumns).
			AddRow(uuid.NewString(), jobID.String(), 1, "failed", now, now, 0.1, 0.2, "first", []byte(`[]`), now, now).
			AddRow(uuid.NewString(), jobID.String(), 2, "completed", now, now, 0.3, 0.4, nil, nil, now, now))

	attempts, err := s.ListAttempts(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ListAttempts failed: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].AttemptNumber != 1 || attempts[1].AttemptNumber != 2 {
		t.Errorf("unexpected order: %d, %d", attempts[0].AttemptNumber, attempts[1].AttemptNumber)
	}
	if attempts[1].Status != store.AttemptStatusCompleted {
		t.Errorf("got Status %v, want completed", attempts[1].Status)
	}
}
