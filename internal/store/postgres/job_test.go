package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"jobstats/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

var jobColumns = []string{"id", "uuid", "connection", "queue", "status", "queued_at", "created_at", "updated_at"}

func TestCreateJob_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	job := &store.Job{
		ID:         uuid.New(),
		UUID:       uuid.NewString(),
		Connection: "database",
		Queue:      "default",
		Status:     store.JobStatusQueued,
		QueuedAt:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(job.ID, job.UUID, "database", "default", store.JobStatusQueued, now, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateJob_DuplicateUUID(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO jobs`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint \"jobs_uuid_key\""})

	err := s.CreateJob(context.Background(), &store.Job{ID: uuid.New(), UUID: "dup"})
	if !errors.Is(err, store.ErrDuplicateJob) {
		t.Errorf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestCreateJob_DatabaseError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO jobs`).WillReturnError(sql.ErrConnDone)

	err := s.CreateJob(context.Background(), &store.Job{ID: uuid.New(), UUID: "x"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, store.ErrDuplicateJob) {
		t.Error("connection error must not be reported as duplicate")
	}
}

func TestGetJobByUUID_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	jobUUID := uuid.NewString()
	queuedAt := time.Now().Add(-time.Minute)

	mock.ExpectQuery(`SELECT id, uuid, connection, queue, status, queued_at, created_at, updated_at FROM jobs WHERE uuid = \$1`).
		WithArgs(jobUUID).
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow(id.String(), jobUUID, "redis", "emails", "processing", queuedAt, queuedAt, queuedAt))

	job, err := s.GetJobByUUID(context.Background(), jobUUID)
	if err != nil {
		t.Fatalf("GetJobByUUID failed: %v", err)
	}
	if job.ID != id {
		t.Errorf("got ID %v, want %v", job.ID, id)
	}
	if job.Status != store.JobStatusProcessing {
		t.Errorf("got Status %v, want processing", job.Status)
	}
	if job.Queue != "emails" {
		t.Errorf("got Queue %q, want emails", job.Queue)
	}
	if !job.QueuedAt.Equal(queuedAt) {
		t.Errorf("got QueuedAt %v, want %v", job.QueuedAt, queuedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetJobByUUID_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM jobs WHERE uuid = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetJobByUUID(context.Background(), "missing")
	if !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestGetJobByUUID_DatabaseError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM jobs`).WillReturnError(sql.ErrConnDone)

	_, err := s.GetJobByUUID(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, store.ErrJobNotFound) {
		t.Error("connection error must be distinct from not-found")
	}
}

func TestUpdateJob(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "updated", affected: 1, wantErr: nil},
		{name: "missing row", affected: 0, wantErr: store.ErrJobNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			defer s.db.Close()

			now := time.Now().UTC()
			job := &store.Job{ID: uuid.New(), Connection: "redis", Queue: "high", Status: store.JobStatusSuccess, UpdatedAt: now}

			mock.ExpectExec(`UPDATE jobs`).
				WithArgs("redis", "high", store.JobStatusSuccess, now, job.ID).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := s.UpdateJob(context.Background(), job)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateJob() error = %v, want %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
