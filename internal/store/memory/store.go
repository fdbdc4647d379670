// Package memory implements store.StatsStore in process memory.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"jobstats/internal/store"

	"github.com/google/uuid"
)

var _ store.StatsStore = (*Store)(nil)

type attemptKey struct {
	jobID  uuid.UUID
	number int
}

// Store keeps jobs and attempts in maps guarded by a single RWMutex.
type Store struct {
	mu sync.RWMutex

	jobs     map[uuid.UUID]*store.Job
	byUUID   map[string]uuid.UUID
	attempts map[attemptKey]*store.Attempt

	// seq orders attempts by insertion for "most recently created" lookups.
	seq      uint64
	inserted map[uuid.UUID]uint64
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[uuid.UUID]*store.Job),
		byUUID:   make(map[string]uuid.UUID),
		attempts: make(map[attemptKey]*store.Attempt),
		inserted: make(map[uuid.UUID]uint64),
	}
}

func (m *Store) CreateJob(_ context.Context, job *store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byUUID[job.UUID]; exists {
		return store.ErrDuplicateJob
	}
	cp := *job
	m.jobs[job.ID] = &cp
	m.byUUID[job.UUID] = job.ID
	return nil
}

func (m *Store) GetJobByUUID(_ context.Context, jobUUID string) (*store.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUUID[jobUUID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	cp := *m.jobs[id]
	return &cp, nil
}

func (m *Store) UpdateJob(_ context.Context, job *store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.jobs[job.ID]
	if !ok {
		return store.ErrJobNotFound
	}
	existing.Connection = job.Connection
	existing.Queue = job.Queue
	existing.Status = job.Status
	existing.UpdatedAt = job.UpdatedAt
	return nil
}

func (m *Store) CreateAttempt(_ context.Context, attempt *store.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[attempt.JobID]; !ok {
		return store.ErrJobNotFound
	}
	key := attemptKey{attempt.JobID, attempt.AttemptNumber}
	if _, exists := m.attempts[key]; exists {
		return store.ErrDuplicateAttempt
	}
	cp := *attempt
	m.attempts[key] = &cp
	m.seq++
	m.inserted[attempt.ID] = m.seq
	return nil
}

func (m *Store) UpdateAttempt(_ context.Context, attempt *store.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.attempts[attemptKey{attempt.JobID, attempt.AttemptNumber}]
	if !ok || existing.ID != attempt.ID {
		return store.ErrAttemptNotFound
	}
	existing.Status = attempt.Status
	existing.FinishedAt = attempt.FinishedAt
	existing.HandlingDuration = attempt.HandlingDuration
	existing.ExceptionMessage = attempt.ExceptionMessage
	existing.ExceptionCallStack = attempt.ExceptionCallStack
	existing.UpdatedAt = attempt.UpdatedAt
	return nil
}

func (m *Store) GetAttempt(_ context.Context, jobID uuid.UUID, number int) (*store.Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.attempts[attemptKey{jobID, number}]
	if !ok {
		return nil, store.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Store) GetLatestStartedAttempt(_ context.Context, jobID uuid.UUID) (*store.Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *store.Attempt
	for key, a := range m.attempts {
		if key.jobID != jobID || a.Status != store.AttemptStatusStarted {
			continue
		}
		if latest == nil || m.inserted[a.ID] > m.inserted[latest.ID] {
			latest = a
		}
	}
	if latest == nil {
		return nil, store.ErrAttemptNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *Store) ListAttempts(_ context.Context, jobID uuid.UUID) ([]store.Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []store.Attempt
	for key, a := range m.attempts {
		if key.jobID == jobID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}
