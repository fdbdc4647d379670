// Package redis implements store.StatsStore using Redis hashes.
//
// Jobs are stored under jobstats:job:{uuid}; attempts under
// jobstats:attempt:{jobID}:{number}. Creates run as Lua scripts so the
// existence check, the field writes and the index updates land together:
// a key is either absent or complete.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"jobstats/internal/store"

	"github.com/google/uuid"
)

var _ store.StatsStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithKeyPrefix overrides the default "jobstats:" key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store implements store.StatsStore backed by Redis.
type Store struct {
	client goredis.Cmdable
	prefix string
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, prefix: "jobstats:"}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) jobKey(jobUUID string) string { return s.prefix + "job:" + jobUUID }

func (s *Store) attemptKey(jobID uuid.UUID, number int) string {
	return fmt.Sprintf("%sattempt:%s:%d", s.prefix, jobID, number)
}

// attemptIndexKey is a Sorted Set of attempt numbers per job (score = number).
func (s *Store) attemptIndexKey(jobID uuid.UUID) string {
	return s.prefix + "attempts:" + jobID.String()
}

// startedKey is a Sorted Set of started attempt numbers per job (score = insertion sequence).
func (s *Store) startedKey(jobID uuid.UUID) string {
	return s.prefix + "started:" + jobID.String()
}

func (s *Store) seqKey() string { return s.prefix + "attempt_seq" }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

// createJobScript writes the job hash unless the key already exists.
// ARGV holds field/value pairs. Returns 1 on insert, 0 on collision.
var createJobScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// createAttemptScript writes the attempt hash and indexes it, unless the
// attempt key already exists. KEYS: attempt, attempt index, started index,
// sequence. ARGV: attempt number, "1" if started, then field/value pairs.
var createAttemptScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[1])
if ARGV[2] == '1' then
	local seq = redis.call('INCR', KEYS[4])
	redis.call('ZADD', KEYS[3], seq, ARGV[1])
end
return 1
`)

func flatten(fields map[string]any, prefix ...any) []any {
	args := make([]any, 0, len(prefix)+2*len(fields))
	args = append(args, prefix...)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func (s *Store) CreateJob(ctx context.Context, job *store.Job) error {
	fields := map[string]any{
		"id":         job.ID.String(),
		"uuid":       job.UUID,
		"connection": job.Connection,
		"queue":      job.Queue,
		"status":     string(job.Status),
		"queued_at":  formatTime(job.QueuedAt),
		"created_at": formatTime(job.CreatedAt),
		"updated_at": formatTime(job.UpdatedAt),
	}

	created, err := createJobScript.Run(ctx, s.client, []string{s.jobKey(job.UUID)}, flatten(fields)...).Int()
	if err != nil {
		return fmt.Errorf("jobstats/redis: create job: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("job %s: %w", job.UUID, store.ErrDuplicateJob)
	}
	return nil
}

func (s *Store) GetJobByUUID(ctx context.Context, jobUUID string) (*store.Job, error) {
	fields, err := s.client.HGetAll(ctx, s.jobKey(jobUUID)).Result()
	if err != nil {
		return nil, fmt.Errorf("jobstats/redis: get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, store.ErrJobNotFound
	}
	return jobFromMap(fields)
}

func (s *Store) UpdateJob(ctx context.Context, job *store.Job) error {
	key := s.jobKey(job.UUID)

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("jobstats/redis: update job: %w", err)
	}
	if n == 0 {
		return store.ErrJobNotFound
	}

	return s.client.HSet(ctx, key,
		"connection", job.Connection,
		"queue", job.Queue,
		"status", string(job.Status),
		"updated_at", formatTime(job.UpdatedAt),
	).Err()
}

func (s *Store) CreateAttempt(ctx context.Context, attempt *store.Attempt) error {
	keys := []string{
		s.attemptKey(attempt.JobID, attempt.AttemptNumber),
		s.attemptIndexKey(attempt.JobID),
		s.startedKey(attempt.JobID),
		s.seqKey(),
	}
	started := "0"
	if attempt.Status == store.AttemptStatusStarted {
		started = "1"
	}
	args := flatten(attemptToMap(attempt), attempt.AttemptNumber, started)

	created, err := createAttemptScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("jobstats/redis: create attempt: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("attempt %d: %w", attempt.AttemptNumber, store.ErrDuplicateAttempt)
	}
	return nil
}

func (s *Store) UpdateAttempt(ctx context.Context, attempt *store.Attempt) error {
	key := s.attemptKey(attempt.JobID, attempt.AttemptNumber)

	storedID, err := s.client.HGet(ctx, key, "id").Result()
	if errors.Is(err, goredis.Nil) || (err == nil && storedID != attempt.ID.String()) {
		return store.ErrAttemptNotFound
	}
	if err != nil {
		return fmt.Errorf("jobstats/redis: update attempt: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, attemptToMap(attempt))
	if attempt.Status.IsTerminal() {
		pipe.ZRem(ctx, s.startedKey(attempt.JobID), attempt.AttemptNumber)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobstats/redis: update attempt fields: %w", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, jobID uuid.UUID, number int) (*store.Attempt, error) {
	fields, err := s.client.HGetAll(ctx, s.attemptKey(jobID, number)).Result()
	if err != nil {
		return nil, fmt.Errorf("jobstats/redis: get attempt: %w", err)
	}
	if len(fields) == 0 {
		return nil, store.ErrAttemptNotFound
	}
	return attemptFromMap(fields)
}

func (s *Store) GetLatestStartedAttempt(ctx context.Context, jobID uuid.UUID) (*store.Attempt, error) {
	members, err := s.client.ZRevRange(ctx, s.startedKey(jobID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("jobstats/redis: latest started attempt: %w", err)
	}
	if len(members) == 0 {
		return nil, store.ErrAttemptNotFound
	}

	number, err := strconv.Atoi(members[0])
	if err != nil {
		return nil, fmt.Errorf("jobstats/redis: corrupt started index: %w", err)
	}
	return s.GetAttempt(ctx, jobID, number)
}

func (s *Store) ListAttempts(ctx context.Context, jobID uuid.UUID) ([]store.Attempt, error) {
	members, err := s.client.ZRange(ctx, s.attemptIndexKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("jobstats/redis: list attempts: %w", err)
	}

	attempts := make([]store.Attempt, 0, len(members))
	for _, m := range members {
		number, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("jobstats/redis: corrupt attempt index: %w", err)
		}
		a, err := s.GetAttempt(ctx, jobID, number)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, nil
}
