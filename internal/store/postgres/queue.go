package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jobstats/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// VisibilityTimeout is how long a claimed item stays hidden from other workers.
const VisibilityTimeout = 5 * time.Minute

var _ store.Queue = (*Queue)(nil)

// Queue is the "database" queue driver backed by the job_queue table.
type Queue struct {
	db         *sql.DB
	connection string
	names      []string
}

// Queue returns a database-backed queue for the given connection.
// names optionally restricts DequeueBatch to specific queues.
func (s *Store) Queue(connection string, names ...string) *Queue {
	return &Queue{db: s.db, connection: connection, names: names}
}

// Push adds an item to the job_queue.
func (q *Queue) Push(ctx context.Context, item store.QueueItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Connection == "" {
		item.Connection = q.connection
	}

	query := `
		INSERT INTO job_queue (id, connection, queue, payload, attempts, visible_after, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`

	if _, err := q.db.ExecContext(ctx, query, item.ID, item.Connection, item.Queue, []byte(item.Payload), item.Attempts); err != nil {
		return fmt.Errorf("failed to push queue item %s: %w", item.ID, err)
	}
	return nil
}

// DequeueBatch claims up to 'limit' available items atomically using SELECT ... FOR UPDATE SKIP LOCKED.
// Returns nil slice if no items are available.
func (q *Queue) DequeueBatch(ctx context.Context, limit int) ([]store.QueueItem, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	args := []interface{}{limit}
	whereClause := "WHERE visible_after <= NOW()"

	if len(q.names) > 0 {
		whereClause += " AND queue = ANY($2)"
		args = append(args, pq.Array(q.names))
	}

	selectQuery := fmt.Sprintf(`
		SELECT id, connection, queue, payload, attempts
		FROM job_queue
		%s
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, whereClause)

	rows, err := tx.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("batch dequeue query failed: %w", err)
	}
	defer rows.Close()

	var items []store.QueueItem
	var ids []uuid.UUID

	for rows.Next() {
		var item store.QueueItem
		var payload []byte
		if err := rows.Scan(&item.ID, &item.Connection, &item.Queue, &payload, &item.Attempts); err != nil {
			return nil, fmt.Errorf("batch dequeue scan failed: %w", err)
		}
		item.Payload = payload
		// The claim below increments the stored counter.
		item.Attempts++
		items = append(items, item)
		ids = append(ids, item.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch dequeue rows error: %w", err)
	}

	if len(items) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE job_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'), attempts = attempts + 1
		WHERE id = ANY($2)
	`, VisibilityTimeout.Seconds(), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("batch claim update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return items, nil
}

// Delete removes a successfully processed item.
func (q *Queue) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM job_queue WHERE id = $1", id)
	return err
}

// Release makes the item visible again after delay.
func (q *Queue) Release(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE job_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second')
		WHERE id = $2
	`, delay.Seconds(), id)
	return err
}

// Bury moves an item that exhausted its tries into failed_jobs.
func (q *Queue) Bury(ctx context.Context, id uuid.UUID, errMsg string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO failed_jobs (id, connection, queue, payload, exception, failed_at)
		SELECT id, connection, queue, payload, $2, NOW()
		FROM job_queue
		WHERE id = $1
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record failed job %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM job_queue WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete failed job from queue: %w", err)
	}

	return tx.Commit()
}

// Count tracks count of items in queue
func (q *Queue) Count(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_queue").Scan(&count)
	return count, err
}
