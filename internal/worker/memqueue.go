package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"jobstats/internal/store"

	"github.com/google/uuid"
)

var _ store.Queue = (*MemoryQueue)(nil)

// ErrItemNotFound is returned for operations on an unknown queue item.
var ErrItemNotFound = errors.New("worker: queue item not found")

type memItem struct {
	item         store.QueueItem
	reserved     bool
	visibleAfter time.Time
	seq          uint64
}

// BuriedItem is an item that exhausted its attempts.
type BuriedItem struct {
	Item  store.QueueItem
	Error string
}

// MemoryQueue is an in-process store.Queue. Items are handed out in push
// order and stay reserved until deleted, released or buried.
type MemoryQueue struct {
	mu     sync.Mutex
	items  map[uuid.UUID]*memItem
	seq    uint64
	buried []BuriedItem
	now    func() time.Time
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(map[uuid.UUID]*memItem), now: time.Now}
}

func (q *MemoryQueue) Push(_ context.Context, item store.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	q.seq++
	q.items[item.ID] = &memItem{item: item, seq: q.seq}
	return nil
}

func (q *MemoryQueue) DequeueBatch(_ context.Context, limit int) ([]store.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var ready []*memItem
	for _, it := range q.items {
		if !it.reserved && !it.visibleAfter.After(now) {
			ready = append(ready, it)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].seq < ready[j].seq })
	if len(ready) > limit {
		ready = ready[:limit]
	}

	var out []store.QueueItem
	for _, it := range ready {
		it.reserved = true
		it.item.Attempts++
		out = append(out, it.item)
	}
	return out, nil
}

func (q *MemoryQueue) Delete(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(q.items, id)
	return nil
}

func (q *MemoryQueue) Release(_ context.Context, id uuid.UUID, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return ErrItemNotFound
	}
	it.reserved = false
	it.visibleAfter = q.now().Add(delay)
	return nil
}

func (q *MemoryQueue) Bury(_ context.Context, id uuid.UUID, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return ErrItemNotFound
	}
	delete(q.items, id)
	q.buried = append(q.buried, BuriedItem{Item: it.item, Error: errMsg})
	return nil
}

func (q *MemoryQueue) Count(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// Buried returns a copy of the items that exhausted their attempts.
func (q *MemoryQueue) Buried() []BuriedItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]BuriedItem(nil), q.buried...)
}
