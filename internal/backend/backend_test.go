package backend

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"jobstats/internal/config"
	"jobstats/internal/store/memory"
	"jobstats/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOpen_Memory(t *testing.T) {
	cfg := &config.Config{Store: "memory", QueueDriver: "memory"}

	b, err := Open(context.Background(), cfg, discard)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &memory.Store{}, b.Stats)
	assert.IsType(t, &worker.MemoryQueue{}, b.Queue)
	assert.Nil(t, b.Postgres)
}

func TestOpen_UnknownStore(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Store: "mongo", QueueDriver: "memory"}, discard)
	assert.Error(t, err)
}

func TestOpen_UnknownQueueDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Store: "memory", QueueDriver: "sqs"}, discard)
	assert.Error(t, err)
}

func TestOpen_RedisUnreachable(t *testing.T) {
	cfg := &config.Config{Store: "redis", RedisAddr: "127.0.0.1:1", QueueDriver: "memory"}

	_, err := Open(context.Background(), cfg, discard)
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	b, err := Open(context.Background(), &config.Config{Store: "memory", QueueDriver: "memory"}, discard)
	require.NoError(t, err)

	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}
