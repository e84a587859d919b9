package llmqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/llmqueue"
)

func openQueue(t *testing.T, maxSize int, ttl time.Duration) *llmqueue.Queue {
	t.Helper()

	path := filepath.Join(t.TempDir(), "llm_queue.db")

	q, err := llmqueue.Open(path, maxSize, ttl)
	require.NoError(t, err)

	t.Cleanup(func() { _ = q.Close() })

	return q
}

func TestQueue_EnqueueAndDrain_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t, 1000, 24*time.Hour)

	_, evicted, err := q.Enqueue(ctx, llmqueue.OperationChat, json.RawMessage(`{"n":1}`), "boom")
	require.NoError(t, err)
	assert.False(t, evicted)

	_, _, err = q.Enqueue(ctx, llmqueue.OperationChat, json.RawMessage(`{"n":2}`), "boom")
	require.NoError(t, err)

	var order []string

	n, err := q.Drain(ctx, func(_ context.Context, _ llmqueue.Operation, params json.RawMessage) error {
		order = append(order, string(params))

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, order)

	remaining, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestQueue_Overflow_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t, 2, 24*time.Hour)

	_, _, err := q.Enqueue(ctx, llmqueue.OperationChat, json.RawMessage(`{"n":1}`), "e")
	require.NoError(t, err)
	_, _, err = q.Enqueue(ctx, llmqueue.OperationChat, json.RawMessage(`{"n":2}`), "e")
	require.NoError(t, err)
	_, evicted, err := q.Enqueue(ctx, llmqueue.OperationChat, json.RawMessage(`{"n":3}`), "e")
	require.NoError(t, err)
	assert.True(t, evicted)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQueue_FailedProcessor_Requeues(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t, 1000, 24*time.Hour)

	_, _, err := q.Enqueue(ctx, llmqueue.OperationGenerate, json.RawMessage(`{}`), "e")
	require.NoError(t, err)

	attempts := 0
	_, err = q.Drain(ctx, func(context.Context, llmqueue.Operation, json.RawMessage) error {
		attempts++

		return errors.New("still failing")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	remaining, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestQueue_TTLExpired_DroppedWithoutProcessing(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t, 1000, -1*time.Second) // already-expired TTL

	_, _, err := q.Enqueue(ctx, llmqueue.OperationEmbed, json.RawMessage(`{}`), "e")
	require.NoError(t, err)

	called := false
	n, err := q.Drain(ctx, func(context.Context, llmqueue.Operation, json.RawMessage) error {
		called = true

		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, called)

	remaining, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}
