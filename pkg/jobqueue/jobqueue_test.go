package jobqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/jobqueue"
)

func openStore(t *testing.T) *jobqueue.Store {
	t.Helper()

	store, err := jobqueue.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestGetBatch_SequentialJobIsBarrier(t *testing.T) {
	store := openStore(t)
	ctx := t.Context()

	_, _, err := store.Enqueue(ctx, "seq", []byte(`{}`), false)
	require.NoError(t, err)
	_, _, err = store.Enqueue(ctx, "par", []byte(`{}`), true)
	require.NoError(t, err)

	batch, err := store.GetBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "seq", batch[0].Type)
}

func TestGetBatch_StopsAtSequentialJob(t *testing.T) {
	store := openStore(t)
	ctx := t.Context()

	_, _, err := store.Enqueue(ctx, "p1", []byte(`{}`), true)
	require.NoError(t, err)
	_, _, err = store.Enqueue(ctx, "p2", []byte(`{}`), true)
	require.NoError(t, err)
	_, _, err = store.Enqueue(ctx, "seq", []byte(`{}`), false)
	require.NoError(t, err)
	_, _, err = store.Enqueue(ctx, "p3", []byte(`{}`), true)
	require.NoError(t, err)

	batch, err := store.GetBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "p1", batch[0].Type)
	assert.Equal(t, "p2", batch[1].Type)

	require.NoError(t, store.Ack(ctx, batch[0].ID))
	require.NoError(t, store.Ack(ctx, batch[1].ID))

	batch2, err := store.GetBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch2, 1)
	assert.Equal(t, "seq", batch2[0].Type)
}

func TestGetBatch_RespectsMaxItems(t *testing.T) {
	store := openStore(t)
	ctx := t.Context()

	for range 5 {
		_, _, err := store.Enqueue(ctx, "p", []byte(`{}`), true)
		require.NoError(t, err)
	}

	batch, err := store.GetBatch(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestNackThenMoveToDeadLetter_AfterMaxRetries(t *testing.T) {
	store := openStore(t)
	ctx := t.Context()

	id, _, err := store.Enqueue(ctx, "flaky", []byte(`{}`), false)
	require.NoError(t, err)

	var attempts int

	for range 3 {
		attempts, err = store.Nack(ctx, id)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, attempts)

	job := jobqueue.Job{ID: id, Type: "flaky", Payload: []byte(`{}`)}
	require.NoError(t, store.MoveToDeadLetter(ctx, job, "permanent failure"))

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	dead, err := store.ListDeadLetter(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "permanent failure", dead[0].FinalError)
}

func TestRequeueDeadLetter_ResetsAttempts(t *testing.T) {
	store := openStore(t)
	ctx := t.Context()

	id, _, err := store.Enqueue(ctx, "flaky", []byte(`{"a":1}`), false)
	require.NoError(t, err)

	job := jobqueue.Job{ID: id, Type: "flaky", Payload: []byte(`{"a":1}`)}
	require.NoError(t, store.MoveToDeadLetter(ctx, job, "oops"))

	require.NoError(t, store.RequeueDeadLetter(ctx, id))

	batch, err := store.GetBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 0, batch[0].Attempts)
}

func TestEnqueuer_NeverRejects(t *testing.T) {
	store := openStore(t)
	enq := jobqueue.NewEnqueuer(store, 2, nil)

	for range 5 {
		_, err := enq.Enqueue(t.Context(), "t", []byte(`{}`), true)
		require.NoError(t, err)
	}

	pending, err := store.PendingCount(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 5, pending)
}

func TestWorker_ProcessesStructuredJobAndAcks(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var processed atomic.Int32

	_, _, err := store.Enqueue(ctx, "known", []byte(`{"x":1}`), false)
	require.NoError(t, err)

	w := &jobqueue.Worker{
		Store: store,
		Handlers: map[string]jobqueue.Handler{
			"known": func(_ context.Context, payload json.RawMessage) error {
				processed.Add(1)

				return nil
			},
		},
		PoolSize:    4,
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
	}

	w.Start(ctx)

	require.Eventually(t, func() bool { return processed.Load() == 1 }, time.Second, 5*time.Millisecond)

	w.Stop()

	pending, err := store.PendingCount(t.Context())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestWorker_RetriesThenDeadLetters(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	_, _, err := store.Enqueue(ctx, "always-fails", []byte(`{}`), false)
	require.NoError(t, err)

	w := &jobqueue.Worker{
		Store: store,
		Handlers: map[string]jobqueue.Handler{
			"always-fails": func(_ context.Context, _ json.RawMessage) error {
				return errors.New("boom")
			},
		},
		PoolSize:    4,
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
	}

	w.Start(ctx)

	require.Eventually(t, func() bool {
		dead, err := store.ListDeadLetter(t.Context())

		return err == nil && len(dead) == 1
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
}
