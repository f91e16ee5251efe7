package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorkerPoolProcessesMessages(t *testing.T) {
	q := newTestQueue(t, Options{})
	pool := NewWorkerPool(q, 2, 10*time.Millisecond, arbor.NewLogger())

	var processed int32
	pool.RegisterHandler(models.JobTypeIngestion, func(ctx context.Context, msg *models.QueueMessage) error {
		atomic.AddInt32(&processed, 1)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, q.Submit(ctx, testMessage("job-1"), interfaces.SubmitOptions{}))
	require.NoError(t, q.Submit(ctx, testMessage("job-2"), interfaces.SubmitOptions{}))

	require.NoError(t, pool.Start())
	defer pool.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&processed) == 2 })

	for _, id := range []string{"job-1", "job-2"} {
		snap, err := q.GetStatus(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, interfaces.QueueStateCompleted, snap.State)
	}
}

func TestWorkerPoolRetriesUntilExhausted(t *testing.T) {
	q := newTestQueue(t, Options{Backoff: time.Millisecond, MaxAttempts: 3})
	pool := NewWorkerPool(q, 1, 10*time.Millisecond, arbor.NewLogger())

	var attempts int32
	pool.RegisterHandler(models.JobTypeIngestion, func(ctx context.Context, msg *models.QueueMessage) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("handler exploded")
	})

	var mu sync.Mutex
	var failedJobID string
	pool.OnExhausted(func(ctx context.Context, msg *models.QueueMessage, cause error) {
		mu.Lock()
		failedJobID = msg.JobID
		mu.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, q.Submit(ctx, testMessage("doomed"), interfaces.SubmitOptions{}))

	require.NoError(t, pool.Start())
	defer pool.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failedJobID == "doomed"
	})
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	snap, err := q.GetStatus(ctx, "doomed")
	require.NoError(t, err)
	assert.Equal(t, interfaces.QueueStateFailed, snap.State)
	assert.Equal(t, "handler exploded", snap.LastError)
}

func TestWorkerPoolDropsUnroutableMessage(t *testing.T) {
	q := newTestQueue(t, Options{})
	pool := NewWorkerPool(q, 1, 10*time.Millisecond, arbor.NewLogger())
	// no handler registered for ingestion

	ctx := context.Background()
	require.NoError(t, q.Submit(ctx, testMessage("orphan"), interfaces.SubmitOptions{}))

	require.NoError(t, pool.Start())
	defer pool.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		snap, err := q.GetStatus(ctx, "orphan")
		return err == nil && snap == nil
	})
}

func TestWorkerPoolStopWaitsForInflight(t *testing.T) {
	q := newTestQueue(t, Options{})
	pool := NewWorkerPool(q, 1, 10*time.Millisecond, arbor.NewLogger())

	release := make(chan struct{})
	started := make(chan struct{})
	pool.RegisterHandler(models.JobTypeIngestion, func(ctx context.Context, msg *models.QueueMessage) error {
		close(started)
		<-release
		return nil
	})

	ctx := context.Background()
	require.NoError(t, q.Submit(ctx, testMessage("slow"), interfaces.SubmitOptions{}))
	require.NoError(t, pool.Start())

	<-started

	stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Stop(stopCtx)
	assert.Error(t, err)

	close(release)
	require.NoError(t, pool.Stop(context.Background()))
}
