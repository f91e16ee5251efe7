package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// FailureCallback fires once per queue entry, after its attempts have been
// exhausted. Workers use it to mark the database job failed.
type FailureCallback func(ctx context.Context, msg *models.QueueMessage, cause error)

// WorkerPool polls one stage queue with a fixed number of workers.
type WorkerPool struct {
	queue        *BadgerQueue
	handlers     map[models.JobType]interfaces.JobHandler
	onExhausted  FailureCallback
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewWorkerPool creates a pool for the given queue.
func NewWorkerPool(queue *BadgerQueue, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:        queue,
		handlers:     make(map[models.JobType]interfaces.JobHandler),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers the handler for a job type.
func (wp *WorkerPool) RegisterHandler(jobType models.JobType, handler interfaces.JobHandler) {
	wp.mu.Lock()
	wp.handlers[jobType] = handler
	wp.mu.Unlock()
	wp.logger.Debug().
		Str("queue", wp.queue.Name()).
		Str("job_type", string(jobType)).
		Msg("Job handler registered")
}

// OnExhausted registers the callback fired when an entry runs out of
// attempts.
func (wp *WorkerPool) OnExhausted(cb FailureCallback) {
	wp.mu.Lock()
	wp.onExhausted = cb
	wp.mu.Unlock()
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Str("queue", wp.queue.Name()).
		Int("concurrency", wp.concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	return nil
}

// Stop cancels the workers and waits for in-flight handlers to return, or
// for the context to expire.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.logger.Info().Str("queue", wp.queue.Name()).Msg("Stopping worker pool")
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool %s did not drain: %w", wp.queue.Name(), ctx.Err())
	}
}

func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger worker starts across the poll interval to reduce lock
	// contention on the shared database.
	stagger := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if stagger > 0 {
		select {
		case <-wp.ctx.Done():
			return
		case <-time.After(stagger):
		}
	}

	wp.logger.Debug().
		Str("queue", wp.queue.Name()).
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Str("queue", wp.queue.Name()).
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return
		case <-ticker.C:
			// Drain until empty so a burst of jobs does not wait a full
			// poll interval apiece.
			for {
				err := wp.processOne(workerID)
				if err == nil {
					continue
				}
				if !errors.Is(err, models.ErrNoMessage) {
					wp.logger.Warn().
						Err(err).
						Str("queue", wp.queue.Name()).
						Int("worker_id", workerID).
						Msg("Error processing message")
				}
				break
			}
		}
	}
}

func (wp *WorkerPool) processOne(workerID int) error {
	msg, err := wp.queue.Receive(wp.ctx)
	if err != nil {
		return err
	}

	wp.mu.RLock()
	handler, exists := wp.handlers[msg.Type]
	onExhausted := wp.onExhausted
	wp.mu.RUnlock()

	if !exists {
		wp.logger.Error().
			Str("queue", wp.queue.Name()).
			Str("job_id", msg.JobID).
			Str("type", string(msg.Type)).
			Msg("No handler registered for job type")
		// Unroutable entries never become routable on retry.
		if _, rerr := wp.queue.Remove(wp.ctx, msg.JobID); rerr != nil {
			wp.logger.Warn().Err(rerr).Str("job_id", msg.JobID).Msg("Failed to remove unroutable message")
		}
		return fmt.Errorf("no handler for job type: %s", msg.Type)
	}

	start := time.Now()
	handlerErr := handler(wp.ctx, msg)
	duration := time.Since(start)

	if handlerErr != nil {
		exhausted, failErr := wp.queue.Fail(wp.ctx, msg.JobID, handlerErr)
		if failErr != nil {
			wp.logger.Warn().
				Err(failErr).
				Str("job_id", msg.JobID).
				Msg("Failed to record handler failure")
			return failErr
		}

		wp.logger.Error().
			Err(handlerErr).
			Str("queue", wp.queue.Name()).
			Str("job_id", msg.JobID).
			Str("type", string(msg.Type)).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Bool("exhausted", exhausted).
			Msg("Job handler failed")

		if exhausted && onExhausted != nil {
			onExhausted(wp.ctx, msg, handlerErr)
		}
		return handlerErr
	}

	if err := wp.queue.Complete(wp.ctx, msg.JobID); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("job_id", msg.JobID).
			Msg("Failed to settle completed message")
		return err
	}

	wp.logger.Info().
		Str("queue", wp.queue.Name()).
		Str("job_id", msg.JobID).
		Str("type", string(msg.Type)).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Job completed")
	return nil
}
