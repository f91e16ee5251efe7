package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/common"
	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// Runtime owns one durable queue and worker pool per pipeline stage, all on
// the shared Badger instance.
type Runtime struct {
	queues map[models.JobType]*BadgerQueue
	pools  map[models.JobType]*WorkerPool
	config *common.QueueConfig
	logger arbor.ILogger

	pruneStop chan struct{}
	pruneOnce sync.Once
	started   bool
	mu        sync.Mutex
}

var _ interfaces.QueueRuntime = (*Runtime)(nil)

// NewRuntime builds the three stage queues with their configured
// concurrency.
func NewRuntime(db *badger.DB, config *common.QueueConfig, logger arbor.ILogger) (*Runtime, error) {
	concurrency := map[models.JobType]int{
		models.JobTypeIngestion:          config.Concurrency.Ingestion,
		models.JobTypeRiskAssessment:     config.Concurrency.RiskAssessment,
		models.JobTypeCompetitorAnalysis: config.Concurrency.CompetitorAnalysis,
	}

	r := &Runtime{
		queues:    make(map[models.JobType]*BadgerQueue),
		pools:     make(map[models.JobType]*WorkerPool),
		config:    config,
		logger:    logger,
		pruneStop: make(chan struct{}),
	}

	opts := Options{
		VisibilityTimeout: config.VisibilityTimeout,
		MaxAttempts:       config.MaxAttempts,
		Backoff:           config.Backoff,
	}
	for jobType, workers := range concurrency {
		q, err := NewBadgerQueue(db, string(jobType), opts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s queue: %w", jobType, err)
		}
		r.queues[jobType] = q
		r.pools[jobType] = NewWorkerPool(q, workers, config.PollInterval, logger)
	}
	return r, nil
}

// Queue returns the stage queue for a job type, or nil for an unknown type.
func (r *Runtime) Queue(jobType models.JobType) interfaces.StageQueue {
	q, ok := r.queues[jobType]
	if !ok {
		return nil
	}
	return q
}

// RegisterHandler registers the handler on the matching stage's pool.
func (r *Runtime) RegisterHandler(jobType models.JobType, handler interfaces.JobHandler) {
	if pool, ok := r.pools[jobType]; ok {
		pool.RegisterHandler(jobType, handler)
	}
}

// OnExhausted registers the attempts-exhausted callback on every pool.
func (r *Runtime) OnExhausted(cb FailureCallback) {
	for _, pool := range r.pools {
		pool.OnExhausted(cb)
	}
}

// Start launches every worker pool and the prune loop.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	for jobType, pool := range r.pools {
		if err := pool.Start(); err != nil {
			return fmt.Errorf("failed to start %s workers: %w", jobType, err)
		}
	}
	if r.config.PruneInterval > 0 {
		go r.pruneLoop()
	}

	r.started = true
	r.logger.Info().Int("queues", len(r.queues)).Msg("Queue runtime started")
	return nil
}

// Shutdown stops the pools and waits for in-flight handlers, bounded by ctx.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}

	r.pruneOnce.Do(func() { close(r.pruneStop) })

	var firstErr error
	for _, pool := range r.pools {
		if err := pool.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.started = false
	r.logger.Info().Msg("Queue runtime stopped")
	return firstErr
}

func (r *Runtime) pruneLoop() {
	ticker := time.NewTicker(r.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.pruneStop:
			return
		case <-ticker.C:
			for jobType, q := range r.queues {
				pruned, err := q.Prune(context.Background(), r.config.RetainCompleted, r.config.RetainAge)
				if err != nil {
					r.logger.Warn().Err(err).Str("queue", string(jobType)).Msg("Queue prune failed")
					continue
				}
				if pruned > 0 {
					r.logger.Debug().Str("queue", string(jobType)).Int("pruned", pruned).Msg("Pruned finished queue entries")
				}
			}
		}
	}
}
