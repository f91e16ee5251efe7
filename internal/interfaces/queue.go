package interfaces

import (
	"context"
	"time"

	"github.com/perlustro/perlustro/internal/models"
)

// SubmitOptions tunes a single queue submission. Zero values fall back to
// the queue's defaults (3 attempts, 2s exponential backoff).
type SubmitOptions struct {
	Priority    int           // higher is served first within the same visibility window
	Delay       time.Duration // initial visibility delay
	MaxAttempts int
	Backoff     time.Duration // base delay; attempt n waits base * 2^(n-1)
}

// QueueState is the queue-side view of an entry. Informational only - the
// database Job row is authoritative for business logic.
type QueueState string

const (
	QueueStateWaiting   QueueState = "waiting"
	QueueStateActive    QueueState = "active"
	QueueStateCompleted QueueState = "completed"
	QueueStateFailed    QueueState = "failed"
)

// QueueSnapshot is a best-effort view of one queue entry.
type QueueSnapshot struct {
	JobID        string     `json:"job_id"`
	State        QueueState `json:"state"`
	ReceiveCount int        `json:"receive_count"`
	MaxAttempts  int        `json:"max_attempts"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// StageQueue is one durable stage queue. The message's JobID doubles as the
// queue entry key, so a given database job maps to at most one entry.
type StageQueue interface {
	// Submit enqueues a message; a second submit for the same job ID fails
	// with models.ErrDuplicateJob.
	Submit(ctx context.Context, msg models.QueueMessage, opts SubmitOptions) error
	// GetStatus returns the entry snapshot, or nil when the queue has no
	// record of the job.
	GetStatus(ctx context.Context, jobID string) (*QueueSnapshot, error)
	// Remove drops the entry; reports whether one existed.
	Remove(ctx context.Context, jobID string) (bool, error)
}

// QueueRuntime owns the three stage queues and their worker pools, with
// explicit startup and shutdown instead of process-global registries.
type QueueRuntime interface {
	Queue(jobType models.JobType) StageQueue
	RegisterHandler(jobType models.JobType, handler JobHandler)
	Start() error
	Shutdown(ctx context.Context) error
}

// JobHandler processes one queue message. Returning an error requeues the
// message until its attempts are exhausted, after which the failure callback
// registered with the pool fires.
type JobHandler func(ctx context.Context, msg *models.QueueMessage) error
