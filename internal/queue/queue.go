package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// entry is the internal record stored per queue entry. The job ID is the key,
// so a database job maps to at most one entry per queue. Finished entries are
// retained as snapshots until pruned.
type entry struct {
	Message      models.QueueMessage   `json:"message"`
	State        interfaces.QueueState `json:"state"`
	Priority     int                   `json:"priority"`
	EnqueuedAt   time.Time             `json:"enqueued_at"`
	VisibleAt    time.Time             `json:"visible_at"`
	ReceiveCount int                   `json:"receive_count"`
	MaxAttempts  int                   `json:"max_attempts"`
	Backoff      time.Duration         `json:"backoff"`
	FinishedAt   *time.Time            `json:"finished_at,omitempty"`
	LastError    string                `json:"last_error,omitempty"`
}

// Options carries the per-queue defaults applied when a submission leaves
// them zero.
type Options struct {
	VisibilityTimeout time.Duration
	MaxAttempts       int
	Backoff           time.Duration
}

// BadgerQueue implements a persistent stage queue on a shared Badger instance.
// Ready entries are found through a visibility index whose keys sort by
// (visible-at, priority), so a prefix scan yields the next due entry without
// touching the rest.
type BadgerQueue struct {
	db     *badger.DB
	name   string
	opts   Options
	logger arbor.ILogger
}

var _ interfaces.StageQueue = (*BadgerQueue)(nil)

// NewBadgerQueue creates a stage queue named after its job type.
func NewBadgerQueue(db *badger.DB, name string, opts Options, logger arbor.ILogger) (*BadgerQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if name == "" {
		return nil, errors.New("queue name is required")
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 5 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	return &BadgerQueue{db: db, name: name, opts: opts, logger: logger}, nil
}

// Submit enqueues a message keyed by its job ID. A second submission for the
// same job fails with models.ErrDuplicateJob, finished or not: a job row gets
// exactly one queue lifetime.
func (q *BadgerQueue) Submit(ctx context.Context, msg models.QueueMessage, opts interfaces.SubmitOptions) error {
	if msg.JobID == "" {
		return errors.New("queue message requires a job id")
	}

	now := time.Now()
	e := entry{
		Message:      msg,
		State:        interfaces.QueueStateWaiting,
		Priority:     opts.Priority,
		EnqueuedAt:   now,
		VisibleAt:    now.Add(opts.Delay),
		ReceiveCount: 0,
		MaxAttempts:  q.opts.MaxAttempts,
		Backoff:      q.opts.Backoff,
	}
	if opts.MaxAttempts > 0 {
		e.MaxAttempts = opts.MaxAttempts
	}
	if opts.Backoff > 0 {
		e.Backoff = opts.Backoff
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		key := q.entryKey(msg.JobID)
		if _, err := txn.Get(key); err == nil {
			return models.ErrDuplicateJob
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(q.indexKey(e.VisibleAt, e.Priority, msg.JobID), []byte{})
	})
	if err != nil {
		return err
	}

	q.logger.Debug().
		Str("queue", q.name).
		Str("job_id", msg.JobID).
		Msg("Message enqueued")
	return nil
}

// Receive claims the next visible entry. Returns models.ErrNoMessage when
// nothing is due. The claimed entry becomes invisible for the queue's
// visibility timeout; the worker must settle it with Complete or Fail.
func (q *BadgerQueue) Receive(ctx context.Context) (*models.QueueMessage, error) {
	var claimed entry

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", q.name))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			indexKey := it.Item().KeyCopy(nil)
			ts, _, jobID, err := q.parseIndexKey(indexKey)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// Index keys sort by timestamp; nothing later is due either.
				break
			}

			item, err := txn.Get(q.entryKey(jobID))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index key, clean it up and keep scanning.
					if derr := txn.Delete(indexKey); derr != nil {
						return derr
					}
					continue
				}
				return err
			}

			var e entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			if e.FinishedAt != nil {
				// Stale index pointing at a retained snapshot.
				if derr := txn.Delete(indexKey); derr != nil {
					return derr
				}
				continue
			}

			e.ReceiveCount++
			e.State = interfaces.QueueStateActive
			e.VisibleAt = now.Add(q.opts.VisibilityTimeout)

			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := txn.Set(q.entryKey(jobID), data); err != nil {
				return err
			}
			if err := txn.Delete(indexKey); err != nil {
				return err
			}
			if err := txn.Set(q.indexKey(e.VisibleAt, e.Priority, jobID), []byte{}); err != nil {
				return err
			}

			claimed = e
			return nil
		}
		return models.ErrNoMessage
	})
	if err != nil {
		return nil, err
	}

	msg := claimed.Message
	return &msg, nil
}

// Complete settles a claimed entry as succeeded. The entry stays behind as a
// completed snapshot for status polling until pruned.
func (q *BadgerQueue) Complete(ctx context.Context, jobID string) error {
	return q.settle(jobID, interfaces.QueueStateCompleted, "")
}

// maxBackoffDelay caps the exponential reschedule delay. Doubling a
// duration past this point risks overflowing int64, which would read as an
// immediate redelivery.
const maxBackoffDelay = time.Hour

// backoffDelay is base * 2^(receiveCount-1), capped at maxBackoffDelay.
func backoffDelay(base time.Duration, receiveCount int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < receiveCount; i++ {
		delay *= 2
		if delay <= 0 || delay >= maxBackoffDelay {
			return maxBackoffDelay
		}
	}
	if delay > maxBackoffDelay {
		return maxBackoffDelay
	}
	return delay
}

// Fail records a handler failure. While attempts remain the entry is
// rescheduled with exponential backoff (base * 2^(n-1) after the nth
// attempt); once they are exhausted it is settled as failed and exhausted
// reports true.
func (q *BadgerQueue) Fail(ctx context.Context, jobID string, cause error) (exhausted bool, err error) {
	err = q.db.Update(func(txn *badger.Txn) error {
		e, err := q.getEntry(txn, jobID)
		if err != nil {
			return err
		}
		if e.FinishedAt != nil {
			return nil
		}

		if cause != nil {
			e.LastError = cause.Error()
		}
		oldIndex := q.indexKey(e.VisibleAt, e.Priority, jobID)

		if e.ReceiveCount >= e.MaxAttempts {
			exhausted = true
			now := time.Now()
			e.State = interfaces.QueueStateFailed
			e.FinishedAt = &now
			if err := txn.Delete(oldIndex); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			return q.putEntry(txn, jobID, e)
		}

		delay := backoffDelay(e.Backoff, e.ReceiveCount)
		e.State = interfaces.QueueStateWaiting
		e.VisibleAt = time.Now().Add(delay)
		if err := txn.Delete(oldIndex); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(q.indexKey(e.VisibleAt, e.Priority, jobID), []byte{}); err != nil {
			return err
		}
		return q.putEntry(txn, jobID, e)
	})
	return exhausted, err
}

// GetStatus returns the entry snapshot, or nil when the queue has never seen
// the job or its snapshot has been pruned.
func (q *BadgerQueue) GetStatus(ctx context.Context, jobID string) (*interfaces.QueueSnapshot, error) {
	var snap *interfaces.QueueSnapshot
	err := q.db.View(func(txn *badger.Txn) error {
		e, err := q.getEntry(txn, jobID)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		snap = &interfaces.QueueSnapshot{
			JobID:        jobID,
			State:        e.State,
			ReceiveCount: e.ReceiveCount,
			MaxAttempts:  e.MaxAttempts,
			EnqueuedAt:   e.EnqueuedAt,
			FinishedAt:   e.FinishedAt,
			LastError:    e.LastError,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Remove drops the entry and its index key; reports whether one existed.
func (q *BadgerQueue) Remove(ctx context.Context, jobID string) (bool, error) {
	existed := false
	err := q.db.Update(func(txn *badger.Txn) error {
		e, err := q.getEntry(txn, jobID)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		existed = true
		if err := txn.Delete(q.indexKey(e.VisibleAt, e.Priority, jobID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Delete(q.entryKey(jobID))
	})
	return existed, err
}

// Prune drops finished snapshots beyond the retention window: at most
// retainCompleted of the most recent per queue, none older than retainAge.
func (q *BadgerQueue) Prune(ctx context.Context, retainCompleted int, retainAge time.Duration) (int, error) {
	type finished struct {
		jobID string
		at    time.Time
	}
	var done []finished

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(fmt.Sprintf("queue:%s:entry:", q.name))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				continue
			}
			if e.FinishedAt != nil {
				done = append(done, finished{jobID: e.Message.JobID, at: *e.FinishedAt})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Slice(done, func(i, j int) bool { return done[i].at.After(done[j].at) })

	cutoff := time.Now().Add(-retainAge)
	var victims []string
	for i, f := range done {
		if i >= retainCompleted || f.at.Before(cutoff) {
			victims = append(victims, f.jobID)
		}
	}

	pruned := 0
	for _, jobID := range victims {
		existed, err := q.Remove(ctx, jobID)
		if err != nil {
			return pruned, err
		}
		if existed {
			pruned++
		}
	}
	return pruned, nil
}

// Name returns the queue name.
func (q *BadgerQueue) Name() string { return q.name }

func (q *BadgerQueue) getEntry(txn *badger.Txn, jobID string) (*entry, error) {
	item, err := txn.Get(q.entryKey(jobID))
	if err != nil {
		return nil, err
	}
	var e entry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	}); err != nil {
		return nil, err
	}
	return &e, nil
}

func (q *BadgerQueue) putEntry(txn *badger.Txn, jobID string, e *entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return txn.Set(q.entryKey(jobID), data)
}

func (q *BadgerQueue) settle(jobID string, state interfaces.QueueState, lastError string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		e, err := q.getEntry(txn, jobID)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		if e.FinishedAt != nil {
			return nil
		}
		now := time.Now()
		e.State = state
		e.FinishedAt = &now
		if lastError != "" {
			e.LastError = lastError
		}
		if err := txn.Delete(q.indexKey(e.VisibleAt, e.Priority, jobID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return q.putEntry(txn, jobID, e)
	})
}

func (q *BadgerQueue) entryKey(jobID string) []byte {
	return []byte(fmt.Sprintf("queue:%s:entry:%s", q.name, jobID))
}

// indexKey builds a visibility index key that sorts by due time, then by
// priority (higher first within the same instant). The timestamp is zero
// padded so lexicographic order matches numeric order.
func (q *BadgerQueue) indexKey(visibleAt time.Time, priority int, jobID string) []byte {
	inverted := 999 - priority
	if inverted < 0 {
		inverted = 0
	}
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%03d:%s", q.name, visibleAt.UnixNano(), inverted, jobID))
}

func (q *BadgerQueue) parseIndexKey(key []byte) (time.Time, int, string, error) {
	prefix := fmt.Sprintf("queue:%s:index:", q.name)
	if len(key) <= len(prefix) {
		return time.Time{}, 0, "", fmt.Errorf("invalid index key length")
	}
	suffix := string(key[len(prefix):])
	// Suffix is "{20-digit-ts}:{3-digit-priority}:{jobID}".
	if len(suffix) < 25 {
		return time.Time{}, 0, "", fmt.Errorf("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, 0, "", err
	}
	var inverted int
	if _, err := fmt.Sscanf(suffix[21:24], "%d", &inverted); err != nil {
		return time.Time{}, 0, "", err
	}
	return time.Unix(0, ts), 999 - inverted, suffix[25:], nil
}
