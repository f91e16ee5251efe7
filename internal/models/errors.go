package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across storage, queue, and orchestrator.
var (
	// ErrNotFound is returned when a startup, job, or data source does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoSources is returned by EnqueueIngestion when the startup has no
	// not_started data sources left to claim. Retrying an already-enqueued
	// startup hits this rather than creating a duplicate job.
	ErrNoSources = errors.New("no data sources ready for ingestion")

	// ErrNoMessage is returned when a queue has no visible messages.
	ErrNoMessage = errors.New("no messages in queue")

	// ErrDuplicateJob is returned when a job ID is submitted to a queue that
	// already holds an entry for it.
	ErrDuplicateJob = errors.New("job already enqueued")

	// ErrMissingContent is returned for a text_input source with no content.
	ErrMissingContent = errors.New("no content provided for text input source")

	// ErrUnsupportedSource is returned for source types the extractor cannot
	// process yet (url).
	ErrUnsupportedSource = errors.New("unsupported data source type")
)

// ValidationError rejects bad input shape before any job is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ExtractionError is a per-source failure. It is recorded on the source and
// tallied on the job, but never aborts the sibling sources.
type ExtractionError struct {
	DataSourceID string
	Err          error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for data source %s: %v", e.DataSourceID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EnqueueError is a queue submission failure after the claiming transaction
// committed. The orchestrator compensates by rolling the claim back.
type EnqueueError struct {
	JobID string
	Queue string
	Err   error
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("enqueue to %s failed for job %s: %v", e.Queue, e.JobID, e.Err)
}

func (e *EnqueueError) Unwrap() error { return e.Err }
