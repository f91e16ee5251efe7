package models

import "encoding/json"

// QueueMessage is the routing envelope stored in a stage queue.
// Keep it simple - just enough to route the job; the database Job row is
// authoritative for everything else.
type QueueMessage struct {
	JobID   string          `json:"job_id"` // references Job.ID; also the queue entry key
	Type    JobType         `json:"type"`
	Payload json.RawMessage `json:"payload"` // passed through to the worker
}
