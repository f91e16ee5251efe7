package models

// JobStatus tracks the lifecycle of jobs and data sources. Both move through
// the same forward-only state machine:
//
//	not_started -> pending -> in_progress -> completed | failed
type JobStatus string

const (
	StatusNotStarted JobStatus = "not_started"
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

var statusRank = map[JobStatus]int{
	StatusNotStarted: 0,
	StatusPending:    1,
	StatusInProgress: 2,
	StatusCompleted:  3,
	StatusFailed:     3,
}

// IsValid reports whether s is a known status value.
func (s JobStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether s is a final state.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. Terminal states accept no further transitions, and a status
// never moves backwards.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return statusRank[next] > statusRank[s]
}
