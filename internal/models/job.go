package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType identifies the pipeline stage a job belongs to. Each type has its
// own queue, worker pool, and payload schema.
type JobType string

const (
	JobTypeIngestion          JobType = "ingestion"
	JobTypeRiskAssessment     JobType = "risk_assessment"
	JobTypeCompetitorAnalysis JobType = "competitor_analysis"
)

// Job is the database record for one unit of pipeline work. It is created by
// the orchestrator and mutated only by the worker that owns it. The queue
// entry for a job uses the same ID, so one job row maps to exactly one queue
// entry.
type Job struct {
	ID          string          `json:"id" badgerhold:"key"`
	StartupID   string          `json:"startup_id" badgerhold:"index"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Logs        string          `json:"logs,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// IngestionPayload is the ingestion stage's job input: the sources claimed
// for this job at enqueue time.
type IngestionPayload struct {
	StartupID     string   `json:"startup_id"`
	DataSourceIDs []string `json:"data_source_ids"`
}

// AnalysisData is the normalized view of everything ingestion persisted for
// a startup, handed to the downstream stages as their input.
type AnalysisData struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	WebsiteURL   string          `json:"website_url,omitempty"`
	FinalSummary string          `json:"final_summary,omitempty"`
	KeyMetrics   []KeyMetric     `json:"key_metrics"`
	TeamMembers  []TeamMember    `json:"team_members"`
	MarketInfo   *MarketInfo     `json:"market_info,omitempty"`
	Risks        []RiskIndicator `json:"risks"`
}

// RiskPayload is the risk-assessment stage's job input.
type RiskPayload struct {
	StartupID string       `json:"startup_id"`
	Analysis  AnalysisData `json:"analysis"`
}

// CompetitorPayload is the competitor-analysis stage's job input.
type CompetitorPayload struct {
	StartupID string       `json:"startup_id"`
	Startup   AnalysisData `json:"startup"`
}

// NewJob creates a job in the pending state with the given typed payload.
// The payload type must match the job type; callers pass the corresponding
// *Payload struct and the mismatch is caught at decode time by the worker.
func NewJob(startupID string, jobType JobType, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	return &Job{
		ID:        uuid.New().String(),
		StartupID: startupID,
		Type:      jobType,
		Status:    StatusPending,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// DecodeIngestionPayload decodes the payload of an ingestion job.
func (j *Job) DecodeIngestionPayload() (*IngestionPayload, error) {
	if j.Type != JobTypeIngestion {
		return nil, fmt.Errorf("job %s is %s, not %s", j.ID, j.Type, JobTypeIngestion)
	}
	var p IngestionPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode ingestion payload for job %s: %w", j.ID, err)
	}
	return &p, nil
}

// DecodeRiskPayload decodes the payload of a risk-assessment job.
func (j *Job) DecodeRiskPayload() (*RiskPayload, error) {
	if j.Type != JobTypeRiskAssessment {
		return nil, fmt.Errorf("job %s is %s, not %s", j.ID, j.Type, JobTypeRiskAssessment)
	}
	var p RiskPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode risk payload for job %s: %w", j.ID, err)
	}
	return &p, nil
}

// DecodeCompetitorPayload decodes the payload of a competitor-analysis job.
func (j *Job) DecodeCompetitorPayload() (*CompetitorPayload, error) {
	if j.Type != JobTypeCompetitorAnalysis {
		return nil, fmt.Errorf("job %s is %s, not %s", j.ID, j.Type, JobTypeCompetitorAnalysis)
	}
	var p CompetitorPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode competitor payload for job %s: %w", j.ID, err)
	}
	return &p, nil
}

// LatestJobOfType returns the most recently created job of the given type,
// or nil when none exists.
func LatestJobOfType(jobs []*Job, jobType JobType) *Job {
	var latest *Job
	for _, job := range jobs {
		if job.Type != jobType {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	return latest
}

// SettledStatus resolves the startup status implied by its downstream jobs:
// completed when both branches completed, failed when either failed. ok is
// false while a branch is missing or not yet terminal; the absence of a job
// is ambiguous between "about to be created" and "never will be", so a
// verdict is only reached from two observed terminal states.
func SettledStatus(jobs []*Job) (JobStatus, bool) {
	risk := LatestJobOfType(jobs, JobTypeRiskAssessment)
	competitor := LatestJobOfType(jobs, JobTypeCompetitorAnalysis)
	if risk == nil || competitor == nil || !risk.Status.IsTerminal() || !competitor.Status.IsTerminal() {
		return "", false
	}
	if risk.Status == StatusFailed || competitor.Status == StatusFailed {
		return StatusFailed, true
	}
	return StatusCompleted, true
}

// SetResult serializes a stage result onto the job.
func (j *Job) SetResult(result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal %s result: %w", j.Type, err)
	}
	j.Result = raw
	return nil
}
