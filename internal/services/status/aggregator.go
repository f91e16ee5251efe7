package status

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// Stage progress boundaries. Ingestion carries the first half of the bar;
// the two downstream branches split the second half.
const (
	progressIngestionStarted = 25
	progressIngestionDone    = 50
	progressPerBranch        = 25
)

// Current-step labels surfaced to the polling client.
const (
	stepInitializing   = "Initializing..."
	stepProcessing     = "Processing uploaded files..."
	stepFanOutStarting = "Data processing complete, risk assessment starting..."
	stepRiskRunning    = "Running risk assessment..."
	stepCompetitors    = "Analyzing competitive landscape..."
	stepComplete       = "Analysis complete!"
	stepFailed         = "Analysis failed"
)

// JobView is the per-job slice of the status response.
type JobView struct {
	JobID       string           `json:"job_id"`
	Type        models.JobType   `json:"type"`
	Status      models.JobStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// StageViews groups the latest job of each pipeline stage.
type StageViews struct {
	Ingestion          *JobView `json:"ingestion,omitempty"`
	RiskAssessment     *JobView `json:"risk_assessment,omitempty"`
	CompetitorAnalysis *JobView `json:"competitor_analysis,omitempty"`
}

// View is the merged pipeline status for one startup, shaped for a client
// polling every few seconds.
type View struct {
	StartupID              string           `json:"startup_id"`
	OverallStatus          models.JobStatus `json:"overall_status"`
	OverallProgressPercent int              `json:"overall_progress_percent"`
	CurrentStep            string           `json:"current_step"`
	Stages                 StageViews       `json:"stages"`
}

// Aggregator is the read side of the pipeline: it merges the job rows of
// one startup into a single progress view. Side-effect free; the write
// side never consults it.
type Aggregator struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewAggregator creates the status read side.
func NewAggregator(storage interfaces.StorageManager, logger arbor.ILogger) *Aggregator {
	return &Aggregator{storage: storage, logger: logger}
}

// Status resolves the merged pipeline view for a startup. Returns
// models.ErrNotFound when the startup does not exist.
func (a *Aggregator) Status(ctx context.Context, startupID string) (*View, error) {
	if _, err := a.storage.StartupStorage().GetStartup(ctx, startupID); err != nil {
		return nil, err
	}
	jobs, err := a.storage.JobStorage().ListJobsByStartup(ctx, startupID)
	if err != nil {
		return nil, err
	}
	return Compute(startupID, jobs), nil
}

// Compute derives the view from a startup's job rows. Pure so the
// aggregation rules are testable without storage.
func Compute(startupID string, jobs []*models.Job) *View {
	ingestion := latestOfType(jobs, models.JobTypeIngestion)
	risk := latestOfType(jobs, models.JobTypeRiskAssessment)
	competitor := latestOfType(jobs, models.JobTypeCompetitorAnalysis)

	view := &View{
		StartupID: startupID,
		Stages: StageViews{
			Ingestion:          jobView(ingestion),
			RiskAssessment:     jobView(risk),
			CompetitorAnalysis: jobView(competitor),
		},
	}
	view.OverallProgressPercent = progress(ingestion, risk, competitor)
	view.OverallStatus = overallStatus(ingestion, risk, competitor)
	view.CurrentStep = currentStep(view.OverallStatus, ingestion, risk, competitor)
	return view
}

// progress maps the stage states onto the 0-100 bar: ingestion owns the
// first half, each downstream branch contributes a quarter on completion.
func progress(ingestion, risk, competitor *models.Job) int {
	if ingestion == nil {
		return 0
	}
	if !ingestion.Status.IsTerminal() {
		if ingestion.Status == models.StatusInProgress {
			return progressIngestionStarted
		}
		return 0
	}

	pct := progressIngestionDone
	if risk != nil && risk.Status == models.StatusCompleted {
		pct += progressPerBranch
	}
	if competitor != nil && competitor.Status == models.StatusCompleted {
		pct += progressPerBranch
	}
	return pct
}

// overallStatus merges the job states. Completion requires every stage job
// to exist and be completed: a missing downstream job is ambiguous between
// "about to be created" and "never will be", so the aggregator keeps
// reporting in_progress until it observes the terminal state itself.
func overallStatus(ingestion, risk, competitor *models.Job) models.JobStatus {
	if ingestion == nil {
		return models.StatusNotStarted
	}
	if ingestion.Status == models.StatusFailed {
		return models.StatusFailed
	}
	if statusOf(risk) == models.StatusFailed || statusOf(competitor) == models.StatusFailed {
		return models.StatusFailed
	}
	if ingestion.Status == models.StatusCompleted &&
		statusOf(risk) == models.StatusCompleted &&
		statusOf(competitor) == models.StatusCompleted {
		return models.StatusCompleted
	}
	if ingestion.Status == models.StatusPending && risk == nil && competitor == nil {
		return models.StatusPending
	}
	return models.StatusInProgress
}

func currentStep(overall models.JobStatus, ingestion, risk, competitor *models.Job) string {
	switch overall {
	case models.StatusNotStarted:
		return stepInitializing
	case models.StatusCompleted:
		return stepComplete
	case models.StatusFailed:
		return stepFailed
	}

	if !ingestion.Status.IsTerminal() {
		return stepProcessing
	}
	if risk == nil && competitor == nil {
		return stepFanOutStarting
	}
	if statusOf(risk) != models.StatusCompleted {
		return stepRiskRunning
	}
	return stepCompetitors
}

func statusOf(job *models.Job) models.JobStatus {
	if job == nil {
		return models.StatusNotStarted
	}
	return job.Status
}

func jobView(job *models.Job) *JobView {
	if job == nil {
		return nil
	}
	return &JobView{
		JobID:       job.ID,
		Type:        job.Type,
		Status:      job.Status,
		Error:       job.Logs,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

func latestOfType(jobs []*models.Job, jobType models.JobType) *models.Job {
	var latest *models.Job
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
