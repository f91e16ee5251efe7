package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/perlustro/perlustro/internal/models"
)

func job(jobType models.JobType, status models.JobStatus, createdOffset time.Duration) *models.Job {
	return &models.Job{
		ID:        string(jobType) + "-" + string(status),
		StartupID: "startup-1",
		Type:      jobType,
		Status:    status,
		CreatedAt: time.Now().UTC().Add(createdOffset),
	}
}

func TestComputeNoJobs(t *testing.T) {
	view := Compute("startup-1", nil)
	assert.Equal(t, models.StatusNotStarted, view.OverallStatus)
	assert.Zero(t, view.OverallProgressPercent)
	assert.Equal(t, stepInitializing, view.CurrentStep)
	assert.Nil(t, view.Stages.Ingestion)
}

func TestComputeIngestionRunning(t *testing.T) {
	view := Compute("startup-1", []*models.Job{job(models.JobTypeIngestion, models.StatusInProgress, 0)})
	assert.Equal(t, models.StatusInProgress, view.OverallStatus)
	assert.Equal(t, 25, view.OverallProgressPercent)
	assert.Equal(t, stepProcessing, view.CurrentStep)

	pending := Compute("startup-1", []*models.Job{job(models.JobTypeIngestion, models.StatusPending, 0)})
	assert.Equal(t, models.StatusPending, pending.OverallStatus)
	assert.Zero(t, pending.OverallProgressPercent)
}

func TestComputeIngestionDoneDownstreamMissing(t *testing.T) {
	// the fan-out window: ingestion is done but the downstream jobs have
	// not appeared yet; the view must not claim completion
	view := Compute("startup-1", []*models.Job{job(models.JobTypeIngestion, models.StatusCompleted, 0)})
	assert.Equal(t, models.StatusInProgress, view.OverallStatus)
	assert.Equal(t, 50, view.OverallProgressPercent)
	assert.Equal(t, stepFanOutStarting, view.CurrentStep)
}

func TestComputeDownstreamRunning(t *testing.T) {
	jobs := []*models.Job{
		job(models.JobTypeIngestion, models.StatusCompleted, 0),
		job(models.JobTypeRiskAssessment, models.StatusInProgress, time.Minute),
		job(models.JobTypeCompetitorAnalysis, models.StatusPending, time.Minute),
	}
	view := Compute("startup-1", jobs)
	assert.Equal(t, models.StatusInProgress, view.OverallStatus)
	assert.Equal(t, 50, view.OverallProgressPercent)
	assert.Equal(t, stepRiskRunning, view.CurrentStep)
}

func TestComputeRiskDoneCompetitorRunning(t *testing.T) {
	jobs := []*models.Job{
		job(models.JobTypeIngestion, models.StatusCompleted, 0),
		job(models.JobTypeRiskAssessment, models.StatusCompleted, time.Minute),
		job(models.JobTypeCompetitorAnalysis, models.StatusInProgress, time.Minute),
	}
	view := Compute("startup-1", jobs)
	assert.Equal(t, models.StatusInProgress, view.OverallStatus)
	assert.Equal(t, 75, view.OverallProgressPercent)
	assert.Equal(t, stepCompetitors, view.CurrentStep)
}

func TestComputeAllCompleted(t *testing.T) {
	jobs := []*models.Job{
		job(models.JobTypeIngestion, models.StatusCompleted, 0),
		job(models.JobTypeRiskAssessment, models.StatusCompleted, time.Minute),
		job(models.JobTypeCompetitorAnalysis, models.StatusCompleted, time.Minute),
	}
	view := Compute("startup-1", jobs)
	assert.Equal(t, models.StatusCompleted, view.OverallStatus)
	assert.Equal(t, 100, view.OverallProgressPercent)
	assert.Equal(t, stepComplete, view.CurrentStep)
}

func TestComputeFailedIngestion(t *testing.T) {
	failed := job(models.JobTypeIngestion, models.StatusFailed, 0)
	failed.Logs = "all sources failed"
	view := Compute("startup-1", []*models.Job{failed})
	assert.Equal(t, models.StatusFailed, view.OverallStatus)
	assert.Equal(t, stepFailed, view.CurrentStep)
	assert.Equal(t, "all sources failed", view.Stages.Ingestion.Error)
}

func TestComputeFailedBranch(t *testing.T) {
	jobs := []*models.Job{
		job(models.JobTypeIngestion, models.StatusCompleted, 0),
		job(models.JobTypeRiskAssessment, models.StatusFailed, time.Minute),
		job(models.JobTypeCompetitorAnalysis, models.StatusCompleted, time.Minute),
	}
	view := Compute("startup-1", jobs)
	assert.Equal(t, models.StatusFailed, view.OverallStatus)
	// the completed competitor branch still counts toward progress
	assert.Equal(t, 75, view.OverallProgressPercent)
}

func TestComputeUsesLatestJobPerStage(t *testing.T) {
	jobs := []*models.Job{
		job(models.JobTypeIngestion, models.StatusFailed, -time.Hour),
		job(models.JobTypeIngestion, models.StatusCompleted, 0),
	}
	view := Compute("startup-1", jobs)
	assert.Equal(t, models.StatusInProgress, view.OverallStatus)
	assert.Equal(t, 50, view.OverallProgressPercent)
}
