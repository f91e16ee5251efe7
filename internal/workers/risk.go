package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// RiskWorker runs one risk-assessment job: the four specialist modules over
// the ingestion findings, persisted as the startup's single risk aggregate.
type RiskWorker struct {
	storage  interfaces.StorageManager
	analyzer interfaces.RiskAnalyzer
	logger   arbor.ILogger
}

// NewRiskWorker creates the risk-assessment stage handler.
func NewRiskWorker(storage interfaces.StorageManager, analyzer interfaces.RiskAnalyzer, logger arbor.ILogger) *RiskWorker {
	return &RiskWorker{storage: storage, analyzer: analyzer, logger: logger}
}

// Handle processes one risk-assessment queue message.
func (w *RiskWorker) Handle(ctx context.Context, msg *models.QueueMessage) error {
	job, err := w.storage.JobStorage().GetJob(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("load risk job %s: %w", msg.JobID, err)
	}
	payload, err := job.DecodeRiskPayload()
	if err != nil {
		return err
	}

	markJobStarted(ctx, w.storage, job, w.logger)

	result, err := w.analyzer.AssessRisk(ctx, &payload.Analysis)
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("risk assessment: %w", err))
	}
	if err := w.storage.FindingStorage().UpsertRiskAssessment(ctx, payload.StartupID, result); err != nil {
		return w.fail(ctx, job, fmt.Errorf("persist risk assessment: %w", err))
	}

	now := time.Now().UTC()
	job.Status = models.StatusCompleted
	job.CompletedAt = &now
	if err := job.SetResult(result); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to serialize risk result")
	}
	if err := w.storage.JobStorage().UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("finalize risk job %s: %w", job.ID, err)
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("startup_id", payload.StartupID).
		Float64("overall_score", result.OverallScore).
		Msg("Risk assessment completed")

	finalizeStartup(ctx, w.storage, payload.StartupID, w.logger)
	return nil
}

// fail leaves the job non-terminal and returns the error so the queue
// retries it; exhaustion is handled by the runtime's failure callback.
func (w *RiskWorker) fail(ctx context.Context, job *models.Job, err error) error {
	w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Risk-assessment attempt failed")
	job.Logs = err.Error()
	if upErr := w.storage.JobStorage().UpdateJob(ctx, job); upErr != nil {
		w.logger.Warn().Err(upErr).Str("job_id", job.ID).Msg("Failed to record job error")
	}
	return err
}
