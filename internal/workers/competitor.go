package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// CompetitorWorker runs one competitor-analysis job and persists the
// startup's single competitor aggregate.
type CompetitorWorker struct {
	storage  interfaces.StorageManager
	analyzer interfaces.CompetitorAnalyzer
	logger   arbor.ILogger
}

// NewCompetitorWorker creates the competitor-analysis stage handler.
func NewCompetitorWorker(storage interfaces.StorageManager, analyzer interfaces.CompetitorAnalyzer, logger arbor.ILogger) *CompetitorWorker {
	return &CompetitorWorker{storage: storage, analyzer: analyzer, logger: logger}
}

// Handle processes one competitor-analysis queue message.
func (w *CompetitorWorker) Handle(ctx context.Context, msg *models.QueueMessage) error {
	job, err := w.storage.JobStorage().GetJob(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("load competitor job %s: %w", msg.JobID, err)
	}
	payload, err := job.DecodeCompetitorPayload()
	if err != nil {
		return err
	}

	markJobStarted(ctx, w.storage, job, w.logger)

	result, err := w.analyzer.AnalyzeCompetitors(ctx, &payload.Startup)
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("competitor analysis: %w", err))
	}
	if err := w.storage.FindingStorage().SaveCompetitorAnalysis(ctx, payload.StartupID, result); err != nil {
		return w.fail(ctx, job, fmt.Errorf("persist competitor analysis: %w", err))
	}

	now := time.Now().UTC()
	job.Status = models.StatusCompleted
	job.CompletedAt = &now
	if err := job.SetResult(result); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to serialize competitor result")
	}
	if err := w.storage.JobStorage().UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("finalize competitor job %s: %w", job.ID, err)
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("startup_id", payload.StartupID).
		Int("competitors", len(result.Competitors)).
		Msg("Competitor analysis completed")

	finalizeStartup(ctx, w.storage, payload.StartupID, w.logger)
	return nil
}

func (w *CompetitorWorker) fail(ctx context.Context, job *models.Job, err error) error {
	w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Competitor-analysis attempt failed")
	job.Logs = err.Error()
	if upErr := w.storage.JobStorage().UpdateJob(ctx, job); upErr != nil {
		w.logger.Warn().Err(upErr).Str("job_id", job.ID).Msg("Failed to record job error")
	}
	return err
}
