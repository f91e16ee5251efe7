package workers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

func markJobStarted(ctx context.Context, storage interfaces.StorageManager, job *models.Job, logger arbor.ILogger) {
	now := time.Now().UTC()
	job.Status = models.StatusInProgress
	job.StartedAt = &now
	if err := storage.JobStorage().UpdateJob(ctx, job); err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to mark job in progress")
	}
}

// finalizeStartup settles the startup's overall status once both downstream
// branches are terminal, per models.SettledStatus. With a branch still
// outstanding the status is left alone.
func finalizeStartup(ctx context.Context, storage interfaces.StorageManager, startupID string, logger arbor.ILogger) {
	jobs, err := storage.JobStorage().ListJobsByStartup(ctx, startupID)
	if err != nil {
		logger.Warn().Err(err).Str("startup_id", startupID).Msg("Failed to list jobs for finalization")
		return
	}

	status, ok := models.SettledStatus(jobs)
	if !ok {
		return
	}
	if err := storage.StartupStorage().UpdateOverallStatus(ctx, startupID, status); err != nil {
		logger.Warn().Err(err).Str("startup_id", startupID).Msg("Failed to settle startup status")
		return
	}
	logger.Info().Str("startup_id", startupID).Str("status", string(status)).Msg("Startup analysis settled")
}
