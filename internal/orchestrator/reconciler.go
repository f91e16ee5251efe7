package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/common"
	"github.com/perlustro/perlustro/internal/models"
)

// Reconciler is the fan-out recovery sweep. An ingestion job can complete
// and then lose its downstream jobs to a crash between the terminal
// callback and the branch enqueue; the sweep finds ingestion jobs that have
// been complete for a while with a branch still missing and re-triggers
// just that branch.
type Reconciler struct {
	orchestrator *Orchestrator
	config       *common.ReconcilerConfig
	cron         *cron.Cron
	logger       arbor.ILogger
}

// NewReconciler creates the recovery sweep on the orchestrator's storage
// and queues.
func NewReconciler(orchestrator *Orchestrator, config *common.ReconcilerConfig, logger arbor.ILogger) *Reconciler {
	return &Reconciler{
		orchestrator: orchestrator,
		config:       config,
		cron:         cron.New(),
		logger:       logger,
	}
}

// Start schedules the sweep. A disabled reconciler starts nothing.
func (r *Reconciler) Start() error {
	if !r.config.Enabled {
		r.logger.Info().Msg("Reconciler disabled")
		return nil
	}

	_, err := r.cron.AddFunc(r.config.Schedule, func() {
		r.runSweep()
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Info().Str("schedule", r.config.Schedule).Msg("Reconciler started")
	return nil
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (r *Reconciler) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	r.logger.Info().Msg("Reconciler stopped")
}

// RunNow triggers an immediate sweep, used by tests and manual recovery.
func (r *Reconciler) RunNow(ctx context.Context) error {
	return r.sweep(ctx)
}

func (r *Reconciler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := r.sweep(ctx); err != nil {
		r.logger.Error().Err(err).Msg("Reconciler sweep failed")
	}
}

// sweep walks every non-terminal startup looking for a completed ingestion
// job older than StaleAfter whose risk or competitor branch never appeared,
// and re-enqueues the missing branch.
func (r *Reconciler) sweep(ctx context.Context) error {
	startups, err := r.orchestrator.storage.StartupStorage().ListStartups(ctx)
	if err != nil {
		return err
	}

	for _, startup := range startups {
		if startup.OverallStatus.IsTerminal() {
			continue
		}
		if err := r.reconcileStartup(ctx, startup); err != nil {
			r.logger.Warn().Err(err).Str("startup_id", startup.ID).Msg("Reconcile failed for startup")
		}
	}
	return nil
}

func (r *Reconciler) reconcileStartup(ctx context.Context, startup *models.Startup) error {
	jobs, err := r.orchestrator.storage.JobStorage().ListJobsByStartup(ctx, startup.ID)
	if err != nil {
		return err
	}

	ingestion := staleCompletedIngestion(jobs, r.config.StaleAfter)
	if ingestion == nil {
		return nil
	}

	var result models.IngestionResult
	if err := json.Unmarshal(ingestion.Result, &result); err != nil || !result.HasSuccess() {
		// A completed ingestion without a readable successful result is not
		// a fan-out candidate.
		return nil
	}

	missingRisk := !hasJobOfType(jobs, models.JobTypeRiskAssessment)
	missingCompetitor := !hasJobOfType(jobs, models.JobTypeCompetitorAnalysis)
	if !missingRisk && !missingCompetitor {
		return nil
	}

	data, err := r.orchestrator.LoadAnalysisData(ctx, startup.ID)
	if err != nil {
		return err
	}

	if missingRisk {
		r.logger.Info().Str("startup_id", startup.ID).Msg("Re-triggering missing risk-assessment branch")
		if err := r.orchestrator.EnqueueRisk(ctx, startup.ID, data); err != nil {
			r.logger.Error().Err(err).Str("startup_id", startup.ID).Msg("Risk-assessment re-trigger failed")
		}
	}
	if missingCompetitor {
		r.logger.Info().Str("startup_id", startup.ID).Msg("Re-triggering missing competitor-analysis branch")
		if err := r.orchestrator.EnqueueCompetitor(ctx, startup.ID, data); err != nil {
			r.logger.Error().Err(err).Str("startup_id", startup.ID).Msg("Competitor-analysis re-trigger failed")
		}
	}
	return nil
}

// staleCompletedIngestion returns the most recently completed ingestion job
// older than staleAfter, or nil when there is none.
func staleCompletedIngestion(jobs []*models.Job, staleAfter time.Duration) *models.Job {
	cutoff := time.Now().UTC().Add(-staleAfter)
	var newest *models.Job
	for _, job := range jobs {
		if job.Type != models.JobTypeIngestion || job.Status != models.StatusCompleted || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.After(cutoff) {
			continue
		}
		if newest == nil || job.CompletedAt.After(*newest.CompletedAt) {
			newest = job
		}
	}
	return newest
}

func hasJobOfType(jobs []*models.Job, jobType models.JobType) bool {
	for _, job := range jobs {
		if job.Type == jobType {
			return true
		}
	}
	return false
}
