package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// Orchestrator owns every job-creation and job-chaining decision in the
// pipeline. It never executes stage logic itself: workers call back into it
// at terminal points and it decides what runs next.
type Orchestrator struct {
	storage interfaces.StorageManager
	runtime interfaces.QueueRuntime
	logger  arbor.ILogger
}

var _ interfaces.IngestionNotifier = (*Orchestrator)(nil)

// NewOrchestrator creates the pipeline orchestrator.
func NewOrchestrator(storage interfaces.StorageManager, runtime interfaces.QueueRuntime, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		storage: storage,
		runtime: runtime,
		logger:  logger,
	}
}

// EnqueueIngestion claims every not_started data source of the startup into
// a fresh ingestion job and submits it. The claim is transactional; a queue
// submission failure afterwards is compensated by releasing the claim, so a
// job row never exists without a matching queue entry.
//
// Returns models.ErrNoSources when the startup has nothing left to claim.
func (o *Orchestrator) EnqueueIngestion(ctx context.Context, startupID string) (*models.Job, error) {
	job, sources, err := o.storage.ClaimStorage().ClaimDataSources(ctx, startupID)
	if err != nil {
		return nil, err
	}

	sourceIDs := make([]string, len(sources))
	for i, s := range sources {
		sourceIDs[i] = s.ID
	}

	msg := models.QueueMessage{JobID: job.ID, Type: models.JobTypeIngestion, Payload: job.Payload}
	if err := o.runtime.Queue(models.JobTypeIngestion).Submit(ctx, msg, interfaces.SubmitOptions{}); err != nil {
		if relErr := o.storage.ClaimStorage().ReleaseClaim(ctx, job.ID, sourceIDs); relErr != nil {
			o.logger.Error().Err(relErr).Str("job_id", job.ID).Msg("Failed to release claim after enqueue failure")
		}
		return nil, &models.EnqueueError{JobID: job.ID, Queue: string(models.JobTypeIngestion), Err: err}
	}

	if err := o.storage.StartupStorage().UpdateOverallStatus(ctx, startupID, models.StatusPending); err != nil {
		o.logger.Warn().Err(err).Str("startup_id", startupID).Msg("Failed to mark startup pending")
	}

	o.logger.Info().
		Str("startup_id", startupID).
		Str("job_id", job.ID).
		Int("sources", len(sources)).
		Msg("Ingestion job enqueued")
	return job, nil
}

// OnIngestionTerminal is the ingestion worker's terminal callback. With at
// least one processed source it fans out the risk-assessment and
// competitor-analysis jobs; the two branches are independent and a failure
// on one never blocks the other. With no successes the startup is failed
// and nothing downstream is created.
func (o *Orchestrator) OnIngestionTerminal(ctx context.Context, job *models.Job, result *models.IngestionResult) error {
	if result == nil || !result.HasSuccess() {
		o.logger.Warn().Str("startup_id", job.StartupID).Str("job_id", job.ID).Msg("Ingestion produced no successful sources, failing startup")
		return o.storage.StartupStorage().UpdateOverallStatus(ctx, job.StartupID, models.StatusFailed)
	}

	data, err := o.LoadAnalysisData(ctx, job.StartupID)
	if err != nil {
		return fmt.Errorf("load analysis data for startup %s: %w", job.StartupID, err)
	}

	riskErr := o.EnqueueRisk(ctx, job.StartupID, data)
	if riskErr != nil {
		o.logger.Error().Err(riskErr).Str("startup_id", job.StartupID).Msg("Risk-assessment fan-out failed")
	}
	compErr := o.EnqueueCompetitor(ctx, job.StartupID, data)
	if compErr != nil {
		o.logger.Error().Err(compErr).Str("startup_id", job.StartupID).Msg("Competitor-analysis fan-out failed")
	}

	return errors.Join(riskErr, compErr)
}

// EnqueueRisk creates and submits one risk-assessment job.
func (o *Orchestrator) EnqueueRisk(ctx context.Context, startupID string, data *models.AnalysisData) error {
	payload := models.RiskPayload{StartupID: startupID, Analysis: *data}
	return o.enqueueBranch(ctx, startupID, models.JobTypeRiskAssessment, payload)
}

// EnqueueCompetitor creates and submits one competitor-analysis job.
func (o *Orchestrator) EnqueueCompetitor(ctx context.Context, startupID string, data *models.AnalysisData) error {
	payload := models.CompetitorPayload{StartupID: startupID, Startup: *data}
	return o.enqueueBranch(ctx, startupID, models.JobTypeCompetitorAnalysis, payload)
}

// enqueueBranch persists a downstream job row and submits its queue entry,
// deleting the row again when submission fails so the row and the queue
// stay consistent.
func (o *Orchestrator) enqueueBranch(ctx context.Context, startupID string, jobType models.JobType, payload any) error {
	job, err := models.NewJob(startupID, jobType, payload)
	if err != nil {
		return err
	}
	if err := o.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save %s job: %w", jobType, err)
	}

	msg := models.QueueMessage{JobID: job.ID, Type: jobType, Payload: job.Payload}
	if err := o.runtime.Queue(jobType).Submit(ctx, msg, interfaces.SubmitOptions{}); err != nil {
		if delErr := o.storage.JobStorage().DeleteJob(ctx, job.ID); delErr != nil {
			o.logger.Error().Err(delErr).Str("job_id", job.ID).Msg("Failed to delete job after enqueue failure")
		}
		return &models.EnqueueError{JobID: job.ID, Queue: string(jobType), Err: err}
	}

	o.logger.Info().Str("startup_id", startupID).Str("job_id", job.ID).Str("type", string(jobType)).Msg("Downstream job enqueued")
	return nil
}

// LoadAnalysisData assembles the normalized ingestion output handed to the
// downstream stages: the startup record plus every finding ingestion
// persisted for it. A missing market-info row is fine, the field stays nil.
func (o *Orchestrator) LoadAnalysisData(ctx context.Context, startupID string) (*models.AnalysisData, error) {
	startup, err := o.storage.StartupStorage().GetStartup(ctx, startupID)
	if err != nil {
		return nil, err
	}

	findings := o.storage.FindingStorage()
	metrics, err := findings.ListKeyMetrics(ctx, startupID)
	if err != nil {
		return nil, fmt.Errorf("list key metrics: %w", err)
	}
	team, err := findings.ListTeamMembers(ctx, startupID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	risks, err := findings.ListRiskIndicators(ctx, startupID)
	if err != nil {
		return nil, fmt.Errorf("list risk indicators: %w", err)
	}

	data := &models.AnalysisData{
		Name:         startup.Name,
		Description:  startup.Description,
		WebsiteURL:   startup.WebsiteURL,
		FinalSummary: startup.FinalSummary,
		KeyMetrics:   make([]models.KeyMetric, 0, len(metrics)),
		TeamMembers:  make([]models.TeamMember, 0, len(team)),
		Risks:        make([]models.RiskIndicator, 0, len(risks)),
	}
	for _, m := range metrics {
		data.KeyMetrics = append(data.KeyMetrics, m.KeyMetric)
	}
	for _, m := range team {
		data.TeamMembers = append(data.TeamMembers, m.TeamMember)
	}
	for _, r := range risks {
		data.Risks = append(data.Risks, r.RiskIndicator)
	}

	market, err := findings.GetMarketInfo(ctx, startupID)
	switch {
	case err == nil:
		info := market.MarketInfo
		data.MarketInfo = &info
	case errors.Is(err, models.ErrNotFound):
	default:
		return nil, fmt.Errorf("get market info: %w", err)
	}

	return data, nil
}

// HandleExhausted is wired as the queue runtime's failure callback. Once a
// message has burned through every attempt the database job is marked
// failed with the final error in its logs; an exhausted ingestion job also
// fails the startup, since nothing downstream will ever be created for it.
func (o *Orchestrator) HandleExhausted(ctx context.Context, msg *models.QueueMessage, cause error) {
	o.logger.Error().Err(cause).Str("job_id", msg.JobID).Str("type", string(msg.Type)).Msg("Job exhausted all attempts")

	job, err := o.storage.JobStorage().GetJob(ctx, msg.JobID)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", msg.JobID).Msg("Failed to load exhausted job")
		return
	}
	if job.Status.IsTerminal() {
		return
	}

	now := time.Now().UTC()
	job.Status = models.StatusFailed
	job.CompletedAt = &now
	if cause != nil {
		job.Logs = cause.Error()
	}
	if err := o.storage.JobStorage().UpdateJob(ctx, job); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark exhausted job failed")
		return
	}

	if msg.Type == models.JobTypeIngestion {
		if err := o.storage.StartupStorage().UpdateOverallStatus(ctx, job.StartupID, models.StatusFailed); err != nil {
			o.logger.Error().Err(err).Str("startup_id", job.StartupID).Msg("Failed to fail startup after exhausted ingestion")
		}
		return
	}

	// A downstream branch that dies by exhaustion never reaches the worker's
	// settle path, so the both-branches-terminal check runs here too.
	o.settleStartup(ctx, job.StartupID)
}

// settleStartup applies models.SettledStatus to the startup's job rows and
// persists the verdict once both downstream branches are terminal.
func (o *Orchestrator) settleStartup(ctx context.Context, startupID string) {
	jobs, err := o.storage.JobStorage().ListJobsByStartup(ctx, startupID)
	if err != nil {
		o.logger.Error().Err(err).Str("startup_id", startupID).Msg("Failed to list jobs for settlement")
		return
	}
	status, ok := models.SettledStatus(jobs)
	if !ok {
		return
	}
	if err := o.storage.StartupStorage().UpdateOverallStatus(ctx, startupID, status); err != nil {
		o.logger.Error().Err(err).Str("startup_id", startupID).Msg("Failed to settle startup status")
		return
	}
	o.logger.Info().Str("startup_id", startupID).Str("status", string(status)).Msg("Startup analysis settled")
}
