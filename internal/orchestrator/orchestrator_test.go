package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/common"
	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
	storage "github.com/perlustro/perlustro/internal/storage/badger"
)

type fakeQueue struct {
	mu        sync.Mutex
	submitted []models.QueueMessage
	submitErr error
}

func (q *fakeQueue) Submit(_ context.Context, msg models.QueueMessage, _ interfaces.SubmitOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return q.submitErr
	}
	q.submitted = append(q.submitted, msg)
	return nil
}

func (q *fakeQueue) GetStatus(context.Context, string) (*interfaces.QueueSnapshot, error) {
	return nil, nil
}

func (q *fakeQueue) Remove(context.Context, string) (bool, error) { return false, nil }

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.submitted)
}

type fakeRuntime struct {
	queues map[models.JobType]*fakeQueue
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{queues: map[models.JobType]*fakeQueue{
		models.JobTypeIngestion:          {},
		models.JobTypeRiskAssessment:     {},
		models.JobTypeCompetitorAnalysis: {},
	}}
}

func (r *fakeRuntime) Queue(jobType models.JobType) interfaces.StageQueue { return r.queues[jobType] }
func (r *fakeRuntime) RegisterHandler(models.JobType, interfaces.JobHandler) {}
func (r *fakeRuntime) Start() error                                          { return nil }
func (r *fakeRuntime) Shutdown(context.Context) error                        { return nil }

func newTestOrchestrator(t *testing.T) (*Orchestrator, *storage.Manager, *fakeRuntime) {
	t.Helper()
	manager, err := storage.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	runtime := newFakeRuntime()
	return NewOrchestrator(manager, runtime, arbor.NewLogger()), manager, runtime
}

func seedStartup(t *testing.T, m *storage.Manager, sources int) *models.Startup {
	t.Helper()
	ctx := context.Background()
	startup := models.NewStartup("Acme Robotics", "warehouse robots", "https://acme.example")
	require.NoError(t, m.StartupStorage().SaveStartup(ctx, startup))
	for i := 0; i < sources; i++ {
		src := models.NewDataSource(startup.ID, models.SourceTypeTextInput)
		src.Content = "pitch deck text"
		require.NoError(t, m.DataSourceStorage().SaveDataSource(ctx, src))
	}
	return startup
}

func TestEnqueueIngestion(t *testing.T) {
	orch, manager, runtime := newTestOrchestrator(t)
	ctx := context.Background()
	startup := seedStartup(t, manager, 2)

	job, err := orch.EnqueueIngestion(ctx, startup.ID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.JobTypeIngestion, job.Type)

	q := runtime.queues[models.JobTypeIngestion]
	require.Equal(t, 1, q.count())
	assert.Equal(t, job.ID, q.submitted[0].JobID)

	stored, err := manager.StartupStorage().GetStartup(ctx, startup.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.OverallStatus)

	// sources are claimed now, a second analyze attempt has nothing left
	_, err = orch.EnqueueIngestion(ctx, startup.ID)
	assert.ErrorIs(t, err, models.ErrNoSources)
	assert.Equal(t, 1, q.count())
}

func TestEnqueueIngestionCompensatesOnSubmitFailure(t *testing.T) {
	orch, manager, runtime := newTestOrchestrator(t)
	ctx := context.Background()
	startup := seedStartup(t, manager, 2)
	runtime.queues[models.JobTypeIngestion].submitErr = errors.New("queue down")

	_, err := orch.EnqueueIngestion(ctx, startup.ID)
	var enqErr *models.EnqueueError
	require.ErrorAs(t, err, &enqErr)

	// job row rolled back
	jobs, err := manager.JobStorage().ListJobsByStartup(ctx, startup.ID)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	// sources released, a retry can claim them again
	runtime.queues[models.JobTypeIngestion].submitErr = nil
	job, err := orch.EnqueueIngestion(ctx, startup.ID)
	require.NoError(t, err)
	payload, err := job.DecodeIngestionPayload()
	require.NoError(t, err)
	assert.Len(t, payload.DataSourceIDs, 2)
}

func seedCompletedIngestion(t *testing.T, m *storage.Manager, startupID string, processed int, completedAt time.Time) *models.Job {
	t.Helper()
	ctx := context.Background()
	job, err := models.NewJob(startupID, models.JobTypeIngestion, models.IngestionPayload{StartupID: startupID})
	require.NoError(t, err)
	job.Status = models.StatusCompleted
	job.CompletedAt = &completedAt
	require.NoError(t, job.SetResult(models.IngestionResult{
		TotalProcessed: processed,
		TotalFailed:    0,
		CompletedAt:    completedAt,
	}))
	require.NoError(t, m.JobStorage().SaveJob(ctx, job))
	return job
}

func TestOnIngestionTerminalFansOut(t *testing.T) {
	orch, manager, runtime := newTestOrchestrator(t)
	ctx := context.Background()
	startup := seedStartup(t, manager, 1)

	analysis := &models.DocumentAnalysis{
		Summary:    "B2B robotics platform",
		KeyMetrics: []models.KeyMetric{{Name: "ARR", Value: "2M", Unit: "USD"}},
		MarketInfo: &models.MarketInfo{TAM: "$10B"},
		Risks:      []models.RiskIndicator{{Title: "Runway", Explanation: "9 months", Severity: models.SeverityHigh}},
	}
	require.NoError(t, manager.FindingStorage().StoreDocumentAnalysis(ctx, startup.ID, analysis))

	job := seedCompletedIngestion(t, manager, startup.ID, 1, time.Now().UTC())
	result := models.IngestionResult{TotalProcessed: 1}
	require.NoError(t, orch.OnIngestionTerminal(ctx, job, &result))

	assert.Equal(t, 1, runtime.queues[models.JobTypeRiskAssessment].count())
	assert.Equal(t, 1, runtime.queues[models.JobTypeCompetitorAnalysis].count())

	jobs, err := manager.JobStorage().ListJobsByStartup(ctx, startup.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	for _, j := range jobs {
		if j.Type != models.JobTypeRiskAssessment {
			continue
		}
		payload, err := j.DecodeRiskPayload()
		require.NoError(t, err)
		assert.Equal(t, "Acme Robotics", payload.Analysis.Name)
		assert.Len(t, payload.Analysis.KeyMetrics, 1)
		require.NotNil(t, payload.Analysis.MarketInfo)
		assert.Equal(t, "$10B", payload.Analysis.MarketInfo.TAM)
	}
}

func TestOnIngestionTerminalFanOutIsolated(t *testing.T) {
	orch, manager, runtime := newTestOrchestrator(t)
	ctx := context.Background()
	startup := seedStartup(t, manager, 1)
	runtime.queues[models.JobTypeCompetitorAnalysis].submitErr = errors.New("queue down")

	job := seedCompletedIngestion(t, manager, startup.ID, 1, time.Now().UTC())
	result := models.IngestionResult{TotalProcessed: 1}
	err := orch.OnIngestionTerminal(ctx, job, &result)
	require.Error(t, err)

	// the risk branch went through despite the competitor failure
	assert.Equal(t, 1, runtime.queues[models.JobTypeRiskAssessment].count())

	// the failed competitor job row was rolled back
	jobs, err := manager.JobStorage().ListJobsByStartup(ctx, startup.ID)
	require.NoError(t, err)
	types := make(map[models.JobType]int)
	for _, j := range jobs {
		types[j.Type]++
	}
	assert.Equal(t, 1, types[models.JobTypeRiskAssessment])
	assert.Zero(t, types[models.JobTypeCompetitorAnalysis])
}

func TestOnIngestionTerminalNoSuccessFailsStartup(t *testing.T) {
	orch, manager, runtime := newTestOrchestrator(t)
	ctx := context.Background()
	startup := seedStartup(t, manager, 1)

	job := seedCompletedIngestion(t, manager, startup.ID, 0, time.Now().UTC())
	result := models.IngestionResult{TotalProcessed: 0, TotalFailed: 1}
	require.NoError(t, orch.OnIngestionTerminal(ctx, job, &result))

	assert.Zero(t, runtime.queues[models.JobTypeRiskAssessment].count())
	assert.Zero(t, runtime.queues[models.JobTypeCompetitorAnalysis].count())

	stored, err := manager.StartupStorage().GetStartup(ctx, startup.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.OverallStatus)
}

func TestHandleExhausted(t *testing.T) {
	orch, manager, _ := newTestOrchestrator(t)
	ctx := context.Background()
	startup := seedStartup(t, manager, 1)

	job, err := models.NewJob(startup.ID, models.JobTypeIngestion, models.IngestionPayload{StartupID: startup.ID})
	require.NoError(t, err)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, job))

	msg := models.QueueMessage{JobID: job.ID, Type: models.JobTypeIngestion}
	orch.HandleExhausted(ctx, &msg, errors.New("reasoning engine unreachable"))

	stored, err := manager.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.Logs, "reasoning engine unreachable")
	require.NotNil(t, stored.CompletedAt)

	startupRow, err := manager.StartupStorage().GetStartup(ctx, startup.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, startupRow.OverallStatus)
}

func TestHandleExhaustedSettlesStartupOnLastBranch(t *testing.T) {
	orch, manager, _ := newTestOrchestrator(t)
	ctx := context.Background()
	startup := seedStartup(t, manager, 1)
	require.NoError(t, manager.StartupStorage().UpdateOverallStatus(ctx, startup.ID, models.StatusInProgress))
	seedCompletedIngestion(t, manager, startup.ID, 1, time.Now().UTC())

	now := time.Now().UTC()
	competitorJob, err := models.NewJob(startup.ID, models.JobTypeCompetitorAnalysis, models.CompetitorPayload{StartupID: startup.ID})
	require.NoError(t, err)
	competitorJob.Status = models.StatusCompleted
	competitorJob.CompletedAt = &now
	require.NoError(t, manager.JobStorage().SaveJob(ctx, competitorJob))

	riskJob, err := models.NewJob(startup.ID, models.JobTypeRiskAssessment, models.RiskPayload{StartupID: startup.ID})
	require.NoError(t, err)
	riskJob.Status = models.StatusInProgress
	require.NoError(t, manager.JobStorage().SaveJob(ctx, riskJob))

	msg := models.QueueMessage{JobID: riskJob.ID, Type: models.JobTypeRiskAssessment}
	orch.HandleExhausted(ctx, &msg, errors.New("reasoning engine unreachable"))

	stored, err := manager.JobStorage().GetJob(ctx, riskJob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)

	// the risk branch was the last to reach a terminal state, so the
	// startup settles here rather than through a worker
	startupRow, err := manager.StartupStorage().GetStartup(ctx, startup.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, startupRow.OverallStatus)
}

func TestHandleExhaustedLeavesStartupWithBranchOutstanding(t *testing.T) {
	orch, manager, _ := newTestOrchestrator(t)
	ctx := context.Background()
	startup := seedStartup(t, manager, 1)
	require.NoError(t, manager.StartupStorage().UpdateOverallStatus(ctx, startup.ID, models.StatusInProgress))
	seedCompletedIngestion(t, manager, startup.ID, 1, time.Now().UTC())

	competitorJob, err := models.NewJob(startup.ID, models.JobTypeCompetitorAnalysis, models.CompetitorPayload{StartupID: startup.ID})
	require.NoError(t, err)
	competitorJob.Status = models.StatusInProgress
	require.NoError(t, manager.JobStorage().SaveJob(ctx, competitorJob))

	riskJob, err := models.NewJob(startup.ID, models.JobTypeRiskAssessment, models.RiskPayload{StartupID: startup.ID})
	require.NoError(t, err)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, riskJob))

	msg := models.QueueMessage{JobID: riskJob.ID, Type: models.JobTypeRiskAssessment}
	orch.HandleExhausted(ctx, &msg, errors.New("reasoning engine unreachable"))

	// the competitor branch is still running; its own terminal path settles
	startupRow, err := manager.StartupStorage().GetStartup(ctx, startup.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, startupRow.OverallStatus)
}

func TestReconcilerRetriggersMissingBranch(t *testing.T) {
	orch, manager, runtime := newTestOrchestrator(t)
	ctx := context.Background()
	startup := seedStartup(t, manager, 1)
	require.NoError(t, manager.StartupStorage().UpdateOverallStatus(ctx, startup.ID, models.StatusInProgress))

	// ingestion finished ten minutes ago, the risk branch exists, the
	// competitor branch was lost
	seedCompletedIngestion(t, manager, startup.ID, 1, time.Now().UTC().Add(-10*time.Minute))
	riskJob, err := models.NewJob(startup.ID, models.JobTypeRiskAssessment, models.RiskPayload{StartupID: startup.ID})
	require.NoError(t, err)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, riskJob))

	rec := NewReconciler(orch, &common.ReconcilerConfig{
		Enabled:    true,
		Schedule:   "@every 2m",
		StaleAfter: 5 * time.Minute,
	}, arbor.NewLogger())
	require.NoError(t, rec.RunNow(ctx))

	assert.Zero(t, runtime.queues[models.JobTypeRiskAssessment].count())
	assert.Equal(t, 1, runtime.queues[models.JobTypeCompetitorAnalysis].count())

	// the sweep is idempotent once the branch exists
	require.NoError(t, rec.RunNow(ctx))
	assert.Equal(t, 1, runtime.queues[models.JobTypeCompetitorAnalysis].count())
}

func TestReconcilerSkipsFreshIngestion(t *testing.T) {
	orch, manager, runtime := newTestOrchestrator(t)
	ctx := context.Background()
	startup := seedStartup(t, manager, 1)
	require.NoError(t, manager.StartupStorage().UpdateOverallStatus(ctx, startup.ID, models.StatusInProgress))
	seedCompletedIngestion(t, manager, startup.ID, 1, time.Now().UTC())

	rec := NewReconciler(orch, &common.ReconcilerConfig{
		Enabled:    true,
		Schedule:   "@every 2m",
		StaleAfter: 5 * time.Minute,
	}, arbor.NewLogger())
	require.NoError(t, rec.RunNow(ctx))

	// inside the grace window the orchestrator's own fan-out is trusted
	assert.Zero(t, runtime.queues[models.JobTypeRiskAssessment].count())
	assert.Zero(t, runtime.queues[models.JobTypeCompetitorAnalysis].count())
}
