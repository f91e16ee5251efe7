package interfaces

import (
	"context"

	"github.com/perlustro/perlustro/internal/models"
)

// StartupStorage persists analysis targets.
type StartupStorage interface {
	SaveStartup(ctx context.Context, startup *models.Startup) error
	GetStartup(ctx context.Context, id string) (*models.Startup, error)
	ListStartups(ctx context.Context) ([]*models.Startup, error)
	// UpdateOverallStatus sets the startup's pipeline-owned status field.
	UpdateOverallStatus(ctx context.Context, id string, status models.JobStatus) error
	// UpdateSummary writes the ingestion-produced description and insights.
	UpdateSummary(ctx context.Context, id, description, finalSummary string) error
}

// DataSourceStorage persists data sources and enforces forward-only status
// movement.
type DataSourceStorage interface {
	SaveDataSource(ctx context.Context, source *models.DataSource) error
	GetDataSource(ctx context.Context, id string) (*models.DataSource, error)
	// ListDataSources returns the startup's sources, optionally filtered by
	// status (empty filter means all).
	ListDataSources(ctx context.Context, startupID string, statusFilter models.JobStatus) ([]*models.DataSource, error)
	// UpdateDataSourceStatus applies a forward transition; an illegal
	// regression is rejected with an error.
	UpdateDataSourceStatus(ctx context.Context, id string, status models.JobStatus) error
	// UpdateDataSourceContent stores the extracted-content snippet.
	UpdateDataSourceContent(ctx context.Context, id, content string) error
}

// JobStorage persists pipeline jobs.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	ListJobsByStartup(ctx context.Context, startupID string) ([]*models.Job, error)
	DeleteJob(ctx context.Context, id string) error
}

// ClaimStorage is the transactional path used at enqueue time: selecting the
// claimable sources, creating the job row, and flipping the sources to
// pending happen atomically, so a source can only ever be consumed by one
// ingestion job.
type ClaimStorage interface {
	// ClaimDataSources atomically claims every not_started source of the
	// startup for a new ingestion job. Returns models.ErrNoSources when
	// nothing qualifies.
	ClaimDataSources(ctx context.Context, startupID string) (*models.Job, []*models.DataSource, error)
	// ReleaseClaim compensates a failed queue submission: the job row is
	// deleted and the claimed sources revert to not_started.
	ReleaseClaim(ctx context.Context, jobID string, sourceIDs []string) error
}

// FindingStorage persists analyzer output. Append-only findings are created
// in one transaction per ingestion run; one-per-startup aggregates are
// upserted.
type FindingStorage interface {
	StoreDocumentAnalysis(ctx context.Context, startupID string, analysis *models.DocumentAnalysis) error
	UpsertMarketInfo(ctx context.Context, startupID string, info models.MarketInfo) error
	UpsertRiskAssessment(ctx context.Context, startupID string, result *models.RiskResult) error
	SaveCompetitorAnalysis(ctx context.Context, startupID string, result *models.CompetitorResult) error

	ListKeyMetrics(ctx context.Context, startupID string) ([]*models.KeyMetricRecord, error)
	ListTeamMembers(ctx context.Context, startupID string) ([]*models.TeamMemberRecord, error)
	ListRiskIndicators(ctx context.Context, startupID string) ([]*models.RiskIndicatorRecord, error)
	GetMarketInfo(ctx context.Context, startupID string) (*models.MarketInfoRecord, error)
	GetRiskAssessment(ctx context.Context, startupID string) (*models.RiskAssessmentRecord, error)
	GetCompetitorAnalysis(ctx context.Context, startupID string) (*models.CompetitorAnalysisRecord, error)
}

// StorageManager groups the storage interfaces behind one construction and
// shutdown point.
type StorageManager interface {
	StartupStorage() StartupStorage
	DataSourceStorage() DataSourceStorage
	JobStorage() JobStorage
	ClaimStorage() ClaimStorage
	FindingStorage() FindingStorage
	Close() error
}
