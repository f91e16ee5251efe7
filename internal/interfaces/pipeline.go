package interfaces

import (
	"context"

	"github.com/perlustro/perlustro/internal/models"
)

// ContentExtractor turns one data source into plain text.
type ContentExtractor interface {
	Extract(ctx context.Context, source *models.DataSource) (string, error)
}

// IngestionAnalyzer summarizes the combined extracted text of a startup's
// sources into structured findings.
type IngestionAnalyzer interface {
	AnalyzeDocuments(ctx context.Context, startupName, combinedContent string) (*models.DocumentAnalysis, error)
}

// RiskAnalyzer runs the four specialist modules and synthesizes the overall
// assessment. Individual module failures degrade, they do not propagate.
type RiskAnalyzer interface {
	AssessRisk(ctx context.Context, data *models.AnalysisData) (*models.RiskResult, error)
}

// CompetitorAnalyzer discovers and evaluates the competitive landscape.
type CompetitorAnalyzer interface {
	AnalyzeCompetitors(ctx context.Context, data *models.AnalysisData) (*models.CompetitorResult, error)
}

// IngestionNotifier receives the ingestion worker's terminal callback; the
// orchestrator implements it and decides the downstream fan-out.
type IngestionNotifier interface {
	OnIngestionTerminal(ctx context.Context, job *models.Job, result *models.IngestionResult) error
}
