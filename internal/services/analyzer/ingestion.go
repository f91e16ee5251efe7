package analyzer

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// documentAnalysisSchema is the contract for the ingestion analyzer's
// structured output.
var documentAnalysisSchema = map[string]any{
	"type":     "object",
	"required": []any{"summary", "key_metrics", "team_members", "risks", "insights"},
	"properties": map[string]any{
		"summary": map[string]any{
			"type":        "string",
			"description": "A concise 2-3 sentence summary of the startup",
		},
		"key_metrics": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"name", "value"},
				"properties": map[string]any{
					"name":          map[string]any{"type": "string", "description": "Metric name (e.g., Monthly Recurring Revenue)"},
					"value":         map[string]any{"type": "string", "description": "The value (e.g., $50k, 20%)"},
					"unit":          map[string]any{"type": "string", "description": "Unit if applicable (e.g., USD, %)"},
					"reported_date": map[string]any{"type": "string", "description": "Date if mentioned, any format (e.g., '2024', 'Q1 2024')"},
					"insight":       map[string]any{"type": "string", "description": "Brief insight about this metric"},
				},
			},
		},
		"team_members": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"name"},
				"properties": map[string]any{
					"name":         map[string]any{"type": "string"},
					"role":         map[string]any{"type": "string"},
					"linkedin_url": map[string]any{"type": "string"},
					"bio_summary":  map[string]any{"type": "string"},
				},
			},
		},
		"market_info": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tam":      map[string]any{"type": "string", "description": "Total Addressable Market if mentioned"},
				"sam":      map[string]any{"type": "string", "description": "Serviceable Available Market if mentioned"},
				"som":      map[string]any{"type": "string", "description": "Serviceable Obtainable Market if mentioned"},
				"analysis": map[string]any{"type": "string", "description": "Analysis of market sizing claims"},
			},
		},
		"risks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"title", "explanation", "severity"},
				"properties": map[string]any{
					"title":       map[string]any{"type": "string"},
					"explanation": map[string]any{"type": "string"},
					"severity":    map[string]any{"type": "string", "enum": []any{"LOW", "MEDIUM", "HIGH", "CRITICAL"}},
				},
			},
		},
		"insights": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Key actionable insights about this startup",
		},
	},
}

// IngestionService turns combined document text into structured findings.
type IngestionService struct {
	engine interfaces.ReasoningEngine
	logger arbor.ILogger
}

var _ interfaces.IngestionAnalyzer = (*IngestionService)(nil)

// NewIngestionService creates the ingestion analyzer.
func NewIngestionService(engine interfaces.ReasoningEngine, logger arbor.ILogger) *IngestionService {
	return &IngestionService{engine: engine, logger: logger}
}

// AnalyzeDocuments runs one structured generation over the combined content.
// A failed reasoning call degrades to a flagged placeholder result instead of
// failing the ingestion job.
func (s *IngestionService) AnalyzeDocuments(ctx context.Context, startupName, combinedContent string) (*models.DocumentAnalysis, error) {
	prompt := fmt.Sprintf(`You are an expert startup analyst. Analyze the following content and extract structured information about a startup.

Startup Name: %s

Content to analyze:
%s

Guidelines:
- This content may come from multiple documents (pitch decks, financial reports, team bios, etc.)
- Only include information that is explicitly mentioned in the content
- Be conservative with risk assessment - only flag genuine concerns
- For metrics, extract actual numbers when available from any of the documents
- For dates, use any valid date format (e.g., "2024", "January 2024", "Q1 2024")
- For team members, focus on founders and key executives mentioned across all documents
- Market info should only include TAM/SAM/SOM if specifically mentioned
- Insights should be actionable and specific to this startup
- If information appears in multiple documents, prioritize the most recent or detailed version
- Cross-reference information across documents for consistency`, startupName, combinedContent)

	var analysis models.DocumentAnalysis
	if err := s.engine.GenerateStructured(ctx, prompt, documentAnalysisSchema, &analysis); err != nil {
		s.logger.Warn().
			Err(err).
			Str("startup_name", startupName).
			Msg("Document analysis degraded")
		return degradedDocumentAnalysis(), nil
	}

	if analysis.Summary == "" {
		analysis.Summary = "No summary available"
	}
	return &analysis, nil
}

func degradedDocumentAnalysis() *models.DocumentAnalysis {
	return &models.DocumentAnalysis{
		Summary: "Analysis failed - unable to process content",
		Risks: []models.RiskIndicator{{
			Title:       "Analysis Error",
			Explanation: "Failed to analyze this data source due to processing error",
			Severity:    models.SeverityMedium,
		}},
		Insights:    []string{"Content analysis encountered an error"},
		KeyMetrics:  []models.KeyMetric{},
		TeamMembers: []models.TeamMember{},
	}
}
