package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// mockEngine scripts the reasoning calls per test.
type mockEngine struct {
	structured func(ctx context.Context, prompt string, schema map[string]any, out any) error
	search     func(ctx context.Context, prompt string) (*interfaces.SearchResult, error)
}

func (m *mockEngine) GenerateStructured(ctx context.Context, prompt string, schema map[string]any, out any) error {
	return m.structured(ctx, prompt, schema, out)
}

func (m *mockEngine) GenerateWithSearch(ctx context.Context, prompt string) (*interfaces.SearchResult, error) {
	if m.search == nil {
		return &interfaces.SearchResult{Text: "search context"}, nil
	}
	return m.search(ctx, prompt)
}

func fill(out any, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func TestAnalyzeDocuments(t *testing.T) {
	engine := &mockEngine{
		structured: func(ctx context.Context, prompt string, schema map[string]any, out any) error {
			assert.Contains(t, prompt, "Acme")
			assert.Contains(t, prompt, "combined text")
			return fill(out, map[string]any{
				"summary":      "Acme builds robots.",
				"key_metrics":  []map[string]any{{"name": "MRR", "value": "$50k"}},
				"team_members": []map[string]any{{"name": "Jo Founder", "role": "CEO"}},
				"market_info":  map[string]any{"tam": "$10B"},
				"risks":        []map[string]any{{"title": "Concentration", "explanation": "x", "severity": "HIGH"}},
				"insights":     []string{"strong growth"},
			})
		},
	}
	s := NewIngestionService(engine, arbor.NewLogger())

	analysis, err := s.AnalyzeDocuments(context.Background(), "Acme", "combined text")
	require.NoError(t, err)
	assert.Equal(t, "Acme builds robots.", analysis.Summary)
	assert.Len(t, analysis.KeyMetrics, 1)
	assert.Equal(t, "$10B", analysis.MarketInfo.TAM)
	assert.Equal(t, models.SeverityHigh, analysis.Risks[0].Severity)
}

func TestAnalyzeDocumentsDegradesOnFailure(t *testing.T) {
	engine := &mockEngine{
		structured: func(ctx context.Context, prompt string, schema map[string]any, out any) error {
			return errors.New("model unavailable")
		},
	}
	s := NewIngestionService(engine, arbor.NewLogger())

	analysis, err := s.AnalyzeDocuments(context.Background(), "Acme", "text")
	require.NoError(t, err)
	assert.Contains(t, analysis.Summary, "Analysis failed")
	require.Len(t, analysis.Risks, 1)
	assert.Equal(t, "Analysis Error", analysis.Risks[0].Title)
	assert.Equal(t, models.SeverityMedium, analysis.Risks[0].Severity)
}

func riskTestData() *models.AnalysisData {
	return &models.AnalysisData{
		Name:        "Acme",
		Description: "warehouse robotics automation platform",
		KeyMetrics:  []models.KeyMetric{{Name: "MRR", Value: "$50k"}},
		TeamMembers: []models.TeamMember{{Name: "Jo Founder", Role: "CEO"}},
	}
}

func TestAssessRiskAggregatesModules(t *testing.T) {
	engine := &mockEngine{
		structured: func(ctx context.Context, prompt string, schema map[string]any, out any) error {
			if strings.Contains(prompt, "executive summary") {
				return fill(out, map[string]any{"summary": "overall fine", "recommendation": "invest"})
			}
			return fill(out, map[string]any{
				"score":           0.4,
				"findings":        []string{"finding"},
				"recommendations": []string{"rec"},
				"confidence":      0.8,
			})
		},
	}
	s := NewRiskService(engine, arbor.NewLogger())

	result, err := s.AssessRisk(context.Background(), riskTestData())
	require.NoError(t, err)
	require.Len(t, result.Modules, 4)
	assert.InDelta(t, 0.4, result.OverallScore, 1e-9)
	assert.InDelta(t, 0.8, result.ConfidenceScore, 1e-9)
	assert.Equal(t, "overall fine", result.Summary)
	assert.Equal(t, "invest", result.Recommendation)
	assert.False(t, result.CompletedAt.IsZero())

	// all four personas present
	seen := map[models.RiskModule]bool{}
	for _, m := range result.Modules {
		seen[m.Module] = true
	}
	for _, m := range models.AllRiskModules {
		assert.True(t, seen[m], "missing module %s", m)
	}
}

func TestAssessRiskDegradesFailedModule(t *testing.T) {
	engine := &mockEngine{
		structured: func(ctx context.Context, prompt string, schema map[string]any, out any) error {
			if strings.Contains(prompt, "executive summary") {
				return fill(out, map[string]any{"summary": "s", "recommendation": "r"})
			}
			if strings.Contains(prompt, "forensic accountant") {
				return errors.New("model unavailable")
			}
			return fill(out, map[string]any{
				"score": 0.2, "findings": []string{"f"}, "recommendations": []string{"r"}, "confidence": 1.0,
			})
		},
	}
	s := NewRiskService(engine, arbor.NewLogger())

	result, err := s.AssessRisk(context.Background(), riskTestData())
	require.NoError(t, err)

	var degraded *models.ModuleAssessment
	for i := range result.Modules {
		if result.Modules[i].Module == models.ModuleForensicAccountant {
			degraded = &result.Modules[i]
		}
	}
	require.NotNil(t, degraded)
	assert.True(t, degraded.Degraded)
	assert.InDelta(t, 0.5, degraded.Score, 1e-9)
	assert.Zero(t, degraded.Confidence)

	// mean over (0.5, 0.2, 0.2, 0.2) and (0, 1, 1, 1)
	assert.InDelta(t, 0.275, result.OverallScore, 1e-9)
	assert.InDelta(t, 0.75, result.ConfidenceScore, 1e-9)
}

func TestAssessRiskSearchFailureIsNonFatal(t *testing.T) {
	engine := &mockEngine{
		search: func(ctx context.Context, prompt string) (*interfaces.SearchResult, error) {
			return nil, errors.New("search quota exhausted")
		},
		structured: func(ctx context.Context, prompt string, schema map[string]any, out any) error {
			if strings.Contains(prompt, "executive summary") {
				return fill(out, map[string]any{"summary": "s", "recommendation": "r"})
			}
			assert.Contains(t, prompt, "Web search unavailable")
			return fill(out, map[string]any{
				"score": 0.3, "findings": []string{"f"}, "recommendations": []string{"r"}, "confidence": 0.6,
			})
		},
	}
	s := NewRiskService(engine, arbor.NewLogger())

	result, err := s.AssessRisk(context.Background(), riskTestData())
	require.NoError(t, err)
	for _, m := range result.Modules {
		assert.False(t, m.Degraded)
	}
}

func TestAssessRiskSummaryFailureDegrades(t *testing.T) {
	engine := &mockEngine{
		structured: func(ctx context.Context, prompt string, schema map[string]any, out any) error {
			if strings.Contains(prompt, "executive summary") {
				return errors.New("model unavailable")
			}
			return fill(out, map[string]any{
				"score": 0.5, "findings": []string{"f"}, "recommendations": []string{"r"}, "confidence": 0.5,
			})
		},
	}
	s := NewRiskService(engine, arbor.NewLogger())

	result, err := s.AssessRisk(context.Background(), riskTestData())
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "Automated synthesis unavailable")
	assert.NotEmpty(t, result.Recommendation)
}

func TestAnalyzeCompetitors(t *testing.T) {
	engine := &mockEngine{
		search: func(ctx context.Context, prompt string) (*interfaces.SearchResult, error) {
			assert.Contains(t, prompt, "Acme")
			return &interfaces.SearchResult{Text: "competitor list", Sources: []string{"https://example.com"}}, nil
		},
		structured: func(ctx context.Context, prompt string, schema map[string]any, out any) error {
			assert.Contains(t, prompt, "competitor list")
			assert.Contains(t, prompt, "https://example.com")
			return fill(out, map[string]any{
				"overall_score":         0.7,
				"market_position":       "challenger",
				"competitive_advantage": "proprietary hardware",
				"threats":               []string{"incumbent pricing"},
				"opportunities":         []string{"mid-market"},
				"recommendations":       []string{"focus vertical"},
				"confidence_score":      0.8,
				"competitors": []map[string]any{{
					"name": "RoboCorp", "strengths": []string{"scale"}, "weaknesses": []string{"legacy"},
					"similarity_score": 0.9, "threat_level": "HIGH",
				}},
			})
		},
	}
	s := NewCompetitorService(engine, nil, arbor.NewLogger())

	result, err := s.AnalyzeCompetitors(context.Background(), riskTestData())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, result.OverallScore, 1e-9)
	require.Len(t, result.Competitors, 1)
	assert.Equal(t, "RoboCorp", result.Competitors[0].Name)
	assert.Equal(t, models.SeverityHigh, result.Competitors[0].ThreatLevel)
	assert.False(t, result.CompletedAt.IsZero())
}

func TestAnalyzeCompetitorsDegradesOnFailure(t *testing.T) {
	engine := &mockEngine{
		structured: func(ctx context.Context, prompt string, schema map[string]any, out any) error {
			return errors.New("model unavailable")
		},
	}
	s := NewCompetitorService(engine, nil, arbor.NewLogger())

	result, err := s.AnalyzeCompetitors(context.Background(), riskTestData())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.OverallScore, 1e-9)
	assert.Zero(t, result.ConfidenceScore)
	assert.Contains(t, result.MarketPosition, "Analysis failed")
}
