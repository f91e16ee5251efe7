package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

var competitorAnalysisSchema = map[string]any{
	"type": "object",
	"required": []any{
		"overall_score", "market_position", "competitive_advantage",
		"threats", "opportunities", "recommendations", "confidence_score", "competitors",
	},
	"properties": map[string]any{
		"overall_score": map[string]any{
			"type": "number", "minimum": 0, "maximum": 1,
			"description": "Overall competitive positioning score (1 is excellent positioning)",
		},
		"market_position":       map[string]any{"type": "string", "description": "The startup's current market position"},
		"competitive_advantage": map[string]any{"type": "string", "description": "Key competitive advantages identified"},
		"threats": map[string]any{
			"type": "array", "maxItems": 5,
			"items":       map[string]any{"type": "string"},
			"description": "3-5 competitive threats",
		},
		"opportunities": map[string]any{
			"type": "array", "maxItems": 5,
			"items":       map[string]any{"type": "string"},
			"description": "3-5 market opportunities",
		},
		"recommendations": map[string]any{
			"type": "array", "maxItems": 5,
			"items":       map[string]any{"type": "string"},
			"description": "3-5 strategic recommendations",
		},
		"confidence_score": map[string]any{
			"type": "number", "minimum": 0, "maximum": 1,
		},
		"competitors": map[string]any{
			"type": "array", "maxItems": 5,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"name", "strengths", "weaknesses", "similarity_score", "threat_level"},
				"properties": map[string]any{
					"name":            map[string]any{"type": "string"},
					"website":         map[string]any{"type": "string"},
					"description":     map[string]any{"type": "string"},
					"market_position": map[string]any{"type": "string"},
					"strengths": map[string]any{
						"type": "array", "maxItems": 3, "items": map[string]any{"type": "string"},
					},
					"weaknesses": map[string]any{
						"type": "array", "maxItems": 3, "items": map[string]any{"type": "string"},
					},
					"similarity_score": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"threat_level":     map[string]any{"type": "string", "enum": []any{"LOW", "MEDIUM", "HIGH", "CRITICAL"}},
					"funding":          map[string]any{"type": "string"},
					"employees":        map[string]any{"type": "string"},
					"founded":          map[string]any{"type": "string"},
				},
			},
			"description": "3-5 identified competitors",
		},
	},
}

// CompetitorService discovers the competitive landscape through grounded
// search plus an optional look at the startup's own website.
type CompetitorService struct {
	engine  interfaces.ReasoningEngine
	fetcher *SiteFetcher
	logger  arbor.ILogger
}

var _ interfaces.CompetitorAnalyzer = (*CompetitorService)(nil)

// NewCompetitorService creates the competitor analyzer. fetcher may be nil,
// in which case website grounding is skipped.
func NewCompetitorService(engine interfaces.ReasoningEngine, fetcher *SiteFetcher, logger arbor.ILogger) *CompetitorService {
	return &CompetitorService{engine: engine, fetcher: fetcher, logger: logger}
}

// AnalyzeCompetitors runs discovery search, optional site grounding, then a
// single structured generation. A failed generation degrades to a flagged
// placeholder rather than failing the stage.
func (s *CompetitorService) AnalyzeCompetitors(ctx context.Context, data *models.AnalysisData) (*models.CompetitorResult, error) {
	discovery := s.discoverCompetitors(ctx, data)
	siteContext := s.fetchSiteContext(ctx, data.WebsiteURL)

	prompt := fmt.Sprintf(`You are a competitive intelligence expert with 15+ years of experience analyzing startup ecosystems and competitive landscapes.

Analyze the following startup and provide a comprehensive competitor analysis:

STARTUP DATA:
Name: %s
Description: %s
Website: %s
Key Metrics: %s
Team Members: %s
Market Info: %s
Summary: %s

COMPETITOR DISCOVERY (from web search):
%s

STARTUP WEBSITE CONTENT:
%s

Focus on:
- Identifying the top 3-5 most relevant competitors
- Assessing competitive positioning and market share
- Analyzing competitive advantages and disadvantages
- Identifying market opportunities and threats
- Providing strategic recommendations for competitive positioning
- Evaluating threat levels and similarity scores

Provide a comprehensive analysis that would be valuable for VCs evaluating this startup's competitive position.`,
		data.Name,
		orDefault(data.Description, "No description provided"),
		orDefault(data.WebsiteURL, "No website provided"),
		toJSON(data.KeyMetrics), toJSON(data.TeamMembers), toJSON(data.MarketInfo),
		orDefault(data.FinalSummary, "No summary provided"),
		discovery, siteContext)

	var result models.CompetitorResult
	if err := s.engine.GenerateStructured(ctx, prompt, competitorAnalysisSchema, &result); err != nil {
		s.logger.Warn().
			Err(err).
			Str("startup_name", data.Name).
			Msg("Competitor analysis degraded")
		return degradedCompetitorResult(), nil
	}
	result.CompletedAt = time.Now().UTC()

	s.logger.Info().
		Str("startup_name", data.Name).
		Int("competitors", len(result.Competitors)).
		Float64("overall_score", result.OverallScore).
		Msg("Competitor analysis complete")
	return &result, nil
}

func (s *CompetitorService) discoverCompetitors(ctx context.Context, data *models.AnalysisData) string {
	prompt := fmt.Sprintf(`Find the top 5 competitors for "%s" - a startup that %s.

Focus on:
- Direct competitors offering similar products/services
- Companies in the same market segment
- Recent startups with similar business models
- Established companies that could be competitive threats

Provide company names, brief descriptions, and their competitive positioning.`,
		data.Name, orDefault(data.Description, "operates in the technology sector"))

	res, err := s.engine.GenerateWithSearch(ctx, prompt)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Competitor discovery search failed")
		return "Competitor discovery search unavailable - proceeding with available data only."
	}
	text := res.Text
	if len(res.Sources) > 0 {
		text += "\n\nSources: " + strings.Join(res.Sources, ", ")
	}
	return text
}

func (s *CompetitorService) fetchSiteContext(ctx context.Context, websiteURL string) string {
	if websiteURL == "" || s.fetcher == nil {
		return "No website content available."
	}
	markdown, err := s.fetcher.FetchMarkdown(ctx, websiteURL)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", websiteURL).Msg("Website fetch failed")
		return fmt.Sprintf("Website analysis unavailable for %s", websiteURL)
	}
	// Cap grounding input so a sprawling site cannot crowd out the rest of
	// the prompt.
	const maxSiteContext = 20000
	if len(markdown) > maxSiteContext {
		markdown = markdown[:maxSiteContext]
	}
	return markdown
}

func degradedCompetitorResult() *models.CompetitorResult {
	return &models.CompetitorResult{
		OverallScore:         0.5,
		MarketPosition:       "Analysis failed - unable to assess market position",
		CompetitiveAdvantage: "Analysis failed - unable to assess competitive advantage",
		Threats:              []string{"Competitor analysis encountered an error"},
		Opportunities:        []string{},
		Recommendations:      []string{"Re-run the competitor analysis"},
		ConfidenceScore:      0,
		Competitors:          []models.Competitor{},
		CompletedAt:          time.Now().UTC(),
	}
}
