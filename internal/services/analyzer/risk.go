package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

const searchUnavailable = "Web search unavailable - proceeding with available data only."

var moduleAssessmentSchema = map[string]any{
	"type":     "object",
	"required": []any{"score", "findings", "recommendations", "confidence"},
	"properties": map[string]any{
		"score": map[string]any{
			"type": "number", "minimum": 0, "maximum": 1,
			"description": "Risk score from 0-1 (0 = low risk, 1 = high risk)",
		},
		"findings": map[string]any{
			"type": "array", "maxItems": 3,
			"items":       map[string]any{"type": "string"},
			"description": "2-3 specific findings/risks identified",
		},
		"recommendations": map[string]any{
			"type": "array", "maxItems": 3,
			"items":       map[string]any{"type": "string"},
			"description": "2-3 recommendations from this module",
		},
		"confidence": map[string]any{
			"type": "number", "minimum": 0, "maximum": 1,
			"description": "Confidence in this assessment (0-1)",
		},
	},
}

var executiveSummarySchema = map[string]any{
	"type":     "object",
	"required": []any{"summary", "recommendation"},
	"properties": map[string]any{
		"summary":        map[string]any{"type": "string", "description": "Executive summary of all risk findings"},
		"recommendation": map[string]any{"type": "string", "description": "Final investment recommendation"},
	},
}

// modulePersona carries one specialist's framing: who it is, what data it
// looks at, and the web-search query that grounds it.
type modulePersona struct {
	module      models.RiskModule
	role        string
	focus       string
	searchQuery func(data *models.AnalysisData) string
	dataView    func(data *models.AnalysisData) string
}

// RiskService runs the four specialist modules in parallel and synthesizes
// the overall verdict.
type RiskService struct {
	engine interfaces.ReasoningEngine
	logger arbor.ILogger
}

var _ interfaces.RiskAnalyzer = (*RiskService)(nil)

// NewRiskService creates the risk analyzer.
func NewRiskService(engine interfaces.ReasoningEngine, logger arbor.ILogger) *RiskService {
	return &RiskService{engine: engine, logger: logger}
}

// AssessRisk runs every module concurrently. A failed module degrades to a
// neutral placeholder (score 0.5, confidence 0) rather than failing the
// stage; the overall score and confidence are the arithmetic means of the
// module values.
func (s *RiskService) AssessRisk(ctx context.Context, data *models.AnalysisData) (*models.RiskResult, error) {
	personas := s.personas()
	assessments := make([]models.ModuleAssessment, len(personas))

	var wg sync.WaitGroup
	for i, persona := range personas {
		wg.Add(1)
		go func(i int, p modulePersona) {
			defer wg.Done()
			assessments[i] = s.runModule(ctx, p, data)
		}(i, persona)
	}
	wg.Wait()

	var scoreSum, confSum float64
	for _, a := range assessments {
		scoreSum += a.Score
		confSum += a.Confidence
	}
	n := float64(len(assessments))

	result := &models.RiskResult{
		OverallScore:    scoreSum / n,
		ConfidenceScore: confSum / n,
		Modules:         assessments,
		CompletedAt:     time.Now().UTC(),
	}

	summary, recommendation := s.synthesize(ctx, assessments, result.OverallScore)
	result.Summary = summary
	result.Recommendation = recommendation

	s.logger.Info().
		Float64("overall_score", result.OverallScore).
		Float64("confidence", result.ConfidenceScore).
		Msg("Risk assessment complete")
	return result, nil
}

func (s *RiskService) runModule(ctx context.Context, p modulePersona, data *models.AnalysisData) models.ModuleAssessment {
	searchContext := searchUnavailable
	if res, err := s.engine.GenerateWithSearch(ctx, fmt.Sprintf("Search for: %s. Provide a concise summary of the most relevant and recent information.", p.searchQuery(data))); err != nil {
		s.logger.Warn().
			Err(err).
			Str("module", string(p.module)).
			Msg("Module web search failed")
	} else {
		searchContext = res.Text
		if len(res.Sources) > 0 {
			searchContext += "\n\nSources: " + strings.Join(res.Sources, ", ")
		}
	}

	prompt := fmt.Sprintf(`You are %s.

Analyze the following startup data:

%s
Description: %s
Summary: %s

Market Context (from web search):
%s

Focus on:
%s

Provide a risk assessment with 2-3 specific findings and 2-3 actionable recommendations that a VC would want to know. Be concise and direct.`,
		p.role, p.dataView(data), orDefault(data.Description, "No description provided"),
		orDefault(data.FinalSummary, "No summary provided"), searchContext, p.focus)

	var assessment models.ModuleAssessment
	if err := s.engine.GenerateStructured(ctx, prompt, moduleAssessmentSchema, &assessment); err != nil {
		s.logger.Warn().
			Err(err).
			Str("module", string(p.module)).
			Msg("Module assessment degraded")
		return degradedAssessment(p.module)
	}
	assessment.Module = p.module
	return assessment
}

// synthesize generates the executive summary over the module verdicts,
// degrading to generic text on failure.
func (s *RiskService) synthesize(ctx context.Context, assessments []models.ModuleAssessment, overallScore float64) (string, string) {
	var b strings.Builder
	b.WriteString("Based on the following specialized risk assessments, provide an executive summary and final recommendation:\n")
	for _, a := range assessments {
		fmt.Fprintf(&b, `
%s Assessment:
- Score: %.2f
- Key Findings: %s
- Recommendations: %s
`, moduleTitle(a.Module), a.Score, strings.Join(a.Findings, ", "), strings.Join(a.Recommendations, ", "))
	}
	fmt.Fprintf(&b, "\nOverall Risk Score: %.2f\n\nProvide a concise executive summary and clear investment recommendation.", overallScore)

	var out struct {
		Summary        string `json:"summary"`
		Recommendation string `json:"recommendation"`
	}
	if err := s.engine.GenerateStructured(ctx, b.String(), executiveSummarySchema, &out); err != nil {
		s.logger.Warn().Err(err).Msg("Executive summary generation degraded")
		return fmt.Sprintf("Automated synthesis unavailable. Overall risk score %.2f across %d modules.", overallScore, len(assessments)),
			"Review individual module findings before making an investment decision."
	}
	return out.Summary, out.Recommendation
}

func (s *RiskService) personas() []modulePersona {
	return []modulePersona{
		{
			module: models.ModuleForensicAccountant,
			role:   "a forensic accountant with 20+ years of experience analyzing startup financials and identifying red flags",
			focus: `- Financial sustainability and burn rate analysis
- Revenue model viability and scalability
- Financial red flags and inconsistencies
- Unit economics and profitability potential
- Financial reporting quality and transparency`,
			searchQuery: func(d *models.AnalysisData) string {
				sector := "technology sector"
				if d.MarketInfo != nil && d.MarketInfo.TAM != "" {
					sector = d.MarketInfo.TAM
				}
				return fmt.Sprintf("startup financial metrics benchmarks %s", sector)
			},
			dataView: func(d *models.AnalysisData) string {
				return fmt.Sprintf("Key Metrics: %s\nMarket Info: %s\n", toJSON(d.KeyMetrics), toJSON(d.MarketInfo))
			},
		},
		{
			module: models.ModuleMarketStrategist,
			role:   "a market strategist with deep expertise in market analysis and competitive intelligence",
			focus: `- Market size validation and TAM/SAM/SOM analysis
- Competitive landscape and differentiation
- Market timing and adoption risks
- Customer acquisition strategy and costs
- Regulatory and market access barriers`,
			searchQuery: func(d *models.AnalysisData) string {
				return fmt.Sprintf("competitive landscape %s market analysis", firstWords(d.Description, 5, "startup"))
			},
			dataView: func(d *models.AnalysisData) string {
				return fmt.Sprintf("Key Metrics: %s\nMarket Info: %s\n", toJSON(d.KeyMetrics), toJSON(d.MarketInfo))
			},
		},
		{
			module: models.ModuleTalentScout,
			role:   "a talent scout and HR expert with extensive experience evaluating startup teams and leadership",
			focus: `- Team composition and skill gaps
- Leadership experience and track record
- Technical expertise and domain knowledge
- Key person risk and succession planning
- Industry talent trends and competitive hiring landscape`,
			searchQuery: func(d *models.AnalysisData) string {
				return fmt.Sprintf("startup talent acquisition %s industry hiring trends", firstWords(d.Description, 3, "technology"))
			},
			dataView: func(d *models.AnalysisData) string {
				return fmt.Sprintf("Team Members: %s\nKey Metrics: %s\n", toJSON(d.TeamMembers), toJSON(d.KeyMetrics))
			},
		},
		{
			module: models.ModuleDevilsAdvocate,
			role:   "a devil's advocate with a reputation for identifying potential failure points and challenging optimistic assumptions",
			focus: `- Overly optimistic assumptions and projections
- Hidden risks and potential failure modes
- Market timing and external factor risks
- Competitive threats and market changes
- Recent industry failures and common pitfalls`,
			searchQuery: func(d *models.AnalysisData) string {
				return fmt.Sprintf("startup failures %s industry risks", firstWords(d.Description, 3, "technology"))
			},
			dataView: func(d *models.AnalysisData) string {
				return fmt.Sprintf("Key Metrics: %s\nTeam Members: %s\nMarket Info: %s\n",
					toJSON(d.KeyMetrics), toJSON(d.TeamMembers), toJSON(d.MarketInfo))
			},
		},
	}
}

func degradedAssessment(module models.RiskModule) models.ModuleAssessment {
	return models.ModuleAssessment{
		Module:          module,
		Score:           0.5,
		Confidence:      0,
		Degraded:        true,
		Findings:        []string{"Assessment unavailable due to a reasoning failure"},
		Recommendations: []string{"Re-run the risk assessment for this module"},
	}
}

func moduleTitle(m models.RiskModule) string {
	switch m {
	case models.ModuleForensicAccountant:
		return "Forensic Accountant"
	case models.ModuleMarketStrategist:
		return "Market Strategist"
	case models.ModuleTalentScout:
		return "Talent Scout"
	case models.ModuleDevilsAdvocate:
		return "Devil's Advocate"
	}
	return string(m)
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil || string(b) == "null" {
		return "not available"
	}
	return string(b)
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func firstWords(s string, n int, fallback string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return fallback
	}
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
