package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// Generator renders the full analysis of a startup as a PDF document. It is
// a pure read-side consumer of the finding records; a startup with partial
// findings gets a report covering whatever exists.
type Generator struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewGenerator creates the report generator.
func NewGenerator(storage interfaces.StorageManager, logger arbor.ILogger) *Generator {
	return &Generator{storage: storage, logger: logger}
}

// reportData is everything the renderer needs, loaded up front.
type reportData struct {
	startup    *models.Startup
	metrics    []*models.KeyMetricRecord
	team       []*models.TeamMemberRecord
	market     *models.MarketInfoRecord
	indicators []*models.RiskIndicatorRecord
	risk       *models.RiskAssessmentRecord
	competitor *models.CompetitorAnalysisRecord
}

// Generate renders the startup's analysis report. Returns
// models.ErrNotFound when the startup does not exist.
func (g *Generator) Generate(ctx context.Context, startupID string) ([]byte, error) {
	data, err := g.load(ctx, startupID)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(fmt.Sprintf("%s - Analysis Report", data.startup.Name), false)
	pdf.AddPage()

	r := &renderer{pdf: pdf}
	r.titlePage(data.startup)
	r.overview(data.startup)
	r.keyMetrics(data.metrics)
	r.team(data.team)
	r.marketSizing(data.market)
	r.riskIndicators(data.indicators)
	r.riskAssessment(data.risk)
	r.competitorLandscape(data.competitor)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report for startup %s: %w", startupID, err)
	}

	g.logger.Debug().Str("startup_id", startupID).Int("size", buf.Len()).Msg("Analysis report rendered")
	return buf.Bytes(), nil
}

func (g *Generator) load(ctx context.Context, startupID string) (*reportData, error) {
	startup, err := g.storage.StartupStorage().GetStartup(ctx, startupID)
	if err != nil {
		return nil, err
	}

	findings := g.storage.FindingStorage()
	data := &reportData{startup: startup}
	if data.metrics, err = findings.ListKeyMetrics(ctx, startupID); err != nil {
		return nil, err
	}
	if data.team, err = findings.ListTeamMembers(ctx, startupID); err != nil {
		return nil, err
	}
	if data.indicators, err = findings.ListRiskIndicators(ctx, startupID); err != nil {
		return nil, err
	}
	// the one-per-startup aggregates are optional
	data.market, _ = findings.GetMarketInfo(ctx, startupID)
	data.risk, _ = findings.GetRiskAssessment(ctx, startupID)
	data.competitor, _ = findings.GetCompetitorAnalysis(ctx, startupID)
	return data, nil
}

type renderer struct {
	pdf *fpdf.Fpdf
}

func (r *renderer) titlePage(startup *models.Startup) {
	r.pdf.SetFont("Arial", "B", 20)
	r.pdf.MultiCell(0, 10, startup.Name, "", "L", false)
	r.pdf.SetFont("Arial", "", 10)
	r.pdf.SetTextColor(100, 100, 100)
	r.pdf.MultiCell(0, 5, fmt.Sprintf("Analysis report - generated %s", startup.UpdatedAt.Format("2 Jan 2006")), "", "L", false)
	r.pdf.SetTextColor(0, 0, 0)
	r.pdf.Ln(6)
}

func (r *renderer) overview(startup *models.Startup) {
	r.heading("Overview")
	if startup.Description != "" {
		r.paragraph(startup.Description)
	}
	if startup.WebsiteURL != "" {
		r.keyValue("Website", startup.WebsiteURL)
	}
	r.keyValue("Status", string(startup.OverallStatus))
	if startup.FinalSummary != "" {
		r.subheading("Insights")
		for _, line := range strings.Split(startup.FinalSummary, "\n") {
			if strings.TrimSpace(line) != "" {
				r.bullet(line)
			}
		}
	}
	r.pdf.Ln(4)
}

func (r *renderer) keyMetrics(metrics []*models.KeyMetricRecord) {
	if len(metrics) == 0 {
		return
	}
	r.heading("Key Metrics")
	rows := [][]string{{"Metric", "Value", "Insight"}}
	for _, m := range metrics {
		value := m.Value
		if m.Unit != "" {
			value = fmt.Sprintf("%s %s", m.Value, m.Unit)
		}
		rows = append(rows, []string{m.Name, value, m.Insight})
	}
	r.table(rows, []float64{50, 40, 90})
}

func (r *renderer) team(team []*models.TeamMemberRecord) {
	if len(team) == 0 {
		return
	}
	r.heading("Team")
	for _, member := range team {
		line := member.Name
		if member.Role != "" {
			line = fmt.Sprintf("%s - %s", member.Name, member.Role)
		}
		r.bullet(line)
		if member.BioSummary != "" {
			r.indented(member.BioSummary)
		}
	}
	r.pdf.Ln(4)
}

func (r *renderer) marketSizing(market *models.MarketInfoRecord) {
	if market == nil {
		return
	}
	r.heading("Market Sizing")
	if market.TAM != "" {
		r.keyValue("TAM", market.TAM)
	}
	if market.SAM != "" {
		r.keyValue("SAM", market.SAM)
	}
	if market.SOM != "" {
		r.keyValue("SOM", market.SOM)
	}
	if market.Analysis != "" {
		r.paragraph(market.Analysis)
	}
	r.pdf.Ln(4)
}

func (r *renderer) riskIndicators(indicators []*models.RiskIndicatorRecord) {
	if len(indicators) == 0 {
		return
	}
	r.heading("Risk Indicators")
	for _, ind := range indicators {
		r.bullet(fmt.Sprintf("[%s] %s", ind.Severity, ind.Title))
		if ind.Explanation != "" {
			r.indented(ind.Explanation)
		}
	}
	r.pdf.Ln(4)
}

func (r *renderer) riskAssessment(risk *models.RiskAssessmentRecord) {
	if risk == nil {
		return
	}
	r.heading("Risk Assessment")
	r.keyValue("Overall risk score", fmt.Sprintf("%.2f / 1.00", risk.OverallScore))
	r.keyValue("Confidence", fmt.Sprintf("%.2f", risk.ConfidenceScore))
	if risk.Summary != "" {
		r.paragraph(risk.Summary)
	}
	if risk.Recommendation != "" {
		r.subheading("Recommendation")
		r.paragraph(risk.Recommendation)
	}

	for _, module := range risk.Modules {
		r.subheading(moduleLabel(module.Module))
		score := fmt.Sprintf("Score %.2f, confidence %.2f", module.Score, module.Confidence)
		if module.Degraded {
			score += " (degraded)"
		}
		r.keyValue("Assessment", score)
		for _, finding := range module.Findings {
			r.bullet(finding)
		}
		for _, rec := range module.Recommendations {
			r.bullet("Recommendation: " + rec)
		}
	}
	r.pdf.Ln(4)
}

func (r *renderer) competitorLandscape(comp *models.CompetitorAnalysisRecord) {
	if comp == nil {
		return
	}
	r.heading("Competitive Landscape")
	r.keyValue("Positioning score", fmt.Sprintf("%.2f / 1.00", comp.OverallScore))
	if comp.MarketPosition != "" {
		r.paragraph(comp.MarketPosition)
	}
	if comp.CompetitiveAdvantage != "" {
		r.subheading("Competitive Advantage")
		r.paragraph(comp.CompetitiveAdvantage)
	}

	if len(comp.Competitors) > 0 {
		rows := [][]string{{"Competitor", "Threat", "Similarity", "Position"}}
		for _, c := range comp.Competitors {
			rows = append(rows, []string{
				c.Name,
				string(c.ThreatLevel),
				fmt.Sprintf("%.2f", c.SimilarityScore),
				c.MarketPosition,
			})
		}
		r.table(rows, []float64{45, 25, 25, 85})
	}

	r.listSection("Threats", comp.Threats)
	r.listSection("Opportunities", comp.Opportunities)
	r.listSection("Recommendations", comp.Recommendations)
}

func (r *renderer) listSection(title string, items []string) {
	if len(items) == 0 {
		return
	}
	r.subheading(title)
	for _, item := range items {
		r.bullet(item)
	}
}

func (r *renderer) heading(text string) {
	r.pdf.Ln(2)
	r.pdf.SetFont("Arial", "B", 13)
	r.pdf.MultiCell(0, 7, text, "", "L", false)
	r.pdf.SetFont("Arial", "", 10)
	r.pdf.Ln(1)
}

func (r *renderer) subheading(text string) {
	r.pdf.SetFont("Arial", "B", 10)
	r.pdf.MultiCell(0, 6, text, "", "L", false)
	r.pdf.SetFont("Arial", "", 10)
}

func (r *renderer) paragraph(text string) {
	r.pdf.SetFont("Arial", "", 10)
	r.pdf.MultiCell(0, 5, text, "", "L", false)
	r.pdf.Ln(1)
}

func (r *renderer) keyValue(key, value string) {
	r.pdf.SetFont("Arial", "B", 10)
	r.pdf.CellFormat(45, 5, key, "", 0, "L", false, 0, "")
	r.pdf.SetFont("Arial", "", 10)
	r.pdf.MultiCell(0, 5, value, "", "L", false)
}

func (r *renderer) bullet(text string) {
	r.pdf.SetFont("Arial", "", 10)
	r.pdf.SetX(20)
	r.pdf.MultiCell(0, 5, "- "+text, "", "L", false)
}

func (r *renderer) indented(text string) {
	r.pdf.SetFont("Arial", "I", 9)
	r.pdf.SetX(24)
	r.pdf.SetTextColor(80, 80, 80)
	r.pdf.MultiCell(0, 4.5, text, "", "L", false)
	r.pdf.SetTextColor(0, 0, 0)
	r.pdf.SetFont("Arial", "", 10)
}

// table renders a simple bordered table with a shaded header row. Cells are
// truncated to fit their column instead of wrapped.
func (r *renderer) table(rows [][]string, widths []float64) {
	for i, row := range rows {
		if i == 0 {
			r.pdf.SetFont("Arial", "B", 9)
			r.pdf.SetFillColor(230, 230, 230)
		} else {
			r.pdf.SetFont("Arial", "", 9)
			r.pdf.SetFillColor(255, 255, 255)
		}
		for j, cell := range row {
			if j >= len(widths) {
				break
			}
			r.pdf.CellFormat(widths[j], 6, r.fit(cell, widths[j]-2), "1", 0, "L", i == 0, 0, "")
		}
		r.pdf.Ln(-1)
	}
	r.pdf.SetFont("Arial", "", 10)
	r.pdf.Ln(3)
}

func (r *renderer) fit(text string, width float64) string {
	if r.pdf.GetStringWidth(text) <= width {
		return text
	}
	for len(text) > 3 && r.pdf.GetStringWidth(text+"...") > width {
		text = text[:len(text)-1]
	}
	return text + "..."
}

func moduleLabel(module models.RiskModule) string {
	switch module {
	case models.ModuleForensicAccountant:
		return "Forensic Accountant"
	case models.ModuleMarketStrategist:
		return "Market Strategist"
	case models.ModuleTalentScout:
		return "Talent Scout"
	case models.ModuleDevilsAdvocate:
		return "Devil's Advocate"
	}
	return string(module)
}
