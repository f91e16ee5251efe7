// -----------------------------------------------------------------------
// Analyzer result shapes - structured output contracts for the three
// pipeline stages. Every analyzer returns one of these, schema-validated;
// a failed reasoning call yields a degraded-but-valid value, never an
// absent one.
// -----------------------------------------------------------------------

package models

import "time"

// Severity grades risk indicators and competitor threat levels.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// KeyMetric is a single metric extracted from source documents.
type KeyMetric struct {
	Name         string `json:"name"`
	Value        string `json:"value"`
	Unit         string `json:"unit,omitempty"`
	ReportedDate string `json:"reported_date,omitempty"` // free-form, as written in the document
	Insight      string `json:"insight,omitempty"`
}

// TeamMember is a founder or key executive mentioned in the documents.
type TeamMember struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	BioSummary  string `json:"bio_summary,omitempty"`
}

// MarketInfo holds market sizing claims. One per startup, upserted.
type MarketInfo struct {
	TAM      string `json:"tam,omitempty"`
	SAM      string `json:"sam,omitempty"`
	SOM      string `json:"som,omitempty"`
	Analysis string `json:"analysis,omitempty"`
}

// IsEmpty reports whether no sizing claim was extracted at all.
func (m MarketInfo) IsEmpty() bool {
	return m.TAM == "" && m.SAM == "" && m.SOM == "" && m.Analysis == ""
}

// RiskIndicator is a concern surfaced during ingestion.
type RiskIndicator struct {
	Title       string   `json:"title"`
	Explanation string   `json:"explanation"`
	Severity    Severity `json:"severity"`
}

// DocumentAnalysis is the ingestion analyzer's structured output over the
// combined text of all successfully extracted sources.
type DocumentAnalysis struct {
	Summary     string          `json:"summary"`
	KeyMetrics  []KeyMetric     `json:"key_metrics"`
	TeamMembers []TeamMember    `json:"team_members"`
	MarketInfo  *MarketInfo     `json:"market_info,omitempty"`
	Risks       []RiskIndicator `json:"risks"`
	Insights    []string        `json:"insights"`
}

// RiskModule identifies one of the four specialist risk-assessment modules.
type RiskModule string

const (
	ModuleForensicAccountant RiskModule = "forensic_accountant"
	ModuleMarketStrategist   RiskModule = "market_strategist"
	ModuleTalentScout        RiskModule = "talent_scout"
	ModuleDevilsAdvocate     RiskModule = "devils_advocate"
)

// AllRiskModules lists the modules in their canonical order.
var AllRiskModules = []RiskModule{
	ModuleForensicAccountant,
	ModuleMarketStrategist,
	ModuleTalentScout,
	ModuleDevilsAdvocate,
}

// ModuleAssessment is one specialist module's verdict. Score and Confidence
// are always present, even for a degraded assessment.
type ModuleAssessment struct {
	Module          RiskModule `json:"module"`
	Score           float64    `json:"score"`      // 0 = low risk, 1 = high risk
	Findings        []string   `json:"findings"`   // 2-3 specific findings
	Recommendations []string   `json:"recommendations"`
	Confidence      float64    `json:"confidence"` // 0-1
	Degraded        bool       `json:"degraded,omitempty"`
}

// RiskResult is the risk-assessment stage's structured output: the mean of
// the module scores and confidences plus a synthesized executive summary.
type RiskResult struct {
	OverallScore    float64            `json:"overall_score"`
	Summary         string             `json:"summary"`
	Recommendation  string             `json:"recommendation"`
	ConfidenceScore float64            `json:"confidence_score"`
	Modules         []ModuleAssessment `json:"module_assessments"`
	CompletedAt     time.Time          `json:"completed_at"`
}

// Competitor is a single company identified by the competitor analyzer.
type Competitor struct {
	Name            string   `json:"name"`
	Website         string   `json:"website,omitempty"`
	Description     string   `json:"description,omitempty"`
	MarketPosition  string   `json:"market_position,omitempty"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	SimilarityScore float64  `json:"similarity_score"` // 0-1
	ThreatLevel     Severity `json:"threat_level"`
	Funding         string   `json:"funding,omitempty"`
	Employees       string   `json:"employees,omitempty"`
	Founded         string   `json:"founded,omitempty"`
}

// CompetitorResult is the competitor-analysis stage's structured output.
type CompetitorResult struct {
	OverallScore         float64      `json:"overall_score"` // 1 = excellent positioning
	MarketPosition       string       `json:"market_position"`
	CompetitiveAdvantage string       `json:"competitive_advantage"`
	Threats              []string     `json:"threats"`
	Opportunities        []string     `json:"opportunities"`
	Recommendations      []string     `json:"recommendations"`
	ConfidenceScore      float64      `json:"confidence_score"`
	Competitors          []Competitor `json:"competitors"`
	CompletedAt          time.Time    `json:"completed_at"`
}

// ProcessedSource summarizes what happened to one data source during an
// ingestion job.
type ProcessedSource struct {
	DataSourceID string         `json:"data_source_id"`
	Type         DataSourceType `json:"type"`
	FileName     string         `json:"file_name,omitempty"`
	Status       JobStatus      `json:"status"`
	Error        string         `json:"error,omitempty"`
	ProcessedAt  time.Time      `json:"processed_at"`
}

// IngestionResult is the ingestion job's persisted result. The job is
// completed when TotalProcessed >= 1; partial success is success.
type IngestionResult struct {
	ProcessedSources []ProcessedSource `json:"processed_sources"`
	TotalProcessed   int               `json:"total_processed"`
	TotalFailed      int               `json:"total_failed"`
	Errors           []string          `json:"errors,omitempty"`
	CompletedAt      time.Time         `json:"completed_at"`
}

// HasSuccess reports whether at least one source made it through extraction
// and analysis, which is the fan-out condition for the downstream stages.
func (r IngestionResult) HasSuccess() bool {
	return r.TotalProcessed > 0
}
