package models

import (
	"time"

	"github.com/google/uuid"
)

// Finding records are the persisted form of analyzer output. Append-only
// rows (metrics, team members, risk indicators) get their own UUID key;
// one-per-startup aggregates (market info, risk assessment, competitor
// analysis) are keyed by startup ID and upserted.

// KeyMetricRecord is a stored key metric.
type KeyMetricRecord struct {
	ID        string `json:"id" badgerhold:"key"`
	StartupID string `json:"startup_id" badgerhold:"index"`
	KeyMetric
	CreatedAt time.Time `json:"created_at"`
}

// TeamMemberRecord is a stored team member.
type TeamMemberRecord struct {
	ID        string `json:"id" badgerhold:"key"`
	StartupID string `json:"startup_id" badgerhold:"index"`
	TeamMember
	CreatedAt time.Time `json:"created_at"`
}

// RiskIndicatorRecord is a stored risk indicator.
type RiskIndicatorRecord struct {
	ID        string `json:"id" badgerhold:"key"`
	StartupID string `json:"startup_id" badgerhold:"index"`
	RiskIndicator
	CreatedAt time.Time `json:"created_at"`
}

// MarketInfoRecord holds the single market-sizing row for a startup.
type MarketInfoRecord struct {
	StartupID string `json:"startup_id" badgerhold:"key"`
	MarketInfo
	UpdatedAt time.Time `json:"updated_at"`
}

// RiskAssessmentRecord holds the single risk-assessment aggregate for a
// startup, module assessments included. Re-running the stage replaces the
// module rows wholesale.
type RiskAssessmentRecord struct {
	StartupID       string             `json:"startup_id" badgerhold:"key"`
	OverallScore    float64            `json:"overall_score"`
	Summary         string             `json:"summary"`
	Recommendation  string             `json:"recommendation"`
	ConfidenceScore float64            `json:"confidence_score"`
	Modules         []ModuleAssessment `json:"module_assessments"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// CompetitorAnalysisRecord holds the single competitor-analysis aggregate
// for a startup.
type CompetitorAnalysisRecord struct {
	StartupID            string       `json:"startup_id" badgerhold:"key"`
	OverallScore         float64      `json:"overall_score"`
	MarketPosition       string       `json:"market_position"`
	CompetitiveAdvantage string       `json:"competitive_advantage"`
	Threats              []string     `json:"threats"`
	Opportunities        []string     `json:"opportunities"`
	Recommendations      []string     `json:"recommendations"`
	ConfidenceScore      float64      `json:"confidence_score"`
	Competitors          []Competitor `json:"competitors"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// NewKeyMetricRecord wraps a metric for storage.
func NewKeyMetricRecord(startupID string, m KeyMetric) *KeyMetricRecord {
	return &KeyMetricRecord{ID: uuid.New().String(), StartupID: startupID, KeyMetric: m, CreatedAt: time.Now().UTC()}
}

// NewTeamMemberRecord wraps a team member for storage.
func NewTeamMemberRecord(startupID string, m TeamMember) *TeamMemberRecord {
	return &TeamMemberRecord{ID: uuid.New().String(), StartupID: startupID, TeamMember: m, CreatedAt: time.Now().UTC()}
}

// NewRiskIndicatorRecord wraps a risk indicator for storage.
func NewRiskIndicatorRecord(startupID string, r RiskIndicator) *RiskIndicatorRecord {
	return &RiskIndicatorRecord{ID: uuid.New().String(), StartupID: startupID, RiskIndicator: r, CreatedAt: time.Now().UTC()}
}
