package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// FindingStorage implements the FindingStorage interface for Badger.
type FindingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewFindingStorage creates a new FindingStorage instance.
func NewFindingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.FindingStorage {
	return &FindingStorage{db: db, logger: logger}
}

// StoreDocumentAnalysis persists every finding of one ingestion analysis in
// a single transaction. The startup's prior metric, team, and risk rows are
// replaced rather than appended, so a redelivered ingestion job writes the
// same findings instead of a duplicate set; market info is upserted.
func (s *FindingStorage) StoreDocumentAnalysis(ctx context.Context, startupID string, analysis *models.DocumentAnalysis) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		if err := s.db.Store().TxDeleteMatching(txn, &models.KeyMetricRecord{},
			badgerhold.Where("StartupID").Eq(startupID).Index("StartupID")); err != nil {
			return fmt.Errorf("clear key metrics: %w", err)
		}
		if err := s.db.Store().TxDeleteMatching(txn, &models.TeamMemberRecord{},
			badgerhold.Where("StartupID").Eq(startupID).Index("StartupID")); err != nil {
			return fmt.Errorf("clear team members: %w", err)
		}
		if err := s.db.Store().TxDeleteMatching(txn, &models.RiskIndicatorRecord{},
			badgerhold.Where("StartupID").Eq(startupID).Index("StartupID")); err != nil {
			return fmt.Errorf("clear risk indicators: %w", err)
		}

		for _, metric := range analysis.KeyMetrics {
			rec := models.NewKeyMetricRecord(startupID, metric)
			if err := s.db.Store().TxInsert(txn, rec.ID, rec); err != nil {
				return fmt.Errorf("insert key metric: %w", err)
			}
		}
		for _, member := range analysis.TeamMembers {
			rec := models.NewTeamMemberRecord(startupID, member)
			if err := s.db.Store().TxInsert(txn, rec.ID, rec); err != nil {
				return fmt.Errorf("insert team member: %w", err)
			}
		}
		for _, risk := range analysis.Risks {
			rec := models.NewRiskIndicatorRecord(startupID, risk)
			if err := s.db.Store().TxInsert(txn, rec.ID, rec); err != nil {
				return fmt.Errorf("insert risk indicator: %w", err)
			}
		}
		if analysis.MarketInfo != nil && !analysis.MarketInfo.IsEmpty() {
			rec := &models.MarketInfoRecord{
				StartupID:  startupID,
				MarketInfo: *analysis.MarketInfo,
				UpdatedAt:  time.Now().UTC(),
			}
			if err := s.db.Store().TxUpsert(txn, startupID, rec); err != nil {
				return fmt.Errorf("upsert market info: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("startup_id", startupID).
		Int("metrics", len(analysis.KeyMetrics)).
		Int("team_members", len(analysis.TeamMembers)).
		Int("risks", len(analysis.Risks)).
		Msg("Stored document analysis findings")

	return nil
}

func (s *FindingStorage) UpsertMarketInfo(ctx context.Context, startupID string, info models.MarketInfo) error {
	rec := &models.MarketInfoRecord{StartupID: startupID, MarketInfo: info, UpdatedAt: time.Now().UTC()}
	if err := s.db.Store().Upsert(startupID, rec); err != nil {
		return fmt.Errorf("failed to upsert market info: %w", err)
	}
	return nil
}

// UpsertRiskAssessment replaces the startup's assessment wholesale, module
// rows included.
func (s *FindingStorage) UpsertRiskAssessment(ctx context.Context, startupID string, result *models.RiskResult) error {
	rec := &models.RiskAssessmentRecord{
		StartupID:       startupID,
		OverallScore:    result.OverallScore,
		Summary:         result.Summary,
		Recommendation:  result.Recommendation,
		ConfidenceScore: result.ConfidenceScore,
		Modules:         result.Modules,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.db.Store().Upsert(startupID, rec); err != nil {
		return fmt.Errorf("failed to upsert risk assessment: %w", err)
	}
	return nil
}

func (s *FindingStorage) SaveCompetitorAnalysis(ctx context.Context, startupID string, result *models.CompetitorResult) error {
	rec := &models.CompetitorAnalysisRecord{
		StartupID:            startupID,
		OverallScore:         result.OverallScore,
		MarketPosition:       result.MarketPosition,
		CompetitiveAdvantage: result.CompetitiveAdvantage,
		Threats:              result.Threats,
		Opportunities:        result.Opportunities,
		Recommendations:      result.Recommendations,
		ConfidenceScore:      result.ConfidenceScore,
		Competitors:          result.Competitors,
		UpdatedAt:            time.Now().UTC(),
	}
	if err := s.db.Store().Upsert(startupID, rec); err != nil {
		return fmt.Errorf("failed to save competitor analysis: %w", err)
	}
	return nil
}

func (s *FindingStorage) ListKeyMetrics(ctx context.Context, startupID string) ([]*models.KeyMetricRecord, error) {
	var recs []models.KeyMetricRecord
	query := badgerhold.Where("StartupID").Eq(startupID).Index("StartupID").SortBy("CreatedAt")
	if err := s.db.Store().Find(&recs, query); err != nil {
		return nil, fmt.Errorf("failed to list key metrics: %w", err)
	}
	result := make([]*models.KeyMetricRecord, len(recs))
	for i := range recs {
		result[i] = &recs[i]
	}
	return result, nil
}

func (s *FindingStorage) ListTeamMembers(ctx context.Context, startupID string) ([]*models.TeamMemberRecord, error) {
	var recs []models.TeamMemberRecord
	query := badgerhold.Where("StartupID").Eq(startupID).Index("StartupID").SortBy("CreatedAt")
	if err := s.db.Store().Find(&recs, query); err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	result := make([]*models.TeamMemberRecord, len(recs))
	for i := range recs {
		result[i] = &recs[i]
	}
	return result, nil
}

func (s *FindingStorage) ListRiskIndicators(ctx context.Context, startupID string) ([]*models.RiskIndicatorRecord, error) {
	var recs []models.RiskIndicatorRecord
	query := badgerhold.Where("StartupID").Eq(startupID).Index("StartupID").SortBy("CreatedAt")
	if err := s.db.Store().Find(&recs, query); err != nil {
		return nil, fmt.Errorf("failed to list risk indicators: %w", err)
	}
	result := make([]*models.RiskIndicatorRecord, len(recs))
	for i := range recs {
		result[i] = &recs[i]
	}
	return result, nil
}

func (s *FindingStorage) GetMarketInfo(ctx context.Context, startupID string) (*models.MarketInfoRecord, error) {
	var rec models.MarketInfoRecord
	if err := s.db.Store().Get(startupID, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get market info: %w", err)
	}
	return &rec, nil
}

func (s *FindingStorage) GetRiskAssessment(ctx context.Context, startupID string) (*models.RiskAssessmentRecord, error) {
	var rec models.RiskAssessmentRecord
	if err := s.db.Store().Get(startupID, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get risk assessment: %w", err)
	}
	return &rec, nil
}

func (s *FindingStorage) GetCompetitorAnalysis(ctx context.Context, startupID string) (*models.CompetitorAnalysisRecord, error) {
	var rec models.CompetitorAnalysisRecord
	if err := s.db.Store().Get(startupID, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get competitor analysis: %w", err)
	}
	return &rec, nil
}
