package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// ClaimStorage implements the transactional enqueue path. Selecting the
// claimable sources, creating the ingestion job row, and flipping the
// sources to pending all happen inside a single badger transaction, so a
// source can only ever be consumed by one ingestion job.
type ClaimStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewClaimStorage creates a new ClaimStorage instance.
func NewClaimStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ClaimStorage {
	return &ClaimStorage{db: db, logger: logger}
}

func (s *ClaimStorage) ClaimDataSources(ctx context.Context, startupID string) (*models.Job, []*models.DataSource, error) {
	var job *models.Job
	var claimed []*models.DataSource

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var sources []models.DataSource
		query := badgerhold.Where("StartupID").Eq(startupID).
			And("Status").Eq(models.StatusNotStarted).
			SortBy("CreatedAt")
		if err := s.db.Store().TxFind(txn, &sources, query); err != nil {
			return fmt.Errorf("find claimable sources: %w", err)
		}
		if len(sources) == 0 {
			return models.ErrNoSources
		}

		ids := make([]string, len(sources))
		for i := range sources {
			ids[i] = sources[i].ID
		}

		j, err := models.NewJob(startupID, models.JobTypeIngestion, &models.IngestionPayload{
			StartupID:     startupID,
			DataSourceIDs: ids,
		})
		if err != nil {
			return err
		}
		if err := s.db.Store().TxInsert(txn, j.ID, j); err != nil {
			return fmt.Errorf("insert ingestion job: %w", err)
		}

		now := time.Now().UTC()
		for i := range sources {
			sources[i].Status = models.StatusPending
			sources[i].UpdatedAt = now
			if err := s.db.Store().TxUpdate(txn, sources[i].ID, &sources[i]); err != nil {
				return fmt.Errorf("mark source %s pending: %w", sources[i].ID, err)
			}
		}

		job = j
		claimed = make([]*models.DataSource, len(sources))
		for i := range sources {
			claimed[i] = &sources[i]
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Debug().
		Str("startup_id", startupID).
		Str("job_id", job.ID).
		Int("sources", len(claimed)).
		Msg("Claimed data sources for ingestion")

	return job, claimed, nil
}

func (s *ClaimStorage) ReleaseClaim(ctx context.Context, jobID string, sourceIDs []string) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		if err := s.db.Store().TxDelete(txn, jobID, &models.Job{}); err != nil && err != badgerhold.ErrNotFound {
			return fmt.Errorf("delete job %s: %w", jobID, err)
		}

		now := time.Now().UTC()
		for _, id := range sourceIDs {
			var source models.DataSource
			if err := s.db.Store().TxGet(txn, id, &source); err != nil {
				if err == badgerhold.ErrNotFound {
					continue
				}
				return fmt.Errorf("get source %s: %w", id, err)
			}
			// Only sources still sitting in pending are reverted; anything a
			// worker already touched keeps its state.
			if source.Status != models.StatusPending {
				continue
			}
			source.Status = models.StatusNotStarted
			source.UpdatedAt = now
			if err := s.db.Store().TxUpdate(txn, id, &source); err != nil {
				return fmt.Errorf("revert source %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Warn().
		Str("job_id", jobID).
		Int("sources", len(sourceIDs)).
		Msg("Released ingestion claim after enqueue failure")

	return nil
}
