package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// DataSourceStorage implements the DataSourceStorage interface for Badger.
// Status updates go through the forward-only transition check; the pipeline
// never moves a source backwards.
type DataSourceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDataSourceStorage creates a new DataSourceStorage instance.
func NewDataSourceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DataSourceStorage {
	return &DataSourceStorage{db: db, logger: logger}
}

func (s *DataSourceStorage) SaveDataSource(ctx context.Context, source *models.DataSource) error {
	if source.ID == "" {
		return fmt.Errorf("data source ID is required")
	}
	source.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Upsert(source.ID, source); err != nil {
		return fmt.Errorf("failed to save data source: %w", err)
	}
	return nil
}

func (s *DataSourceStorage) GetDataSource(ctx context.Context, id string) (*models.DataSource, error) {
	var source models.DataSource
	if err := s.db.Store().Get(id, &source); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("data source %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}
	return &source, nil
}

func (s *DataSourceStorage) ListDataSources(ctx context.Context, startupID string, statusFilter models.JobStatus) ([]*models.DataSource, error) {
	query := badgerhold.Where("StartupID").Eq(startupID).Index("StartupID")
	if statusFilter != "" {
		query = query.And("Status").Eq(statusFilter)
	}
	query = query.SortBy("CreatedAt")

	var sources []models.DataSource
	if err := s.db.Store().Find(&sources, query); err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	result := make([]*models.DataSource, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result, nil
}

func (s *DataSourceStorage) UpdateDataSourceStatus(ctx context.Context, id string, status models.JobStatus) error {
	source, err := s.GetDataSource(ctx, id)
	if err != nil {
		return err
	}
	if source.Status == status {
		return nil
	}
	if !source.Status.CanTransition(status) {
		return fmt.Errorf("illegal data source transition %s -> %s for %s", source.Status, status, id)
	}
	source.Status = status
	return s.SaveDataSource(ctx, source)
}

func (s *DataSourceStorage) UpdateDataSourceContent(ctx context.Context, id, content string) error {
	source, err := s.GetDataSource(ctx, id)
	if err != nil {
		return err
	}
	source.Content = content
	return s.SaveDataSource(ctx, source)
}
