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

// StartupStorage implements the StartupStorage interface for Badger.
type StartupStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewStartupStorage creates a new StartupStorage instance.
func NewStartupStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StartupStorage {
	return &StartupStorage{db: db, logger: logger}
}

func (s *StartupStorage) SaveStartup(ctx context.Context, startup *models.Startup) error {
	if startup.ID == "" {
		return fmt.Errorf("startup ID is required")
	}
	startup.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Upsert(startup.ID, startup); err != nil {
		return fmt.Errorf("failed to save startup: %w", err)
	}
	return nil
}

func (s *StartupStorage) GetStartup(ctx context.Context, id string) (*models.Startup, error) {
	var startup models.Startup
	if err := s.db.Store().Get(id, &startup); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("startup %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get startup: %w", err)
	}
	return &startup, nil
}

func (s *StartupStorage) ListStartups(ctx context.Context) ([]*models.Startup, error) {
	var startups []models.Startup
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&startups, query); err != nil {
		return nil, fmt.Errorf("failed to list startups: %w", err)
	}
	result := make([]*models.Startup, len(startups))
	for i := range startups {
		result[i] = &startups[i]
	}
	return result, nil
}

func (s *StartupStorage) UpdateOverallStatus(ctx context.Context, id string, status models.JobStatus) error {
	startup, err := s.GetStartup(ctx, id)
	if err != nil {
		return err
	}
	startup.OverallStatus = status
	return s.SaveStartup(ctx, startup)
}

func (s *StartupStorage) UpdateSummary(ctx context.Context, id, description, finalSummary string) error {
	startup, err := s.GetStartup(ctx, id)
	if err != nil {
		return err
	}
	startup.Description = description
	startup.FinalSummary = finalSummary
	return s.SaveStartup(ctx, startup)
}
