package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/common"
	"github.com/perlustro/perlustro/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger.
type Manager struct {
	db         *BadgerDB
	startup    interfaces.StartupStorage
	dataSource interfaces.DataSourceStorage
	job        interfaces.JobStorage
	claim      interfaces.ClaimStorage
	finding    interfaces.FindingStorage
	logger     arbor.ILogger
}

var _ interfaces.StorageManager = (*Manager)(nil)

// NewManager creates a new Badger storage manager.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}
	return newManagerWithDB(db, logger), nil
}

func newManagerWithDB(db *BadgerDB, logger arbor.ILogger) *Manager {
	m := &Manager{
		db:         db,
		startup:    NewStartupStorage(db, logger),
		dataSource: NewDataSourceStorage(db, logger),
		job:        NewJobStorage(db, logger),
		finding:    NewFindingStorage(db, logger),
		logger:     logger,
	}
	m.claim = NewClaimStorage(db, logger)
	logger.Info().Msg("Badger storage manager initialized")
	return m
}

// DB exposes the shared database connection for the queue runtime.
func (m *Manager) DB() *BadgerDB { return m.db }

func (m *Manager) StartupStorage() interfaces.StartupStorage       { return m.startup }
func (m *Manager) DataSourceStorage() interfaces.DataSourceStorage { return m.dataSource }
func (m *Manager) JobStorage() interfaces.JobStorage               { return m.job }
func (m *Manager) ClaimStorage() interfaces.ClaimStorage           { return m.claim }
func (m *Manager) FindingStorage() interfaces.FindingStorage       { return m.finding }

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
