package models

import (
	"time"

	"github.com/google/uuid"
)

// DataSourceType identifies where a data source's raw content comes from.
type DataSourceType string

const (
	SourceTypeFileUpload DataSourceType = "file_upload"
	SourceTypeTextInput  DataSourceType = "text_input"
	SourceTypeURL        DataSourceType = "url" // accepted but not yet processable
)

// DataSource is a single uploaded document or pasted text belonging to one
// startup. Its status is driven exclusively by the ingestion job that claims
// it; the downstream stages never touch it.
type DataSource struct {
	ID        string         `json:"id" badgerhold:"key"`
	StartupID string         `json:"startup_id" badgerhold:"index"`
	Type      DataSourceType `json:"type"`
	FileName  string         `json:"file_name,omitempty"`
	SourceURL string         `json:"source_url,omitempty"` // object store key for file uploads
	Content   string         `json:"content,omitempty"`    // inline text, or extracted snippet after ingestion
	Status    JobStatus      `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewDataSource creates a data source in the not_started state.
func NewDataSource(startupID string, sourceType DataSourceType) *DataSource {
	now := time.Now().UTC()
	return &DataSource{
		ID:        uuid.New().String(),
		StartupID: startupID,
		Type:      sourceType,
		Status:    StatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
