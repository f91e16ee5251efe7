package models

import (
	"time"

	"github.com/google/uuid"
)

// Startup is the analysis target that owns data sources, jobs, and every
// finding the pipeline produces. OverallStatus is mutated only by the
// pipeline (orchestrator and stage workers), never by the read side.
type Startup struct {
	ID            string    `json:"id" badgerhold:"key"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	WebsiteURL    string    `json:"website_url,omitempty"`
	FinalSummary  string    `json:"final_summary,omitempty"`
	OverallStatus JobStatus `json:"overall_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewStartup creates a startup in the not_started state.
func NewStartup(name, description, websiteURL string) *Startup {
	now := time.Now().UTC()
	return &Startup{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   description,
		WebsiteURL:    websiteURL,
		OverallStatus: StatusNotStarted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
