package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
	"github.com/perlustro/perlustro/internal/services/status"
)

// IngestionEnqueuer is the slice of the orchestrator the handlers need.
type IngestionEnqueuer interface {
	EnqueueIngestion(ctx context.Context, startupID string) (*models.Job, error)
}

// StatusProvider resolves the merged pipeline view for a startup.
type StatusProvider interface {
	Status(ctx context.Context, startupID string) (*status.View, error)
}

// ReportRenderer renders the analysis report PDF.
type ReportRenderer interface {
	Generate(ctx context.Context, startupID string) ([]byte, error)
}

// StartupHandler serves the startup lifecycle: creation, analysis trigger,
// status polling, and the aggregated read side.
type StartupHandler struct {
	storage    interfaces.StorageManager
	enqueuer   IngestionEnqueuer
	aggregator StatusProvider
	report     ReportRenderer
	validate   *validator.Validate
	logger     arbor.ILogger
}

// NewStartupHandler creates the startup handler.
func NewStartupHandler(storage interfaces.StorageManager, enqueuer IngestionEnqueuer, aggregator StatusProvider, report ReportRenderer, logger arbor.ILogger) *StartupHandler {
	return &StartupHandler{
		storage:    storage,
		enqueuer:   enqueuer,
		aggregator: aggregator,
		report:     report,
		validate:   validator.New(),
		logger:     logger,
	}
}

type createStartupRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=5000"`
	WebsiteURL  string `json:"website_url" validate:"omitempty,url"`
}

// CreateHandler handles POST /api/startups.
func (h *StartupHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req createStartupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	startup := models.NewStartup(req.Name, req.Description, req.WebsiteURL)
	if err := h.storage.StartupStorage().SaveStartup(r.Context(), startup); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create startup")
		WriteDomainError(w, err)
		return
	}

	h.logger.Info().Str("startup_id", startup.ID).Str("name", startup.Name).Msg("Startup created")
	WriteJSON(w, http.StatusCreated, startup)
}

// ListHandler handles GET /api/startups.
func (h *StartupHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	startups, err := h.storage.StartupStorage().ListStartups(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list startups")
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"startups": startups,
		"count":    len(startups),
	})
}

// GetHandler handles GET /api/startups/{id}.
func (h *StartupHandler) GetHandler(w http.ResponseWriter, r *http.Request, startupID string) {
	startup, err := h.storage.StartupStorage().GetStartup(r.Context(), startupID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	sources, err := h.storage.DataSourceStorage().ListDataSources(r.Context(), startupID, "")
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"startup":      startup,
		"data_sources": sources,
	})
}

// AnalyzeHandler handles POST /api/startups/{id}/analyze: claims the
// startup's unprocessed sources into an ingestion job. A startup with
// nothing left to claim answers 409.
func (h *StartupHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request, startupID string) {
	if _, err := h.storage.StartupStorage().GetStartup(r.Context(), startupID); err != nil {
		WriteDomainError(w, err)
		return
	}

	job, err := h.enqueuer.EnqueueIngestion(r.Context(), startupID)
	if err != nil {
		h.logger.Warn().Err(err).Str("startup_id", startupID).Msg("Analysis enqueue rejected")
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.ID,
		"startup_id": startupID,
		"status":     string(job.Status),
	})
}

// StatusHandler handles GET /api/startups/{id}/status, the polling
// endpoint.
func (h *StartupHandler) StatusHandler(w http.ResponseWriter, r *http.Request, startupID string) {
	view, err := h.aggregator.Status(r.Context(), startupID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// AnalysisHandler handles GET /api/startups/{id}/analysis: every finding
// the pipeline persisted for the startup.
func (h *StartupHandler) AnalysisHandler(w http.ResponseWriter, r *http.Request, startupID string) {
	ctx := r.Context()
	startup, err := h.storage.StartupStorage().GetStartup(ctx, startupID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	findings := h.storage.FindingStorage()
	metrics, err := findings.ListKeyMetrics(ctx, startupID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	team, err := findings.ListTeamMembers(ctx, startupID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	risks, err := findings.ListRiskIndicators(ctx, startupID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	response := map[string]interface{}{
		"startup":         startup,
		"key_metrics":     metrics,
		"team_members":    team,
		"risk_indicators": risks,
	}
	// the one-per-startup aggregates only appear once their stage ran
	if market, err := findings.GetMarketInfo(ctx, startupID); err == nil {
		response["market_info"] = market
	}
	if risk, err := findings.GetRiskAssessment(ctx, startupID); err == nil {
		response["risk_assessment"] = risk
	}
	if comp, err := findings.GetCompetitorAnalysis(ctx, startupID); err == nil {
		response["competitor_analysis"] = comp
	}
	WriteJSON(w, http.StatusOK, response)
}

// ReportHandler handles GET /api/startups/{id}/report, returning the
// rendered PDF.
func (h *StartupHandler) ReportHandler(w http.ResponseWriter, r *http.Request, startupID string) {
	pdf, err := h.report.Generate(r.Context(), startupID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="analysis-report.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
