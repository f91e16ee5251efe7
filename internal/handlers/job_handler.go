package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
)

// JobHandler serves individual pipeline jobs. The database row is the
// authoritative state; the queue snapshot rides along as informational
// detail.
type JobHandler struct {
	storage interfaces.StorageManager
	runtime interfaces.QueueRuntime
	logger  arbor.ILogger
}

// NewJobHandler creates the job handler.
func NewJobHandler(storage interfaces.StorageManager, runtime interfaces.QueueRuntime, logger arbor.ILogger) *JobHandler {
	return &JobHandler{storage: storage, runtime: runtime, logger: logger}
}

// GetHandler handles GET /api/jobs/{id}.
func (h *JobHandler) GetHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	job, err := h.storage.JobStorage().GetJob(r.Context(), jobID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	response := map[string]interface{}{"job": job}
	if q := h.runtime.Queue(job.Type); q != nil {
		snapshot, err := q.GetStatus(r.Context(), jobID)
		if err != nil {
			h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Queue snapshot unavailable")
		} else if snapshot != nil {
			response["queue"] = snapshot
		}
	}
	WriteJSON(w, http.StatusOK, response)
}
