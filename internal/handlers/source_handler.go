package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// maxUploadSize bounds an uploaded document.
const maxUploadSize = 50 << 20

// ObjectPutter is the upload slice of the object store.
type ObjectPutter interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
}

// SourceHandler attaches data sources to a startup: pasted text as JSON,
// uploaded documents as multipart form data.
type SourceHandler struct {
	storage interfaces.StorageManager
	objects ObjectPutter
	logger  arbor.ILogger
}

// NewSourceHandler creates the data source handler.
func NewSourceHandler(storage interfaces.StorageManager, objects ObjectPutter, logger arbor.ILogger) *SourceHandler {
	return &SourceHandler{storage: storage, objects: objects, logger: logger}
}

type createSourceRequest struct {
	Type     models.DataSourceType `json:"type"`
	Content  string                `json:"content"`
	FileName string                `json:"file_name"`
	URL      string                `json:"url"`
}

// CreateHandler handles POST /api/startups/{id}/sources.
func (h *SourceHandler) CreateHandler(w http.ResponseWriter, r *http.Request, startupID string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if _, err := h.storage.StartupStorage().GetStartup(r.Context(), startupID); err != nil {
		WriteDomainError(w, err)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		h.createFromUpload(w, r, startupID)
		return
	}
	h.createFromJSON(w, r, startupID)
}

func (h *SourceHandler) createFromUpload(w http.ResponseWriter, r *http.Request, startupID string) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteDomainError(w, &models.ValidationError{Field: "file", Reason: "missing file field"})
		return
	}
	defer file.Close()

	fileName := filepath.Base(header.Filename)
	if fileName == "" || fileName == "." {
		WriteDomainError(w, &models.ValidationError{Field: "file", Reason: "missing file name"})
		return
	}

	key := fmt.Sprintf("startups/%s/%s_%s", startupID, uuid.New().String(), fileName)
	size, err := h.objects.Put(r.Context(), key, file)
	if err != nil {
		h.logger.Error().Err(err).Str("startup_id", startupID).Msg("Failed to store uploaded file")
		WriteDomainError(w, err)
		return
	}

	source := models.NewDataSource(startupID, models.SourceTypeFileUpload)
	source.FileName = fileName
	source.SourceURL = key
	if err := h.storage.DataSourceStorage().SaveDataSource(r.Context(), source); err != nil {
		WriteDomainError(w, err)
		return
	}

	h.logger.Info().
		Str("startup_id", startupID).
		Str("source_id", source.ID).
		Str("file_name", fileName).
		Int64("size", size).
		Msg("File source attached")
	WriteJSON(w, http.StatusCreated, source)
}

func (h *SourceHandler) createFromJSON(w http.ResponseWriter, r *http.Request, startupID string) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var source *models.DataSource
	switch req.Type {
	case models.SourceTypeTextInput:
		if strings.TrimSpace(req.Content) == "" {
			WriteDomainError(w, &models.ValidationError{Field: "content", Reason: "text input requires content"})
			return
		}
		source = models.NewDataSource(startupID, models.SourceTypeTextInput)
		source.Content = req.Content
		source.FileName = req.FileName
	case models.SourceTypeURL:
		if strings.TrimSpace(req.URL) == "" {
			WriteDomainError(w, &models.ValidationError{Field: "url", Reason: "url source requires a url"})
			return
		}
		source = models.NewDataSource(startupID, models.SourceTypeURL)
		source.SourceURL = req.URL
	default:
		WriteDomainError(w, &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown source type %q", req.Type)})
		return
	}

	if err := h.storage.DataSourceStorage().SaveDataSource(r.Context(), source); err != nil {
		WriteDomainError(w, err)
		return
	}

	h.logger.Info().
		Str("startup_id", startupID).
		Str("source_id", source.ID).
		Str("type", string(source.Type)).
		Msg("Source attached")
	WriteJSON(w, http.StatusCreated, source)
}
