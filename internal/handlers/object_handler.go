package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/services/objectstore"
)

// ObjectOpener verifies a signed read request and opens the object.
type ObjectOpener interface {
	Open(ctx context.Context, key string, exp int64, sig string) (io.ReadCloser, error)
}

// ObjectHandler serves stored objects through their time-limited signed
// URLs. This is the read half of the object store; uploads go through the
// source handler.
type ObjectHandler struct {
	objects ObjectOpener
	logger  arbor.ILogger
}

// NewObjectHandler creates the signed object handler.
func NewObjectHandler(objects ObjectOpener, logger arbor.ILogger) *ObjectHandler {
	return &ObjectHandler{objects: objects, logger: logger}
}

// GetHandler handles GET /api/objects/{key} with exp and sig query
// parameters. An invalid or expired signature answers 404, never revealing
// whether the object exists.
func (h *ObjectHandler) GetHandler(w http.ResponseWriter, r *http.Request, key string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	exp, sig, err := objectstore.ParseSignedQuery(r.URL.Query())
	if err != nil {
		WriteError(w, http.StatusNotFound, "not found")
		return
	}

	rc, err := h.objects.Open(r.Context(), key, exp, sig)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("Object stream interrupted")
	}
}
