package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/perlustro/perlustro/internal/models"
)

// RequireMethod validates the HTTP method, writing a 405 when it does not
// match.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteDomainError maps the pipeline error taxonomy onto HTTP statuses.
// Nothing internal leaks; the message is the error text the taxonomy
// already deems user-visible.
func WriteDomainError(w http.ResponseWriter, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		WriteError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, models.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrNoSources):
		WriteError(w, http.StatusConflict, models.ErrNoSources.Error())
	case errors.Is(err, models.ErrDuplicateJob):
		WriteError(w, http.StatusConflict, models.ErrDuplicateJob.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
