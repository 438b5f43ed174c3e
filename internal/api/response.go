package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shohag/notifyd/internal/models"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps structured domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var de *models.Error
	if errors.As(err, &de) {
		status := http.StatusBadRequest
		switch de.Code {
		case models.CodeNotFound:
			status = http.StatusNotFound
		case models.CodeTransition, models.CodeImmutable, models.CodeRetryNotAllowed:
			status = http.StatusConflict
		}
		writeJSON(w, status, errorResponse{Error: de.Message, Code: de.Code})
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
