package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "tomodachi-cheki/internal/errors"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// statusForError maps a service error to an HTTP status and a client message.
// Receive rejections share one message so guests cannot probe photo state.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrReceiveRejected):
		return http.StatusNotFound, apperrors.ErrReceiveRejected.Error()
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, apperrors.ErrNotYetReceived):
		return http.StatusBadRequest, apperrors.ErrNotYetReceived.Error()
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, apperrors.ErrExpired):
		return http.StatusGone, apperrors.ErrExpired.Error()
	case errors.Is(err, apperrors.ErrAlreadyClaimed):
		return http.StatusConflict, apperrors.ErrAlreadyClaimed.Error()
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// respondServiceError logs server-side failures and answers with the mapped
// status.
func respondServiceError(w http.ResponseWriter, err error, msg string) {
	status, message := statusForError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
	} else {
		log.Debug().Err(err).Int("status", status).Msg(msg)
	}
	respondError(w, message, status)
}

// decodeJSON decodes a request body, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// HealthCheck handles GET /api/v1/health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
