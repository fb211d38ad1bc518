package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rcliao/recall/internal/orchestrator"
	"github.com/rcliao/recall/internal/store"
)

// ErrorResponse is the error body every endpoint returns.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnprocessable    = "UNPROCESSABLE_ENTITY"
	ErrCodeInternalServer   = "INTERNAL_SERVER_ERROR"
)

// writeJSON writes data as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes an error body.
func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: requestID,
	}})
}

// statusFromError maps domain errors to HTTP status codes.
func statusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, store.ErrAlreadyConsolidated):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, store.ErrDimensionMismatch), errors.Is(err, store.ErrInvalidEmbedding):
		return http.StatusUnprocessableEntity, ErrCodeUnprocessable
	case errors.Is(err, store.ErrEmptyContent), errors.Is(err, store.ErrTooFewSources),
		errors.Is(err, orchestrator.ErrEmptyQuery):
		return http.StatusBadRequest, ErrCodeValidationFailed
	default:
		return http.StatusInternalServerError, ErrCodeInternalServer
	}
}
