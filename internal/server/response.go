package server

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the standard response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError is the error body of a failed request.
type APIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Error codes.
const (
	CodeBadRequest  = "BAD_REQUEST"
	CodeValidation  = "VALIDATION_FAILED"
	CodeNotFound    = "NOT_FOUND"
	CodeUnavailable = "ENGINE_STOPPED"
	CodeInternal    = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Error: &APIError{Code: code, Message: message, Details: details},
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, CodeBadRequest, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, CodeNotFound, message)
}

func unavailable(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "engine is not accepting events")
}

func internalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, CodeInternal, message)
}
