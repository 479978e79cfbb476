package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"collab-engine/internal/middleware"
	"collab-engine/internal/models"
	"collab-engine/internal/repository"
	"collab-engine/internal/services/collaboration"
)

// Error codes returned in ErrorResponse.Code
const (
	CodeNotFound       = "NOT_FOUND_ERROR"
	CodeValidation     = "VALIDATION_ERROR"
	CodeConflict       = "CONFLICT_ERROR"
	CodeStaleOperation = "STALE_OPERATION"
	CodeBusy           = "BUSY"
	CodeInternal       = "INTERNAL_SERVER_ERROR"
)

// ErrorResponse is the JSON body of every error
type ErrorResponse struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Conflict *models.ConflictNotice `json:"conflict,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps err onto a status code and error code
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: err.Error()}

	var conflictErr *collaboration.ConflictError
	switch {
	case errors.As(err, &conflictErr):
		status, resp.Code = http.StatusConflict, CodeConflict
		resp.Conflict = collaboration.NewConflictNotice(conflictErr.Conflict, conflictErr.ResolvedContent)
	case errors.Is(err, collaboration.ErrSessionNotFound), errors.Is(err, collaboration.ErrCursorNotFound),
		errors.Is(err, repository.ErrNotFound):
		status, resp.Code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, collaboration.ErrAlreadyExists):
		status, resp.Code = http.StatusConflict, CodeConflict
	case errors.Is(err, collaboration.ErrInvalidOperation), errors.Is(err, models.ErrMalformedOperation),
		errors.Is(err, errValidation):
		status, resp.Code = http.StatusBadRequest, CodeValidation
	case errors.Is(err, collaboration.ErrStaleOperation):
		status, resp.Code = http.StatusConflict, CodeStaleOperation
	case errors.Is(err, collaboration.ErrBusy):
		status, resp.Code = http.StatusServiceUnavailable, CodeBusy
		w.Header().Set("Retry-After", "1")
	default:
		log.Printf("[%s] %s %s failed: %v", middleware.GetRequestID(r.Context()), r.Method, r.URL.Path, err)
		resp.Message = "internal server error"
	}

	middleware.AddSpanError(r.Context(), err)
	writeJSON(w, status, resp)
}
