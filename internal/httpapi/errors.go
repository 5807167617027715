package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"llmhost/internal/engine"
	"llmhost/internal/manager"
	"llmhost/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeJSON encodes v with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// statusFor maps manager and engine failures onto HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case manager.IsInvalidRequest(err):
		return http.StatusBadRequest
	case manager.IsModelNotFound(err):
		return http.StatusNotFound
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrPoisoned), errors.Is(err, engine.ErrNotLoaded):
		return http.StatusConflict
	case errors.Is(err, engine.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrContextOverflow):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, engine.ErrModelLoad), errors.Is(err, engine.ErrContextCreate), errors.Is(err, engine.ErrMultimodalInit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status and counts 429s.
func writeServiceError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue")
	}
	writeJSONError(w, status, err.Error())
	return status
}
