package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/alphalens/internal/contracts"
)

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// StatusFor maps the error taxonomy onto HTTP status codes
// ⭐ SSOT: 에러 → HTTP 상태 매핑은 여기서만
func StatusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, contracts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, contracts.ErrInvalidState), errors.Is(err, contracts.ErrLockContention):
		return http.StatusConflict
	case errors.Is(err, contracts.ErrWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, contracts.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err with its mapped status; internal errors are not echoed
func respondErr(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		respondError(w, status, "Internal server error")
		return
	}
	respondJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  errorCode(err),
	})
}

func errorCode(err error) string {
	for _, e := range []error{
		contracts.ErrInvalidArgument,
		contracts.ErrPermissionDenied,
		contracts.ErrNotFound,
		contracts.ErrInvalidState,
		contracts.ErrLockContention,
		contracts.ErrWaitTimeout,
		contracts.ErrDataUnavailable,
	} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

// requesterID reads the caller identity header
func requesterID(r *http.Request) string {
	return r.Header.Get("X-Requester-ID")
}
