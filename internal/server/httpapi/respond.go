package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/theworldofobi/mini-dropbox/internal/common"
	"github.com/theworldofobi/mini-dropbox/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError maps the engine's error taxonomy onto HTTP statuses. Expired
// links answer 410 rather than 404 so a client can tell "request a new link"
// from "check the URL"; a revoked link answers 403 for the same reason.
func statusForError(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusGone
	case errors.Is(err, common.ErrTokenRevoked), errors.Is(err, common.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, logger logging.Logger, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.Error(ctx, "request failed", "error", err.Error())
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
