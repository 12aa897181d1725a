package authapi

import (
	"context"
	"errors"
	"net/http"

	"tasker/cmd/identity"
	"tasker/cmd/internal/auth/session"
)

// writeServiceError maps service errors onto the HTTP error envelope.
// Infrastructure failures are logged and answered with a generic 500.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case session.IsAuthFailure(err):
		writeUnauthorized(w)
	case identity.IsConflict(err):
		writeError(w, http.StatusBadRequest, "email_taken", "email is already in use")
	case identity.IsInvalidCredentials(err):
		writeError(w, http.StatusBadRequest, "invalid_credentials", "unable to login")
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_input", validationMessage(err))
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	default:
		h.log.ErrorContext(ctx, op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "unauthorized", "please authenticate")
}

// validationMessage renders per-field rule messages ("email: must be a valid
// email address."); rule messages never echo the submitted values.
func validationMessage(err error) string {
	var ve identity.ValidationError
	if !errors.As(err, &ve) {
		return "invalid input"
	}
	if len(ve.Fields) > 0 {
		return ve.Fields.Error()
	}
	if ve.Msg != "" {
		return ve.Msg
	}
	return "invalid input"
}
