package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"bilancio/internal/auth"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/sheets"
)

type errorBody struct {
	Error string `json:"error"`
}

var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidKind,
	core.ErrInvalidDate,
	core.ErrInvalidMonth,
	core.ErrNoteTooLong,
	core.ErrEmptyName,
	core.ErrNameTooLong,
	core.ErrInvalidEmail,
	core.ErrWeakPassword,
	errBodyTooLarge,
}

// statusFor maps domain errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusBadRequest
		}
	}
	switch {
	case errors.Is(err, core.ErrCategoryKindMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicate),
		errors.Is(err, core.ErrAlreadyInFamily),
		errors.Is(err, core.ErrDefaultCategory):
		return http.StatusConflict
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInvalidCredentials),
		errors.Is(err, core.ErrNoOwner),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, sheets.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": "..."}. Internal errors are logged and
// replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err, applog.FieldPath, r.URL.Path, applog.FieldMethod, r.Method)
		msg = "internal error"
	case http.StatusUnauthorized:
		if errors.Is(err, core.ErrNoOwner) || errors.Is(err, auth.ErrInvalidToken) {
			msg = "unauthorized"
		}
	case http.StatusGatewayTimeout:
		msg = "upstream timeout"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeHTMLError is writeError for htmx fragments.
func writeHTMLError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "UI request failed",
			applog.FieldError, err, applog.FieldPath, r.URL.Path)
		msg = "Something went wrong, please retry"
	}
	ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
}
