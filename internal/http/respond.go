package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"notbroke/internal/auth"
	"notbroke/internal/core"
	applog "notbroke/internal/log"
	"notbroke/internal/storage"
)

type errorResponse struct {
	Error     string   `json:"error"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps domain errors to HTTP statuses. Unknown errors are
// logged and reported as a bare 500 so internals never leak.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, len(verrs))
		for i, fe := range verrs {
			details[i] = fe.Error()
		}
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "validation failed",
			Details: details,
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			"error", err, "method", r.Method, "url", r.URL.Path)
		respondJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}

	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrCategoryNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, core.ErrInvalidRange),
		errors.Is(err, errBadJSON),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest

	case errors.Is(err, storage.ErrDuplicateCategory),
		errors.Is(err, storage.ErrUsernameTaken),
		errors.Is(err, storage.ErrEmailTaken):
		return http.StatusConflict

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrAccountDisabled),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized

	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrNoteTooLong),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrMissingCategory),
		errors.Is(err, core.ErrUnsupportedCurrency),
		errors.Is(err, core.ErrCycleDetected),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong):
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}
