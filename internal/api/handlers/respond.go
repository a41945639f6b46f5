// Package handlers implements the HTTP API. Handlers translate between the
// JSON surface and the services; they hold no business rules themselves.
package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/welth/internal/api/middleware"
	"github.com/dvloznov/welth/internal/domain"
	"github.com/dvloznov/welth/internal/ledger"
)

// statusFor maps an error kind to an HTTP status. Unknown errors are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrExtractionService), errors.Is(err, domain.ErrMalformedExtraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error as JSON. Validation failures carry the
// per-field messages; internal errors are logged and masked.
func respondError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := statusFor(err)

	var fieldErrs ledger.FieldErrors
	if errors.As(err, &fieldErrs) {
		middleware.WriteJSON(w, status, map[string]interface{}{
			"error":  "validation failed",
			"fields": fieldErrs,
		})
		return
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
		middleware.WriteError(w, status, "Internal server error")
		return
	}

	middleware.WriteError(w, status, err.Error())
}
