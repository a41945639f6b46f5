package domain

import "errors"

// Sentinel error kinds. Services wrap these with fmt.Errorf("...: %w", ...)
// so callers can classify failures with errors.Is while keeping the cause.
var (
	// ErrInvalidInput marks a request rejected before any external call
	// (bad file size, wrong MIME type, malformed fields).
	ErrInvalidInput = errors.New("invalid input")

	// ErrExtractionService marks an upstream AI failure or timeout.
	ErrExtractionService = errors.New("extraction service failure")

	// ErrMalformedExtraction marks an unparseable AI response.
	ErrMalformedExtraction = errors.New("malformed extraction response")

	// ErrUnauthorized marks a request with no authenticated user.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound marks a missing account, transaction or user.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited marks a request denied by the abuse-protection
	// collaborator before any side effects.
	ErrRateLimited = errors.New("rate limited")

	// ErrValidation marks schema-level field errors on submission.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence marks a failed atomic commit.
	ErrPersistence = errors.New("persistence failure")
)
