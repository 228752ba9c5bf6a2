package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation signals a malformed or missing request field.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")

	// ErrProvider signals an upstream model provider failure (quota, auth, timeout).
	ErrProvider = errors.New("provider error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = fmt.Errorf("embedding %w", ErrProvider)
	// ErrGenerationProviderError signals a generation provider failure.
	ErrGenerationProviderError = fmt.Errorf("generation %w", ErrProvider)
	// ErrNoStructuredPayload signals a structured call that returned no function payload.
	ErrNoStructuredPayload = errors.New("no structured payload in response")

	// ErrStore signals a persistence or query failure.
	ErrStore = errors.New("store error")

	// ErrExtractionValidation signals a malformed structured extraction payload.
	// It never leaves the extraction pipeline.
	ErrExtractionValidation = errors.New("extraction payload invalid")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for a field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
