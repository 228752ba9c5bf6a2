package specdex

import "github.com/tsubouchi/intelligence-agent-maker/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrValidation             = domain.ErrValidation
	ErrRateLimited            = domain.ErrRateLimited
	ErrProvider               = domain.ErrProvider
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrStore                  = domain.ErrStore
)
