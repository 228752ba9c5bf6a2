package extraction

import (
	"context"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
)

// Generator performs a constrained-schema model call.
type Generator interface {
	CompleteStructured(ctx context.Context, req domain.StructuredRequest) (domain.StructuredCompletion, error)
}
