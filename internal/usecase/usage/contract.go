package usage

import (
	"context"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domusage "github.com/tsubouchi/intelligence-agent-maker/internal/domain/usage"
)

// Store persists budget counters. Add is called repeatedly for the same key.
type Store interface {
	Add(ctx context.Context, key string, period domusage.Period, tokens int64) error
	Load(ctx context.Context, key string) (int64, error)
}

// BudgetReader provides read-only access to one provider's budget state.
type BudgetReader interface {
	Provider() string
	Budget(period domusage.Period) domusage.Budget
}

// Generator is the chat provider guarded by GuardedGenerator.
type Generator interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error)
	CompleteStructured(ctx context.Context, req domain.StructuredRequest) (domain.StructuredCompletion, error)
}
