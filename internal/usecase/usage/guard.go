package usage

import (
	"context"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
)

// GuardedEmbedder checks the budget before each embedding call and records its tokens.
type GuardedEmbedder struct {
	inner   domain.Embedder
	tracker *Tracker
}

// NewGuardedEmbedder wraps an embedder with a token budget.
func NewGuardedEmbedder(inner domain.Embedder, tracker *Tracker) *GuardedEmbedder {
	return &GuardedEmbedder{inner: inner, tracker: tracker}
}

// Embed implements domain.Embedder.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := g.tracker.Check(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}
	res, err := g.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	g.tracker.Record(ctx, int64(res.TotalTokens))
	return res, nil
}

// GuardedGenerator checks the budget before each chat call and records its tokens.
type GuardedGenerator struct {
	inner   Generator
	tracker *Tracker
}

// NewGuardedGenerator wraps a generator with a token budget.
func NewGuardedGenerator(inner Generator, tracker *Tracker) *GuardedGenerator {
	return &GuardedGenerator{inner: inner, tracker: tracker}
}

// Complete runs a guarded free-form completion.
func (g *GuardedGenerator) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	if err := g.tracker.Check(ctx); err != nil {
		return domain.Completion{}, err
	}
	c, err := g.inner.Complete(ctx, req)
	if err != nil {
		return domain.Completion{}, err
	}
	g.tracker.Record(ctx, int64(c.PromptTokens+c.CompletionTokens))
	return c, nil
}

// CompleteStructured runs a guarded constrained-schema call.
// Tokens are recorded even when the payload is missing.
func (g *GuardedGenerator) CompleteStructured(
	ctx context.Context, req domain.StructuredRequest,
) (domain.StructuredCompletion, error) {
	if err := g.tracker.Check(ctx); err != nil {
		return domain.StructuredCompletion{}, err
	}
	out, err := g.inner.CompleteStructured(ctx, req)
	g.tracker.Record(ctx, int64(out.PromptTokens+out.CompletionTokens))
	return out, err
}
