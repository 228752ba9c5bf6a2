// Package embedding holds embedder decorators shared by the search and generation paths.
package embedding

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
)

// InstrumentedEmbedder wraps an Embedder with input guarding and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	maxRunes int
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder. Inputs longer than maxRunes characters
// are cut before the call; zero disables the cap.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string, maxRunes int, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		maxRunes: maxRunes,
		logger:   logger,
	}
}

// Embed rejects blank input, delegates to the inner embedder and logs the outcome.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	if text == "" {
		return domain.EmbeddingResult{}, domain.NewValidationError("text", "nothing to embed")
	}
	if p.maxRunes > 0 && utf8.RuneCountInString(text) > p.maxRunes {
		text = string([]rune(text)[:p.maxRunes])
	}

	start := time.Now()

	result, err := p.inner.Embed(ctx, text)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}
