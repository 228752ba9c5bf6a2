package generation

import (
	"context"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/usecase/extraction"
)

// Generator produces the document text.
type Generator interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error)
}

// Embedder vectorizes the generated document.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Extractor derives metadata from the generated document. It never fails.
type Extractor interface {
	Extract(ctx context.Context, in extraction.Input) extraction.Output
}

// Store persists the finished document.
type Store interface {
	Insert(ctx context.Context, doc *spec.Document) (string, error)
}

// Archiver links the new document into its owner's archive.
type Archiver interface {
	Link(ctx context.Context, userID, specID string) error
}
