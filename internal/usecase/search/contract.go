package search

import (
	"context"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
)

// Store defines the document store contract for search operations.
type Store interface {
	// FilteredLookup returns the candidates admitted by the disjunctive predicate m.
	FilteredLookup(ctx context.Context, m filter.Match) ([]spec.Document, error)

	// SubstringLookup returns documents whose fields contain pattern (case-insensitive).
	SubstringLookup(ctx context.Context, fields []filter.Field, pattern string) ([]spec.Document, error)

	// VectorLookup returns threshold-ranked nearest neighbours, best first.
	VectorLookup(ctx context.Context, q request.VectorQuery) ([]result.Scored, error)

	// CombinedRank scores documents by lexical and vector similarity together.
	// facets is nil when no facet is requested.
	CombinedRank(
		ctx context.Context, query string, embedding []float32, facets *filter.Facets, limit int,
	) ([]result.Scored, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
