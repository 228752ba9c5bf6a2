package search

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/daterange"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/mode"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

// --- Mocks ---

type mockStore struct {
	filteredFn  func(m filter.Match) ([]spec.Document, error)
	substringFn func(fields []filter.Field, pattern string) ([]spec.Document, error)
	vectorFn    func(q request.VectorQuery) ([]result.Scored, error)
	combinedFn  func(query string, facets *filter.Facets, limit int) ([]result.Scored, error)

	vectorCalled   bool
	combinedCalled bool
	lastFacets     *filter.Facets
}

func (m *mockStore) FilteredLookup(_ context.Context, match filter.Match) ([]spec.Document, error) {
	if m.filteredFn != nil {
		return m.filteredFn(match)
	}
	return nil, nil
}

func (m *mockStore) SubstringLookup(_ context.Context, fields []filter.Field, pattern string) ([]spec.Document, error) {
	if m.substringFn != nil {
		return m.substringFn(fields, pattern)
	}
	return nil, nil
}

func (m *mockStore) VectorLookup(_ context.Context, q request.VectorQuery) ([]result.Scored, error) {
	m.vectorCalled = true
	if m.vectorFn != nil {
		return m.vectorFn(q)
	}
	return nil, nil
}

func (m *mockStore) CombinedRank(
	_ context.Context, query string, _ []float32, facets *filter.Facets, limit int,
) ([]result.Scored, error) {
	m.combinedCalled = true
	m.lastFacets = facets
	if m.combinedFn != nil {
		return m.combinedFn(query, facets, limit)
	}
	return nil, nil
}

type mockEmbedder struct {
	vec    []float32
	err    error
	called int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.called++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, TotalTokens: 3}, nil
}

// --- Helpers ---

func newTestService(store *mockStore, emb *mockEmbedder) *Service {
	s := New(store, emb, Options{}, zap.NewNop())
	s.now = func() time.Time { return testNow }
	return s
}

func newDoc(id, title, content string) spec.Document {
	return spec.Reconstruct(id, "user-1", title, content, "Web", "GCP", []float32{0.1},
		metadata.Metadata{Keywords: []string{"kw"}}, testNow.Add(-time.Hour))
}

func newRequest(t *testing.T, query string, m mode.Mode, facets filter.Facets, dr daterange.Range) *request.Request {
	t.Helper()
	req, err := request.New(query, m, facets, dr)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return &req
}

// matchingStore answers substring and filtered lookups from docs with the real predicates.
func matchingStore(docs ...spec.Document) *mockStore {
	lookup := func(m filter.Match) ([]spec.Document, error) {
		var out []spec.Document
		for i := range docs {
			if m.Matches(&docs[i]) {
				out = append(out, docs[i])
			}
		}
		return out, nil
	}
	return &mockStore{
		filteredFn: lookup,
		substringFn: func(fields []filter.Field, pattern string) ([]spec.Document, error) {
			return lookup(filter.NewMatch(pattern, fields, nil))
		},
	}
}

func resultIDs(set result.Set) []string {
	res := set.Results()
	out := make([]string, len(res))
	for i := range res {
		out[i] = res[i].ID()
	}
	return out
}
