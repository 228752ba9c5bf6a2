package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/daterange"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/mode"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

func TestSearch_EmptyQueryRejected(t *testing.T) {
	svc := newTestService(&mockStore{}, &mockEmbedder{})
	// Built directly to bypass request.New validation.
	var req request.Request

	_, err := svc.Search(context.Background(), &req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSearch_MetadataAllowsEmptyQuery(t *testing.T) {
	store := matchingStore(newDoc("a", "t", "c"), newDoc("b", "t", "c"))
	svc := newTestService(store, &mockEmbedder{})

	set, err := svc.Search(context.Background(),
		newRequest(t, "", mode.Metadata, filter.Facets{}, daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Results()) != 2 {
		t.Fatalf("expected every document, got %v", resultIDs(set))
	}
}

func TestSearch_TextScenario(t *testing.T) {
	store := matchingStore(
		newDoc("ec", "ECサイト基本設計書", "# 概要"),
		newDoc("stock", "在庫管理システム", "# 概要"),
	)
	emb := &mockEmbedder{}
	svc := newTestService(store, emb)

	set, err := svc.Search(context.Background(),
		newRequest(t, "ECサイト", mode.Text, filter.Facets{}, daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := resultIDs(set); len(ids) != 1 || ids[0] != "ec" {
		t.Fatalf("unexpected results: %v", ids)
	}
	res := set.Results()[0]
	if _, ok := res.Similarity(); ok {
		t.Error("text results must not carry a similarity")
	}
	if emb.called != 0 {
		t.Error("text search must not embed the query")
	}
}

func TestSearch_TextPostFilters(t *testing.T) {
	mobile := spec.Reconstruct("m", "u", "shop app", "c", "Mobile", "GCP", nil,
		metadata.Metadata{}, testNow)
	old := spec.Reconstruct("o", "u", "shop", "c", "Web", "GCP", nil,
		metadata.Metadata{}, testNow.AddDate(0, 0, -30))
	store := matchingStore(newDoc("w", "shop", "c"), mobile, old)
	svc := newTestService(store, &mockEmbedder{})

	set, err := svc.Search(context.Background(),
		newRequest(t, "shop", mode.Text, filter.NewFacets("Web", "", nil), daterange.Days(7)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := resultIDs(set); len(ids) != 1 || ids[0] != "w" {
		t.Fatalf("unexpected results: %v", ids)
	}
}

func TestSearch_MetadataSupersetOfText(t *testing.T) {
	docs := []spec.Document{
		newDoc("title", "ECサイト", "c"),
		newDoc("content", "t", "ec サイト and ECサイト"),
		spec.Reconstruct("summary", "u", "t", "c", "Web", "GCP", nil,
			metadata.Metadata{Summary: "ECサイトの設計"}, testNow),
		spec.Reconstruct("keyword", "u", "t", "c", "Web", "GCP", nil,
			metadata.Metadata{Keywords: []string{"ECサイト"}}, testNow),
		newDoc("none", "blog", "posts"),
	}
	store := matchingStore(docs...)
	svc := newTestService(store, &mockEmbedder{})
	ctx := context.Background()

	for _, q := range []string{"ECサイト", "ec", "t", "blog"} {
		text, err := svc.Search(ctx, newRequest(t, q, mode.Text, filter.Facets{}, daterange.All()))
		if err != nil {
			t.Fatalf("text %q: %v", q, err)
		}
		meta, err := svc.Search(ctx, newRequest(t, q, mode.Metadata, filter.Facets{}, daterange.All()))
		if err != nil {
			t.Fatalf("metadata %q: %v", q, err)
		}
		have := map[string]bool{}
		for _, id := range resultIDs(meta) {
			have[id] = true
		}
		for _, id := range resultIDs(text) {
			if !have[id] {
				t.Errorf("query %q: text result %s missing from metadata results", q, id)
			}
		}
	}
}

func TestSearch_MetadataSimilarityAndFacets(t *testing.T) {
	goDoc := spec.Reconstruct("go", "u", "API", "c", "Web", "GCP", nil,
		metadata.Metadata{TechStack: metadata.TechStack{Backend: []string{"Go"}}}, testNow)
	goMobile := spec.Reconstruct("go-mobile", "u", "API", "c", "Mobile", "GCP", nil,
		metadata.Metadata{TechStack: metadata.TechStack{Backend: []string{"Go"}}}, testNow)
	store := matchingStore(goDoc, goMobile, newDoc("other", "blog", "posts"))
	svc := newTestService(store, &mockEmbedder{})

	tech, _ := filter.NewTech(map[string][]string{"backend": {"Go"}})
	set, err := svc.Search(context.Background(),
		newRequest(t, "", mode.Metadata, filter.NewFacets("Web", "", tech), daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := resultIDs(set); len(ids) != 1 || ids[0] != "go" {
		t.Fatalf("unexpected results: %v", ids)
	}
	res := set.Results()[0]
	if sim, ok := res.Similarity(); !ok || sim != 1.0 {
		t.Errorf("similarity = %v (%v), want 1.0", sim, ok)
	}
}

func TestSearch_VectorPassesOptions(t *testing.T) {
	var got request.VectorQuery
	store := &mockStore{vectorFn: func(q request.VectorQuery) ([]result.Scored, error) {
		got = q
		return []result.Scored{{Document: newDoc("a", "t", "c"), Score: 0.9}}, nil
	}}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2}}
	svc := newTestService(store, emb)

	ctx, usage := domain.NewContextWithUsage(context.Background())
	set, err := svc.Search(ctx,
		newRequest(t, "shop", mode.Vector, filter.NewFacets("Web", "GCP", nil), daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Threshold != 0.5 || got.Limit != 20 || got.Facets.SoftwareType() != "Web" || len(got.Embedding) != 2 {
		t.Errorf("unexpected vector query: %+v", got)
	}
	res := set.Results()[0]
	if sim, _ := res.Similarity(); sim != 0.9 {
		t.Errorf("similarity = %v, want store score 0.9", sim)
	}
	if usage.EmbeddingTokens != 3 {
		t.Errorf("embedding tokens = %d, want 3", usage.EmbeddingTokens)
	}
}

func TestSearch_VectorDateFilter(t *testing.T) {
	old := spec.Reconstruct("old", "u", "t", "c", "", "", nil, metadata.Metadata{}, testNow.AddDate(0, 0, -10))
	store := &mockStore{vectorFn: func(request.VectorQuery) ([]result.Scored, error) {
		return []result.Scored{{Document: newDoc("new", "t", "c"), Score: 0.9}, {Document: old, Score: 0.8}}, nil
	}}
	svc := newTestService(store, &mockEmbedder{vec: []float32{1}})

	set, err := svc.Search(context.Background(),
		newRequest(t, "q", mode.Vector, filter.Facets{}, daterange.Days(7)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := resultIDs(set); len(ids) != 1 || ids[0] != "new" {
		t.Fatalf("unexpected results: %v", ids)
	}
}

func TestSearch_VectorEmbeddingErrorSurfaced(t *testing.T) {
	emb := &mockEmbedder{err: fmt.Errorf("call: %w", domain.ErrEmbeddingProviderError)}
	svc := newTestService(&mockStore{}, emb)

	_, err := svc.Search(context.Background(), newRequest(t, "q", mode.Vector, filter.Facets{}, daterange.All()))
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestSearch_HybridPrimarySorted(t *testing.T) {
	store := &mockStore{combinedFn: func(string, *filter.Facets, int) ([]result.Scored, error) {
		return []result.Scored{
			{Document: newDoc("a", "t", "c"), Score: 0.3},
			{Document: newDoc("b", "t", "c"), Score: 0.9},
			{Document: newDoc("c", "t", "c"), Score: 0.5},
		}, nil
	}}
	svc := newTestService(store, &mockEmbedder{vec: []float32{1}})

	set, err := svc.Search(context.Background(), newRequest(t, "q", mode.Hybrid, filter.Facets{}, daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Degraded() {
		t.Fatal("primary path must not be degraded")
	}
	ids := resultIDs(set)
	if len(ids) != 3 || ids[0] != "b" || ids[1] != "c" || ids[2] != "a" {
		t.Fatalf("expected descending combined score, got %v", ids)
	}
	res := set.Results()
	for i := 1; i < len(res); i++ {
		prev, _ := res[i-1].Similarity()
		cur, _ := res[i].Similarity()
		if cur > prev {
			t.Fatal("results not sorted by combined score")
		}
	}
	if store.lastFacets != nil {
		t.Error("facet filter must be omitted when no facet is present")
	}
}

func TestSearch_HybridFacetsAndLimit(t *testing.T) {
	var gotLimit int
	store := &mockStore{combinedFn: func(_ string, _ *filter.Facets, limit int) ([]result.Scored, error) {
		gotLimit = limit
		return nil, nil
	}}
	svc := newTestService(store, &mockEmbedder{vec: []float32{1}})

	set, err := svc.Search(context.Background(),
		newRequest(t, "q", mode.Hybrid, filter.NewFacets("Web", "", nil), daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 20 {
		t.Errorf("limit = %d, want 20", gotLimit)
	}
	if store.lastFacets == nil || store.lastFacets.SoftwareType() != "Web" {
		t.Errorf("unexpected facets: %+v", store.lastFacets)
	}
	if set.Degraded() || len(set.Results()) != 0 {
		t.Error("an empty combined result is valid and must not degrade")
	}
}

func TestSearch_HybridDegradedScenario(t *testing.T) {
	a, b, c := newDoc("A", "t", "c"), newDoc("B", "t", "c"), newDoc("C", "t", "c")
	store := &mockStore{
		combinedFn: func(string, *filter.Facets, int) ([]result.Scored, error) {
			return nil, fmt.Errorf("rpc: %w", domain.ErrStore)
		},
		vectorFn: func(request.VectorQuery) ([]result.Scored, error) {
			return []result.Scored{{Document: a, Score: 0.8}}, nil
		},
		substringFn: func([]filter.Field, string) ([]spec.Document, error) {
			return []spec.Document{b}, nil
		},
		filteredFn: func(filter.Match) ([]spec.Document, error) {
			return []spec.Document{a, c}, nil
		},
	}
	svc := newTestService(store, &mockEmbedder{vec: []float32{1}})

	set, err := svc.Search(context.Background(), newRequest(t, "q", mode.Hybrid, filter.Facets{}, daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Degraded() || set.Note() != FallbackNote {
		t.Fatalf("expected degraded set with note, got degraded=%v note=%q", set.Degraded(), set.Note())
	}

	res := set.Results()
	if ids := resultIDs(set); len(ids) != 3 || ids[0] != "A" || ids[1] != "B" || ids[2] != "C" {
		t.Fatalf("unexpected merge: %v", ids)
	}
	if sim, ok := res[0].Similarity(); !ok || sim != 0.8 {
		t.Errorf("A similarity = %v (%v), want vector score 0.8", sim, ok)
	}
	if _, ok := res[1].Similarity(); ok {
		t.Error("B must be unranked")
	}
	if sim, ok := res[2].Similarity(); !ok || sim != 1.0 {
		t.Errorf("C similarity = %v (%v), want 1.0", sim, ok)
	}
}

func TestSearch_HybridValidationNotDegraded(t *testing.T) {
	store := &mockStore{combinedFn: func(string, *filter.Facets, int) ([]result.Scored, error) {
		return nil, domain.NewValidationError("query", "rejected by the search engine")
	}}
	svc := newTestService(store, &mockEmbedder{vec: []float32{1}})

	_, err := svc.Search(context.Background(), newRequest(t, "q", mode.Hybrid, filter.Facets{}, daterange.All()))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if store.vectorCalled {
		t.Error("client errors must not trigger the fallback")
	}
}

func TestSearch_HybridEmbeddingFailureDegrades(t *testing.T) {
	store := matchingStore(newDoc("a", "shop", "c"))
	emb := &mockEmbedder{err: fmt.Errorf("call: %w", domain.ErrEmbeddingProviderError)}
	svc := newTestService(store, emb)

	set, err := svc.Search(context.Background(), newRequest(t, "shop", mode.Hybrid, filter.Facets{}, daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Degraded() {
		t.Fatal("expected degraded set")
	}
	if store.combinedCalled || store.vectorCalled {
		t.Error("no store ranking call expected without an embedding")
	}
	if emb.called != 1 {
		t.Errorf("embedder called %d times, want 1", emb.called)
	}
	if ids := resultIDs(set); len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("unexpected results: %v", ids)
	}
}

func TestSearch_HybridBudgetExhaustedDegrades(t *testing.T) {
	store := matchingStore(newDoc("a", "shop", "c"))
	emb := &mockEmbedder{err: fmt.Errorf("embedding token budget exhausted: %w", domain.ErrRateLimited)}
	svc := newTestService(store, emb)

	set, err := svc.Search(context.Background(), newRequest(t, "shop", mode.Hybrid, filter.Facets{}, daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Degraded() {
		t.Fatal("expected degraded set")
	}
	if ids := resultIDs(set); len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("unexpected results: %v", ids)
	}
}

func TestSearch_VectorBudgetExhaustedFails(t *testing.T) {
	store := matchingStore(newDoc("a", "shop", "c"))
	emb := &mockEmbedder{err: fmt.Errorf("embedding token budget exhausted: %w", domain.ErrRateLimited)}
	svc := newTestService(store, emb)

	_, err := svc.Search(context.Background(), newRequest(t, "shop", mode.Vector, filter.Facets{}, daterange.All()))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestSearch_DegradationLogsFilter(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := matchingStore(newDoc("a", "shop", "c"))
	svc := New(store, &mockEmbedder{err: fmt.Errorf("call: %w", domain.ErrEmbeddingProviderError)}, Options{}, zap.New(core))
	svc.now = func() time.Time { return testNow }

	facets := filter.NewFacets("Web", "", nil)
	if _, err := svc.Search(context.Background(), newRequest(t, "shop", mode.Hybrid, facets, daterange.All())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.FilterMessage("Combined ranking failed, degrading to fallback merge").All()
	if len(entries) != 1 {
		t.Fatalf("expected one degradation log, got %d", len(entries))
	}
	doc, ok := entries[0].ContextMap()["filter"].(map[string]any)
	if !ok || doc["software_type"] != "Web" {
		t.Errorf("filter field = %#v", entries[0].ContextMap()["filter"])
	}
}

func TestSearch_HybridAllFallbacksFail(t *testing.T) {
	storeErr := fmt.Errorf("down: %w", domain.ErrStore)
	store := &mockStore{
		combinedFn:  func(string, *filter.Facets, int) ([]result.Scored, error) { return nil, storeErr },
		vectorFn:    func(request.VectorQuery) ([]result.Scored, error) { return nil, storeErr },
		substringFn: func([]filter.Field, string) ([]spec.Document, error) { return nil, storeErr },
		filteredFn:  func(filter.Match) ([]spec.Document, error) { return nil, storeErr },
	}
	svc := newTestService(store, &mockEmbedder{vec: []float32{1}})

	_, err := svc.Search(context.Background(), newRequest(t, "q", mode.Hybrid, filter.Facets{}, daterange.All()))
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestSearch_HybridPartialFailure(t *testing.T) {
	storeErr := fmt.Errorf("down: %w", domain.ErrStore)
	store := &mockStore{
		combinedFn: func(string, *filter.Facets, int) ([]result.Scored, error) { return nil, storeErr },
		vectorFn:   func(request.VectorQuery) ([]result.Scored, error) { return nil, storeErr },
		substringFn: func([]filter.Field, string) ([]spec.Document, error) {
			return []spec.Document{newDoc("t", "q", "c")}, nil
		},
		filteredFn: func(filter.Match) ([]spec.Document, error) { return nil, storeErr },
	}
	svc := newTestService(store, &mockEmbedder{vec: []float32{1}})

	set, err := svc.Search(context.Background(), newRequest(t, "q", mode.Hybrid, filter.Facets{}, daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := resultIDs(set); len(ids) != 1 || ids[0] != "t" || !set.Degraded() {
		t.Fatalf("unexpected results: %v degraded=%v", ids, set.Degraded())
	}
}

func TestSearch_HybridDegradedDateFilter(t *testing.T) {
	old := spec.Reconstruct("old", "u", "q", "c", "Web", "GCP", nil, metadata.Metadata{}, testNow.AddDate(0, -2, 0))
	store := &mockStore{
		combinedFn: func(string, *filter.Facets, int) ([]result.Scored, error) {
			return nil, fmt.Errorf("rpc: %w", domain.ErrStore)
		},
		vectorFn: func(request.VectorQuery) ([]result.Scored, error) {
			return []result.Scored{{Document: old, Score: 0.9}, {Document: newDoc("new", "q", "c"), Score: 0.7}}, nil
		},
	}
	svc := newTestService(store, &mockEmbedder{vec: []float32{1}})

	set, err := svc.Search(context.Background(), newRequest(t, "q", mode.Hybrid, filter.Facets{}, daterange.Days(30)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := resultIDs(set); len(ids) != 1 || ids[0] != "new" {
		t.Fatalf("unexpected results: %v", ids)
	}
}

func TestSearch_HybridFallbackTimeout(t *testing.T) {
	store := &mockStore{
		combinedFn: func(string, *filter.Facets, int) ([]result.Scored, error) {
			return nil, fmt.Errorf("rpc: %w", domain.ErrStore)
		},
		substringFn: func([]filter.Field, string) ([]spec.Document, error) {
			return []spec.Document{newDoc("fast", "q", "c")}, nil
		},
	}
	svc := newTestService(store, &mockEmbedder{vec: []float32{1}})
	svc.opts.FallbackTimeout = time.Second

	set, err := svc.Search(context.Background(), newRequest(t, "q", mode.Hybrid, filter.Facets{}, daterange.All()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Degraded() || len(set.Results()) != 1 {
		t.Fatalf("unexpected set: %v", resultIDs(set))
	}
}
