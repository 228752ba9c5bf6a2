package spec

import (
	"context"
	"errors"
	"testing"

	"github.com/tsubouchi/intelligence-agent-maker/internal/db"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	domspec "github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

func TestFilteredLookup_SubstringInProcess(t *testing.T) {
	repo, ms := newTestRepo(t)
	ec := testDocument(t, "ec", "ECサイト基本設計書", "カート")
	chat := testDocument(t, "chat", "チャットアプリ", "メッセージ")

	ms.searchListFn = func(_ context.Context, q *db.ListQuery) (*db.SearchResult, error) {
		if !q.Filter.IsEmpty() {
			t.Errorf("substring lookups must not push a filter, got %+v", q.Filter)
		}
		if q.Limit != DefaultScanLimit {
			t.Errorf("limit = %d, want %d", q.Limit, DefaultScanLimit)
		}
		return searchResult(entry(t, ec, 0), entry(t, chat, 0)), nil
	}

	docs, err := repo.FilteredLookup(context.Background(), filter.NewMatch("ecサイト", filter.MetadataFields, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID() != "ec" {
		t.Fatalf("expected only ec, got %d docs", len(docs))
	}
}

func TestFilteredLookup_TechPushedDown(t *testing.T) {
	repo, ms := newTestRepo(t)
	doc := testDocument(t, "go", "t", "c")

	ms.searchListFn = func(_ context.Context, q *db.ListQuery) (*db.SearchResult, error) {
		if len(q.Filter.Tags) != 1 || q.Filter.Tags[0].Field != "tech_backend" {
			t.Errorf("expected tech_backend tag, got %+v", q.Filter)
		}
		return searchResult(entry(t, doc, 0)), nil
	}

	docs, err := repo.FilteredLookup(context.Background(),
		filter.NewMatch("", filter.MetadataFields, filter.Tech{"backend": {"Go"}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(docs))
	}
}

func TestFilteredLookup_TechCaseMismatchDropped(t *testing.T) {
	repo, ms := newTestRepo(t)
	doc := testDocument(t, "go", "t", "c")
	// The server reply may fold case; the exact check runs in process.
	ms.searchListFn = func(context.Context, *db.ListQuery) (*db.SearchResult, error) {
		return searchResult(entry(t, doc, 0)), nil
	}

	docs, err := repo.FilteredLookup(context.Background(),
		filter.NewMatch("", filter.MetadataFields, filter.Tech{"backend": {"go"}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no docs, got %d", len(docs))
	}
}

func TestFilteredLookup_EmptyMatchReturnsAll(t *testing.T) {
	repo, ms := newTestRepo(t)
	a := testDocument(t, "a", "A", "c")
	b := testDocument(t, "b", "B", "c")
	ms.searchListFn = func(context.Context, *db.ListQuery) (*db.SearchResult, error) {
		return searchResult(entry(t, a, 0), entry(t, b, 0)), nil
	}

	docs, err := repo.FilteredLookup(context.Background(), filter.NewMatch("", filter.MetadataFields, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
}

func TestSubstringLookup_StoreError(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchListFn = func(context.Context, *db.ListQuery) (*db.SearchResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: context.DeadlineExceeded}
	}

	_, err := repo.SubstringLookup(context.Background(), filter.TextFields, "x")
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestVectorLookup_Threshold(t *testing.T) {
	repo, ms := newTestRepo(t)
	near := testDocument(t, "near", "n", "c")
	mid := testDocument(t, "mid", "m", "c")
	far := testDocument(t, "far", "f", "c")

	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if q.K != 20 || q.VectorField != "vector" {
			t.Errorf("K=%d field=%q", q.K, q.VectorField)
		}
		if len(q.Filter.Tags) != 2 {
			t.Errorf("expected software_type and deploy_target tags, got %+v", q.Filter.Tags)
		}
		return searchResult(entry(t, near, 0.92), entry(t, mid, 0.5), entry(t, far, 0.3)), nil
	}

	hits, err := repo.VectorLookup(context.Background(), request.VectorQuery{
		Embedding: []float32{0.1, 0.2, 0.3},
		Threshold: 0.5,
		Limit:     20,
		Facets:    filter.NewFacets("Web", "GCP", filter.Tech{"backend": {"Go"}}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits above threshold, got %d", len(hits))
	}
	if hits[0].Document.ID() != "near" || hits[0].Score != 0.92 {
		t.Errorf("first hit = %s %.2f", hits[0].Document.ID(), hits[0].Score)
	}
}

// facetDocument is a document whose facets differ from testDocument's.
func facetDocument(id, softwareType string, backend ...string) domspec.Document {
	return domspec.Reconstruct(id, "user-1", id, "c", softwareType, "GCP",
		[]float32{0.1, 0.2, 0.3},
		metadata.Metadata{Keywords: []string{"EC"}, TechStack: metadata.TechStack{Backend: backend}},
		testTime,
	)
}

func TestVectorLookup_FacetsAreCaseSensitive(t *testing.T) {
	repo, ms := newTestRepo(t)
	upper := facetDocument("upper", "Web", "Go")
	lower := facetDocument("lower", "web", "Go")
	// a case-folding index returns both
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return searchResult(entry(t, upper, 0.9), entry(t, lower, 0.8)), nil
	}

	hits, err := repo.VectorLookup(context.Background(), request.VectorQuery{
		Embedding: []float32{0.1, 0.2, 0.3},
		Threshold: 0.5,
		Limit:     20,
		Facets:    filter.NewFacets("web", "", nil),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Document.ID() != "lower" {
		t.Fatalf("expected only the exact software_type match, got %d hits", len(hits))
	}
}

func TestCombinedRank_FacetsAreCaseSensitive(t *testing.T) {
	repo, ms := newTestRepo(t)
	exact := facetDocument("exact", "Web", "Go")
	wrongType := facetDocument("wrong-type", "WEB", "Go")
	wrongTech := facetDocument("wrong-tech", "Web", "go")
	ms.searchHybridFn = func(context.Context, *db.KNNQuery, *db.TextQuery) (*db.SearchResult, *db.SearchResult, error) {
		return searchResult(entry(t, exact, 0.6), entry(t, wrongType, 0.9)),
			searchResult(entry(t, wrongTech, 3.0), entry(t, exact, 1.0)),
			nil
	}

	facets := filter.NewFacets("Web", "", filter.Tech{"backend": {"Go"}})
	hits, err := repo.CombinedRank(context.Background(), "q", []float32{0.1}, &facets, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Document.ID() != "exact" {
		t.Fatalf("expected only the exact facet match, got %d hits", len(hits))
	}
}

func TestBuildIndex_ExactTags(t *testing.T) {
	def, err := buildIndex(DefaultKeyPrefix, 3, HNSWConfig{})
	if err != nil {
		t.Fatalf("buildIndex: %v", err)
	}
	tags := 0
	for _, f := range def.Fields {
		if f.Type != db.IndexFieldTag {
			continue
		}
		tags++
		if !f.TagCaseSensitive {
			t.Errorf("%s must be case-sensitive", f.Alias)
		}
		if f.TagSeparator != tagSeparator {
			t.Errorf("%s separator = %q, want %q", f.Alias, f.TagSeparator, tagSeparator)
		}
	}
	// user_id, software_type, deploy_target, keywords and one per tech category
	if want := 4 + len(metadata.Categories); tags != want {
		t.Errorf("tag fields = %d, want %d", tags, want)
	}
}

func TestCombinedRank_Fusion(t *testing.T) {
	repo, ms := newTestRepo(t)
	a := testDocument(t, "a", "A", "c")
	b := testDocument(t, "b", "B", "c")
	c := testDocument(t, "c", "C", "c")

	ms.searchHybridFn = func(
		_ context.Context, knn *db.KNNQuery, text *db.TextQuery,
	) (*db.SearchResult, *db.SearchResult, error) {
		if text.Query != "EC shop" || len(text.Fields) != 3 {
			t.Errorf("unexpected text query: %+v", text)
		}
		if len(knn.Filter.Tags) != 2 || len(text.Filter.Tags) != 2 {
			t.Errorf("facets must filter both sides: %+v / %+v", knn.Filter, text.Filter)
		}
		return searchResult(entry(t, a, 0.9), entry(t, b, 0.5)),
			searchResult(entry(t, b, 4.0), entry(t, c, 2.0)),
			nil
	}

	facets := filter.NewFacets("Web", "", filter.Tech{"backend": {"Go"}})
	hits, err := repo.CombinedRank(context.Background(), "EC shop", []float32{0.1}, &facets, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// a: 0.7*0.9 = 0.63; b: 0.7*0.5 + 0.3*1.0 = 0.65; c: 0.3*0.5 = 0.15
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if hits[i].Document.ID() != id {
			t.Errorf("hits[%d] = %s, want %s", i, hits[i].Document.ID(), id)
		}
	}
	if hits[0].Score < 0.649 || hits[0].Score > 0.651 {
		t.Errorf("b score = %f, want 0.65", hits[0].Score)
	}
}

func TestCombinedRank_NilFacets(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchHybridFn = func(
		_ context.Context, knn *db.KNNQuery, text *db.TextQuery,
	) (*db.SearchResult, *db.SearchResult, error) {
		if !knn.Filter.IsEmpty() || !text.Filter.IsEmpty() {
			t.Error("nil facets must not produce a filter")
		}
		return &db.SearchResult{}, &db.SearchResult{}, nil
	}

	hits, err := repo.CombinedRank(context.Background(), "q", []float32{0.1}, nil, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestCombinedRank_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"transport", &db.Error{Op: db.OpSearch, Err: context.DeadlineExceeded}, domain.ErrStore},
		{"syntax", &db.Error{Op: db.OpSearch, Err: db.ErrInvalidQuery}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, ms := newTestRepo(t)
			ms.searchHybridFn = func(context.Context, *db.KNNQuery, *db.TextQuery) (*db.SearchResult, *db.SearchResult, error) {
				return nil, nil, tt.err
			}
			_, err := repo.CombinedRank(context.Background(), "q", []float32{0.1}, nil, 20)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
