package spec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tsubouchi/intelligence-agent-maker/internal/db"
	domspec "github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	pingFn         func(ctx context.Context) error
	jsonSetNXFn    func(ctx context.Context, key string, data []byte) error
	jsonGetFn      func(ctx context.Context, key string, paths ...string) ([]byte, error)
	delFn          func(ctx context.Context, key string) error
	existsFn       func(ctx context.Context, key string) (bool, error)
	indexExistsFn  func(ctx context.Context, name string) (bool, error)
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error
	searchKNNFn    func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchHybridFn func(ctx context.Context, knn *db.KNNQuery, text *db.TextQuery) (*db.SearchResult, *db.SearchResult, error)
	searchListFn   func(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *mockStore) JSONSetNX(ctx context.Context, key string, data []byte) error {
	if m.jsonSetNXFn != nil {
		return m.jsonSetNXFn(ctx, key, data)
	}
	return nil
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchHybrid(
	ctx context.Context, knn *db.KNNQuery, text *db.TextQuery,
) (*db.SearchResult, *db.SearchResult, error) {
	if m.searchHybridFn != nil {
		return m.searchHybridFn(ctx, knn, text)
	}
	return &db.SearchResult{}, &db.SearchResult{}, nil
}

func (m *mockStore) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	if m.searchListFn != nil {
		return m.searchListFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, Options{VectorDim: 3})
	repo.newID = func() string { return "generated-id" }
	return repo, ms
}

var testTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func testDocument(t *testing.T, id, title, content string) domspec.Document {
	t.Helper()
	return domspec.Reconstruct(id, "user-1", title, content, "Web", "GCP",
		[]float32{0.1, 0.2, 0.3},
		metadata.Metadata{
			Title:     title,
			Summary:   "summary of " + title,
			Keywords:  []string{"EC"},
			TechStack: metadata.TechStack{Backend: []string{"Go"}},
		},
		testTime,
	)
}

// entry renders a document the way FT.SEARCH RETURN $ delivers it.
func entry(t *testing.T, doc domspec.Document, score float64) db.SearchEntry {
	t.Helper()
	data, err := json.Marshal(buildJSONDoc(&doc))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return db.SearchEntry{
		Key:    docKey(DefaultKeyPrefix, doc.ID()),
		Score:  score,
		Fields: map[string]string{"$": string(data)},
	}
}

func searchResult(entries ...db.SearchEntry) *db.SearchResult {
	return &db.SearchResult{Total: len(entries), Entries: entries}
}
