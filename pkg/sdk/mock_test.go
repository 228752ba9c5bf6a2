package specdex

import (
	"context"
	"time"

	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

var testTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func testDoc(id string) spec.Document {
	meta := metadata.Metadata{
		Title:     "ECサイト",
		Keywords:  []string{"EC"},
		TechStack: metadata.TechStack{Backend: []string{"Go"}},
	}
	return spec.Reconstruct(id, "user-1", "ECサイト", "# ECサイト基本設計書", "Web", "GCP",
		[]float32{0.1, 0.2}, meta, testTime)
}

// --- searchUseCase mock ---

type mockSearchUC struct {
	searchFn func(ctx context.Context, req *request.Request) (result.Set, error)
}

func (m *mockSearchUC) Search(ctx context.Context, req *request.Request) (result.Set, error) {
	return m.searchFn(ctx, req)
}

// --- libraryUseCase mock ---

type mockLibraryUC struct {
	getFn    func(ctx context.Context, id string) (spec.Document, error)
	listFn   func(ctx context.Context, userID, cursor string, limit int) ([]spec.Document, string, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockLibraryUC) Get(ctx context.Context, id string) (spec.Document, error) {
	return m.getFn(ctx, id)
}

func (m *mockLibraryUC) List(ctx context.Context, userID, cursor string, limit int) ([]spec.Document, string, error) {
	return m.listFn(ctx, userID, cursor, limit)
}

func (m *mockLibraryUC) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

// --- archiveUseCase mock ---

type mockArchiveUC struct {
	linkFn        func(ctx context.Context, userID, specID string) error
	getFn         func(ctx context.Context, userID, specID string) (domarchive.Entry, error)
	setFavoriteFn func(ctx context.Context, userID, specID string, favorite bool) (domarchive.Entry, error)
	saveNotesFn   func(ctx context.Context, userID, specID, notes string) (domarchive.Entry, error)
	unlinkFn      func(ctx context.Context, userID, specID string) error
	listFn        func(ctx context.Context, userID string, favoritesOnly bool) ([]domarchive.Item, error)
}

func (m *mockArchiveUC) Link(ctx context.Context, userID, specID string) error {
	return m.linkFn(ctx, userID, specID)
}

func (m *mockArchiveUC) Get(ctx context.Context, userID, specID string) (domarchive.Entry, error) {
	return m.getFn(ctx, userID, specID)
}

func (m *mockArchiveUC) SetFavorite(
	ctx context.Context, userID, specID string, favorite bool,
) (domarchive.Entry, error) {
	return m.setFavoriteFn(ctx, userID, specID, favorite)
}

func (m *mockArchiveUC) SaveNotes(ctx context.Context, userID, specID, notes string) (domarchive.Entry, error) {
	return m.saveNotesFn(ctx, userID, specID, notes)
}

func (m *mockArchiveUC) Unlink(ctx context.Context, userID, specID string) error {
	return m.unlinkFn(ctx, userID, specID)
}

func (m *mockArchiveUC) List(ctx context.Context, userID string, favoritesOnly bool) ([]domarchive.Item, error) {
	return m.listFn(ctx, userID, favoritesOnly)
}

// --- Embedder mock ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

// checkingEmbedder also reports its health.
type checkingEmbedder struct {
	mockEmbedder
	healthErr error
}

func (c *checkingEmbedder) HealthCheck(_ context.Context) error { return c.healthErr }

// testClient builds a Client over mocks, skipping store setup.
func testClient(s searchUseCase, l libraryUseCase, a archiveUseCase) *Client {
	return &Client{searchSvc: s, libSvc: l, archiveSvc: a}
}
