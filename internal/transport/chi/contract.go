package chi

import (
	"context"

	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	domusage "github.com/tsubouchi/intelligence-agent-maker/internal/domain/usage"
	"github.com/tsubouchi/intelligence-agent-maker/internal/usecase/generation"
	healthuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/health"
)

// Searcher routes search requests.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (result.Set, error)
}

// Library reads and deletes stored documents.
type Library interface {
	Get(ctx context.Context, id string) (spec.Document, error)
	List(ctx context.Context, userID, cursor string, limit int) ([]spec.Document, string, error)
	Delete(ctx context.Context, id string) error
}

// Archives manages user archives.
type Archives interface {
	Link(ctx context.Context, userID, specID string) error
	Get(ctx context.Context, userID, specID string) (domarchive.Entry, error)
	SetFavorite(ctx context.Context, userID, specID string, favorite bool) (domarchive.Entry, error)
	SaveNotes(ctx context.Context, userID, specID, notes string) (domarchive.Entry, error)
	Unlink(ctx context.Context, userID, specID string) error
	List(ctx context.Context, userID string, favoritesOnly bool) ([]domarchive.Item, error)
}

// Generator runs the generation pipeline in-process.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Result, error)
}

// Publisher enqueues generation jobs.
type Publisher interface {
	Publish(ctx context.Context, req generation.Request) (string, error)
}

// HealthChecker aggregates dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// UsageReporter reports provider token budgets.
type UsageReporter interface {
	Report(ctx context.Context, period domusage.Period) []domusage.Report
}
