package archive

import (
	"context"

	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
)

// Repository defines the storage contract for archive entries.
type Repository interface {
	Get(ctx context.Context, userID, specID string) (domarchive.Entry, error)
	Save(ctx context.Context, e *domarchive.Entry) error
	Delete(ctx context.Context, userID, specID string) error
	ListByUser(ctx context.Context, userID string) ([]domarchive.Entry, error)
}

// DocumentReader resolves archived documents.
type DocumentReader interface {
	Get(ctx context.Context, id string) (spec.Document, error)
}
