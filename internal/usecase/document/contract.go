package document

import (
	"context"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
)

// Repository defines the storage contract for the document library.
type Repository interface {
	Get(ctx context.Context, id string) (spec.Document, error)
	List(ctx context.Context, q spec.ListQuery) (docs []spec.Document, nextCursor string, err error)
	Delete(ctx context.Context, id string) error
}
