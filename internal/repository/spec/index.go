package spec

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsubouchi/intelligence-agent-maker/internal/db"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

// Index field aliases.
const (
	fieldUserID       = "user_id"
	fieldSoftwareType = "software_type"
	fieldDeployTarget = "deploy_target"
	fieldCreatedAt    = "created_at"
	fieldTitle        = "title"
	fieldContent      = "content"
	fieldSummary      = "summary"
	fieldKeywords     = "keywords"
	fieldVector       = "vector"
	techFieldPrefix   = "tech_"
)

// tagSeparator splits TAG values in the index. Facet values are free text
// and may contain commas, so the server default "," is not used.
const tagSeparator = "|"

// HNSWConfig holds the vector index parameters. Zero values keep server defaults.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

func techField(category string) string {
	return techFieldPrefix + category
}

func buildIndex(prefix string, dim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	b := db.NewIndex(indexName(prefix)).Prefix(docPrefix(prefix))
	exactTag := func(path, alias string) {
		b = b.Tag(path).As(alias).Separator(tagSeparator).CaseSensitive()
	}

	exactTag("$.user_id", fieldUserID)
	exactTag("$.software_type", fieldSoftwareType)
	exactTag("$.deploy_target", fieldDeployTarget)
	b = b.Numeric("$.created_at").As(fieldCreatedAt).Sortable().
		Text("$.title").As(fieldTitle).
		Text("$.content").As(fieldContent).
		Text("$.metadata.summary").As(fieldSummary)
	exactTag("$.metadata.keywords[*]", fieldKeywords)

	for _, c := range metadata.Categories {
		exactTag(fmt.Sprintf("$.metadata.tech_stack.%s[*]", c), techField(c))
	}

	return b.VectorHNSW("$.embedding", dim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		As(fieldVector).
		Build()
}

// EnsureIndex creates the search index when it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, indexName(r.prefix))
	if err != nil {
		return storeErr("index exists", err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(r.prefix, r.opts.VectorDim, r.opts.HNSW)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return storeErr("create index", err)
	}
	return nil
}
