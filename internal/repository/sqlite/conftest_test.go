package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	domspec "github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

var baseTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "specdex.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// insertDoc stores a document with the given id; age is subtracted from baseTime.
func insertDoc(
	t *testing.T, repo *SpecRepo, id, title, content string, vec []float32,
	meta metadata.Metadata, age time.Duration,
) domspec.Document {
	t.Helper()
	if len(meta.Keywords) == 0 {
		meta.Keywords = []string{"kw"}
	}
	doc := domspec.Reconstruct(id, "user-1", title, content, "Web", "GCP", vec, meta, baseTime.Add(-age))
	if _, err := repo.Insert(context.Background(), &doc); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	return doc
}
