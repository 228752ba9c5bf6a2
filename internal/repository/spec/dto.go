package spec

import (
	"encoding/json"
	"fmt"
	"time"

	domspec "github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

// jsonDoc is the RedisJSON representation of a spec document.
// created_at is stored as unix milliseconds so the index can sort on it.
type jsonDoc struct {
	UserID       string            `json:"user_id"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	SoftwareType string            `json:"software_type"`
	DeployTarget string            `json:"deploy_target"`
	Metadata     metadata.Metadata `json:"metadata"`
	Embedding    []float32         `json:"embedding"`
	CreatedAt    int64             `json:"created_at"`
}

func buildJSONDoc(doc *domspec.Document) jsonDoc {
	return jsonDoc{
		UserID:       doc.UserID(),
		Title:        doc.Title(),
		Content:      doc.Content(),
		SoftwareType: doc.SoftwareType(),
		DeployTarget: doc.DeployTarget(),
		Metadata:     doc.Metadata(),
		Embedding:    doc.Embedding(),
		CreatedAt:    doc.CreatedAt().UnixMilli(),
	}
}

func (d *jsonDoc) toDomain(id string) domspec.Document {
	return domspec.Reconstruct(
		id, d.UserID, d.Title, d.Content, d.SoftwareType, d.DeployTarget,
		d.Embedding, d.Metadata, time.UnixMilli(d.CreatedAt).UTC(),
	)
}

// parseDoc decodes a single JSON object (FT.SEARCH RETURN $).
func parseDoc(id, raw string) (domspec.Document, error) {
	var d jsonDoc
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return domspec.Document{}, fmt.Errorf("unmarshal spec %s: %w", id, err)
	}
	return d.toDomain(id), nil
}

// parseJSONGetResult decodes the array JSON.GET returns for the "$" path.
func parseJSONGetResult(id, raw string) (domspec.Document, error) {
	var docs []jsonDoc
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return domspec.Document{}, fmt.Errorf("unmarshal spec %s: %w", id, err)
	}
	if len(docs) == 0 {
		return domspec.Document{}, fmt.Errorf("empty JSON.GET result for %s", id)
	}
	return docs[0].toDomain(id), nil
}
