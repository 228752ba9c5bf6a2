// Package spec holds the generated specification document aggregate.
package spec

import (
	"fmt"
	"time"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

// MaxContentSize is the maximum document content size in bytes.
const MaxContentSize = 512 * 1024

// Document is a generated specification document (immutable value object).
// The id is assigned by the store on insert.
type Document struct {
	id           string
	userID       string
	title        string
	content      string
	softwareType string
	deployTarget string
	embedding    []float32
	metadata     metadata.Metadata
	createdAt    time.Time
}

// New validates and creates a Document that has not been persisted yet.
func New(
	userID, title, content, softwareType, deployTarget string,
	embedding []float32, meta metadata.Metadata, createdAt time.Time,
) (Document, error) {
	if userID == "" {
		return Document{}, fmt.Errorf("user ID is required")
	}
	if content == "" {
		return Document{}, fmt.Errorf("content is required")
	}
	if len(content) > MaxContentSize {
		return Document{}, fmt.Errorf("content too large (max %d bytes)", MaxContentSize)
	}
	if len(embedding) == 0 {
		return Document{}, fmt.Errorf("content embedding is required")
	}
	if createdAt.IsZero() {
		return Document{}, fmt.Errorf("created_at is required")
	}

	return Document{
		userID:       userID,
		title:        title,
		content:      content,
		softwareType: softwareType,
		deployTarget: deployTarget,
		embedding:    embedding,
		metadata:     meta,
		createdAt:    createdAt.UTC(),
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(
	id, userID, title, content, softwareType, deployTarget string,
	embedding []float32, meta metadata.Metadata, createdAt time.Time,
) Document {
	return Document{
		id: id, userID: userID, title: title, content: content,
		softwareType: softwareType, deployTarget: deployTarget,
		embedding: embedding, metadata: meta, createdAt: createdAt,
	}
}

// ID returns the store-assigned identifier (empty before insert).
func (d *Document) ID() string { return d.id }

// UserID returns the owner identifier.
func (d *Document) UserID() string { return d.userID }

// Title returns the document title.
func (d *Document) Title() string { return d.title }

// Content returns the document text.
func (d *Document) Content() string { return d.content }

// SoftwareType returns the software type facet.
func (d *Document) SoftwareType() string { return d.softwareType }

// DeployTarget returns the deploy target facet.
func (d *Document) DeployTarget() string { return d.deployTarget }

// Embedding returns the content embedding.
func (d *Document) Embedding() []float32 { return d.embedding }

// Metadata returns the extracted metadata.
func (d *Document) Metadata() metadata.Metadata { return d.metadata }

// CreatedAt returns the creation time.
func (d *Document) CreatedAt() time.Time { return d.createdAt }

// WithID returns a copy carrying the store-assigned id.
func (d *Document) WithID(id string) Document {
	c := *d
	c.id = id
	return c
}

// Library page size bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListQuery selects a page of the library, newest first.
// Cursor is the opaque value returned with the previous page.
type ListQuery struct {
	UserID string
	Cursor string
	Limit  int
}

// Normalize clamps Limit into [1, MaxListLimit].
func (q ListQuery) Normalize() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}
	return q
}
