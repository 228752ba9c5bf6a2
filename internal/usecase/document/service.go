// Package document serves the spec library: listing, reading and deleting stored documents.
package document

import (
	"context"
	"fmt"

	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
)

// Service handles library reads and deletion.
type Service struct {
	repo            Repository
	defaultPageSize int
	maxPageSize     int
}

// New creates a document service.
func New(repo Repository) *Service {
	return &Service{
		repo:            repo,
		defaultPageSize: spec.DefaultListLimit,
		maxPageSize:     spec.MaxListLimit,
	}
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Get retrieves a document by ID.
func (s *Service) Get(ctx context.Context, id string) (spec.Document, error) {
	if err := domarchive.ValidateID("id", id); err != nil {
		return spec.Document{}, err
	}
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return spec.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// List returns a page of documents, newest first. userID filters by owner when set.
func (s *Service) List(
	ctx context.Context, userID, cursor string, limit int,
) ([]spec.Document, string, error) {
	if userID != "" {
		if err := domarchive.ValidateID("user_id", userID); err != nil {
			return nil, "", err
		}
	}

	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	docs, nextCursor, err := s.repo.List(ctx, spec.ListQuery{UserID: userID, Cursor: cursor, Limit: limit})
	if err != nil {
		return nil, "", fmt.Errorf("list documents: %w", err)
	}
	return docs, nextCursor, nil
}

// Delete removes a document.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := domarchive.ValidateID("id", id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
