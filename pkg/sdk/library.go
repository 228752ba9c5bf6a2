package specdex

import (
	"context"
	"fmt"
	"time"
)

// LibraryService reads and deletes stored documents.
type LibraryService struct {
	svc libraryUseCase
	obs *observer
}

// ListOptions selects a page. Zero values list every user's documents from the start.
type ListOptions struct {
	UserID string
	Cursor string
	Limit  int
}

// Get retrieves a document by ID.
func (s *LibraryService) Get(ctx context.Context, id string) (sp Spec, err error) {
	start := time.Now()
	defer func() { s.obs.observe("get", start, err) }()

	d, err := s.svc.Get(ctx, id)
	if err != nil {
		return Spec{}, fmt.Errorf("get spec: %w", err)
	}
	return fromDocument(d), nil
}

// List returns a page of documents, newest first.
func (s *LibraryService) List(ctx context.Context, opts ListOptions) (res ListResult, err error) {
	start := time.Now()
	defer func() { s.obs.observe("list", start, err) }()

	docs, next, err := s.svc.List(ctx, opts.UserID, opts.Cursor, opts.Limit)
	if err != nil {
		return ListResult{}, fmt.Errorf("list specs: %w", err)
	}
	out := make([]Spec, len(docs))
	for i := range docs {
		out[i] = fromDocument(docs[i])
	}
	return ListResult{Specs: out, NextCursor: next}, nil
}

// Delete removes a document by ID.
func (s *LibraryService) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("delete", start, err) }()

	if err = s.svc.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete spec: %w", err)
	}
	return nil
}
