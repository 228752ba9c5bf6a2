package specdex

import (
	"context"
	"fmt"
	"time"

	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
)

// ArchiveService manages one user's archive.
type ArchiveService struct {
	userID string
	svc    archiveUseCase
	obs    *observer
}

// Link bookmarks a document. Linking twice is a no-op.
func (s *ArchiveService) Link(ctx context.Context, specID string) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("archive_link", start, err) }()

	if err = s.svc.Link(ctx, s.userID, specID); err != nil {
		return fmt.Errorf("link archive: %w", err)
	}
	return nil
}

// Get returns the entry for a document.
func (s *ArchiveService) Get(ctx context.Context, specID string) (ArchiveEntry, error) {
	e, err := s.svc.Get(ctx, s.userID, specID)
	if err != nil {
		return ArchiveEntry{}, fmt.Errorf("get archive: %w", err)
	}
	return fromEntry(&e), nil
}

// SetFavorite marks or unmarks a document as favorite, linking it first if needed.
func (s *ArchiveService) SetFavorite(ctx context.Context, specID string, favorite bool) (ArchiveEntry, error) {
	e, err := s.svc.SetFavorite(ctx, s.userID, specID, favorite)
	if err != nil {
		return ArchiveEntry{}, fmt.Errorf("set favorite: %w", err)
	}
	return fromEntry(&e), nil
}

// SaveNotes replaces the notes of a document, linking it first if needed.
func (s *ArchiveService) SaveNotes(ctx context.Context, specID, notes string) (ArchiveEntry, error) {
	e, err := s.svc.SaveNotes(ctx, s.userID, specID, notes)
	if err != nil {
		return ArchiveEntry{}, fmt.Errorf("save notes: %w", err)
	}
	return fromEntry(&e), nil
}

// Unlink removes the bookmark.
func (s *ArchiveService) Unlink(ctx context.Context, specID string) error {
	if err := s.svc.Unlink(ctx, s.userID, specID); err != nil {
		return fmt.Errorf("unlink archive: %w", err)
	}
	return nil
}

// List returns the archive with documents, optionally favorites only.
func (s *ArchiveService) List(ctx context.Context, favoritesOnly bool) (items []ArchiveItem, err error) {
	start := time.Now()
	defer func() { s.obs.observe("archive_list", start, err) }()

	in, err := s.svc.List(ctx, s.userID, favoritesOnly)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	items = make([]ArchiveItem, len(in))
	for i := range in {
		items[i] = ArchiveItem{Entry: fromEntry(&in[i].Entry), Spec: fromDocument(in[i].Document)}
	}
	return items, nil
}

func fromEntry(e *domarchive.Entry) ArchiveEntry {
	return ArchiveEntry{
		UserID:    e.UserID(),
		SpecID:    e.SpecID(),
		Favorite:  e.Favorite(),
		Notes:     e.Notes(),
		CreatedAt: e.CreatedAt(),
		UpdatedAt: e.UpdatedAt(),
	}
}
