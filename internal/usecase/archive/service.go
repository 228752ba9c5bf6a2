// Package archive manages a user's saved spec documents: links, favorites and notes.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
)

// Service handles archive operations.
type Service struct {
	repo   Repository
	docs   DocumentReader
	now    func() time.Time
	logger *zap.Logger
}

// New creates an archive service.
func New(repo Repository, docs DocumentReader, logger *zap.Logger) *Service {
	return &Service{repo: repo, docs: docs, now: time.Now, logger: logger}
}

// Link archives a document for a user. Linking twice is a no-op.
func (s *Service) Link(ctx context.Context, userID, specID string) error {
	_, err := s.ensure(ctx, userID, specID)
	return err
}

// Get returns one archive entry.
func (s *Service) Get(ctx context.Context, userID, specID string) (domarchive.Entry, error) {
	if err := validateKey(userID, specID); err != nil {
		return domarchive.Entry{}, err
	}
	e, err := s.repo.Get(ctx, userID, specID)
	if err != nil {
		return domarchive.Entry{}, fmt.Errorf("get archive: %w", err)
	}
	return e, nil
}

// SetFavorite stars or unstars a document, archiving it first when needed.
func (s *Service) SetFavorite(ctx context.Context, userID, specID string, favorite bool) (domarchive.Entry, error) {
	e, err := s.ensure(ctx, userID, specID)
	if err != nil {
		return domarchive.Entry{}, err
	}
	if e.Favorite() == favorite {
		return e, nil
	}
	updated := e.WithFavorite(favorite, s.now())
	if err := s.repo.Save(ctx, &updated); err != nil {
		return domarchive.Entry{}, fmt.Errorf("set favorite: %w", err)
	}
	return updated, nil
}

// SaveNotes replaces the user's notes, archiving the document first when needed.
func (s *Service) SaveNotes(ctx context.Context, userID, specID, notes string) (domarchive.Entry, error) {
	e, err := s.ensure(ctx, userID, specID)
	if err != nil {
		return domarchive.Entry{}, err
	}
	updated, err := e.WithNotes(notes, s.now())
	if err != nil {
		return domarchive.Entry{}, err
	}
	if err := s.repo.Save(ctx, &updated); err != nil {
		return domarchive.Entry{}, fmt.Errorf("save notes: %w", err)
	}
	return updated, nil
}

// Unlink removes a document from the user's archive.
func (s *Service) Unlink(ctx context.Context, userID, specID string) error {
	if err := validateKey(userID, specID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, specID); err != nil {
		return fmt.Errorf("unlink archive: %w", err)
	}
	return nil
}

// List returns the user's archived documents, most recently updated first.
// Entries whose document has been deleted are skipped.
func (s *Service) List(ctx context.Context, userID string, favoritesOnly bool) ([]domarchive.Item, error) {
	if err := domarchive.ValidateID("user_id", userID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}

	items := make([]domarchive.Item, 0, len(entries))
	for i := range entries {
		if favoritesOnly && !entries[i].Favorite() {
			continue
		}
		doc, err := s.docs.Get(ctx, entries[i].SpecID())
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug("archived document is gone",
				zap.String("user_id", userID), zap.String("spec_id", entries[i].SpecID()))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list archives: %w", err)
		}
		items = append(items, domarchive.Item{Entry: entries[i], Document: doc})
	}
	return items, nil
}

// ensure returns the existing entry or creates one for an existing document.
func (s *Service) ensure(ctx context.Context, userID, specID string) (domarchive.Entry, error) {
	fresh, err := domarchive.New(userID, specID, s.now())
	if err != nil {
		return domarchive.Entry{}, err
	}

	existing, err := s.repo.Get(ctx, userID, specID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domarchive.Entry{}, fmt.Errorf("get archive: %w", err)
	}

	if _, err := s.docs.Get(ctx, specID); err != nil {
		return domarchive.Entry{}, fmt.Errorf("archive document: %w", err)
	}
	if err := s.repo.Save(ctx, &fresh); err != nil {
		return domarchive.Entry{}, fmt.Errorf("link archive: %w", err)
	}
	return fresh, nil
}

func validateKey(userID, specID string) error {
	if err := domarchive.ValidateID("user_id", userID); err != nil {
		return err
	}
	return domarchive.ValidateID("spec_id", specID)
}
