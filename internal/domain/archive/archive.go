// Package archive holds a user's saved reference to a spec document.
package archive

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxNotesLength is the notes cap in characters.
const MaxNotesLength = 10000

// Entry links a user to a spec document. One entry per (user, spec).
type Entry struct {
	userID    string
	specID    string
	favorite  bool
	notes     string
	createdAt time.Time
	updatedAt time.Time
}

// ValidateID checks a user or spec identifier. name is the reported field.
func ValidateID(name, id string) error {
	if id == "" {
		return domain.NewValidationError(name, "is required")
	}
	if len(id) > 256 {
		return domain.NewValidationError(name, "too long (max 256)")
	}
	if !idRegex.MatchString(id) {
		return domain.NewValidationError(name, "must be alphanumeric with underscores and hyphens")
	}
	return nil
}

// New validates and creates an entry that is neither favorite nor annotated.
func New(userID, specID string, now time.Time) (Entry, error) {
	if err := ValidateID("user_id", userID); err != nil {
		return Entry{}, err
	}
	if err := ValidateID("spec_id", specID); err != nil {
		return Entry{}, err
	}
	now = now.UTC()
	return Entry{userID: userID, specID: specID, createdAt: now, updatedAt: now}, nil
}

// Reconstruct creates an Entry without validation (storage hydration).
func Reconstruct(userID, specID string, favorite bool, notes string, createdAt, updatedAt time.Time) Entry {
	return Entry{
		userID: userID, specID: specID, favorite: favorite, notes: notes,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

// UserID returns the owner.
func (e *Entry) UserID() string { return e.userID }

// SpecID returns the archived document id.
func (e *Entry) SpecID() string { return e.specID }

// Favorite reports whether the entry is starred.
func (e *Entry) Favorite() bool { return e.favorite }

// Notes returns the user's notes.
func (e *Entry) Notes() string { return e.notes }

// CreatedAt returns when the entry was linked.
func (e *Entry) CreatedAt() time.Time { return e.createdAt }

// UpdatedAt returns the last modification time.
func (e *Entry) UpdatedAt() time.Time { return e.updatedAt }

// WithFavorite returns a copy with the favorite flag set.
func (e *Entry) WithFavorite(favorite bool, now time.Time) Entry {
	c := *e
	c.favorite = favorite
	c.updatedAt = now.UTC()
	return c
}

// WithNotes returns a copy with replaced notes.
func (e *Entry) WithNotes(notes string, now time.Time) (Entry, error) {
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return Entry{}, domain.NewValidationError("notes", fmt.Sprintf("too long (max %d characters)", MaxNotesLength))
	}
	c := *e
	c.notes = notes
	c.updatedAt = now.UTC()
	return c, nil
}

// Item is an archive entry joined with its document.
type Item struct {
	Entry    Entry
	Document spec.Document
}
