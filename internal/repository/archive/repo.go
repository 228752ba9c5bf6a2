// Package archive stores user archive entries as Redis hashes.
package archive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
)

// store is the consumer interface for archive entries (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Hash field names.
const (
	fieldUserID    = "user_id"
	fieldSpecID    = "spec_id"
	fieldFavorite  = "is_favorite"
	fieldNotes     = "notes"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// Repo implements usecase/archive.Repository.
type Repo struct {
	store  store
	prefix string
}

// New creates an archive repository. keyPrefix namespaces every key.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// Get returns the entry for (userID, specID).
func (r *Repo) Get(ctx context.Context, userID, specID string) (domarchive.Entry, error) {
	key := r.key(userID, specID)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domarchive.Entry{}, fmt.Errorf("hgetall %s: %w: %w", key, domain.ErrStore, err)
	}
	if len(m) == 0 {
		return domarchive.Entry{}, fmt.Errorf("archive %s/%s: %w", userID, specID, domain.ErrNotFound)
	}
	return parseHash(m), nil
}

// Save creates or replaces an entry.
func (r *Repo) Save(ctx context.Context, e *domarchive.Entry) error {
	key := r.key(e.UserID(), e.SpecID())
	if err := r.store.HSet(ctx, key, buildHash(e)); err != nil {
		return fmt.Errorf("hset %s: %w: %w", key, domain.ErrStore, err)
	}
	return nil
}

// Delete removes an entry.
func (r *Repo) Delete(ctx context.Context, userID, specID string) error {
	key := r.key(userID, specID)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("exists %s: %w: %w", key, domain.ErrStore, err)
	}
	if !exists {
		return fmt.Errorf("archive %s/%s: %w", userID, specID, domain.ErrNotFound)
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w: %w", key, domain.ErrStore, err)
	}
	return nil
}

// ListByUser returns a user's entries, most recently updated first.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]domarchive.Entry, error) {
	pattern := r.prefix + "archive:" + userID + ":*"
	keys, err := r.store.Scan(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w: %w", pattern, domain.ErrStore, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi: %w: %w", domain.ErrStore, err)
	}

	entries := make([]domarchive.Entry, 0, len(hashes))
	for _, m := range hashes {
		if len(m) == 0 {
			continue // deleted between SCAN and HGETALL
		}
		entries = append(entries, parseHash(m))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt().After(entries[j].UpdatedAt())
	})
	return entries, nil
}

func (r *Repo) key(userID, specID string) string {
	return r.prefix + "archive:" + userID + ":" + specID
}

func buildHash(e *domarchive.Entry) map[string]string {
	fav := "0"
	if e.Favorite() {
		fav = "1"
	}
	return map[string]string{
		fieldUserID:    e.UserID(),
		fieldSpecID:    e.SpecID(),
		fieldFavorite:  fav,
		fieldNotes:     e.Notes(),
		fieldCreatedAt: e.CreatedAt().Format(time.RFC3339Nano),
		fieldUpdatedAt: e.UpdatedAt().Format(time.RFC3339Nano),
	}
}

func parseHash(m map[string]string) domarchive.Entry {
	return domarchive.Reconstruct(
		m[fieldUserID], m[fieldSpecID],
		m[fieldFavorite] == "1",
		m[fieldNotes],
		parseTime(m[fieldCreatedAt]),
		parseTime(m[fieldUpdatedAt]),
	)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
