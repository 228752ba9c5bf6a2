package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
)

const archiveColumns = `user_id, spec_id, is_favorite, notes, created_at, updated_at`

type archiveRow struct {
	UserID    string `db:"user_id"`
	SpecID    string `db:"spec_id"`
	Favorite  bool   `db:"is_favorite"`
	Notes     string `db:"notes"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

// ArchiveRepo stores user archive entries in the user_archives table.
type ArchiveRepo struct {
	db *sqlx.DB
}

// NewArchiveRepo creates an archive store over an open database.
func NewArchiveRepo(db *sqlx.DB) *ArchiveRepo {
	return &ArchiveRepo{db: db}
}

// Get returns the entry for (userID, specID).
func (r *ArchiveRepo) Get(ctx context.Context, userID, specID string) (domarchive.Entry, error) {
	var row archiveRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+archiveColumns+` FROM user_archives WHERE user_id = ? AND spec_id = ?`, userID, specID)
	if errors.Is(err, sql.ErrNoRows) {
		return domarchive.Entry{}, fmt.Errorf("archive %s/%s: %w", userID, specID, domain.ErrNotFound)
	}
	if err != nil {
		return domarchive.Entry{}, fmt.Errorf("get archive %s/%s: %w: %w", userID, specID, domain.ErrStore, err)
	}
	return row.toDomain(), nil
}

// Save creates or replaces an entry.
func (r *ArchiveRepo) Save(ctx context.Context, e *domarchive.Entry) error {
	row := archiveRow{
		UserID:    e.UserID(),
		SpecID:    e.SpecID(),
		Favorite:  e.Favorite(),
		Notes:     e.Notes(),
		CreatedAt: e.CreatedAt().UnixMilli(),
		UpdatedAt: e.UpdatedAt().UnixMilli(),
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO user_archives (`+archiveColumns+`)
		 VALUES (:user_id, :spec_id, :is_favorite, :notes, :created_at, :updated_at)
		 ON CONFLICT (user_id, spec_id) DO UPDATE SET
		   is_favorite = excluded.is_favorite,
		   notes = excluded.notes,
		   updated_at = excluded.updated_at`, row)
	if err != nil {
		return fmt.Errorf("save archive %s/%s: %w: %w", row.UserID, row.SpecID, domain.ErrStore, err)
	}
	return nil
}

// Delete removes an entry.
func (r *ArchiveRepo) Delete(ctx context.Context, userID, specID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_archives WHERE user_id = ? AND spec_id = ?`, userID, specID)
	if err != nil {
		return fmt.Errorf("delete archive %s/%s: %w: %w", userID, specID, domain.ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete archive %s/%s: %w: %w", userID, specID, domain.ErrStore, err)
	}
	if n == 0 {
		return fmt.Errorf("archive %s/%s: %w", userID, specID, domain.ErrNotFound)
	}
	return nil
}

// ListByUser returns a user's entries, most recently updated first.
func (r *ArchiveRepo) ListByUser(ctx context.Context, userID string) ([]domarchive.Entry, error) {
	var rows []archiveRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+archiveColumns+` FROM user_archives WHERE user_id = ? ORDER BY updated_at DESC, spec_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list archives of %s: %w: %w", userID, domain.ErrStore, err)
	}
	entries := make([]domarchive.Entry, len(rows))
	for i := range rows {
		entries[i] = rows[i].toDomain()
	}
	return entries, nil
}

func (row *archiveRow) toDomain() domarchive.Entry {
	return domarchive.Reconstruct(
		row.UserID, row.SpecID, row.Favorite, row.Notes,
		time.UnixMilli(row.CreatedAt).UTC(), time.UnixMilli(row.UpdatedAt).UTC(),
	)
}
