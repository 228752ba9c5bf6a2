package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domspec "github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

const specColumns = `id, user_id, title, content, software_type, deploy_target, metadata, embedding, created_at`

// specRow is the spec_documents row.
type specRow struct {
	ID           string `db:"id"`
	UserID       string `db:"user_id"`
	Title        string `db:"title"`
	Content      string `db:"content"`
	SoftwareType string `db:"software_type"`
	DeployTarget string `db:"deploy_target"`
	Metadata     string `db:"metadata"`
	Embedding    []byte `db:"embedding"`
	CreatedAt    int64  `db:"created_at"`
}

// SpecOptions configures the spec store.
type SpecOptions struct {
	// ScanLimit caps the candidates read for in-process matching and ranking.
	ScanLimit int
	// VectorWeight is the share of the vector score in the combined rank (0..1).
	VectorWeight float64
}

// Default option values.
const (
	DefaultScanLimit    = 1000
	DefaultVectorWeight = 0.7
)

// SpecRepo implements the document store contracts on SQLite.
type SpecRepo struct {
	db    *sqlx.DB
	opts  SpecOptions
	newID func() string
}

// NewSpecRepo creates a spec store over an open database.
func NewSpecRepo(db *sqlx.DB, opts SpecOptions) *SpecRepo {
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = DefaultScanLimit
	}
	if opts.VectorWeight <= 0 || opts.VectorWeight > 1 {
		opts.VectorWeight = DefaultVectorWeight
	}
	return &SpecRepo{db: db, opts: opts, newID: uuid.NewString}
}

// Insert stores a new document and returns its id.
func (r *SpecRepo) Insert(ctx context.Context, doc *domspec.Document) (string, error) {
	id := doc.ID()
	if id == "" {
		id = r.newID()
	}

	row, err := buildRow(id, doc)
	if err != nil {
		return "", err
	}

	res, err := r.db.NamedExecContext(ctx,
		`INSERT INTO spec_documents (`+specColumns+`)
		 VALUES (:id, :user_id, :title, :content, :software_type, :deploy_target, :metadata, :embedding, :created_at)
		 ON CONFLICT (id) DO NOTHING`, row)
	if err != nil {
		return "", fmt.Errorf("insert spec %s: %w: %w", id, domain.ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("insert spec %s: %w: %w", id, domain.ErrStore, err)
	}
	if n == 0 {
		return "", fmt.Errorf("spec %s: %w", id, domain.ErrAlreadyExists)
	}
	return id, nil
}

// Get returns a document by id.
func (r *SpecRepo) Get(ctx context.Context, id string) (domspec.Document, error) {
	var row specRow
	err := r.db.GetContext(ctx, &row, `SELECT `+specColumns+` FROM spec_documents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domspec.Document{}, fmt.Errorf("spec %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domspec.Document{}, fmt.Errorf("get spec %s: %w: %w", id, domain.ErrStore, err)
	}
	return row.toDomain()
}

// Delete removes a document and, through the foreign key, its archive entries.
func (r *SpecRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM spec_documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete spec %s: %w: %w", id, domain.ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete spec %s: %w: %w", id, domain.ErrStore, err)
	}
	if n == 0 {
		return fmt.Errorf("spec %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// List returns a page of documents, newest first, with offset cursor pagination.
func (r *SpecRepo) List(ctx context.Context, q domspec.ListQuery) ([]domspec.Document, string, error) {
	q = q.Normalize()

	offset := 0
	if q.Cursor != "" {
		parsed, err := strconv.Atoi(q.Cursor)
		if err != nil || parsed < 0 {
			return nil, "", domain.NewValidationError("cursor", "must be a non-negative integer")
		}
		offset = parsed
	}

	query := `SELECT ` + specColumns + ` FROM spec_documents`
	var args []any
	if q.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, q.UserID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, q.Limit+1, offset)

	docs, err := r.selectDocs(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(docs) > q.Limit {
		docs = docs[:q.Limit]
		next = strconv.Itoa(offset + q.Limit)
	}
	return docs, next, nil
}

// Ping checks the connection.
func (r *SpecRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w: %w", domain.ErrStore, err)
	}
	return nil
}

func (r *SpecRepo) selectDocs(ctx context.Context, query string, args ...any) ([]domspec.Document, error) {
	var rows []specRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select specs: %w: %w", domain.ErrStore, err)
	}
	docs := make([]domspec.Document, 0, len(rows))
	for i := range rows {
		doc, err := rows[i].toDomain()
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func buildRow(id string, doc *domspec.Document) (specRow, error) {
	meta, err := json.Marshal(doc.Metadata())
	if err != nil {
		return specRow{}, fmt.Errorf("marshal metadata: %w", err)
	}
	return specRow{
		ID:           id,
		UserID:       doc.UserID(),
		Title:        doc.Title(),
		Content:      doc.Content(),
		SoftwareType: doc.SoftwareType(),
		DeployTarget: doc.DeployTarget(),
		Metadata:     string(meta),
		Embedding:    encodeVector(doc.Embedding()),
		CreatedAt:    doc.CreatedAt().UnixMilli(),
	}, nil
}

func (row *specRow) toDomain() (domspec.Document, error) {
	var meta metadata.Metadata
	if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
		return domspec.Document{}, fmt.Errorf("unmarshal metadata of %s: %w", row.ID, err)
	}
	vec, err := decodeVector(row.Embedding)
	if err != nil {
		return domspec.Document{}, fmt.Errorf("decode embedding of %s: %w", row.ID, err)
	}
	return domspec.Reconstruct(
		row.ID, row.UserID, row.Title, row.Content, row.SoftwareType, row.DeployTarget,
		vec, meta, time.UnixMilli(row.CreatedAt).UTC(),
	), nil
}

// facetWhere renders the equality facets as a WHERE clause.
func facetWhere(softwareType, deployTarget string) (string, []any) {
	var conds []string
	var args []any
	if softwareType != "" {
		conds = append(conds, "software_type = ?")
		args = append(args, softwareType)
	}
	if deployTarget != "" {
		conds = append(conds, "deploy_target = ?")
		args = append(args, deployTarget)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
