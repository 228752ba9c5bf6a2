// Package spec is the Redis Stack (RedisJSON + RediSearch) document store.
package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tsubouchi/intelligence-agent-maker/internal/db"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domspec "github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
)

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "specdex:"

// store is the consumer interface for spec documents (ISP).
type store interface {
	Ping(ctx context.Context) error
	JSONSetNX(ctx context.Context, key string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchHybrid(ctx context.Context, knn *db.KNNQuery, text *db.TextQuery) (*db.SearchResult, *db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
}

// Options configures the repository.
type Options struct {
	KeyPrefix string
	VectorDim int
	HNSW      HNSWConfig
	// ScanLimit caps the candidates fetched for in-process substring matching.
	ScanLimit int
	// VectorWeight is the share of the vector score in the combined rank (0..1).
	VectorWeight float64
}

// Default option values.
const (
	DefaultScanLimit    = 1000
	DefaultVectorWeight = 0.7
)

// Repo implements the document store contracts of the search and library use cases.
type Repo struct {
	store  store
	opts   Options
	prefix string
	newID  func() string
}

// New creates a spec repository.
func New(s store, opts Options) *Repo {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = DefaultScanLimit
	}
	if opts.VectorWeight <= 0 || opts.VectorWeight > 1 {
		opts.VectorWeight = DefaultVectorWeight
	}
	return &Repo{store: s, opts: opts, prefix: opts.KeyPrefix, newID: uuid.NewString}
}

// Ping checks the store connection.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Insert stores a new document and returns its id.
// A document that already carries an id keeps it; otherwise a UUIDv4 is assigned.
func (r *Repo) Insert(ctx context.Context, doc *domspec.Document) (string, error) {
	id := doc.ID()
	if id == "" {
		id = r.newID()
	}
	key := docKey(r.prefix, id)

	data, err := json.Marshal(buildJSONDoc(doc))
	if err != nil {
		return "", fmt.Errorf("marshal spec: %w", err)
	}

	if err := r.store.JSONSetNX(ctx, key, data); err != nil {
		if errors.Is(err, db.ErrKeyExists) {
			return "", fmt.Errorf("spec %s: %w", id, domain.ErrAlreadyExists)
		}
		return "", storeErr("json.set "+key, err)
	}
	return id, nil
}

// Get returns a document by id.
func (r *Repo) Get(ctx context.Context, id string) (domspec.Document, error) {
	key := docKey(r.prefix, id)
	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domspec.Document{}, fmt.Errorf("spec %s: %w", id, domain.ErrNotFound)
		}
		return domspec.Document{}, storeErr("json.get "+key, err)
	}
	return parseJSONGetResult(id, string(raw))
}

// Delete removes a document.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := docKey(r.prefix, id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return storeErr("exists "+key, err)
	}
	if !exists {
		return fmt.Errorf("spec %s: %w", id, domain.ErrNotFound)
	}

	if err := r.store.Del(ctx, key); err != nil {
		return storeErr("del "+key, err)
	}
	return nil
}

// List returns a page of documents, newest first, with offset cursor pagination.
func (r *Repo) List(ctx context.Context, q domspec.ListQuery) ([]domspec.Document, string, error) {
	q = q.Normalize()

	offset := 0
	if q.Cursor != "" {
		parsed, err := strconv.Atoi(q.Cursor)
		if err != nil || parsed < 0 {
			return nil, "", domain.NewValidationError("cursor", "must be a non-negative integer")
		}
		offset = parsed
	}

	var f db.Filter
	if q.UserID != "" {
		f.Tags = append(f.Tags, db.TagCondition{Field: fieldUserID, Values: []string{q.UserID}})
	}

	sr, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName:    indexName(r.prefix),
		Filter:       f,
		SortBy:       fieldCreatedAt,
		Descending:   true,
		Offset:       offset,
		Limit:        q.Limit + 1,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		return nil, "", storeErr("search list", err)
	}

	docs := r.parseEntries(sr)
	var next string
	if len(docs) > q.Limit {
		docs = docs[:q.Limit]
		next = strconv.Itoa(offset + q.Limit)
	}
	return docs, next, nil
}

// parseEntries decodes FT.SEARCH entries carrying RETURN $, skipping unreadable ones.
func (r *Repo) parseEntries(sr *db.SearchResult) []domspec.Document {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	docs := make([]domspec.Document, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		doc, ok := r.parseEntry(entry)
		if ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

func (r *Repo) parseEntry(entry db.SearchEntry) (domspec.Document, bool) {
	raw := entry.Fields["$"]
	if raw == "" {
		return domspec.Document{}, false
	}
	doc, err := parseDoc(extractID(r.prefix, entry.Key), raw)
	if err != nil {
		return domspec.Document{}, false
	}
	return doc, true
}

func docPrefix(prefix string) string {
	return prefix + "spec:"
}

func docKey(prefix, id string) string {
	return docPrefix(prefix) + id
}

func indexName(prefix string) string {
	return prefix + "spec:idx"
}

func extractID(prefix, key string) string {
	return strings.TrimPrefix(key, docPrefix(prefix))
}

// storeErr classifies driver failures: rejected queries are the caller's fault,
// everything else is a store failure.
func storeErr(op string, err error) error {
	if errors.Is(err, db.ErrInvalidQuery) {
		return fmt.Errorf("%s: %w: %w", op,
			domain.NewValidationError("query", "rejected by the search engine"), err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
}
