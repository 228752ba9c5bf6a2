package specdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	dbRedis "github.com/tsubouchi/intelligence-agent-maker/internal/db/redis"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	archiverepo "github.com/tsubouchi/intelligence-agent-maker/internal/repository/archive"
	specrepo "github.com/tsubouchi/intelligence-agent-maker/internal/repository/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/repository/sqlite"
	archiveuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/archive"
	documentuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/document"
	healthuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/health"
	searchuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/search"
)

const (
	driverRedis  = "redis"
	driverSQLite = "sqlite"

	defaultReadinessTimeout = 10 * time.Second
	defaultVectorDimensions = 1536
)

// Internal interfaces, swapped for fakes in tests.
type searchUseCase interface {
	Search(ctx context.Context, req *request.Request) (result.Set, error)
}

type libraryUseCase interface {
	Get(ctx context.Context, id string) (spec.Document, error)
	List(ctx context.Context, userID, cursor string, limit int) ([]spec.Document, string, error)
	Delete(ctx context.Context, id string) error
}

type archiveUseCase interface {
	Link(ctx context.Context, userID, specID string) error
	Get(ctx context.Context, userID, specID string) (domarchive.Entry, error)
	SetFavorite(ctx context.Context, userID, specID string, favorite bool) (domarchive.Entry, error)
	SaveNotes(ctx context.Context, userID, specID, notes string) (domarchive.Entry, error)
	Unlink(ctx context.Context, userID, specID string) error
	List(ctx context.Context, userID string, favoritesOnly bool) ([]domarchive.Item, error)
}

// docStore is the slice of the spec store the client wires.
type docStore interface {
	searchuc.Store
	documentuc.Repository
	Ping(ctx context.Context) error
}

// Client is the specdex SDK entry point.
type Client struct {
	closeFn    func()
	searchSvc  searchUseCase
	libSvc     libraryUseCase
	archiveSvc archiveUseCase
	healthSvc  healthUseCase
	obs        *observer
}

// New opens the configured store and wires the services.
// The provided context is used for the readiness check and index creation.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{vectorDimensions: defaultVectorDimensions}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		b.close()
		return nil, err
	}
	return wireClient(b, cfg, obs), nil
}

// backend is an opened store.
type backend struct {
	docs     docStore
	archives archiveuc.Repository
	close    func()
}

func openBackend(ctx context.Context, cfg *clientConfig) (*backend, error) {
	switch cfg.driver {
	case driverRedis:
		if len(cfg.addrs) == 0 || cfg.addrs[0] == "" {
			return nil, errors.New("specdex: redis address required")
		}
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, fmt.Errorf("specdex: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("specdex: database not ready: %w", err)
		}
		repo := specrepo.New(s, specrepo.Options{
			KeyPrefix: cfg.keyPrefix,
			VectorDim: cfg.vectorDimensions,
			HNSW:      specrepo.HNSWConfig{M: cfg.hnswM, EFConstruct: cfg.hnswEFConstruct},
		})
		if err := repo.EnsureIndex(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("specdex: ensure index: %w", err)
		}
		prefix := cfg.keyPrefix
		if prefix == "" {
			prefix = specrepo.DefaultKeyPrefix
		}
		return &backend{docs: repo, archives: archiverepo.New(s, prefix), close: s.Close}, nil
	case driverSQLite:
		if cfg.sqlitePath == "" {
			return nil, errors.New("specdex: sqlite path required")
		}
		db, err := sqlite.Open(ctx, cfg.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("specdex: %w", err)
		}
		return &backend{
			docs:     sqlite.NewSpecRepo(db, sqlite.SpecOptions{}),
			archives: sqlite.NewArchiveRepo(db),
			close:    func() { _ = db.Close() },
		}, nil
	case "":
		return nil, errors.New("specdex: store required (use WithRedis or WithSQLite)")
	default:
		return nil, fmt.Errorf("specdex: unknown driver %q", cfg.driver)
	}
}

func wireClient(b *backend, cfg *clientConfig, obs *observer) *Client {
	var emb domain.Embedder = noopEmbedder{}
	providers := map[string]healthuc.ProviderChecker{}
	if cfg.embedder != nil {
		emb = &embedderAdapter{inner: cfg.embedder}
		if hc, ok := cfg.embedder.(healthuc.ProviderChecker); ok {
			providers["embedding"] = hc
		}
	}

	archives := archiveuc.New(b.archives, b.docs, cfg.logger)
	return &Client{
		closeFn: b.close,
		searchSvc: searchuc.New(b.docs, emb, searchuc.Options{
			VectorThreshold: cfg.vectorThreshold,
		}, cfg.logger),
		libSvc:     documentuc.New(b.docs),
		archiveSvc: archives,
		healthSvc:  healthuc.New(b.docs, providers),
		obs:        obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Search starts a search query.
func (c *Client) Search() *SearchBuilder {
	return &SearchBuilder{svc: c.searchSvc, obs: c.obs, mode: ModeHybrid}
}

// Library returns the document library.
func (c *Client) Library() *LibraryService {
	return &LibraryService{svc: c.libSvc, obs: c.obs}
}

// Archives returns the archive of one user.
func (c *Client) Archives(userID string) *ArchiveService {
	return &ArchiveService{userID: userID, svc: c.archiveSvc, obs: c.obs}
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
// Failures are provider errors so hybrid search degrades on them.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// noopEmbedder fails every call (used when no embedder is configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, fmt.Errorf(
		"specdex: embedder not configured (use WithEmbedder): %w", domain.ErrEmbeddingProviderError,
	)
}
