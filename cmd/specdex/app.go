package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsubouchi/intelligence-agent-maker/internal/config"
	dbRedis "github.com/tsubouchi/intelligence-agent-maker/internal/db/redis"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/metrics"
	archiverepo "github.com/tsubouchi/intelligence-agent-maker/internal/repository/archive"
	"github.com/tsubouchi/intelligence-agent-maker/internal/repository/budget"
	"github.com/tsubouchi/intelligence-agent-maker/internal/repository/embcache"
	specrepo "github.com/tsubouchi/intelligence-agent-maker/internal/repository/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/repository/sqlite"
	chiTransport "github.com/tsubouchi/intelligence-agent-maker/internal/transport/chi"
	openaiTransport "github.com/tsubouchi/intelligence-agent-maker/internal/transport/openai"
	"github.com/tsubouchi/intelligence-agent-maker/internal/transport/pubsub"
	archiveuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/archive"
	documentuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/document"
	embeddinguc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/embedding"
	extractionuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/extraction"
	generationuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/generation"
	healthuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/health"
	searchuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/search"
	usageuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/usage"
)

// documentStore is what every use case needs from the spec store.
type documentStore interface {
	searchuc.Store
	documentuc.Repository
	generationuc.Store
	Ping(ctx context.Context) error
}

// app holds the wired services. close releases the store.
type app struct {
	search     *searchuc.Service
	documents  *documentuc.Service
	archives   *archiveuc.Service
	generation *generationuc.Service
	health     *healthuc.Service
	usage      *usageuc.Service
	publisher  chiTransport.Publisher
	close      func()
}

// services adapts the app to the HTTP server's dependencies.
func (a *app) services() chiTransport.Services {
	return chiTransport.Services{
		Search:     a.search,
		Library:    a.documents,
		Archives:   a.archives,
		Generation: a.generation,
		Publisher:  a.publisher,
		Health:     a.health,
		Usage:      a.usage,
	}
}

// newApp is the composition root.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterPipelineMetrics()

	var (
		docs      documentStore
		archRepo  archiveuc.Repository
		cache     embcacheStore
		counters  usageuc.Store
		closeFunc func()
	)
	switch cfg.Database.Driver {
	case config.DriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("database not ready: %w", err)
		}
		repo := specrepo.New(store, specrepo.Options{
			KeyPrefix: cfg.Database.KeyPrefix,
			VectorDim: cfg.Embedding.Dimensions,
			HNSW: specrepo.HNSWConfig{
				M:           cfg.Database.HNSWM,
				EFConstruct: cfg.Database.HNSWEFConstruct,
			},
			ScanLimit:    cfg.Search.ScanLimit,
			VectorWeight: cfg.Search.VectorWeight,
		})
		if err := repo.EnsureIndex(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure search index: %w", err)
		}
		docs, archRepo, cache, closeFunc = repo, archiverepo.New(store, cfg.Database.KeyPrefix), store, store.Close
		counters = budget.New(store, budget.DefaultDailyTTL, budget.DefaultMonthlyTTL)
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		docs = sqlite.NewSpecRepo(db, sqlite.SpecOptions{
			ScanLimit:    cfg.Search.ScanLimit,
			VectorWeight: cfg.Search.VectorWeight,
		})
		archRepo = sqlite.NewArchiveRepo(db)
		closeFunc = func() { _ = db.Close() }
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	logger.Info("Connected to document store", zap.String("driver", cfg.Database.Driver))

	embBudget := newTracker(ctx, "embedding", cfg.Database.KeyPrefix, cfg.Embedding.Budget, counters, logger)
	genBudget := newTracker(ctx, "generation", cfg.Database.KeyPrefix, cfg.Generation.Budget, counters, logger)

	embedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	guardedEmbedder := usageuc.NewGuardedEmbedder(embedder, embBudget)
	docEmbedder := buildEmbedder(guardedEmbedder, cache, &cfg.Embedding, cfg.Embedding.DocumentInstruction, cfg.Database.KeyPrefix, logger)
	queryEmbedder := buildEmbedder(guardedEmbedder, cache, &cfg.Embedding, cfg.Embedding.QueryInstruction, cfg.Database.KeyPrefix, logger)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:            cfg.Generation.APIKey,
		BaseURL:           cfg.Generation.BaseURL,
		Model:             cfg.Generation.Model,
		StructuredModel:   cfg.Generation.ExtractionModel,
		RequestsPerSecond: cfg.Generation.RequestsPerSec,
		Burst:             cfg.Generation.Burst,
		Timeout:           cfg.Generation.Timeout(),
		Provider:          cfg.Generation.Provider,
		Logger:            logger,
	})

	prompt, err := cfg.Generation.SystemPrompt()
	if err != nil {
		closeFunc()
		return nil, err
	}

	a := &app{close: closeFunc}
	a.documents = documentuc.New(docs).WithPagination(cfg.Search.DefaultPageSize, cfg.Search.MaxPageSize)
	a.archives = archiveuc.New(archRepo, docs, logger)
	a.search = searchuc.New(docs, queryEmbedder, searchuc.Options{
		VectorThreshold: cfg.Search.VectorThreshold,
		VectorLimit:     cfg.Search.VectorLimit,
		HybridLimit:     cfg.Search.HybridLimit,
		FallbackTimeout: cfg.Search.FallbackTimeout(),
	}, logger)
	guardedGenerator := usageuc.NewGuardedGenerator(generator, genBudget)
	a.generation = generationuc.New(
		guardedGenerator, docEmbedder, extractionuc.New(guardedGenerator, logger), docs, a.archives,
		generationuc.Options{SystemPrompt: prompt}, logger,
	)
	a.usage = usageuc.New(embBudget, genBudget)
	a.health = healthuc.New(docs, map[string]healthuc.ProviderChecker{
		"embedding":  embedder,
		"generation": generator,
	})

	if cfg.PubSub.Enabled() {
		pub, err := pubsub.NewPublisher(ctx, cfg.PubSub.Project, cfg.PubSub.Topic)
		if err != nil {
			closeFunc()
			return nil, fmt.Errorf("create pubsub publisher: %w", err)
		}
		a.publisher = pub
		logger.Info("Generation jobs go through Pub/Sub",
			zap.String("project", cfg.PubSub.Project),
			zap.String("topic", cfg.PubSub.Topic),
		)
	}

	return a, nil
}

// newTracker builds a provider token budget. Counters persist only when the store has a key-value side.
func newTracker(
	ctx context.Context, provider, keyPrefix string, cfg config.BudgetConfig, counters usageuc.Store, logger *zap.Logger,
) *usageuc.Tracker {
	t := usageuc.NewTracker(provider, keyPrefix, usageuc.Limits{
		Daily:   cfg.DailyTokens,
		Monthly: cfg.MonthlyTokens,
		Action:  usageuc.Action(cfg.Action),
	}, logger)
	if counters != nil {
		t = t.WithStore(ctx, counters)
	}
	return t
}

// embcacheStore is the key-value store behind the embedding cache.
type embcacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// buildEmbedder assembles the decorator chain: OpenAI -> Budget -> Cached -> Instrumented -> Instruction.
// Cache hits never reach the budget.
// The cache is skipped when the store has no key-value side (SQLite).
func buildEmbedder(
	base domain.Embedder,
	cache embcacheStore,
	cfg *config.EmbeddingConfig,
	instruction, keyPrefix string,
	logger *zap.Logger,
) domain.Embedder {
	embedder := base
	if cache != nil {
		embedder = embcache.New(base, cache, embcache.Options{
			KeyPrefix: keyPrefix,
			Model:     cfg.Model,
			TTL:       cfg.CacheTTL(),
		}, metrics.EmbeddingCacheTotal, logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, cfg.MaxInputChars, logger)

	// Instruction prefix is outermost, so the cache key includes it.
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}
