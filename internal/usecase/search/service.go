package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/mode"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/metrics"
)

// FallbackNote is attached to results produced by the hybrid fallback merge.
const FallbackNote = "Fallback search method was used"

// Options tunes the strategies. Zero values select the defaults.
type Options struct {
	VectorThreshold float64
	VectorLimit     int
	HybridLimit     int
	// FallbackTimeout bounds the degraded fan-out; zero leaves only the caller's deadline.
	FallbackTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.VectorThreshold <= 0 {
		o.VectorThreshold = request.DefaultVectorThreshold
	}
	if o.VectorLimit <= 0 {
		o.VectorLimit = request.DefaultVectorLimit
	}
	if o.HybridLimit <= 0 {
		o.HybridLimit = request.DefaultHybridLimit
	}
	return o
}

type strategy func(ctx context.Context, req *request.Request) (result.Set, error)

// Service routes search requests to the metadata, vector, text and hybrid strategies.
type Service struct {
	store  Store
	embed  Embedder
	opts   Options
	logger *zap.Logger
	now    func() time.Time
	routes map[mode.Mode]strategy
}

// New creates a search service.
func New(store Store, embed Embedder, opts Options, logger *zap.Logger) *Service {
	s := &Service{
		store:  store,
		embed:  embed,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
	s.routes = map[mode.Mode]strategy{
		mode.Metadata: s.searchMetadata,
		mode.Vector:   s.searchVector,
		mode.Text:     s.searchText,
		mode.Hybrid:   s.searchHybrid,
	}
	return s
}

// Search validates the request and dispatches it on its mode. Unknown modes run hybrid.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.Set, error) {
	if err := request.Check(req.Query(), req.Mode()); err != nil {
		return result.Set{}, err
	}

	m := req.Mode()
	run, ok := s.routes[m]
	if !ok {
		m, run = mode.Hybrid, s.routes[mode.Hybrid]
	}

	start := time.Now()
	set, err := run(ctx, req)
	metrics.SearchDuration.WithLabelValues(string(m)).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.SearchRequestsTotal.WithLabelValues(string(m), "error").Inc()
		return result.Set{}, err
	case set.Degraded():
		metrics.SearchRequestsTotal.WithLabelValues(string(m), "degraded").Inc()
	default:
		metrics.SearchRequestsTotal.WithLabelValues(string(m), "ok").Inc()
	}
	return set, nil
}

func (s *Service) searchMetadata(ctx context.Context, req *request.Request) (result.Set, error) {
	res, err := s.metadataResults(ctx, req)
	if err != nil {
		return result.Set{}, err
	}
	return result.NewSet(res), nil
}

func (s *Service) searchVector(ctx context.Context, req *request.Request) (result.Set, error) {
	vec, err := s.vectorize(ctx, req.Query())
	if err != nil {
		return result.Set{}, err
	}
	res, err := s.vectorResults(ctx, req, vec)
	if err != nil {
		return result.Set{}, err
	}
	return result.NewSet(res), nil
}

func (s *Service) searchText(ctx context.Context, req *request.Request) (result.Set, error) {
	res, err := s.textResults(ctx, req)
	if err != nil {
		return result.Set{}, err
	}
	return result.NewSet(res), nil
}

// searchHybrid tries the store's combined ranking and falls back to the
// concurrent merge of the other strategies when it fails for a non-client reason.
func (s *Service) searchHybrid(ctx context.Context, req *request.Request) (result.Set, error) {
	vec, embErr := s.vectorize(ctx, req.Query())
	err := embErr
	if embErr == nil {
		var hits []result.Scored
		hits, err = s.store.CombinedRank(ctx, req.Query(), vec, req.Facets().OrNil(), s.opts.HybridLimit)
		if err == nil {
			sortByScore(hits)
			res := result.FromScored(hits)
			return result.NewSet(s.withinDateRange(req, res)), nil
		}
		err = fmt.Errorf("combined rank: %w", err)
	}

	// An exhausted embedding budget leaves text and metadata search usable.
	if !degradable(err) && !errors.Is(embErr, domain.ErrRateLimited) {
		return result.Set{}, err
	}

	s.logger.Warn("Combined ranking failed, degrading to fallback merge",
		zap.String("query", req.Query()),
		zap.Any("filter", req.Facets().Document()),
		zap.Error(err),
	)
	metrics.SearchDegradedTotal.Inc()
	return s.degrade(ctx, req, vec, embErr)
}

// degradable reports whether err is a store or provider failure rather than a client error.
func degradable(err error) bool {
	if errors.Is(err, domain.ErrValidation) {
		return false
	}
	return errors.Is(err, domain.ErrStore) ||
		errors.Is(err, domain.ErrProvider) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) vectorize(ctx context.Context, query string) ([]float32, error) {
	embResult, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	domain.UsageFromContext(ctx).AddEmbeddingTokens(embResult.TotalTokens)
	return embResult.Embedding, nil
}
