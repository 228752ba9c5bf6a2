package search

import (
	"context"
	"fmt"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
)

// metadataSimilarity is reported for metadata matches, which carry no ranking signal.
const metadataSimilarity = 1.0

// metadataResults ORs the substring and tech clauses in the store, then ANDs
// the exact facets and the date bound in process.
func (s *Service) metadataResults(ctx context.Context, req *request.Request) ([]result.Result, error) {
	facets := req.Facets()
	docs, err := s.store.FilteredLookup(ctx, filter.NewMatch(req.Query(), filter.MetadataFields, facets.Tech()))
	if err != nil {
		return nil, fmt.Errorf("filtered lookup: %w", err)
	}

	now := s.now()
	dr := req.DateRange()
	out := make([]result.Result, 0, len(docs))
	for i := range docs {
		if !facets.Admits(&docs[i]) || !dr.Contains(docs[i].CreatedAt(), now) {
			continue
		}
		out = append(out, result.New(docs[i], metadataSimilarity))
	}
	return out, nil
}

func (s *Service) vectorResults(ctx context.Context, req *request.Request, vec []float32) ([]result.Result, error) {
	hits, err := s.store.VectorLookup(ctx, request.VectorQuery{
		Embedding: vec,
		Threshold: s.opts.VectorThreshold,
		Limit:     s.opts.VectorLimit,
		Facets:    req.Facets(),
	})
	if err != nil {
		return nil, fmt.Errorf("vector lookup: %w", err)
	}
	return s.withinDateRange(req, result.FromScored(hits)), nil
}

// textResults keeps the store order; text matches are unranked.
func (s *Service) textResults(ctx context.Context, req *request.Request) ([]result.Result, error) {
	docs, err := s.store.SubstringLookup(ctx, filter.TextFields, req.Query())
	if err != nil {
		return nil, fmt.Errorf("substring lookup: %w", err)
	}

	facets := req.Facets()
	now := s.now()
	dr := req.DateRange()
	out := make([]result.Result, 0, len(docs))
	for i := range docs {
		if !facets.Admits(&docs[i]) || !dr.Contains(docs[i].CreatedAt(), now) {
			continue
		}
		out = append(out, result.Unranked(docs[i]))
	}
	return out, nil
}

func (s *Service) withinDateRange(req *request.Request, res []result.Result) []result.Result {
	dr := req.DateRange()
	if dr.IsAll() {
		return res
	}
	now := s.now()
	out := res[:0]
	for i := range res {
		doc := res[i].Document()
		if dr.Contains(doc.CreatedAt(), now) {
			out = append(out, res[i])
		}
	}
	return out
}
