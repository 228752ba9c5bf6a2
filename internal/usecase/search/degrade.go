package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/metrics"
)

// Fallback strategies in merge order; the first occurrence of an id wins.
var fallbackOrder = [...]string{"vector", "text", "metadata"}

// degrade runs the vector, text and metadata strategies concurrently and merges them.
// A failed strategy contributes nothing; only a failure of all three is returned.
// When the query embedding already failed, the vector strategy fails with embErr.
func (s *Service) degrade(
	ctx context.Context, req *request.Request, vec []float32, embErr error,
) (result.Set, error) {
	if s.opts.FallbackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FallbackTimeout)
		defer cancel()
	}

	var (
		slots [len(fallbackOrder)][]result.Result
		errs  [len(fallbackOrder)]error
	)

	// Tasks never return an error to the group so one failure cannot cancel the rest.
	var g errgroup.Group
	g.Go(func() error {
		if embErr != nil {
			errs[0] = embErr
			return nil
		}
		slots[0], errs[0] = s.vectorResults(ctx, req, vec)
		return nil
	})
	g.Go(func() error {
		slots[1], errs[1] = s.textResults(ctx, req)
		return nil
	})
	g.Go(func() error {
		slots[2], errs[2] = s.metadataResults(ctx, req)
		return nil
	})
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		metrics.SearchStrategyErrorsTotal.WithLabelValues(fallbackOrder[i]).Inc()
		s.logger.Warn("Fallback strategy failed",
			zap.String("strategy", fallbackOrder[i]),
			zap.Error(err),
		)
	}
	if failed == len(errs) {
		return result.Set{}, fmt.Errorf("hybrid fallback: all strategies failed: %w", errors.Join(errs[:]...))
	}

	merged := mergeFirst(slots[:]...)
	return result.NewDegradedSet(s.withinDateRange(req, merged), FallbackNote), nil
}

// mergeFirst unions result lists in order, keeping the first occurrence of each id.
// Merging a list with itself yields the same id set.
func mergeFirst(lists ...[]result.Result) []result.Result {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	seen := make(map[string]struct{}, n)
	out := make([]result.Result, 0, n)
	for _, l := range lists {
		for i := range l {
			id := l[i].ID()
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, l[i])
		}
	}
	return out
}

func sortByScore(hits []result.Scored) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}
