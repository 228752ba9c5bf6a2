package spec

import (
	"context"
	"math"
	"sort"

	"github.com/tsubouchi/intelligence-agent-maker/internal/db"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	domspec "github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
)

// FilteredLookup returns the documents admitted by m, newest first.
// A tech-only predicate is pushed into the index as TAG clauses; substring
// predicates are evaluated in process over at most ScanLimit candidates.
func (r *Repo) FilteredLookup(ctx context.Context, m filter.Match) ([]domspec.Document, error) {
	var f db.Filter
	if m.Pattern() == "" || len(m.Fields()) == 0 {
		f = techFilter(m.Tech())
	}

	docs, err := r.scan(ctx, f)
	if err != nil {
		return nil, err
	}
	if m.MatchesAll() {
		return docs, nil
	}

	out := docs[:0]
	for i := range docs {
		if m.Matches(&docs[i]) {
			out = append(out, docs[i])
		}
	}
	return out, nil
}

// SubstringLookup returns documents whose fields contain pattern (case-insensitive).
func (r *Repo) SubstringLookup(ctx context.Context, fields []filter.Field, pattern string) ([]domspec.Document, error) {
	return r.FilteredLookup(ctx, filter.NewMatch(pattern, fields, nil))
}

// VectorLookup returns documents with cosine similarity >= Threshold,
// best first, at most Limit. Facet equality is pushed into the index and
// re-checked on the decoded document, since indexes created before the
// case-sensitive schema still fold case.
func (r *Repo) VectorLookup(ctx context.Context, q request.VectorQuery) ([]result.Scored, error) {
	if q.Limit <= 0 {
		return nil, nil
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName(r.prefix),
		Filter:       facetFilter(q.Facets, false),
		VectorField:  fieldVector,
		Vector:       q.Embedding,
		K:            q.Limit,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		return nil, storeErr("search knn", err)
	}
	if sr == nil {
		return nil, nil
	}

	hits := make([]result.Scored, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		if entry.Score < q.Threshold {
			continue
		}
		doc, ok := r.parseEntry(entry)
		if !ok || !q.Facets.Admits(&doc) {
			continue
		}
		hits = append(hits, result.Scored{Document: doc, Score: entry.Score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

// CombinedRank fuses vector similarity with full-text relevance in one round-trip.
// combined = w*vector + (1-w)*text/maxText, both sides pre-filtered by facets.
func (r *Repo) CombinedRank(
	ctx context.Context, query string, embedding []float32, facets *filter.Facets, limit int,
) ([]result.Scored, error) {
	if limit <= 0 {
		return nil, nil
	}

	var f db.Filter
	if facets != nil {
		f = facetFilter(*facets, true)
	}
	idx := indexName(r.prefix)

	knnRes, textRes, err := r.store.SearchHybrid(ctx,
		&db.KNNQuery{
			IndexName:    idx,
			Filter:       f,
			VectorField:  fieldVector,
			Vector:       embedding,
			K:            limit,
			ReturnFields: []string{"$"},
		},
		&db.TextQuery{
			IndexName:    idx,
			Query:        query,
			Fields:       []string{fieldTitle, fieldContent, fieldSummary},
			Filter:       f,
			TopK:         limit,
			ReturnFields: []string{"$"},
		},
	)
	if err != nil {
		return nil, storeErr("search hybrid", err)
	}

	return r.fuse(knnRes, textRes, facets, limit), nil
}

type fused struct {
	doc   domspec.Document
	score float64
	order int
}

func (r *Repo) fuse(knnRes, textRes *db.SearchResult, facets *filter.Facets, limit int) []result.Scored {
	w := r.opts.VectorWeight
	byID := make(map[string]*fused)
	var order int

	add := func(entry db.SearchEntry, score float64) {
		id := extractID(r.prefix, entry.Key)
		if f, ok := byID[id]; ok {
			f.score += score
			return
		}
		doc, ok := r.parseEntry(entry)
		if !ok {
			return
		}
		if facets != nil && (!facets.Admits(&doc) || !facets.Tech().Matches(doc.Metadata().TechStack)) {
			return
		}
		byID[id] = &fused{doc: doc, score: score, order: order}
		order++
	}

	if knnRes != nil {
		for _, e := range knnRes.Entries {
			add(e, w*e.Score)
		}
	}
	if textRes != nil {
		maxText := 0.0
		for _, e := range textRes.Entries {
			maxText = math.Max(maxText, e.Score)
		}
		for _, e := range textRes.Entries {
			norm := 0.0
			if maxText > 0 {
				norm = e.Score / maxText
			}
			add(e, (1-w)*norm)
		}
	}

	all := make([]*fused, 0, len(byID))
	for _, f := range byID {
		all = append(all, f)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].order < all[j].order
	})
	if len(all) > limit {
		all = all[:limit]
	}

	out := make([]result.Scored, len(all))
	for i, f := range all {
		out[i] = result.Scored{Document: f.doc, Score: f.score}
	}
	return out
}

func (r *Repo) scan(ctx context.Context, f db.Filter) ([]domspec.Document, error) {
	sr, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName:    indexName(r.prefix),
		Filter:       f,
		SortBy:       fieldCreatedAt,
		Descending:   true,
		Limit:        r.opts.ScanLimit,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		return nil, storeErr("search list", err)
	}
	return r.parseEntries(sr), nil
}

// facetFilter renders equality facets; tech clauses are included only when withTech is set.
func facetFilter(f filter.Facets, withTech bool) db.Filter {
	var out db.Filter
	if v := f.SoftwareType(); v != "" {
		out.Tags = append(out.Tags, db.TagCondition{Field: fieldSoftwareType, Values: []string{v}})
	}
	if v := f.DeployTarget(); v != "" {
		out.Tags = append(out.Tags, db.TagCondition{Field: fieldDeployTarget, Values: []string{v}})
	}
	if withTech {
		out.Tags = append(out.Tags, techFilter(f.Tech()).Tags...)
	}
	return out
}

func techFilter(t filter.Tech) db.Filter {
	var out db.Filter
	for _, c := range t.Categories() {
		out.Tags = append(out.Tags, db.TagCondition{Field: techField(c), Values: t[c]})
	}
	return out
}
