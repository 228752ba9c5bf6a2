package sqlite

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	domspec "github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
)

// FilteredLookup returns the documents admitted by m, newest first.
func (r *SpecRepo) FilteredLookup(ctx context.Context, m filter.Match) ([]domspec.Document, error) {
	docs, err := r.scan(ctx, "", "")
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
func (r *SpecRepo) SubstringLookup(ctx context.Context, fields []filter.Field, pattern string) ([]domspec.Document, error) {
	return r.FilteredLookup(ctx, filter.NewMatch(pattern, fields, nil))
}

// VectorLookup returns documents with cosine similarity >= Threshold, best first, at most Limit.
func (r *SpecRepo) VectorLookup(ctx context.Context, q request.VectorQuery) ([]result.Scored, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	docs, err := r.scan(ctx, q.Facets.SoftwareType(), q.Facets.DeployTarget())
	if err != nil {
		return nil, err
	}

	hits := make([]result.Scored, 0, len(docs))
	for i := range docs {
		sim := similarity(q.Embedding, docs[i].Embedding())
		if sim < q.Threshold {
			continue
		}
		hits = append(hits, result.Scored{Document: docs[i], Score: sim})
	}
	sortScored(hits)
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

// CombinedRank fuses cosine similarity with term-frequency text relevance over
// title, content and summary: combined = w*vector + (1-w)*text/maxText.
// Each side contributes its own top limit candidates.
func (r *SpecRepo) CombinedRank(
	ctx context.Context, query string, embedding []float32, facets *filter.Facets, limit int,
) ([]result.Scored, error) {
	if limit <= 0 {
		return nil, nil
	}

	var st, dt string
	var tech filter.Tech
	if facets != nil {
		st, dt, tech = facets.SoftwareType(), facets.DeployTarget(), facets.Tech()
	}
	docs, err := r.scan(ctx, st, dt)
	if err != nil {
		return nil, err
	}
	if !tech.IsEmpty() {
		kept := docs[:0]
		for i := range docs {
			if tech.Matches(docs[i].Metadata().TechStack) {
				kept = append(kept, docs[i])
			}
		}
		docs = kept
	}

	vec := make([]result.Scored, 0, len(docs))
	text := make([]result.Scored, 0, len(docs))
	terms := strings.Fields(strings.ToLower(query))
	for i := range docs {
		vec = append(vec, result.Scored{Document: docs[i], Score: similarity(embedding, docs[i].Embedding())})
		if s := termScore(&docs[i], terms); s > 0 {
			text = append(text, result.Scored{Document: docs[i], Score: s})
		}
	}
	sortScored(vec)
	sortScored(text)
	if len(vec) > limit {
		vec = vec[:limit]
	}
	if len(text) > limit {
		text = text[:limit]
	}

	return fuse(vec, text, r.opts.VectorWeight, limit), nil
}

func (r *SpecRepo) scan(ctx context.Context, softwareType, deployTarget string) ([]domspec.Document, error) {
	where, args := facetWhere(softwareType, deployTarget)
	args = append(args, r.opts.ScanLimit)
	return r.selectDocs(ctx,
		`SELECT `+specColumns+` FROM spec_documents`+where+` ORDER BY created_at DESC, id LIMIT ?`,
		args...)
}

// termScore counts term occurrences; a document missing any term scores zero.
func termScore(d *domspec.Document, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	hay := strings.ToLower(d.Title() + "\n" + d.Content() + "\n" + d.Metadata().Summary)
	var total int
	for _, t := range terms {
		n := strings.Count(hay, t)
		if n == 0 {
			return 0
		}
		total += n
	}
	return float64(total)
}

func fuse(vec, text []result.Scored, w float64, limit int) []result.Scored {
	type acc struct {
		hit   result.Scored
		order int
	}
	byID := make(map[string]*acc, len(vec)+len(text))
	var order int
	add := func(s result.Scored, score float64) {
		id := s.Document.ID()
		if a, ok := byID[id]; ok {
			a.hit.Score += score
			return
		}
		byID[id] = &acc{hit: result.Scored{Document: s.Document, Score: score}, order: order}
		order++
	}

	for _, s := range vec {
		add(s, w*s.Score)
	}
	maxText := 0.0
	for _, s := range text {
		maxText = math.Max(maxText, s.Score)
	}
	for _, s := range text {
		add(s, (1-w)*s.Score/maxText)
	}

	all := make([]*acc, 0, len(byID))
	for _, a := range byID {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].hit.Score != all[j].hit.Score {
			return all[i].hit.Score > all[j].hit.Score
		}
		return all[i].order < all[j].order
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]result.Scored, len(all))
	for i, a := range all {
		out[i] = a.hit
	}
	return out
}

func sortScored(hits []result.Scored) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}

// cosine returns the cosine similarity of a and b; zero for mismatched or zero vectors.
// similarity is cosine similarity clamped to [0,1]; opposed vectors score 0.
func similarity(a, b []float32) float64 {
	return min(1, max(0, cosine(a, b)))
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
