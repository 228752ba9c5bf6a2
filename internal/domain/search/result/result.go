package result

import "github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"

// Scored is a store hit with its score (cosine similarity or combined score).
type Scored struct {
	Document spec.Document
	Score    float64
}

// Result is a single search hit. Similarity is absent for text search.
type Result struct {
	doc        spec.Document
	similarity *float64
}

// New creates a ranked search result.
func New(doc spec.Document, similarity float64) Result {
	return Result{doc: doc, similarity: &similarity}
}

// Unranked creates a result without similarity.
func Unranked(doc spec.Document) Result {
	return Result{doc: doc}
}

// FromScored converts store hits to ranked results, preserving order.
func FromScored(hits []Scored) []Result {
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, New(h.Document, h.Score))
	}
	return out
}

// ID returns the document identifier.
func (r *Result) ID() string { return r.doc.ID() }

// Document returns the matched document.
func (r *Result) Document() spec.Document { return r.doc }

// Similarity returns the score and whether one is present.
func (r *Result) Similarity() (float64, bool) {
	if r.similarity == nil {
		return 0, false
	}
	return *r.similarity, true
}

// Set is the outcome of a routed search.
type Set struct {
	results  []Result
	degraded bool
	note     string
}

// NewSet creates a regular result set.
func NewSet(results []Result) Set {
	return Set{results: results}
}

// NewDegradedSet creates a result set produced by the fallback path.
func NewDegradedSet(results []Result, note string) Set {
	return Set{results: results, degraded: true, note: note}
}

// Results returns the hits in presentation order.
func (s *Set) Results() []Result { return s.results }

// Degraded reports whether the fallback path produced the set.
func (s *Set) Degraded() bool { return s.degraded }

// Note returns the fallback note (empty when not degraded).
func (s *Set) Note() string { return s.note }
