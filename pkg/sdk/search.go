package specdex

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/daterange"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/mode"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
)

// SearchBuilder is a fluent builder for search queries.
type SearchBuilder struct {
	svc searchUseCase
	obs *observer

	query        string
	mode         SearchMode
	softwareType string
	deployTarget string
	tech         map[string][]string
	days         int
}

// Query sets the query text. Only metadata search accepts an empty query.
func (b *SearchBuilder) Query(q string) *SearchBuilder {
	b.query = q
	return b
}

// Mode sets the search strategy. Default: ModeHybrid.
func (b *SearchBuilder) Mode(m SearchMode) *SearchBuilder {
	b.mode = m
	return b
}

// SoftwareType keeps documents with exactly this software type.
func (b *SearchBuilder) SoftwareType(t string) *SearchBuilder {
	b.softwareType = t
	return b
}

// DeployTarget keeps documents with exactly this deploy target.
func (b *SearchBuilder) DeployTarget(t string) *SearchBuilder {
	b.deployTarget = t
	return b
}

// Tech requires at least one of values in the category. Categories combine with AND.
func (b *SearchBuilder) Tech(category string, values ...string) *SearchBuilder {
	if b.tech == nil {
		b.tech = make(map[string][]string)
	}
	b.tech[category] = append(b.tech[category], values...)
	return b
}

// LastDays keeps documents created within n days. Zero means all time.
func (b *SearchBuilder) LastDays(n int) *SearchBuilder {
	b.days = n
	return b
}

// Do validates and executes the search.
func (b *SearchBuilder) Do(ctx context.Context) (res *SearchResults, err error) {
	start := time.Now()
	defer func() { b.obs.observe("search", start, err) }()

	req, err := b.build()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	set, err := b.svc.Search(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return fromResultSet(&set), nil
}

func (b *SearchBuilder) build() (request.Request, error) {
	tech, err := filter.NewTech(b.tech)
	if err != nil {
		return request.Request{}, domain.NewValidationError("tech", err.Error())
	}
	dr := daterange.All()
	if b.days != 0 {
		if dr, err = daterange.Parse(strconv.Itoa(b.days)); err != nil {
			return request.Request{}, domain.NewValidationError("date_range", err.Error())
		}
	}
	facets := filter.NewFacets(b.softwareType, b.deployTarget, tech)
	return request.New(b.query, mode.Parse(string(b.mode)), facets, dr)
}

func fromResultSet(set *result.Set) *SearchResults {
	results := set.Results()
	hits := make([]SearchHit, len(results))
	for i := range results {
		r := &results[i]
		hit := SearchHit{Spec: fromDocument(r.Document())}
		hit.Similarity, hit.Ranked = r.Similarity()
		hits[i] = hit
	}
	return &SearchResults{Hits: hits, Degraded: set.Degraded(), Note: set.Note()}
}

func fromDocument(d spec.Document) Spec {
	return Spec{
		ID:           d.ID(),
		UserID:       d.UserID(),
		Title:        d.Title(),
		Content:      d.Content(),
		SoftwareType: d.SoftwareType(),
		DeployTarget: d.DeployTarget(),
		Metadata:     d.Metadata(),
		CreatedAt:    d.CreatedAt(),
	}
}
