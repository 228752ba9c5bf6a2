package request

import (
	"fmt"
	"strings"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/daterange"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/mode"
)

// MaxQueryLength is the maximum allowed search query length in bytes.
const MaxQueryLength = 4096

// Request is a validated search query.
type Request struct {
	query      string
	searchMode mode.Mode
	facets     filter.Facets
	dateRange  daterange.Range
}

// New validates and normalizes search parameters. An invalid mode falls back to hybrid.
func New(query string, m mode.Mode, facets filter.Facets, dr daterange.Range) (Request, error) {
	query = strings.TrimSpace(query)
	if !m.IsValid() {
		m = mode.Hybrid
	}
	if err := Check(query, m); err != nil {
		return Request{}, err
	}
	return Request{query: query, searchMode: m, facets: facets, dateRange: dr}, nil
}

// Check validates the query text for the given mode.
func Check(query string, m mode.Mode) error {
	if m.RequiresQuery() && query == "" {
		return domain.NewValidationError("query", "is required")
	}
	if len(query) > MaxQueryLength {
		return domain.NewValidationError("query", fmt.Sprintf("too long (max %d bytes)", MaxQueryLength))
	}
	return nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Mode returns the search strategy.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Facets returns the equality filters.
func (r *Request) Facets() filter.Facets { return r.facets }

// DateRange returns the created_at window.
func (r *Request) DateRange() daterange.Range { return r.dateRange }
