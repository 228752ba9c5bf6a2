package chi

import (
	"encoding/json"
	"fmt"
	"time"

	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
	domusage "github.com/tsubouchi/intelligence-agent-maker/internal/domain/usage"
)

// ErrorCode is the machine-readable error kind.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeNotFound         ErrorCode = "not_found"
	CodeAlreadyExists    ErrorCode = "already_exists"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeProviderError    ErrorCode = "provider_error"
	CodeStoreUnavailable ErrorCode = "store_unavailable"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// flexString accepts a JSON string or number ("7" and 7 are both a 7-day date range).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("must be a string or a number")
	}
	*f = flexString(n.String())
	return nil
}

// SearchRequest is the body of POST /api/v1/search.
// camelCase keys are accepted for browser clients.
type SearchRequest struct {
	Query        string              `json:"query"`
	SoftwareType string              `json:"software_type"`
	DeployTarget string              `json:"deploy_target"`
	DateRange    flexString          `json:"date_range"`
	SearchMode   string              `json:"search_mode"`
	TechFilters  map[string][]string `json:"tech_filters"`
}

func (r *SearchRequest) UnmarshalJSON(data []byte) error {
	type plain SearchRequest
	var aux struct {
		plain
		SoftwareTypeCamel string              `json:"softwareType"`
		DeployTargetCamel string              `json:"deployTarget"`
		DateRangeCamel    flexString          `json:"dateRange"`
		SearchModeCamel   string              `json:"searchMode"`
		TechFiltersCamel  map[string][]string `json:"techFilters"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = SearchRequest(aux.plain)
	r.SoftwareType = firstNonEmpty(r.SoftwareType, aux.SoftwareTypeCamel)
	r.DeployTarget = firstNonEmpty(r.DeployTarget, aux.DeployTargetCamel)
	r.DateRange = flexString(firstNonEmpty(string(r.DateRange), string(aux.DateRangeCamel)))
	r.SearchMode = firstNonEmpty(r.SearchMode, aux.SearchModeCamel)
	if r.TechFilters == nil {
		r.TechFilters = aux.TechFiltersCamel
	}
	return nil
}

// GenerationRequest is the body of POST /api/v1/generations.
type GenerationRequest struct {
	Idea         string `json:"idea"`
	UserID       string `json:"user_id"`
	SoftwareType string `json:"software_type"`
	DeployTarget string `json:"deploy_target"`
}

func (r *GenerationRequest) UnmarshalJSON(data []byte) error {
	type plain GenerationRequest
	var aux struct {
		plain
		UserIDCamel       string `json:"userId"`
		SoftwareTypeCamel string `json:"softwareType"`
		DeployTargetCamel string `json:"deployTarget"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = GenerationRequest(aux.plain)
	r.UserID = firstNonEmpty(r.UserID, aux.UserIDCamel)
	r.SoftwareType = firstNonEmpty(r.SoftwareType, aux.SoftwareTypeCamel)
	r.DeployTarget = firstNonEmpty(r.DeployTarget, aux.DeployTargetCamel)
	return nil
}

// GenerationResponse describes a document generated synchronously.
type GenerationResponse struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	MetadataFallback bool   `json:"metadata_fallback"`
}

// GenerationAccepted describes a queued generation job.
type GenerationAccepted struct {
	MessageID string `json:"message_id"`
}

// ArchivePatchRequest is the body of PATCH /api/v1/users/{user}/archives/{spec}.
type ArchivePatchRequest struct {
	IsFavorite *bool   `json:"is_favorite"`
	Notes      *string `json:"notes"`
}

// SpecResponse is the public view of a stored document. The embedding is never exposed.
type SpecResponse struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	SoftwareType string            `json:"software_type"`
	DeployTarget string            `json:"deploy_target"`
	Metadata     metadata.Metadata `json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
}

// SearchResultItem is one search hit. Similarity is omitted for text search.
type SearchResultItem struct {
	SpecResponse
	Similarity *float64 `json:"similarity,omitempty"`
}

// SearchResponse is the body of a search answer.
type SearchResponse struct {
	Results  []SearchResultItem `json:"results"`
	Degraded bool               `json:"degraded,omitempty"`
	Note     string             `json:"note,omitempty"`
}

// SpecListResponse is a page of the library.
type SpecListResponse struct {
	Items      []SpecResponse `json:"items"`
	NextCursor *string        `json:"next_cursor,omitempty"`
}

// ArchiveResponse is a user's archive entry.
type ArchiveResponse struct {
	UserID     string    `json:"user_id"`
	SpecID     string    `json:"spec_id"`
	IsFavorite bool      `json:"is_favorite"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ArchiveItemResponse is an archive entry with its document.
type ArchiveItemResponse struct {
	ArchiveResponse
	Spec SpecResponse `json:"spec"`
}

// ArchiveListResponse lists a user's archive.
type ArchiveListResponse struct {
	Items []ArchiveItemResponse `json:"items"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ProviderUsage is the token budget of one provider. Limit and remaining are absent when unlimited.
type ProviderUsage struct {
	Provider        string    `json:"provider"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	TokensUsed      int64     `json:"tokens_used"`
	TokensLimit     *int64    `json:"tokens_limit,omitempty"`
	TokensRemaining *int64    `json:"tokens_remaining,omitempty"`
	Exhausted       bool      `json:"exhausted"`
}

// UsageResponse is the body of GET /api/v1/usage.
type UsageResponse struct {
	Period    string          `json:"period"`
	Providers []ProviderUsage `json:"providers"`
}

func specToDTO(d *spec.Document) SpecResponse {
	return SpecResponse{
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

// NewSearchResponse renders a result set. Results are never null on the wire.
func NewSearchResponse(set *result.Set) SearchResponse {
	results := set.Results()
	items := make([]SearchResultItem, len(results))
	for i := range results {
		items[i] = searchResultToDTO(&results[i])
	}
	return SearchResponse{Results: items, Degraded: set.Degraded(), Note: set.Note()}
}

func searchResultToDTO(r *result.Result) SearchResultItem {
	doc := r.Document()
	item := SearchResultItem{SpecResponse: specToDTO(&doc)}
	if sim, ok := r.Similarity(); ok {
		item.Similarity = &sim
	}
	return item
}

func archiveToDTO(e *domarchive.Entry) ArchiveResponse {
	return ArchiveResponse{
		UserID:     e.UserID(),
		SpecID:     e.SpecID(),
		IsFavorite: e.Favorite(),
		Notes:      e.Notes(),
		CreatedAt:  e.CreatedAt(),
		UpdatedAt:  e.UpdatedAt(),
	}
}

func usageToDTO(r *domusage.Report) ProviderUsage {
	b := r.Budget()
	u := ProviderUsage{
		Provider:    r.Provider(),
		PeriodStart: r.Start(),
		PeriodEnd:   r.End(),
		TokensUsed:  b.Used(),
		Exhausted:   b.Exhausted(),
	}
	if b.Limit() > 0 {
		limit, remaining := b.Limit(), b.Remaining()
		u.TokensLimit, u.TokensRemaining = &limit, &remaining
	}
	return u
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
