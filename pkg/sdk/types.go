package specdex

import (
	"time"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

// SearchMode controls the search strategy.
type SearchMode string

// Search mode constants.
const (
	ModeMetadata SearchMode = "metadata"
	ModeVector   SearchMode = "vector"
	ModeText     SearchMode = "text"
	ModeHybrid   SearchMode = "hybrid"
)

// Tech stack categories accepted by SearchBuilder.Tech.
const (
	TechFrontend = metadata.Frontend
	TechBackend  = metadata.Backend
	TechInfra    = metadata.Infra
	TechLanguage = metadata.Language
	TechOthers   = metadata.Others
)

// Metadata is the structured description extracted from a document.
type Metadata = metadata.Metadata

// TechStack groups technologies by category.
type TechStack = metadata.TechStack

// Spec is a stored design document.
type Spec struct {
	ID           string
	UserID       string
	Title        string
	Content      string
	SoftwareType string
	DeployTarget string
	Metadata     Metadata
	CreatedAt    time.Time
}

// SearchHit is a single search result.
// Ranked is false for strategies without a score (text search).
type SearchHit struct {
	Spec       Spec
	Similarity float64
	Ranked     bool
}

// SearchResults is the outcome of one search.
// Degraded marks hybrid results produced by the fallback merge.
type SearchResults struct {
	Hits     []SearchHit
	Degraded bool
	Note     string
}

// ListResult is a page of the library, newest first.
type ListResult struct {
	Specs      []Spec
	NextCursor string
}

// ArchiveEntry is a user's bookmark of a document.
type ArchiveEntry struct {
	UserID    string
	SpecID    string
	Favorite  bool
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ArchiveItem is an archive entry with its document.
type ArchiveItem struct {
	Entry ArchiveEntry
	Spec  Spec
}
