package request

import "github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"

// Vector lookup defaults.
const (
	DefaultVectorThreshold = 0.5
	DefaultVectorLimit     = 20
	DefaultHybridLimit     = 20
)

// VectorQuery is a threshold-ranked nearest-neighbour lookup.
// Only software_type and deploy_target of Facets are applied.
type VectorQuery struct {
	Embedding []float32
	Threshold float64
	Limit     int
	Facets    filter.Facets
}
