package db

// TagCondition matches any of Values in a TAG field.
type TagCondition struct {
	Field  string
	Values []string
}

// RangeCondition is an inclusive numeric range. A nil bound is unbounded.
type RangeCondition struct {
	Field string
	Min   *float64
	Max   *float64
}

// Filter is a conjunction of tag and range conditions.
type Filter struct {
	Tags   []TagCondition
	Ranges []RangeCondition
}

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool {
	return len(f.Tags) == 0 && len(f.Ranges) == 0
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Filter       Filter
	VectorField  string // defaults to "vector"
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for scored full-text search.
type TextQuery struct {
	IndexName    string
	Query        string
	Fields       []string // TEXT fields to match; empty means all
	Filter       Filter
	TopK         int
	ReturnFields []string
}

// ListQuery is the input for filtered, sorted pagination.
type ListQuery struct {
	IndexName    string
	Filter       Filter
	SortBy       string
	Descending   bool
	Offset       int
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
