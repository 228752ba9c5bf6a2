package mode

import "strings"

// Mode is the search strategy.
type Mode string

// Search mode constants.
const (
	// Metadata matches the query against document text and metadata fields.
	Metadata Mode = "metadata"
	// Vector ranks documents by embedding similarity above a threshold.
	Vector Mode = "vector"
	// Text is a plain substring search over title and content.
	Text Mode = "text"
	// Hybrid uses the store's combined ranking and degrades to the other three.
	Hybrid Mode = "hybrid"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Metadata || m == Vector || m == Text || m == Hybrid
}

// RequiresQuery reports whether the mode needs non-empty query text.
func (m Mode) RequiresQuery() bool {
	return m != Metadata
}

// Parse maps a raw mode string to a Mode. Empty or unknown values select Hybrid.
func Parse(s string) Mode {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return Hybrid
	}
	return m
}
