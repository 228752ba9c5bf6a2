// Package metadata holds the structured description extracted from a generated document.
package metadata

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxSummaryLength is the summary cap in characters.
const MaxSummaryLength = 120

// Tech stack categories.
const (
	Frontend = "frontend"
	Backend  = "backend"
	Infra    = "infra"
	Language = "language"
	Others   = "others"
)

// Categories lists every tech stack category in wire order.
var Categories = []string{Frontend, Backend, Infra, Language, Others}

// ErrEmptyKeywords signals a record without keywords.
var ErrEmptyKeywords = errors.New("keywords must not be empty")

//go:embed schema.json
var schema []byte

// Schema returns the JSON Schema the model-owned fields must conform to.
// Fields that are overridden after extraction (software_type, deploy_target,
// cloud_provider, created_at) are not part of it.
func Schema() json.RawMessage {
	return bytes.Clone(schema)
}

// TechStack groups technologies by category.
type TechStack struct {
	Frontend []string `json:"frontend"`
	Backend  []string `json:"backend"`
	Infra    []string `json:"infra"`
	Language []string `json:"language"`
	Others   []string `json:"others,omitempty"`
}

// IsCategory reports whether name is a known tech stack category.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Values returns the technologies of a category (nil for unknown categories).
func (t TechStack) Values(category string) []string {
	switch category {
	case Frontend:
		return t.Frontend
	case Backend:
		return t.Backend
	case Infra:
		return t.Infra
	case Language:
		return t.Language
	case Others:
		return t.Others
	default:
		return nil
	}
}

// ContainsAny reports whether the category holds at least one of values.
func (t TechStack) ContainsAny(category string, values []string) bool {
	for _, have := range t.Values(category) {
		for _, want := range values {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Metadata is the validated structured description of a spec document.
type Metadata struct {
	Title                string    `json:"title"`
	Summary              string    `json:"summary"`
	Keywords             []string  `json:"keywords"`
	TechStack            TechStack `json:"tech_stack"`
	ArchitecturePatterns []string  `json:"architecture_patterns"`
	DesignPatterns       []string  `json:"design_patterns"`
	DB                   []string  `json:"db"`
	CloudProvider        string    `json:"cloud_provider"`
	SoftwareType         string    `json:"software_type"`
	DeployTarget         string    `json:"deploy_target"`
	CreatedAt            string    `json:"created_at"`
}

// Parse strictly decodes a single metadata object and validates it.
// Unknown keys, type mismatches (e.g. a stringified tech_stack) and trailing data are rejected.
func Parse(raw []byte) (Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var m Metadata
	if err := dec.Decode(&m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Metadata{}, errors.New("decode metadata: trailing data after object")
	}

	m.Normalize()
	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// Validate checks record invariants.
func (m *Metadata) Validate() error {
	if len(m.Keywords) == 0 {
		return ErrEmptyKeywords
	}
	return nil
}

// Normalize trims strings, drops empty entries, clamps the summary and
// replaces nil sets with empty ones so the record serializes with [] instead of null.
func (m *Metadata) Normalize() {
	m.Title = strings.TrimSpace(m.Title)
	m.Summary = Truncate(strings.TrimSpace(m.Summary), MaxSummaryLength)
	m.Keywords = cleanSet(m.Keywords)
	m.TechStack.Frontend = cleanSet(m.TechStack.Frontend)
	m.TechStack.Backend = cleanSet(m.TechStack.Backend)
	m.TechStack.Infra = cleanSet(m.TechStack.Infra)
	m.TechStack.Language = cleanSet(m.TechStack.Language)
	if m.TechStack.Others != nil {
		m.TechStack.Others = cleanSet(m.TechStack.Others)
	}
	m.ArchitecturePatterns = cleanSet(m.ArchitecturePatterns)
	m.DesignPatterns = cleanSet(m.DesignPatterns)
	m.DB = cleanSet(m.DB)
}

// Truncate returns the first n characters of s.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// cleanSet trims values and drops empties and duplicates, keeping first-seen order.
func cleanSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
