package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

// MaxValuesPerCategory is the maximum number of values per tech category.
const MaxValuesPerCategory = 32

// Tech maps tech stack categories to accepted values.
// Categories are conjunctive, values within a category are disjunctive.
type Tech map[string][]string

// NewTech validates categories and drops empty value lists.
// Returns nil when nothing remains.
func NewTech(raw map[string][]string) (Tech, error) {
	out := make(Tech, len(raw))
	for category, values := range raw {
		if !metadata.IsCategory(category) {
			return nil, fmt.Errorf("unknown tech category %q", category)
		}
		if len(values) > MaxValuesPerCategory {
			return nil, fmt.Errorf("too many values for %q (max %d)", category, MaxValuesPerCategory)
		}
		clean := make([]string, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				clean = append(clean, v)
			}
		}
		if len(clean) > 0 {
			out[category] = clean
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// IsEmpty reports whether no category is constrained.
func (t Tech) IsEmpty() bool { return len(t) == 0 }

// Categories returns the constrained categories in sorted order.
func (t Tech) Categories() []string {
	cats := make([]string, 0, len(t))
	for c := range t {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Matches reports whether every constrained category shares a value with ts.
func (t Tech) Matches(ts metadata.TechStack) bool {
	for category, values := range t {
		if !ts.ContainsAny(category, values) {
			return false
		}
	}
	return true
}

// Facets are the exact-equality filters shared by every strategy.
type Facets struct {
	softwareType string
	deployTarget string
	tech         Tech
}

// NewFacets creates a facet set. Empty strings mean "any".
func NewFacets(softwareType, deployTarget string, tech Tech) Facets {
	return Facets{
		softwareType: strings.TrimSpace(softwareType),
		deployTarget: strings.TrimSpace(deployTarget),
		tech:         tech,
	}
}

// SoftwareType returns the software type filter.
func (f Facets) SoftwareType() string { return f.softwareType }

// DeployTarget returns the deploy target filter.
func (f Facets) DeployTarget() string { return f.deployTarget }

// Tech returns the tech stack filter.
func (f Facets) Tech() Tech { return f.tech }

// IsEmpty reports whether no facet is present.
func (f Facets) IsEmpty() bool {
	return f.softwareType == "" && f.deployTarget == "" && f.tech.IsEmpty()
}

// OrNil returns nil for an empty facet set.
func (f Facets) OrNil() *Facets {
	if f.IsEmpty() {
		return nil
	}
	return &f
}

// Document renders the merged facet filter as a loggable document.
func (f Facets) Document() map[string]any {
	doc := map[string]any{}
	if f.softwareType != "" {
		doc["software_type"] = f.softwareType
	}
	if f.deployTarget != "" {
		doc["deploy_target"] = f.deployTarget
	}
	if !f.tech.IsEmpty() {
		doc["tech_stack"] = map[string][]string(f.tech)
	}
	return doc
}

// Admits checks software_type and deploy_target equality only.
func (f Facets) Admits(d *spec.Document) bool {
	if f.softwareType != "" && d.SoftwareType() != f.softwareType {
		return false
	}
	if f.deployTarget != "" && d.DeployTarget() != f.deployTarget {
		return false
	}
	return true
}

// Field is a text-bearing document field.
type Field string

// Searchable fields.
const (
	Title    Field = "title"
	Content  Field = "content"
	Summary  Field = "summary"
	Keywords Field = "keywords"
)

// MetadataFields are the fields the metadata strategy matches against.
var MetadataFields = []Field{Title, Content, Summary, Keywords}

// TextFields are the fields the full-text strategy matches against.
var TextFields = []Field{Title, Content}

// Match is a disjunctive candidate predicate: a case-insensitive substring of
// pattern in any of fields, OR the tech clause. An empty Match admits everything.
type Match struct {
	pattern string
	fields  []Field
	tech    Tech
}

// NewMatch creates a Match. Fields are ignored when pattern is empty.
func NewMatch(pattern string, fields []Field, tech Tech) Match {
	return Match{pattern: strings.TrimSpace(pattern), fields: fields, tech: tech}
}

// Pattern returns the substring pattern.
func (m Match) Pattern() string { return m.pattern }

// Fields returns the fields the pattern is matched against.
func (m Match) Fields() []Field { return m.fields }

// Tech returns the tech clause.
func (m Match) Tech() Tech { return m.tech }

// MatchesAll reports whether the predicate admits every document.
func (m Match) MatchesAll() bool {
	return (m.pattern == "" || len(m.fields) == 0) && m.tech.IsEmpty()
}

// Matches evaluates the predicate against d.
func (m Match) Matches(d *spec.Document) bool {
	if m.MatchesAll() {
		return true
	}
	if m.pattern != "" {
		needle := strings.ToLower(m.pattern)
		for _, f := range m.fields {
			if FieldContains(d, f, needle) {
				return true
			}
		}
	}
	return !m.tech.IsEmpty() && m.tech.Matches(d.Metadata().TechStack)
}

// FieldContains reports whether field f of d contains the lower-cased needle.
func FieldContains(d *spec.Document, f Field, needle string) bool {
	switch f {
	case Title:
		return strings.Contains(strings.ToLower(d.Title()), needle)
	case Content:
		return strings.Contains(strings.ToLower(d.Content()), needle)
	case Summary:
		return strings.Contains(strings.ToLower(d.Metadata().Summary), needle)
	case Keywords:
		for _, k := range d.Metadata().Keywords {
			if strings.Contains(strings.ToLower(k), needle) {
				return true
			}
		}
	}
	return false
}
