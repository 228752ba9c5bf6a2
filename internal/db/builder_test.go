package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_JSONFields(t *testing.T) {
	idx := NewIndex("spec-idx").
		Prefix("spec:").
		Tag("$.software_type").As("software_type").
		Numeric("$.created_at").As("created_at").Sortable().
		Text("$.title").As("title").
		MustBuild()

	if idx.StorageType != StorageJSON {
		t.Errorf("storage = %q, want JSON", idx.StorageType)
	}
	if len(idx.Fields) != 3 {
		t.Fatalf("fields count = %d, want 3", len(idx.Fields))
	}
	if idx.Fields[0].Alias != "software_type" || idx.Fields[0].Type != IndexFieldTag {
		t.Errorf("field[0] = %+v, want software_type TAG", idx.Fields[0])
	}
	if !idx.Fields[1].Sortable {
		t.Error("created_at should be sortable")
	}
	if idx.Fields[2].Sortable {
		t.Error("title should not be sortable")
	}
}

func TestIndexBuilder_ExactTag(t *testing.T) {
	idx := NewIndex("spec-idx").
		Tag("$.software_type").As("software_type").Separator("|").CaseSensitive().
		Tag("$.user_id").As("user_id").
		MustBuild()

	if f := idx.Fields[0]; !f.TagCaseSensitive || f.TagSeparator != "|" {
		t.Errorf("field[0] = %+v, want case-sensitive with | separator", f)
	}
	if f := idx.Fields[1]; f.TagCaseSensitive || f.TagSeparator != "" {
		t.Errorf("field[1] = %+v, options must apply to the last field only", f)
	}
	if s := idx.String(); !strings.Contains(s, "software_type TAG SEPARATOR | CASESENSITIVE") {
		t.Errorf("unexpected FT.CREATE rendering: %q", s)
	}
}

func TestIndexBuilder_VectorHNSW(t *testing.T) {
	idx := NewIndex("hnsw-idx").
		Prefix("doc:").
		Tag("$.type").As("type").
		VectorHNSW("$.embedding", 1536, DistanceCosine, 16, 200).As("vector").
		MustBuild()

	if len(idx.Fields) != 2 {
		t.Fatalf("fields count = %d, want 2", len(idx.Fields))
	}
	f := idx.Fields[1]
	if f.VectorAlgo != VectorHNSW {
		t.Errorf("algo = %q, want HNSW", f.VectorAlgo)
	}
	if f.VectorDim != 1536 {
		t.Errorf("dim = %d, want 1536", f.VectorDim)
	}
	if f.VectorDistance != DistanceCosine {
		t.Errorf("distance = %q, want COSINE", f.VectorDistance)
	}
	if f.VectorM != 16 || f.VectorEFConstruct != 200 {
		t.Errorf("M/EF = %d/%d", f.VectorM, f.VectorEFConstruct)
	}
	if f.Alias != "vector" {
		t.Errorf("alias = %q, want vector", f.Alias)
	}
}

func TestIndexBuilder_AsWithoutField(t *testing.T) {
	b := NewIndex("idx").As("ignored").Sortable()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error for index without fields")
	}
}

func TestIndexBuilder_MultiplePrefixes(t *testing.T) {
	idx := NewIndex("multi-idx").
		Prefix("a:", "b:", "c:").
		Tag("x").
		MustBuild()

	if len(idx.Prefixes) != 3 {
		t.Errorf("prefix count = %d, want 3", len(idx.Prefixes))
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder func() (*IndexDefinition, error)
		wantErr string
	}{
		{
			name: "empty name",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("").Tag("x").Build()
			},
			wantErr: "index name is required",
		},
		{
			name: "no fields",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").Build()
			},
			wantErr: "at least one field",
		},
		{
			name: "vector without dim",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").VectorHNSW("v", 0, DistanceCosine, 0, 0).Build()
			},
			wantErr: "positive DIM",
		},
		{
			name: "invalid characters",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx with spaces").Tag("x").Build()
			},
			wantErr: "invalid characters",
		},
		{
			name: "duplicate alias",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").Tag("$.a").As("x").Text("$.b").As("x").Build()
			},
			wantErr: "duplicate field name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx := NewIndex("my-idx").
		Prefix("doc:").
		Numeric("$.created_at").As("created_at").Sortable().
		VectorHNSW("$.embedding", 512, DistanceCosine, 0, 0).As("vector").
		MustBuild()

	s := idx.String()
	if !strings.HasPrefix(s, "FT.CREATE my-idx ON JSON") {
		t.Errorf("unexpected prefix: %q", s)
	}
	if !strings.Contains(s, "created_at NUMERIC SORTABLE") {
		t.Errorf("missing sortable numeric field: %q", s)
	}
}

func TestFilter_IsEmpty(t *testing.T) {
	if !(Filter{}).IsEmpty() {
		t.Error("zero filter should be empty")
	}
	f := Filter{Tags: []TagCondition{{Field: "software_type", Values: []string{"Web"}}}}
	if f.IsEmpty() {
		t.Error("filter with a tag condition should not be empty")
	}
}
