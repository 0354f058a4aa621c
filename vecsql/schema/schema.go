package schema

import (
	"fmt"
	"regexp"
	"sort"

	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
	"github.com/nonibytes/vecsql/vecsql/query"
)

// FieldType specifies the type of a metadata field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
)

// Ordinal reports whether the type supports ordering comparisons (< <= > >=).
func (t FieldType) Ordinal() bool { return t == FieldNumber }

// FieldSpec defines a metadata field's configuration.
type FieldSpec struct {
	Type FieldType `json:"type"`
}

// CollectionSchema describes one physical collection: its metadata fields
// and, when known, the dimensionality of its vectors (0 = unknown).
type CollectionSchema struct {
	Fields    map[string]FieldSpec `json:"fields"`
	VectorDim int                  `json:"vector_dim,omitempty"`
}

// Get returns the spec for a field.
func (c CollectionSchema) Get(name string) (FieldSpec, bool) {
	spec, ok := c.Fields[name]
	return spec, ok
}

// FieldNames returns the field names in sorted order for deterministic
// projection expansion.
func (c CollectionSchema) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema maps collection names to their field definitions, and logical
// namespaces to the physical collections they span. A FROM clause naming a
// namespace defers target resolution to the router.
type Schema struct {
	Collections map[string]CollectionSchema `json:"collections"`
	Namespaces  map[string][]string         `json:"namespaces,omitempty"`
}

var validNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks structural consistency: non-empty collections, legal
// field names and types, and namespaces referencing known collections.
func (s Schema) Validate() error {
	if len(s.Collections) == 0 {
		return vqerrors.Schema("schema must define at least one collection")
	}
	for coll, cs := range s.Collections {
		if !validNameRe.MatchString(coll) {
			return vqerrors.Schema(fmt.Sprintf("invalid collection name: %s", coll))
		}
		if query.IsReservedWord(coll) {
			return vqerrors.Schema(fmt.Sprintf("collection name is a reserved word: %s", coll))
		}
		if cs.VectorDim < 0 {
			return vqerrors.Schema(fmt.Sprintf("collection %s: vector_dim must be non-negative", coll))
		}
		for name, spec := range cs.Fields {
			if !validNameRe.MatchString(name) {
				return vqerrors.Schema(fmt.Sprintf("collection %s: invalid field name: %s", coll, name))
			}
			if query.IsReservedWord(name) {
				return vqerrors.Schema(fmt.Sprintf("collection %s: field name is a reserved word: %s", coll, name))
			}
			switch spec.Type {
			case FieldString, FieldNumber, FieldBool:
			default:
				return vqerrors.Schema(fmt.Sprintf("collection %s: unknown type %q for field %s", coll, spec.Type, name))
			}
		}
	}
	for ns, members := range s.Namespaces {
		if !validNameRe.MatchString(ns) {
			return vqerrors.Schema(fmt.Sprintf("invalid namespace name: %s", ns))
		}
		if query.IsReservedWord(ns) {
			return vqerrors.Schema(fmt.Sprintf("namespace name is a reserved word: %s", ns))
		}
		if _, clash := s.Collections[ns]; clash {
			return vqerrors.Schema(fmt.Sprintf("namespace %s collides with a collection name", ns))
		}
		if len(members) == 0 {
			return vqerrors.Schema(fmt.Sprintf("namespace %s has no member collections", ns))
		}
		for _, m := range members {
			if _, ok := s.Collections[m]; !ok {
				return vqerrors.Schema(fmt.Sprintf("namespace %s references unknown collection %s", ns, m))
			}
		}
	}
	return nil
}

// Collection returns the schema of a physical collection.
func (s Schema) Collection(name string) (CollectionSchema, bool) {
	cs, ok := s.Collections[name]
	return cs, ok
}

// Members resolves a FROM name to the physical collections it denotes:
// the collection itself, or a namespace's member list.
func (s Schema) Members(name string) ([]string, bool) {
	if _, ok := s.Collections[name]; ok {
		return []string{name}, true
	}
	if members, ok := s.Namespaces[name]; ok {
		return members, true
	}
	return nil, false
}

// IsNamespace reports whether name denotes a logical namespace.
func (s Schema) IsNamespace(name string) bool {
	_, ok := s.Namespaces[name]
	return ok
}
