// Package schema synthesizes validation schemas from entity configurations.
//
// A Schema is a manifest of typed members. Every entity gets four of them
// (see Set): the path key, an all-optional query filter, the request body and
// the full entity. Values that pass validation are carried as Record, a plain
// map whose values are string, int64 or float64.
package schema

import (
	"fmt"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/go-openapi/inflect"
)

var rules = inflect.NewDefaultRuleset()

// Member is one typed slot of a Schema.
type Member struct {
	Name     string
	Type     entity.ValueType
	Optional bool
}

// Schema is a structural record type built at runtime.
type Schema struct {
	name    string
	members []Member
	index   map[string]int
}

// Record holds validated values keyed by member name.
type Record map[string]any

// Synthesize builds a schema with one member per field, preserving order.
// When optional is true every member may be absent.
func Synthesize(name string, fields []entity.Field, optional bool) *Schema {
	s := &Schema{
		name:    name,
		members: make([]Member, len(fields)),
		index:   make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		s.members[i] = Member{Name: f.Name, Type: f.Type, Optional: optional}
		s.index[f.Name] = i
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Members returns the members in declaration order.
func (s *Schema) Members() []Member {
	out := make([]Member, len(s.members))
	copy(out, s.members)
	return out
}

// Names returns the member names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.members))
	for i, m := range s.members {
		names[i] = m.Name
	}
	return names
}

// Len returns the number of members.
func (s *Schema) Len() int { return len(s.members) }

// Member looks up a member by name.
func (s *Schema) Member(name string) (Member, bool) {
	i, ok := s.index[name]
	if !ok {
		return Member{}, false
	}
	return s.members[i], true
}

// Zip pairs positional values with the schema's members. The values must be
// in member order, as scanned from a table whose columns follow field order.
func (s *Schema) Zip(values []any) (Record, error) {
	if len(values) != len(s.members) {
		return nil, fmt.Errorf("schema %s: got %d values for %d members", s.name, len(values), len(s.members))
	}
	rec := make(Record, len(values))
	for i, m := range s.members {
		rec[m.Name] = values[i]
	}
	return s.Normalize(rec)
}

// Project keeps only the keys belonging to the schema.
func (s *Schema) Project(rec map[string]any) Record {
	out := make(Record, len(s.members))
	for _, m := range s.members {
		if v, ok := rec[m.Name]; ok {
			out[m.Name] = v
		}
	}
	return out
}

// Set holds the four schema variants derived from one entity Config.
type Set struct {
	// Path keys a single entity; all path fields required.
	Path *Schema
	// Query filters lists; path fields, all optional.
	Query *Schema
	// Body is the update payload; all body fields required.
	Body *Schema
	// Entity is the full representation; all fields required.
	Entity *Schema
}

// NewSet synthesizes the schema set for cfg.
func NewSet(cfg entity.Config) *Set {
	base := rules.Camelize(cfg.Name)
	return &Set{
		Path:   Synthesize(base+"Path", cfg.PathFields(), false),
		Query:  Synthesize(base+"Query", cfg.PathFields(), true),
		Body:   Synthesize(base+"Body", cfg.BodyFields(), false),
		Entity: Synthesize(base, cfg.Fields, false),
	}
}

// JSONSchema returns the JSON-schema object describing s.
func (s *Schema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.members))
	required := make([]string, 0, len(s.members))
	for _, m := range s.members {
		properties[m.Name] = map[string]any{"type": JSONType(m.Type)}
		if !m.Optional {
			required = append(required, m.Name)
		}
	}
	obj := map[string]any{
		"title":      s.name,
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		obj["required"] = required
	}
	return obj
}

// JSONType maps a value type to its JSON-schema type name.
func JSONType(t entity.ValueType) string {
	switch t {
	case entity.String:
		return "string"
	case entity.Integer:
		return "integer"
	case entity.Float:
		return "number"
	default:
		return "null"
	}
}
