// Package entity describes the entities exposed by a generated CRUD API.
//
// A Config is static data: it is built once at startup, either in code or
// decoded from a configuration file, and is never mutated afterwards.
package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ValueType is the primitive type of a field value.
type ValueType int

const (
	// Invalid marks a type that could not be recognised. It survives parsing so
	// storage builders can reject it with ErrUnsupportedFieldType.
	Invalid ValueType = iota
	String
	Integer
	Float
)

// String returns the canonical name of the type.
func (t ValueType) String() string {
	switch t {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Float:
		return "float"
	default:
		return "invalid"
	}
}

// ParseValueType converts a textual type name into a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text":
		return String, nil
	case "integer", "int":
		return Integer, nil
	case "float", "number", "double":
		return Float, nil
	default:
		return Invalid, fmt.Errorf("unknown value type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ValueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode to
// Invalid without error.
func (t *ValueType) UnmarshalText(text []byte) error {
	*t, _ = ParseValueType(string(text))
	return nil
}

// Location tells where a field travels in an HTTP request.
type Location int

const (
	// Body fields are carried in the request payload.
	Body Location = iota
	// Path fields identify an entity and appear in the URL.
	Path
)

func (l Location) String() string {
	switch l {
	case Path:
		return "path"
	case Body:
		return "body"
	default:
		return fmt.Sprintf("location(%d)", int(l))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Location) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty value means Body.
func (l *Location) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "body":
		*l = Body
	case "path":
		*l = Path
	default:
		return fmt.Errorf("unknown field location %q", text)
	}
	return nil
}

// Field is a single attribute of an entity.
type Field struct {
	Name     string    `mapstructure:"name" json:"name"`
	Type     ValueType `mapstructure:"type" json:"type"`
	Location Location  `mapstructure:"location" json:"location"`
}

// Config describes one entity: its route prefix and table name, the tags
// attached to its routes and its ordered field list.
type Config struct {
	Name    string   `mapstructure:"name" json:"name"`
	APITags []string `mapstructure:"apiTags" json:"api_tags"`
	Fields  []Field  `mapstructure:"fields" json:"fields"`
}

var (
	ErrEmptyName      = errors.New("entity: empty name")
	ErrDuplicateField = errors.New("entity: duplicate field")
	ErrDuplicateName  = errors.New("entity: duplicate entity name")
	ErrInvalidName    = errors.New("entity: name must be a single path segment")
)

// PathFields returns the fields located in the URL path, in declared order.
func (c Config) PathFields() []Field {
	return c.filter(Path)
}

// BodyFields returns the fields carried in the request body, in declared order.
func (c Config) BodyFields() []Field {
	return c.filter(Body)
}

func (c Config) filter(loc Location) []Field {
	fields := make([]Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Location == loc {
			fields = append(fields, f)
		}
	}
	return fields
}

// FieldNames returns the names of the given fields.
func FieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks the structure of the Config. Field types are
// not checked here; storage builders reject unsupported types.
func (c Config) Validate() error {
	if c.Name == "" {
		return ErrEmptyName
	}
	if strings.ContainsAny(c.Name, "/{}") {
		return fmt.Errorf("%q: %w", c.Name, ErrInvalidName)
	}
	seen := make(map[string]struct{}, len(c.Fields))
	for i, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("%s: field %d: %w", c.Name, i, ErrEmptyName)
		}
		if f.Location != Path && f.Location != Body {
			return fmt.Errorf("%s.%s: unknown location %s", c.Name, f.Name, f.Location)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("%s.%s: %w", c.Name, f.Name, ErrDuplicateField)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// ValidateAll validates every Config and rejects duplicate entity names,
// which would collide both as route prefixes and as table names.
func ValidateAll(configs []Config) error {
	names := make(map[string]struct{}, len(configs))
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, ok := names[c.Name]; ok {
			return fmt.Errorf("%q: %w", c.Name, ErrDuplicateName)
		}
		names[c.Name] = struct{}{}
	}
	return nil
}

// Equal reports whether two configs describe the same entity.
func (c Config) Equal(o Config) bool {
	if c.Name != o.Name || len(c.Fields) != len(o.Fields) || len(c.APITags) != len(o.APITags) {
		return false
	}
	for i := range c.Fields {
		if c.Fields[i] != o.Fields[i] {
			return false
		}
	}
	for i := range c.APITags {
		if c.APITags[i] != o.APITags[i] {
			return false
		}
	}
	return true
}
