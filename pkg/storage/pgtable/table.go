package pgtable

import (
	"fmt"
	"slices"
	"strings"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/storage"
	"github.com/jackc/pgx/v5"
)

// DefaultSchema is the PostgreSQL schema tables are created in.
const DefaultSchema = "public"

// Column is one table column derived from an entity field.
type Column struct {
	Name    string
	Type    entity.ValueType
	SQLType string
}

// Table is the relational definition of one entity. Columns follow the
// entity's field order, which row decoding relies on.
type Table struct {
	Schema  string
	Name    string
	Columns []Column
	// Unique lists the columns of the composite unique constraint (the path
	// fields). Empty means no uniqueness guarantee.
	Unique []string
}

// ColumnType maps a field type to its PostgreSQL column type.
func ColumnType(t entity.ValueType) (string, error) {
	switch t {
	case entity.String:
		return "text", nil
	case entity.Integer:
		return "bigint", nil
	case entity.Float:
		return "double precision", nil
	default:
		return "", fmt.Errorf("%w: %s", storage.ErrUnsupportedFieldType, t)
	}
}

// BuildTable derives the table definition for cfg. An empty schema name
// selects DefaultSchema.
func BuildTable(cfg entity.Config, schemaName string) (*Table, error) {
	if schemaName == "" {
		schemaName = DefaultSchema
	}
	t := &Table{
		Schema:  schemaName,
		Name:    cfg.Name,
		Columns: make([]Column, 0, len(cfg.Fields)),
		Unique:  entity.FieldNames(cfg.PathFields()),
	}
	for _, f := range cfg.Fields {
		sqlType, err := ColumnType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("table %s, column %s: %w", cfg.Name, f.Name, err)
		}
		t.Columns = append(t.Columns, Column{Name: f.Name, Type: f.Type, SQLType: sqlType})
	}
	return t, nil
}

// Identifier returns the sanitized, schema-qualified table name.
func (t *Table) Identifier() string {
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// OrderBy returns the columns lists are sorted by: the unique key, or every
// column when the table has none.
func (t *Table) OrderBy() []string {
	if len(t.Unique) > 0 {
		return t.Unique
	}
	return t.ColumnNames()
}

// DDL renders the CREATE TABLE statement.
func (t *Table) DDL() string {
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		defs = append(defs, fmt.Sprintf("\t%s %s", pgx.Identifier{c.Name}.Sanitize(), c.SQLType))
	}
	if len(t.Unique) > 0 {
		defs = append(defs, fmt.Sprintf("\tUNIQUE (%s)", identifierList(t.Unique)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", t.Identifier(), strings.Join(defs, ",\n"))
}

// Equal reports whether both definitions are identical.
func (t *Table) Equal(o *Table) bool {
	return t.Schema == o.Schema && t.Name == o.Name &&
		slices.Equal(t.Columns, o.Columns) && slices.Equal(t.Unique, o.Unique)
}

func identifierList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = pgx.Identifier{n}.Sanitize()
	}
	return strings.Join(parts, ", ")
}
