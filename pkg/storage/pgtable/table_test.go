package pgtable

import (
	"testing"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/storage"
	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var productConfig = entity.Config{
	Name: "product",
	Fields: []entity.Field{
		{Name: "product_id", Type: entity.Integer, Location: entity.Path},
		{Name: "name", Type: entity.String},
		{Name: "price", Type: entity.Float},
	},
}

func TestBuildTable(t *testing.T) {
	tbl, err := BuildTable(productConfig, "")
	require.NoError(t, err)

	assert.Equal(t, DefaultSchema, tbl.Schema)
	assert.Equal(t, `"public"."product"`, tbl.Identifier())
	assert.Equal(t, []string{"product_id", "name", "price"}, tbl.ColumnNames())
	assert.Equal(t, []string{"product_id"}, tbl.Unique)
	assert.Equal(t, []Column{
		{Name: "product_id", Type: entity.Integer, SQLType: "bigint"},
		{Name: "name", Type: entity.String, SQLType: "text"},
		{Name: "price", Type: entity.Float, SQLType: "double precision"},
	}, tbl.Columns)
}

func TestBuildTableUnsupportedType(t *testing.T) {
	cfg := entity.Config{Name: "x", Fields: []entity.Field{{Name: "blob", Type: entity.Invalid}}}
	_, err := BuildTable(cfg, "")
	assert.ErrorIs(t, err, storage.ErrUnsupportedFieldType)
}

func TestDDL(t *testing.T) {
	tbl, err := BuildTable(productConfig, "shop")
	require.NoError(t, err)

	ddl := tbl.DDL()
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS \"shop\".\"product\" (\n"+
		"\t\"product_id\" bigint,\n"+
		"\t\"name\" text,\n"+
		"\t\"price\" double precision,\n"+
		"\tUNIQUE (\"product_id\")\n)", ddl)
	_, err = pg_query.Parse(ddl)
	require.NoError(t, err)

	noKey, err := BuildTable(entity.Config{Name: "note", Fields: []entity.Field{{Name: "text", Type: entity.String}}}, "")
	require.NoError(t, err)
	assert.NotContains(t, noKey.DDL(), "UNIQUE")
	assert.Equal(t, []string{"text"}, noKey.OrderBy())
}

func TestMetadata(t *testing.T) {
	md := NewMetadata()
	a, err := BuildTable(productConfig, "")
	require.NoError(t, err)
	b, err := BuildTable(productConfig, "")
	require.NoError(t, err)

	got, err := md.Register(a)
	require.NoError(t, err)
	assert.Same(t, a, got)

	// identical definitions resolve to the first one
	got, err = md.Register(b)
	require.NoError(t, err)
	assert.Same(t, a, got)

	changed := productConfig
	changed.Fields = productConfig.Fields[:2]
	c, err := BuildTable(changed, "")
	require.NoError(t, err)
	_, err = md.Register(c)
	assert.ErrorIs(t, err, storage.ErrTableExists)

	other, err := BuildTable(productConfig, "archive")
	require.NoError(t, err)
	_, err = md.Register(other)
	require.NoError(t, err)

	assert.Len(t, md.Tables(), 2)
	for _, stmt := range md.DDL() {
		_, err := pg_query.Parse(stmt)
		assert.NoError(t, err, stmt)
	}
}
