package pgtable

import (
	"testing"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/schema"
	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lineConfig = entity.Config{
	Name: "order_line",
	Fields: []entity.Field{
		{Name: "order_id", Type: entity.Integer, Location: entity.Path},
		{Name: "line", Type: entity.Integer, Location: entity.Path},
		{Name: "sku", Type: entity.String},
		{Name: "qty", Type: entity.Integer},
	},
}

func lineTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := BuildTable(lineConfig, "")
	require.NoError(t, err)
	return tbl
}

func TestQueries(t *testing.T) {
	tbl := lineTable(t)
	key := schema.Record{"line": int64(2), "order_id": int64(1)}

	tests := []struct {
		name      string
		build     func() (string, []any)
		wantQuery string
		wantArgs  []any
	}{
		{
			name: "insert",
			build: func() (string, []any) {
				return buildInsert(tbl, schema.Record{"qty": int64(3), "order_id": int64(1), "line": int64(2), "sku": "a"})
			},
			wantQuery: `INSERT INTO "public"."order_line" ("order_id", "line", "sku", "qty") VALUES ($1, $2, $3, $4)`,
			wantArgs:  []any{int64(1), int64(2), "a", int64(3)},
		},
		{
			name: "select one",
			build: func() (string, []any) {
				return buildSelect(tbl, []string{"sku", "qty"}, key, 1, 0)
			},
			wantQuery: `SELECT "sku", "qty" FROM "public"."order_line" WHERE "order_id" = $1 AND "line" = $2 ORDER BY "order_id", "line" LIMIT $3`,
			wantArgs:  []any{int64(1), int64(2), 1},
		},
		{
			name: "select page",
			build: func() (string, []any) {
				return buildSelect(tbl, tbl.ColumnNames(), schema.Record{"order_id": int64(1)}, 10, 20)
			},
			wantQuery: `SELECT "order_id", "line", "sku", "qty" FROM "public"."order_line" WHERE "order_id" = $1 ORDER BY "order_id", "line" LIMIT $2 OFFSET $3`,
			wantArgs:  []any{int64(1), 10, 20},
		},
		{
			name: "select unfiltered",
			build: func() (string, []any) {
				return buildSelect(tbl, []string{"sku"}, nil, 5, 0)
			},
			wantQuery: `SELECT "sku" FROM "public"."order_line" ORDER BY "order_id", "line" LIMIT $1`,
			wantArgs:  []any{5},
		},
		{
			name: "count",
			build: func() (string, []any) {
				return buildCount(tbl, schema.Record{"order_id": int64(1)})
			},
			wantQuery: `SELECT count(*) FROM "public"."order_line" WHERE "order_id" = $1`,
			wantArgs:  []any{int64(1)},
		},
		{
			name: "update",
			build: func() (string, []any) {
				return buildUpdate(tbl, key, schema.Record{"qty": int64(9), "sku": "b"})
			},
			wantQuery: `UPDATE "public"."order_line" SET "sku" = $1, "qty" = $2 WHERE "order_id" = $3 AND "line" = $4`,
			wantArgs:  []any{"b", int64(9), int64(1), int64(2)},
		},
		{
			name: "delete",
			build: func() (string, []any) {
				return buildDelete(tbl, key)
			},
			wantQuery: `DELETE FROM "public"."order_line" WHERE "order_id" = $1 AND "line" = $2`,
			wantArgs:  []any{int64(1), int64(2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := tt.build()
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
			_, err := pg_query.Parse(query)
			assert.NoError(t, err)
		})
	}
}

func TestUpdateWithoutColumns(t *testing.T) {
	query, args := buildUpdate(lineTable(t), schema.Record{"order_id": int64(1)}, schema.Record{"unknown": 1})
	assert.Empty(t, query)
	assert.Nil(t, args)
}

func TestQuotedIdentifiers(t *testing.T) {
	cfg := entity.Config{Name: `we"ird`, Fields: []entity.Field{{Name: "select", Type: entity.String, Location: entity.Path}}}
	tbl, err := BuildTable(cfg, "")
	require.NoError(t, err)

	query, _ := buildSelect(tbl, tbl.ColumnNames(), schema.Record{"select": "x"}, 1, 0)
	assert.Equal(t, `SELECT "select" FROM "public"."we""ird" WHERE "select" = $1 ORDER BY "select" LIMIT $2`, query)
	_, err = pg_query.Parse(query)
	assert.NoError(t, err)
	_, err = pg_query.Parse(tbl.DDL())
	assert.NoError(t, err)
}
