package crud

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/edgeflare/dyapi/pkg/storage"
	"github.com/edgeflare/dyapi/pkg/storage/memory"
	"github.com/edgeflare/dyapi/pkg/storage/pgtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lineConfig = entity.Config{
	Name:    "order_line",
	APITags: []string{"orders"},
	Fields: []entity.Field{
		{Name: "order_id", Type: entity.Integer, Location: entity.Path},
		{Name: "line", Type: entity.Integer, Location: entity.Path},
		{Name: "sku", Type: entity.String},
	},
}

func patterns(g *Group) []string {
	out := make([]string, len(g.Routes))
	for i, r := range g.Routes {
		out[i] = r.MethodPattern("/" + g.Name)
	}
	return out
}

func TestPathTemplate(t *testing.T) {
	assert.Equal(t, "{order_id}/{line}", PathTemplate(lineConfig.PathFields()))
	assert.Equal(t, "", PathTemplate(nil))
}

func TestNewWithUpserter(t *testing.T) {
	g, err := New(lineConfig, memory.NewManager())
	require.NoError(t, err)

	assert.Equal(t, "order_line", g.Name)
	assert.Equal(t, []string{"orders"}, g.Tags)
	assert.Equal(t, []string{
		"POST /order_line/{$}",
		"GET /order_line/{$}",
		"GET /order_line/{order_id}/{line}",
		"PUT /order_line/{order_id}/{line}",
		"DELETE /order_line/{order_id}/{line}",
		"POST /order_line/upsert_many",
	}, patterns(g))

	update := g.Routes[3]
	require.Len(t, update.Inputs, 2)
	assert.Equal(t, schema.LocPath, update.Inputs[0].Location)
	assert.Equal(t, "OrderLinePath", update.Inputs[0].Schema.Name())
	assert.Equal(t, "OrderLineBody", update.Inputs[1].Schema.Name())
	assert.Equal(t, "Update Order line", update.Summary)
	assert.Equal(t, "updateOrderLine", update.OperationID(g.Name))

	assert.Equal(t, ResponsePage, g.Routes[1].ResponseKind)
	assert.Equal(t, ResponseBool, g.Routes[4].ResponseKind)
	assert.Nil(t, g.Routes[4].Response)
	assert.True(t, g.Routes[5].Inputs[0].List)
}

func TestNewTableBackendHasNoUpsert(t *testing.T) {
	g, err := New(lineConfig, pgtable.NewManager(nil, nil))
	require.NoError(t, err)
	assert.Len(t, g.Routes, 5)
	for _, r := range g.Routes {
		assert.NotEqual(t, "/upsert_many", r.Pattern)
	}
}

func TestNewWithoutPathFields(t *testing.T) {
	cfg := entity.Config{Name: "note", Fields: []entity.Field{{Name: "text", Type: entity.String}}}
	g, err := New(cfg, pgtable.NewManager(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"POST /note/{$}", "GET /note/{$}"}, patterns(g))
}

func TestNewErrors(t *testing.T) {
	_, err := New(entity.Config{Name: "x", Fields: []entity.Field{{Name: "b", Type: entity.Invalid}}}, pgtable.NewManager(nil, nil))
	assert.ErrorIs(t, err, storage.ErrUnsupportedFieldType)

	_, err = New(entity.Config{Name: "x", Fields: []entity.Field{{Name: "a-b", Type: entity.String, Location: entity.Path}}}, memory.NewManager())
	assert.ErrorIs(t, err, ErrInvalidPathField)

	for _, name := range []string{"offset", "limit"} {
		_, err = New(entity.Config{Name: "x", Fields: []entity.Field{{Name: name, Type: entity.Integer, Location: entity.Path}}}, memory.NewManager())
		assert.ErrorIs(t, err, ErrReservedPathField, name)
	}

	_, err = New(entity.Config{}, memory.NewManager())
	assert.ErrorIs(t, err, entity.ErrEmptyName)

	m := memory.NewManager()
	_, err = New(lineConfig, m)
	require.NoError(t, err)
	changed := lineConfig
	changed.Fields = lineConfig.Fields[:2]
	_, err = New(changed, m)
	assert.ErrorIs(t, err, storage.ErrTableExists)
}

func TestRoutesServe(t *testing.T) {
	g, err := New(lineConfig, memory.NewManager())
	require.NoError(t, err)

	mux := http.NewServeMux()
	for _, r := range g.Routes {
		mux.Handle(r.MethodPattern("/"+g.Name), r.Handler)
	}

	req := httptest.NewRequest("POST", "/order_line/", strings.NewReader(`{"order_id":7,"line":1,"sku":"abc"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/order_line/7/1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"order_id":7,"line":1,"sku":"abc"}`, w.Body.String())

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/order_line/7", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
