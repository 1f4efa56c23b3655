package gormsession

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/edgeflare/dyapi/pkg/storage"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type product struct {
	SKU   string  `gorm:"primaryKey;column:sku" json:"sku"`
	Name  string  `gorm:"column:name" json:"name"`
	Price float64 `gorm:"column:price" json:"price"`
}

var productConfig = entity.Config{
	Name: "product",
	Fields: []entity.Field{
		{Name: "sku", Type: entity.String, Location: entity.Path},
		{Name: "name", Type: entity.String},
		{Name: "price", Type: entity.Float},
	},
}

var productColumns = []string{"sku", "name", "price"}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gdb, mock
}

func newProductStorage(t *testing.T) (*Storage[product], sqlmock.Sqlmock) {
	t.Helper()
	gdb, mock := newMockDB(t)
	return New[product](FromContext(gdb), productConfig), mock
}

func TestCreate(t *testing.T) {
	s, mock := newProductStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "products"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := s.Create(context.Background(), schema.Record{"sku": "a", "name": "Widget", "price": 9.5})
	require.NoError(t, err)
	assert.Equal(t, schema.Record{"sku": "a", "name": "Widget", "price": 9.5}, rec)
}

func TestCreateDuplicate(t *testing.T) {
	s, mock := newProductStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "products"`).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), schema.Record{"sku": "a", "name": "Widget", "price": 9.5})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestGet(t *testing.T) {
	s, mock := newProductStorage(t)
	set := schema.NewSet(productConfig)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "products" WHERE`).
		WillReturnRows(sqlmock.NewRows(productColumns).AddRow("a", "Widget", 9.5))
	mock.ExpectCommit()

	rec, err := s.Get(context.Background(), schema.Record{"sku": "a"}, set.Body)
	require.NoError(t, err)
	assert.Equal(t, schema.Record{"name": "Widget", "price": 9.5}, rec)
}

func TestGetNotFound(t *testing.T) {
	s, mock := newProductStorage(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "products" WHERE`).WillReturnRows(sqlmock.NewRows(productColumns))
	mock.ExpectRollback()

	_, err := s.Get(context.Background(), schema.Record{"sku": "zz"}, schema.NewSet(productConfig).Entity)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	s, mock := newProductStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "products" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "products" WHERE`).
		WillReturnRows(sqlmock.NewRows(productColumns).AddRow("a", "Gadget", 12.0))
	mock.ExpectCommit()

	rec, err := s.Update(context.Background(), schema.Record{"sku": "a"},
		schema.Record{"name": "Gadget", "price": 12.0}, schema.NewSet(productConfig).Entity)
	require.NoError(t, err)
	assert.Equal(t, "Gadget", rec["name"])
}

func TestUpdateNotFound(t *testing.T) {
	s, mock := newProductStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "products" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "products" WHERE`).WillReturnRows(sqlmock.NewRows(productColumns))
	mock.ExpectCommit()

	_, err := s.Update(context.Background(), schema.Record{"sku": "zz"},
		schema.Record{"name": "x"}, schema.NewSet(productConfig).Entity)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, mock := newProductStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "products" WHERE`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "products" WHERE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err := s.Delete(context.Background(), schema.Record{"sku": "a"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(context.Background(), schema.Record{"sku": "a"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	s, mock := newProductStorage(t)
	set := schema.NewSet(productConfig)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT \* FROM "products" ORDER BY "sku" LIMIT`).
		WillReturnRows(sqlmock.NewRows(productColumns).AddRow("b", "B", 2.0).AddRow("c", "C", 3.0))
	mock.ExpectCommit()

	page, total, err := s.List(context.Background(), nil, storage.Pagination{Offset: 1, Limit: 2}, set.Path)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []schema.Record{{"sku": "b"}, {"sku": "c"}}, page)
}

func TestUpsertMany(t *testing.T) {
	s, mock := newProductStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "products" .* ON CONFLICT \("sku"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	out, err := s.UpsertMany(context.Background(), []schema.Record{
		{"sku": "a", "name": "A", "price": 1.0},
		{"sku": "b", "name": "B", "price": 2.0},
	}, schema.NewSet(productConfig).Entity)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "B", out[1]["name"])
}

func TestSessionFromContext(t *testing.T) {
	root, _ := newMockDB(t)
	scoped, mock := newMockDB(t)
	s := New[product](FromContext(root), productConfig)

	// the scoped session receives the statement; root has no expectations
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "products" WHERE`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := WithSession(context.Background(), scoped)
	ok, err := s.Delete(ctx, schema.Record{"sku": "a"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager(t *testing.T) {
	gdb, _ := newMockDB(t)
	m := NewManager(FromContext(gdb))

	_, err := m.Storage(productConfig)
	assert.ErrorIs(t, err, ErrModelNotRegistered)

	Register[product](m, "product")
	a, err := m.Storage(productConfig)
	require.NoError(t, err)
	b, err := m.Storage(productConfig)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Implements(t, (*storage.Upserter)(nil), a)

	changed := productConfig
	changed.APITags = []string{"shop"}
	_, err = m.Storage(changed)
	assert.ErrorIs(t, err, storage.ErrTableExists)
}
