package gormsession

import (
	"context"
	"testing"

	"github.com/edgeflare/dyapi/internal/testutil/pgtest"
	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/edgeflare/dyapi/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestStorageIntegration(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(postgres.Open(pgtest.ConnString(t)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(&product{}))
	require.NoError(t, db.AutoMigrate(&product{}))
	t.Cleanup(func() { _ = db.Migrator().DropTable(&product{}) })

	m := NewManager(FromContext(db))
	Register[product](m, "product")
	s, err := m.Storage(productConfig)
	require.NoError(t, err)
	set := schema.NewSet(productConfig)

	_, err = s.Create(ctx, schema.Record{"sku": "a", "name": "A", "price": 1.0})
	require.NoError(t, err)
	_, err = s.Create(ctx, schema.Record{"sku": "a", "name": "dup", "price": 1.0})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	rec, err := s.Update(ctx, schema.Record{"sku": "a"}, schema.Record{"name": "AA", "price": 1.5}, set.Entity)
	require.NoError(t, err)
	assert.Equal(t, schema.Record{"sku": "a", "name": "AA", "price": 1.5}, rec)

	up := s.(storage.Upserter)
	_, err = up.UpsertMany(ctx, []schema.Record{
		{"sku": "a", "name": "A3", "price": 3.0},
		{"sku": "b", "name": "B", "price": 2.0},
	}, set.Entity)
	require.NoError(t, err)

	page, total, err := s.List(ctx, nil, storage.DefaultPagination(), set.Entity)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 2)
	assert.Equal(t, "A3", page[0]["name"])

	ok, err := s.Delete(ctx, schema.Record{"sku": "b"})
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = s.Get(ctx, schema.Record{"sku": "b"}, set.Entity)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
