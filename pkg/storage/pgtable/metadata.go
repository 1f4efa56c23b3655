package pgtable

import (
	"context"
	"fmt"
	"sync"

	pg "github.com/edgeflare/dyapi/pkg/pgx"
	"github.com/edgeflare/dyapi/pkg/storage"
	"github.com/jackc/pgx/v5"
)

// Metadata is a registry of table definitions keyed by qualified name.
type Metadata struct {
	tables map[string]*Table
	order  []string
	mu     sync.RWMutex
}

// NewMetadata returns an empty registry.
func NewMetadata() *Metadata {
	return &Metadata{tables: make(map[string]*Table)}
}

// Register adds t. Registering an identical definition again returns the
// existing one; a different definition under the same name fails with
// storage.ErrTableExists.
func (md *Metadata) Register(t *Table) (*Table, error) {
	md.mu.Lock()
	defer md.mu.Unlock()

	key := t.Identifier()
	if existing, ok := md.tables[key]; ok {
		if !existing.Equal(t) {
			return nil, fmt.Errorf("%s: %w", key, storage.ErrTableExists)
		}
		return existing, nil
	}
	md.tables[key] = t
	md.order = append(md.order, key)
	return t, nil
}

// Tables returns the registered tables in registration order.
func (md *Metadata) Tables() []*Table {
	md.mu.RLock()
	defer md.mu.RUnlock()

	out := make([]*Table, len(md.order))
	for i, key := range md.order {
		out[i] = md.tables[key]
	}
	return out
}

// DDL returns the CREATE TABLE statements of all registered tables.
func (md *Metadata) DDL() []string {
	tables := md.Tables()
	stmts := make([]string, len(tables))
	for i, t := range tables {
		stmts[i] = t.DDL()
	}
	return stmts
}

// CreateAll creates every registered table that does not exist yet, in one
// transaction.
func (md *Metadata) CreateAll(ctx context.Context, conn pg.Conn) error {
	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		for _, stmt := range md.DDL() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
		}
		return nil
	})
}
