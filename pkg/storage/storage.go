// Package storage defines the contract shared by every entity storage backend.
//
// Backends live in subpackages: pgtable (ad-hoc tables over a pgx pool),
// gormsession (request-scoped GORM sessions over existing models) and memory.
// All of them report failures with the sentinel errors declared here; the
// endpoint layer is the only place those errors are translated into HTTP
// status codes.
package storage

import (
	"context"
	"errors"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrAlreadyExists is returned when a write violates the uniqueness of the
	// entity key.
	ErrAlreadyExists = errors.New("entity already exists")
	// ErrNotFound is returned when no row matches a key filter.
	ErrNotFound = errors.New("entity not found")
	// ErrUnsupportedFieldType is returned when a field type has no column mapping.
	ErrUnsupportedFieldType = errors.New("unsupported field type")
	// ErrTableExists is returned when two different definitions claim one table name.
	ErrTableExists = errors.New("table already defined")
)

// Storage is the per-entity capability set used by the endpoint layer.
//
// Filters are records produced by the path or query schema. Only the keys
// present in a filter constrain the match; values compare by equality.
type Storage interface {
	// Create inserts entity and returns it unchanged.
	Create(ctx context.Context, entity schema.Record) (schema.Record, error)
	// Get returns the entity matching filter, shaped by shape.
	Get(ctx context.Context, filter schema.Record, shape *schema.Schema) (schema.Record, error)
	// Update overwrites the columns present in entity for the rows matching
	// filter, then re-reads the row with the same filter.
	Update(ctx context.Context, filter, entity schema.Record, shape *schema.Schema) (schema.Record, error)
	// Delete removes the rows matching filter and reports whether any existed.
	Delete(ctx context.Context, filter schema.Record) (bool, error)
	// List returns one page of the rows matching filter and the total number
	// of matching rows regardless of pagination.
	List(ctx context.Context, filter schema.Record, page Pagination, shape *schema.Schema) ([]schema.Record, int, error)
}

// Upserter is implemented by backends that can insert-or-update a batch of
// entities keyed by their primary key.
type Upserter interface {
	UpsertMany(ctx context.Context, entities []schema.Record, shape *schema.Schema) ([]schema.Record, error)
}

// Manager hands out one Storage per entity Config.
type Manager interface {
	Storage(cfg entity.Config) (Storage, error)
}

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err signals a violated unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
