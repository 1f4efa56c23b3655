// Package pgtable stores entities in PostgreSQL tables through pgx.
//
// Every entity gets one table whose columns mirror its fields; the path
// fields form a composite unique constraint. Each operation runs in its own
// transaction that commits on success and rolls back on any error.
package pgtable

import (
	"context"
	"errors"
	"fmt"

	pg "github.com/edgeflare/dyapi/pkg/pgx"
	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/edgeflare/dyapi/pkg/storage"
	"github.com/jackc/pgx/v5"
)

// Storage is the table-backed storage of one entity.
type Storage struct {
	conn  pg.Conn
	table *Table
}

var _ storage.Storage = (*Storage)(nil)

// New returns a Storage for table t reached through conn.
func New(conn pg.Conn, t *Table) *Storage {
	return &Storage{conn: conn, table: t}
}

// Table returns the table definition.
func (s *Storage) Table() *Table { return s.table }

func (s *Storage) Create(ctx context.Context, e schema.Record) (schema.Record, error) {
	query, args := buildInsert(s.table, e)
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, s.wrap("create", err)
	}
	return e, nil
}

func (s *Storage) Get(ctx context.Context, filter schema.Record, shape *schema.Schema) (schema.Record, error) {
	var rec schema.Record
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		var err error
		rec, err = s.first(ctx, tx, filter, shape)
		return err
	})
	if err != nil {
		return nil, s.wrap("get", err)
	}
	return rec, nil
}

// Update writes the columns present in e to the rows matching filter and
// re-reads them with the same filter. A key change therefore reports
// storage.ErrNotFound even though the write committed.
func (s *Storage) Update(ctx context.Context, filter, e schema.Record, shape *schema.Schema) (schema.Record, error) {
	var rec schema.Record
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		if query, args := buildUpdate(s.table, filter, e); query != "" {
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return err
			}
		}
		var err error
		rec, err = s.first(ctx, tx, filter, shape)
		if errors.Is(err, storage.ErrNotFound) {
			// keep the committed write
			return nil
		}
		return err
	})
	if err != nil {
		return nil, s.wrap("update", err)
	}
	if rec == nil {
		return nil, s.wrap("update", storage.ErrNotFound)
	}
	return rec, nil
}

func (s *Storage) Delete(ctx context.Context, filter schema.Record) (bool, error) {
	query, args := buildDelete(s.table, filter)
	var deleted bool
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, s.wrap("delete", err)
	}
	return deleted, nil
}

func (s *Storage) List(ctx context.Context, filter schema.Record, page storage.Pagination, shape *schema.Schema) ([]schema.Record, int, error) {
	var (
		out   []schema.Record
		total int
	)
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		countQuery, countArgs := buildCount(s.table, filter)
		if err := tx.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
			return err
		}
		if page.Limit <= 0 {
			out = []schema.Record{}
			return nil
		}
		var err error
		out, err = s.query(ctx, tx, filter, page.Limit, page.Offset, shape)
		return err
	})
	if err != nil {
		return nil, 0, s.wrap("list", err)
	}
	return out, total, nil
}

// first returns the first row matching filter, projected onto shape.
func (s *Storage) first(ctx context.Context, tx pgx.Tx, filter schema.Record, shape *schema.Schema) (schema.Record, error) {
	recs, err := s.query(ctx, tx, filter, 1, 0, shape)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, storage.ErrNotFound
	}
	return recs[0], nil
}

// query selects shape's columns, so each row's positional values line up with
// shape's member order.
func (s *Storage) query(ctx context.Context, tx pgx.Tx, filter schema.Record, limit, offset int, shape *schema.Schema) ([]schema.Record, error) {
	query, args := buildSelect(s.table, shape.Names(), filter, limit, offset)
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	values, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]any, error) {
		return row.Values()
	})
	if err != nil {
		return nil, err
	}
	out := make([]schema.Record, 0, len(values))
	for _, v := range values {
		rec, err := shape.Zip(v)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Storage) wrap(op string, err error) error {
	if storage.IsUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w: %v", op, s.table.Name, storage.ErrAlreadyExists, err)
	}
	return fmt.Errorf("%s %s: %w", op, s.table.Name, err)
}
