package pgtable

import (
	"fmt"
	"strings"

	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/jackc/pgx/v5"
)

// queryBuilder accumulates positional arguments while a statement is rendered.
type queryBuilder struct {
	table     *Table
	args      []any
	nextIndex int
}

func newQueryBuilder(t *Table) *queryBuilder {
	return &queryBuilder{table: t, nextIndex: 1}
}

func (qb *queryBuilder) placeholder() string {
	placeholder := fmt.Sprintf("$%d", qb.nextIndex)
	qb.nextIndex++
	return placeholder
}

// bind records value and returns its placeholder.
func (qb *queryBuilder) bind(value any) string {
	qb.args = append(qb.args, value)
	return qb.placeholder()
}

// present returns the table columns that have a key in rec, in column order.
func (qb *queryBuilder) present(rec schema.Record) []string {
	var cols []string
	for _, c := range qb.table.Columns {
		if _, ok := rec[c.Name]; ok {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// where renders an equality conjunction over the filter keys, or "" when the
// filter is empty.
func (qb *queryBuilder) where(filter schema.Record) string {
	cols := qb.present(filter)
	if len(cols) == 0 {
		return ""
	}
	clauses := make([]string, len(cols))
	for i, col := range cols {
		clauses[i] = fmt.Sprintf("%s = %s", pgx.Identifier{col}.Sanitize(), qb.bind(filter[col]))
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func buildInsert(t *Table, rec schema.Record) (string, []any) {
	qb := newQueryBuilder(t)
	cols := qb.present(rec)
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		placeholders[i] = qb.bind(rec[col])
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		t.Identifier(),
		identifierList(cols),
		strings.Join(placeholders, ", "),
	)
	return query, qb.args
}

// buildSelect selects the given columns of the rows matching filter, ordered
// by the table's key. limit <= 0 means no limit.
func buildSelect(t *Table, columns []string, filter schema.Record, limit, offset int) (string, []any) {
	qb := newQueryBuilder(t)
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", identifierList(columns), t.Identifier())
	sb.WriteString(qb.where(filter))
	fmt.Fprintf(&sb, " ORDER BY %s", identifierList(t.OrderBy()))
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %s", qb.bind(limit))
	}
	if offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %s", qb.bind(offset))
	}
	return sb.String(), qb.args
}

func buildCount(t *Table, filter schema.Record) (string, []any) {
	qb := newQueryBuilder(t)
	query := fmt.Sprintf("SELECT count(*) FROM %s%s", t.Identifier(), qb.where(filter))
	return query, qb.args
}

// buildUpdate sets the columns present in rec. It returns "" when rec has no
// column of the table.
func buildUpdate(t *Table, filter, rec schema.Record) (string, []any) {
	qb := newQueryBuilder(t)
	cols := qb.present(rec)
	if len(cols) == 0 {
		return "", nil
	}
	setClauses := make([]string, len(cols))
	for i, col := range cols {
		setClauses[i] = fmt.Sprintf("%s = %s", pgx.Identifier{col}.Sanitize(), qb.bind(rec[col]))
	}
	query := fmt.Sprintf("UPDATE %s SET %s%s", t.Identifier(), strings.Join(setClauses, ", "), qb.where(filter))
	return query, qb.args
}

func buildDelete(t *Table, filter schema.Record) (string, []any) {
	qb := newQueryBuilder(t)
	query := fmt.Sprintf("DELETE FROM %s%s", t.Identifier(), qb.where(filter))
	return query, qb.args
}
