package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/model"
)

// Conditions collects WHERE clauses joined with AND.
type Conditions struct {
	clauses []string
	args    []any
}

// In adds "col IN (...)". An empty value list adds nothing.
func (c *Conditions) In(col string, values []int64) {
	if len(values) == 0 {
		return
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	c.clauses = append(c.clauses, fmt.Sprintf("%s IN (%s)", col, marks))
	for _, v := range values {
		c.args = append(c.args, v)
	}
}

// Compare adds "col op ?".
func (c *Conditions) Compare(col, op string, v any) {
	c.clauses = append(c.clauses, fmt.Sprintf("%s %s ?", col, op))
	c.args = append(c.args, v)
}

// Where adds a free-form clause. Blank clauses are ignored.
func (c *Conditions) Where(clause string, args ...any) {
	if strings.TrimSpace(clause) == "" {
		return
	}
	c.clauses = append(c.clauses, "("+clause+")")
	c.args = append(c.args, args...)
}

// Bounds restricts col to an index range.
func (c *Conditions) Bounds(col string, b Bounds) {
	if b.Lo != nil {
		c.Compare(col, ">=", *b.Lo)
	}
	if b.Hi != nil {
		c.Compare(col, "<=", *b.Hi)
	}
}

// Clause returns the combined conditions without the WHERE keyword.
func (c Conditions) Clause() string {
	return strings.Join(c.clauses, " AND ")
}

// String returns "WHERE ..." or "" if there are no conditions.
func (c Conditions) String() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return "WHERE " + c.Clause()
}

// Args returns the bound arguments in clause order.
func (c Conditions) Args() []any { return c.args }

// Query is a lazy, restartable record sequence. Nothing is read until Len
// or All is called, and each call re-executes the statement.
type Query[T any] struct {
	db     *sql.DB
	store  string
	stmt   string
	args   []any
	decode func(model.Row) (T, error)
	empty  bool
}

// NewQuery creates a query over the database's read-only handle.
func NewQuery[T any](d *Database, stmt string, args []any, decode func(model.Row) (T, error)) *Query[T] {
	return &Query[T]{db: d.reader, store: d.kind.Name, stmt: stmt, args: args, decode: decode}
}

// EmptyQuery returns a query that yields nothing.
func EmptyQuery[T any]() *Query[T] {
	return &Query[T]{empty: true}
}

// SQL returns the statement and its arguments.
func (q *Query[T]) SQL() (string, []any) { return q.stmt, q.args }

// Len returns the number of rows the query would yield.
func (q *Query[T]) Len(ctx context.Context) (int64, error) {
	if q.empty {
		return 0, nil
	}
	var n int64
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+q.stmt+")", q.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting results: %w", err)
	}
	return n, nil
}

// All streams decoded records in a single cursor pass. Iteration stops at
// the first error, which is yielded with a zero record.
func (q *Query[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if q.empty {
			return
		}
		var zero T
		rows, err := q.db.QueryContext(ctx, q.stmt, q.args...)
		if err != nil {
			yield(zero, fmt.Errorf("querying %s: %w", q.store, err))
			return
		}
		defer rows.Close()

		var n int
		defer func() { metrics.RecordsStreamed.WithLabelValues(q.store).Add(float64(n)) }()
		for rows.Next() {
			row, err := scanRow(rows)
			if err != nil {
				yield(zero, err)
				return
			}
			rec, err := q.decode(row)
			if err != nil {
				yield(zero, err)
				return
			}
			n++
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, fmt.Errorf("reading %s rows: %w", q.store, err))
		}
	}
}

// Collect materializes all records.
func (q *Query[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for rec, err := range q.All(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// First returns the first record, if any.
func (q *Query[T]) First(ctx context.Context) (T, bool, error) {
	for rec, err := range q.All(ctx) {
		if err != nil {
			var zero T
			return zero, false, err
		}
		return rec, true, nil
	}
	var zero T
	return zero, false, nil
}

func scanRow(rows *sql.Rows) (model.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scanning row: %w", err)
	}
	row := make(model.Row, len(cols))
	for i, c := range cols {
		if values[i] != nil {
			row[c] = values[i]
		}
	}
	return row, nil
}
