package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// TimeTolerance absorbs float rounding in the monotonic time check.
const TimeTolerance = 1e-9

// Ticks converts seconds to stored time ticks.
func (d *Database) Ticks(seconds float64) int64 {
	return int64(math.Round(seconds * float64(d.timeBase)))
}

// LastTime returns the time of the newest row in the data table, in seconds.
func (d *Database) LastTime(ctx context.Context, q querier) (float64, bool, error) {
	if q == nil {
		q = d.reader
	}
	var ticks sql.NullInt64
	err := q.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT Time FROM %s ORDER BY SetID DESC LIMIT 1", d.kind.DataTable())).Scan(&ticks)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading last time: %w", err)
	}
	if !ticks.Valid {
		return 0, false, nil
	}
	return float64(ticks.Int64) / float64(d.timeBase), true, nil
}

// CheckMonotonic fails with NonMonotonicTimeError when t is older than the
// newest stored row. Equal times are allowed.
func (d *Database) CheckMonotonic(ctx context.Context, q querier, t float64) error {
	last, ok, err := d.LastTime(ctx, q)
	if err != nil {
		return err
	}
	if ok && t+TimeTolerance < last {
		return &NonMonotonicTimeError{Time: t, Last: last}
	}
	return nil
}

// InsertRow inserts row into table and returns the new rowid. Nil values
// are stored as NULL.
func InsertRow(ctx context.Context, q querier, table string, row model.Row) (int64, error) {
	keys := slices.Sorted(maps.Keys(row))
	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = quoteIdent(k)
		marks[i] = "?"
		args[i] = row[k]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", table, err)
	}
	return res.LastInsertId()
}

// UpdateRow updates the row identified by row[key]. It returns the number of
// rows affected.
func UpdateRow(ctx context.Context, q querier, table, key string, row model.Row) (int64, error) {
	id, ok := row[key]
	if !ok {
		return 0, &model.MissingFieldError{Record: table, Field: key}
	}
	keys := slices.Sorted(maps.Keys(row))
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if k == key {
			continue
		}
		sets = append(sets, quoteIdent(k)+" = ?")
		args = append(args, row[k])
	}
	if len(sets) == 0 {
		return 0, nil
	}
	args = append(args, id)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdent(table), strings.Join(sets, ", "), quoteIdent(key))
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("updating %s: %w", table, err)
	}
	return res.RowsAffected()
}

// upsert inserts row, falling back to an update by key when the key
// already exists.
func upsert(ctx context.Context, q querier, table, key string, row model.Row) error {
	_, err := InsertRow(ctx, q, table, row)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return err
	}
	_, err = UpdateRow(ctx, q, table, key, row)
	return err
}

// UpsertWithSchema upserts row, adding missing columns of colType and
// retrying once when the table lacks a column.
func UpsertWithSchema(ctx context.Context, q querier, table, key string, row model.Row, colType string) error {
	err := upsert(ctx, q, table, key, row)
	if err == nil || !isMissingColumn(err) {
		return err
	}
	slog.Debug("extending schema", "table", table, "error", err)
	if err := EnsureColumns(ctx, q, table, slices.Sorted(maps.Keys(row)), colType); err != nil {
		return err
	}
	return upsert(ctx, q, table, key, row)
}

// EnsureColumns adds any of names missing from table with type colType.
func EnsureColumns(ctx context.Context, q querier, table string, names []string, colType string) error {
	existing, err := columns(ctx, q, table)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c)] = true
	}
	for _, name := range names {
		if have[strings.ToLower(name)] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(name), colType)
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("adding column %s to %s: %w", name, table, err)
		}
		have[strings.ToLower(name)] = true
		metrics.SchemaEvolutions.WithLabelValues(table).Inc()
		slog.Info("added column", "table", table, "column", name, "type", colType)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

func isMissingColumn(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no column named") || strings.Contains(msg, "no such column")
}
