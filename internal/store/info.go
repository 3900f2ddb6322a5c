package store

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/model"
)

// Tables lists all tables and views in the file.
func (d *Database) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.reader.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Columns lists the column names of a table or view.
func (d *Database) Columns(ctx context.Context, table string) ([]string, error) {
	return columns(ctx, d.reader, table)
}

func columns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Rows returns the number of rows in a table.
func (d *Database) Rows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := d.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return n, nil
}

// Channels returns the distinct channel numbers in the data table.
func (d *Database) Channels(ctx context.Context) ([]int, error) {
	rows, err := d.reader.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT Chan FROM %s WHERE Chan IS NOT NULL ORDER BY Chan", d.kind.DataTable()))
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	defer rows.Close()

	var chans []int
	for rows.Next() {
		var ch int
		if err := rows.Scan(&ch); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		chans = append(chans, ch)
	}
	return chans, rows.Err()
}

// GlobalInfo returns the key-value metadata table. Values are parsed as
// int64, then float64, falling back to string.
func (d *Database) GlobalInfo(ctx context.Context) (map[string]any, error) {
	return globalInfo(ctx, d.reader, d.kind.GlobalInfoTable())
}

func globalInfo(ctx context.Context, q querier, table string) (map[string]any, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT Key, Value FROM %s", table))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	defer rows.Close()

	info := make(map[string]any)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning global info: %w", err)
		}
		info[key] = parseInfoValue(value)
	}
	return info, rows.Err()
}

func parseInfoValue(v sql.NullString) any {
	if !v.Valid {
		return nil
	}
	if i, err := strconv.ParseInt(v.String, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v.String, 64); err == nil {
		return f
	}
	return v.String
}

// FileStatus returns the writer-active flag.
func (d *Database) FileStatus(ctx context.Context) (FileStatus, error) {
	var v sql.NullString
	err := d.reader.QueryRowContext(ctx,
		fmt.Sprintf("SELECT Value FROM %s WHERE Key = 'FileStatus'", d.kind.GlobalInfoTable())).Scan(&v)
	if err == sql.ErrNoRows {
		return FileStatusOffline, nil
	}
	if err != nil {
		return FileStatusOffline, fmt.Errorf("reading file status: %w", err)
	}
	n, _ := parseInfoValue(v).(int64)
	return FileStatus(n), nil
}

// SetFileStatus marks a writer active, suspended or offline.
func (d *Database) SetFileStatus(ctx context.Context, status FileStatus) error {
	return d.Tx(ctx, func(tx *sql.Tx) error {
		return setGlobalInfo(ctx, tx, d.kind.GlobalInfoTable(), "FileStatus", strconv.Itoa(int(status)))
	})
}

func setGlobalInfo(ctx context.Context, q querier, table, key, value string) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (Key, Value) VALUES (?, ?) ON CONFLICT(Key) DO UPDATE SET Value = excluded.Value", table),
		key, value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// UpdateGlobalInfo recomputes the ValidSets and TRAI high-water marks
// within tx.
func (d *Database) UpdateGlobalInfo(ctx context.Context, tx *sql.Tx) error {
	table := d.kind.DataTable()
	cols, err := columns(ctx, tx, table)
	if err != nil {
		return err
	}

	counters := []struct{ key, column string }{
		{"ValidSets", "SetID"},
		{"TRAI", "TRAI"},
	}
	for _, c := range counters {
		if !slices.Contains(cols, c.column) {
			continue
		}
		var max sql.NullInt64
		if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", c.column, table)).Scan(&max); err != nil {
			return fmt.Errorf("computing %s: %w", c.key, err)
		}
		if err := setGlobalInfo(ctx, tx, d.kind.GlobalInfoTable(), c.key, strconv.FormatInt(max.Int64, 10)); err != nil {
			return err
		}
	}
	return nil
}

// FieldInfo returns per-column metadata keyed by field name.
func (d *Database) FieldInfo(ctx context.Context) (map[string]map[string]any, error) {
	rows, err := d.reader.QueryContext(ctx, "SELECT * FROM "+d.kind.FieldInfoTable())
	if err != nil {
		return nil, fmt.Errorf("reading field info: %w", err)
	}
	defer rows.Close()

	info := make(map[string]map[string]any)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		name, _ := row["field"].(string)
		delete(row, "field")
		info[name] = row
	}
	return info, rows.Err()
}

// WriteFieldInfo upserts metadata for one field, adding metadata columns
// as needed.
func (d *Database) WriteFieldInfo(ctx context.Context, field string, info map[string]string) error {
	if field == "" {
		return fmt.Errorf("%w: empty field name", errs.ErrValidation)
	}
	table := d.kind.FieldInfoTable()
	return d.Tx(ctx, func(tx *sql.Tx) error {
		keys := slices.Sorted(maps.Keys(info))
		if err := EnsureColumns(ctx, tx, table, keys, "TEXT"); err != nil {
			return err
		}
		row := model.Row{"field": field}
		for _, k := range keys {
			row[k] = info[k]
		}
		return upsert(ctx, tx, table, "field", row)
	})
}

// Parameter returns the params row for id, loading the table on first use.
func (d *Database) Parameter(ctx context.Context, id int64) (map[string]any, error) {
	if p, found, loaded := d.params.Get(id); loaded {
		if !found {
			return nil, &UnknownParameterError{ParamID: id}
		}
		return p, nil
	}
	table, err := d.Parameters(ctx)
	if err != nil {
		return nil, err
	}
	d.params.Load(table)
	p, ok := table[id]
	if !ok {
		return nil, &UnknownParameterError{ParamID: id}
	}
	return p, nil
}

// Parameters reads the full params table.
func (d *Database) Parameters(ctx context.Context) (map[int64]map[string]any, error) {
	rows, err := d.reader.QueryContext(ctx, "SELECT * FROM "+d.kind.ParamsTable())
	if err != nil {
		return nil, fmt.Errorf("reading parameters: %w", err)
	}
	defer rows.Close()

	table := make(map[int64]map[string]any)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		id, ok, err := row.Int("ID")
		if err != nil || !ok {
			return nil, fmt.Errorf("%w: parameter row without ID", errs.ErrConsistency)
		}
		table[id] = row
	}
	return table, rows.Err()
}

// InsertParameter writes a parameter set. Missing columns are added.
func (d *Database) InsertParameter(ctx context.Context, params map[string]any) error {
	if _, ok := params["ID"]; !ok {
		return &model.MissingFieldError{Record: "parameter", Field: "ID"}
	}
	table := d.kind.ParamsTable()
	err := d.Tx(ctx, func(tx *sql.Tx) error {
		return UpsertWithSchema(ctx, tx, table, "ID", model.Row(params), "REAL")
	})
	if err != nil {
		return err
	}
	d.params.Invalidate()
	return nil
}
