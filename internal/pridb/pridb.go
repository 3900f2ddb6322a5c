// Package pridb reads and writes primary-data files: hits, status,
// parametric and marker records in a single time-ordered table.
package pridb

import (
	"context"
	"fmt"
	"iter"

	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/store"
)

const (
	dataView   = "view_ae_data"
	markerView = "view_ae_markers"
	indexCol   = "SetID"
)

// Database is an open pridb file.
type Database struct {
	*store.Database
}

// Open opens a pridb file.
func Open(ctx context.Context, path string, opts store.Options) (*Database, error) {
	db, err := store.Open(ctx, path, store.PriDB, opts)
	if err != nil {
		return nil, err
	}
	return &Database{Database: db}, nil
}

func query[T any](ctx context.Context, d *Database, view string, setTypes []model.SetType, f store.Filter, decode func(model.Row) (T, error)) (*store.Query[T], error) {
	cond, ok, err := d.Conditions(ctx, f, indexCol)
	if err != nil {
		return nil, err
	}
	if !ok {
		return store.EmptyQuery[T](), nil
	}
	if len(setTypes) > 0 {
		types := make([]int64, len(setTypes))
		for i, t := range setTypes {
			types[i] = int64(t)
		}
		cond.In("SetType", types)
	}
	stmt := fmt.Sprintf("SELECT * FROM %s %s ORDER BY %s", view, cond, indexCol)
	return store.NewQuery(d.Database, stmt, cond.Args(), decode), nil
}

// Hits streams hit records.
func (d *Database) Hits(ctx context.Context, f store.Filter) (*store.Query[model.HitRecord], error) {
	return query(ctx, d, dataView, []model.SetType{model.SetTypeHit}, f, model.HitFromRow)
}

// Status streams status records.
func (d *Database) Status(ctx context.Context, f store.Filter) (*store.Query[model.StatusRecord], error) {
	return query(ctx, d, dataView, []model.SetType{model.SetTypeStatus}, f, model.StatusFromRow)
}

// Parametric streams parametric records. Channel filters do not apply.
func (d *Database) Parametric(ctx context.Context, f store.Filter) (*store.Query[model.ParametricRecord], error) {
	f.Channels = nil
	return query(ctx, d, dataView, []model.SetType{model.SetTypeParametric}, f, model.ParametricFromRow)
}

// Markers streams label, datetime and section markers. Channel filters do
// not apply.
func (d *Database) Markers(ctx context.Context, f store.Filter) (*store.Query[model.MarkerRecord], error) {
	f.Channels = nil
	return query(ctx, d, markerView, nil, f, model.MarkerFromRow)
}

// Records streams all record types in SetID order.
func (d *Database) Records(ctx context.Context, f store.Filter) (*store.Query[model.Record], error) {
	return query(ctx, d, dataView, nil, f, model.RecordFromRow)
}

// Listen yields records appended to the file. See store.Listen for the
// termination rules.
func (d *Database) Listen(ctx context.Context, opts store.TailOptions, where string, args ...any) (iter.Seq2[model.Record, error], error) {
	var cond store.Conditions
	cond.Where(where, args...)
	t, err := d.NewTailer(ctx, dataView, indexCol, cond, opts.Existing, opts.BufferSize)
	if err != nil {
		return nil, err
	}
	return store.Listen(ctx, t, opts, model.RecordFromRow), nil
}
