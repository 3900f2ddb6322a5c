// Package trfdb reads and writes transient feature files. The column set
// grows as new feature names are written.
package trfdb

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/store"
)

const (
	dataTable  = "trf_data"
	keyCol     = "TRAI"
	featureCol = "REAL"
)

// Database is an open trfdb file.
type Database struct {
	*store.Database
}

// Open opens a trfdb file.
func Open(ctx context.Context, path string, opts store.Options) (*Database, error) {
	db, err := store.Open(ctx, path, store.TrfDB, opts)
	if err != nil {
		return nil, err
	}
	return &Database{Database: db}, nil
}

// Records streams feature records ordered by TRAI. An empty trais slice
// selects all.
func (d *Database) Records(trais []int64) *store.Query[model.FeatureRecord] {
	var cond store.Conditions
	cond.In(keyCol, trais)
	stmt := fmt.Sprintf("SELECT * FROM %s %s ORDER BY %s", dataTable, cond, keyCol)
	return store.NewQuery(d.Database, stmt, cond.Args(), model.FeatureFromRow)
}

// Get returns the features of one transient.
func (d *Database) Get(ctx context.Context, trai int64) (model.FeatureRecord, bool, error) {
	return d.Records([]int64{trai}).First(ctx)
}

// Write inserts or updates the features of rec.TRAI and returns the TRAI.
// Unknown feature names become new REAL columns.
func (d *Database) Write(ctx context.Context, rec model.FeatureRecord) (int64, error) {
	if err := d.WriteBatch(ctx, []model.FeatureRecord{rec}); err != nil {
		return 0, err
	}
	return rec.TRAI, nil
}

// WriteBatch writes several feature records in one transaction.
func (d *Database) WriteBatch(ctx context.Context, recs []model.FeatureRecord) error {
	rows := make([]model.Row, len(recs))
	for i, rec := range recs {
		row, err := toRow(rec)
		if err != nil {
			return err
		}
		rows[i] = row
	}
	err := d.Tx(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			if err := store.UpsertWithSchema(ctx, tx, dataTable, keyCol, row, featureCol); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordsWritten.WithLabelValues(store.TrfDB.Name).Add(float64(len(recs)))
	return nil
}

func toRow(rec model.FeatureRecord) (model.Row, error) {
	if rec.TRAI <= 0 {
		return nil, fmt.Errorf("%w: feature record needs a positive TRAI, got %d", errs.ErrValidation, rec.TRAI)
	}
	row := make(model.Row, len(rec.Features)+1)
	for name, v := range rec.Features {
		if strings.TrimSpace(name) == "" || strings.EqualFold(name, keyCol) {
			return nil, fmt.Errorf("%w: invalid feature name %q", errs.ErrValidation, name)
		}
		row[name] = v
	}
	row[keyCol] = rec.TRAI
	return row, nil
}

// Listen yields feature rows with a TRAI above the high-water mark. Updates
// of already seen TRAIs are not reported.
func (d *Database) Listen(ctx context.Context, opts store.TailOptions) (iter.Seq2[model.FeatureRecord, error], error) {
	t, err := d.NewTailer(ctx, dataTable, keyCol, store.Conditions{}, opts.Existing, opts.BufferSize)
	if err != nil {
		return nil, err
	}
	return store.Listen(ctx, t, opts, model.FeatureFromRow), nil
}
