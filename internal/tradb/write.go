package tradb

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/store"
)

// statusWritten flags rows written by this package.
const statusWritten = 32768

// Write appends a transient and returns its SetID. A zero TRAI is replaced
// by the next free index.
func (d *Database) Write(ctx context.Context, tra model.TraRecord) (int64, error) {
	ids, err := d.WriteBatch(ctx, []model.TraRecord{tra})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// WriteBatch appends transients in one transaction and returns their
// SetIDs. Times must not decrease.
func (d *Database) WriteBatch(ctx context.Context, tras []model.TraRecord) ([]int64, error) {
	rows := make([]model.Row, len(tras))
	for i, tra := range tras {
		row, err := d.toRow(ctx, tra)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}

	ids := make([]int64, 0, len(tras))
	err := d.Tx(ctx, func(tx *sql.Tx) error {
		for i, tra := range tras {
			if err := d.CheckMonotonic(ctx, tx, tra.Time); err != nil {
				return err
			}
			if tra.TRAI == 0 {
				var next int64
				if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(TRAI), 0) + 1 FROM tr_data").Scan(&next); err != nil {
					return fmt.Errorf("assigning TRAI: %w", err)
				}
				rows[i]["TRAI"] = next
			}
			id, err := store.InsertRow(ctx, tx, store.TraDB.DataTable(), rows[i])
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return d.UpdateGlobalInfo(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordsWritten.WithLabelValues(store.TraDB.Name).Add(float64(len(ids)))
	return ids, nil
}

func (d *Database) toRow(ctx context.Context, tra model.TraRecord) (model.Row, error) {
	p, err := d.Parameter(ctx, tra.ParamID)
	if err != nil {
		return nil, err
	}
	adcMicroVolts, _ := p["ADC_µV"].(float64)
	trMilliVolts, _ := p["TR_mV"].(float64)
	if adcMicroVolts <= 0 || trMilliVolts <= 0 {
		return nil, fmt.Errorf("%w: parameter %d needs ADC_µV and TR_mV", errs.ErrConsistency, tra.ParamID)
	}

	if tra.Samples == 0 {
		tra.Samples = tra.Len()
	}
	if tra.Samples != tra.Len() {
		return nil, fmt.Errorf("%w: transient declares %d samples, data holds %d",
			errs.ErrValidation, tra.Samples, tra.Len())
	}

	var blob []byte
	if tra.Raw {
		blob, err = d.codec.EncodeRaw(tra.RawData, d.format)
	} else {
		blob, err = d.codec.Encode(tra.Data, d.format, trMilliVolts)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding transient: %w", err)
	}

	row := model.Row{
		"Time":       d.Ticks(tra.Time),
		"Chan":       tra.Channel,
		"Status":     statusWritten,
		"ParamID":    tra.ParamID,
		"Pretrigger": tra.Pretrigger,
		"Thr":        int64(math.Round(tra.Threshold * 1e6 / adcMicroVolts)),
		"SampleRate": tra.SampleRate,
		"Samples":    tra.Samples,
		"DataFormat": int(d.format),
		"Data":       blob,
		"RMS":        nil,
	}
	if tra.TRAI != 0 {
		row["TRAI"] = tra.TRAI
	}
	if tra.RMS != nil {
		row["RMS"] = int64(math.Round(*tra.RMS * 1e6 / adcMicroVolts))
	}
	return row, nil
}
