package pridb

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/store"
)

// RMS values are stored in units of ADC_µV * 0.0065536.
const rmsFactor = 0.0065536

// WriteHit appends a hit and returns its SetID. The record's SetID is
// ignored.
func (d *Database) WriteHit(ctx context.Context, hit model.HitRecord) (int64, error) {
	return d.writeOne(ctx, hit)
}

// WriteStatus appends a status record and returns its SetID.
func (d *Database) WriteStatus(ctx context.Context, status model.StatusRecord) (int64, error) {
	return d.writeOne(ctx, status)
}

// WriteParametric appends a parametric record and returns its SetID.
func (d *Database) WriteParametric(ctx context.Context, p model.ParametricRecord) (int64, error) {
	return d.writeOne(ctx, p)
}

// WriteMarker appends a marker and returns its SetID.
func (d *Database) WriteMarker(ctx context.Context, m model.MarkerRecord) (int64, error) {
	return d.writeOne(ctx, m)
}

func (d *Database) writeOne(ctx context.Context, rec model.Record) (int64, error) {
	ids, err := d.WriteBatch(ctx, []model.Record{rec})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// WriteBatch appends records in one transaction. Times must not decrease,
// neither against the stored data nor within the batch. On any error the
// whole batch is rolled back.
func (d *Database) WriteBatch(ctx context.Context, recs []model.Record) ([]int64, error) {
	rows := make([]model.Row, len(recs))
	for i, rec := range recs {
		row, err := d.toRow(ctx, rec)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}

	ids := make([]int64, 0, len(recs))
	err := d.Tx(ctx, func(tx *sql.Tx) error {
		for i, rec := range recs {
			if err := d.CheckMonotonic(ctx, tx, rec.RecordTime()); err != nil {
				return err
			}
			id, err := store.InsertRow(ctx, tx, store.PriDB.DataTable(), rows[i])
			if err != nil {
				return err
			}
			if m, ok := rec.(model.MarkerRecord); ok {
				if _, err := store.InsertRow(ctx, tx, "ae_markers", markerRow(id, m)); err != nil {
					return err
				}
			}
			ids = append(ids, id)
		}
		return d.UpdateGlobalInfo(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordsWritten.WithLabelValues(store.PriDB.Name).Add(float64(len(ids)))
	return ids, nil
}

func (d *Database) toRow(ctx context.Context, rec model.Record) (model.Row, error) {
	switch r := rec.(type) {
	case model.HitRecord:
		return d.hitRow(ctx, r)
	case model.StatusRecord:
		return d.statusRow(ctx, r)
	case model.ParametricRecord:
		return d.parametricRow(ctx, r)
	case model.MarkerRecord:
		if !r.Kind.IsMarker() {
			return nil, fmt.Errorf("%w: %s is not a marker type", errs.ErrValidation, r.Kind)
		}
		return model.Row{"SetType": int64(r.Kind), "Time": d.Ticks(r.Time)}, nil
	default:
		return nil, fmt.Errorf("%w: cannot write %T to pridb", errs.ErrValidation, rec)
	}
}

// MissingScaleError reports a parameter set that lacks the factor needed
// to store a supplied value.
type MissingScaleError struct {
	ParamID int64
	Factor  string
}

func (e *MissingScaleError) Error() string {
	return fmt.Sprintf("parameter %d has no %s", e.ParamID, e.Factor)
}

func (e *MissingScaleError) Is(target error) bool { return target == errs.ErrConsistency }

// scales holds the unit conversion factors of one parameter set and the
// first missing factor a row asked for.
type scales struct {
	id      int64
	factors map[string]float64
	err     error
}

func (d *Database) scales(ctx context.Context, id int64) (*scales, error) {
	p, err := d.Parameter(ctx, id)
	if err != nil {
		return nil, err
	}
	s := &scales{id: id, factors: make(map[string]float64, len(p))}
	for key, v := range p {
		switch v := v.(type) {
		case float64:
			s.factors[key] = v
		case int64:
			s.factors[key] = float64(v)
		}
	}
	// Parametric inputs without a factor are stored in mV.
	for i := range model.NumParametricInputs {
		key := "PA" + strconv.Itoa(i) + "_mV"
		if _, ok := s.factors[key]; !ok {
			s.factors[key] = 1
		}
	}
	if s.factors["ADC_µV"] <= 0 {
		return nil, &MissingScaleError{ParamID: id, Factor: "ADC_µV"}
	}
	return s, nil
}

func (s *scales) adcMicroVolts() float64 { return s.factors["ADC_µV"] }

// scaled divides v by the named factor and rounds. A nil value is stored as
// NULL; a value whose factor is missing or zero fails the row.
func (s *scales) scaled(v *float64, mul float64, factor string) any {
	if v == nil {
		return nil
	}
	f := s.factors[factor]
	if f == 0 {
		if s.err == nil {
			s.err = &MissingScaleError{ParamID: s.id, Factor: factor}
		}
		return nil
	}
	return round(*v * mul / f)
}

func round(v float64) int64 { return int64(math.Round(v)) }

func optRound(v *float64, mul float64) any {
	if v == nil {
		return nil
	}
	return round(*v * mul)
}

func optInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func (d *Database) hitRow(ctx context.Context, h model.HitRecord) (model.Row, error) {
	s, err := d.scales(ctx, h.ParamID)
	if err != nil {
		return nil, err
	}
	tb := float64(d.TimeBase())
	row := model.Row{
		"SetType": int64(model.SetTypeHit),
		"Time":    d.Ticks(h.Time),
		"Chan":    h.Channel,
		"Status":  0,
		"ParamID": h.ParamID,
		"Thr":     s.scaled(h.Threshold, 1e6, "ADC_µV"),
		"Amp":     round(h.Amplitude * 1e6 / s.adcMicroVolts()),
		"RiseT":   optRound(h.RiseTime, tb),
		"Dur":     round(h.Duration * tb),
		"Eny":     s.scaled(&h.Energy, 1, "ADC_TE"),
		"SS":      s.scaled(h.SignalStrength, 1, "ADC_SS"),
		"RMS":     round(h.RMS * 1e6 / s.adcMicroVolts() / rmsFactor),
		"Counts":  optInt(h.Counts),
		"TRAI":    optInt(h.TRAI),
		"CHits":   optInt(h.CascadeHits),
		"CCnt":    optInt(h.CascadeCounts),
		"CEny":    s.scaled(h.CascadeEnergy, 1, "ADC_TE"),
		"CSS":     s.scaled(h.CascadeSignalStrength, 1, "ADC_SS"),
	}
	return row, s.err
}

func (d *Database) statusRow(ctx context.Context, st model.StatusRecord) (model.Row, error) {
	s, err := d.scales(ctx, st.ParamID)
	if err != nil {
		return nil, err
	}
	row := model.Row{
		"SetType": int64(model.SetTypeStatus),
		"Time":    d.Ticks(st.Time),
		"Chan":    st.Channel,
		"Status":  0,
		"ParamID": st.ParamID,
		"Thr":     s.scaled(st.Threshold, 1e6, "ADC_µV"),
		"Eny":     s.scaled(&st.Energy, 1, "ADC_TE"),
		"SS":      s.scaled(st.SignalStrength, 1, "ADC_SS"),
		"RMS":     round(st.RMS * 1e6 / s.adcMicroVolts() / rmsFactor),
	}
	return row, s.err
}

func (d *Database) parametricRow(ctx context.Context, p model.ParametricRecord) (model.Row, error) {
	s, err := d.scales(ctx, p.ParamID)
	if err != nil {
		return nil, err
	}
	row := model.Row{
		"SetType": int64(model.SetTypeParametric),
		"Time":    d.Ticks(p.Time),
		"Status":  0,
		"ParamID": p.ParamID,
		"PCTD":    optInt(p.PCTD),
		"PCTA":    optInt(p.PCTA),
	}
	for i, v := range p.PA {
		row["PA"+strconv.Itoa(i)] = s.scaled(v, 1e3, "PA"+strconv.Itoa(i)+"_mV")
	}
	return row, s.err
}

func markerRow(setID int64, m model.MarkerRecord) model.Row {
	row := model.Row{"SetID": setID, "Number": nil, "Data": m.Data}
	if m.Number != 0 {
		row["Number"] = m.Number
	}
	return row
}
