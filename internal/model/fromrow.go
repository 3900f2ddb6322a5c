package model

import (
	"fmt"
	"strconv"

	"github.com/ae-archive/vae/internal/codec"
	"github.com/ae-archive/vae/internal/errs"
)

// Stored view columns are in µV and µs.
const micro = 1e6

func microToUnit(v *float64) *float64 {
	if v == nil {
		return nil
	}
	x := *v / micro
	return &x
}

// HitFromRow builds a HitRecord from a view_ae_data row.
func HitFromRow(row Row) (HitRecord, error) {
	rr := rowReader{record: "hit", row: row}
	rec := HitRecord{
		SetID:          rr.int("SetID"),
		Time:           rr.float("Time"),
		Channel:        int(rr.int("Chan")),
		ParamID:        rr.int("ParamID"),
		Threshold:      microToUnit(rr.optFloat("Thr")),
		Amplitude:      rr.float("Amp") / micro,
		RiseTime:       microToUnit(rr.optFloat("RiseT")),
		Duration:       rr.float("Dur") / micro,
		Energy:         rr.float("Eny"),
		SignalStrength: rr.optFloat("SS"),
		RMS:            rr.float("RMS") / micro,
		Counts:         rr.optInt("Counts"),
		TRAI:           rr.optInt("TRAI"),

		CascadeHits:           rr.optInt("CHits"),
		CascadeCounts:         rr.optInt("CCnt"),
		CascadeEnergy:         rr.optFloat("CEny"),
		CascadeSignalStrength: rr.optFloat("CSS"),
	}
	return rec, rr.err
}

// MarkerFromRow builds a MarkerRecord from a view_ae_markers row.
func MarkerFromRow(row Row) (MarkerRecord, error) {
	rr := rowReader{record: "marker", row: row}
	rec := MarkerRecord{
		SetID:  rr.int("SetID"),
		Time:   rr.float("Time"),
		Kind:   SetType(rr.int("SetType")),
		Number: ptrOr(rr.optInt("Number"), 0),
		Data:   rr.str("Data"),
	}
	return rec, rr.err
}

// StatusFromRow builds a StatusRecord from a view_ae_data row.
func StatusFromRow(row Row) (StatusRecord, error) {
	rr := rowReader{record: "status", row: row}
	rec := StatusRecord{
		SetID:          rr.int("SetID"),
		Time:           rr.float("Time"),
		Channel:        int(rr.int("Chan")),
		ParamID:        rr.int("ParamID"),
		Threshold:      microToUnit(rr.optFloat("Thr")),
		Energy:         rr.float("Eny"),
		SignalStrength: rr.optFloat("SS"),
		RMS:            rr.float("RMS") / micro,
	}
	return rec, rr.err
}

// ParametricFromRow builds a ParametricRecord from a view_ae_data row.
func ParametricFromRow(row Row) (ParametricRecord, error) {
	rr := rowReader{record: "parametric", row: row}
	rec := ParametricRecord{
		SetID:   rr.int("SetID"),
		Time:    rr.float("Time"),
		ParamID: rr.int("ParamID"),
		PCTD:    rr.optInt("PCTD"),
		PCTA:    rr.optInt("PCTA"),
	}
	for i := range rec.PA {
		rec.PA[i] = rr.optFloat("PA" + strconv.Itoa(i))
	}
	return rec, rr.err
}

// RecordFromRow dispatches on the SetType column of a primary-data row.
func RecordFromRow(row Row) (Record, error) {
	n, ok, err := row.Int("SetType")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &MissingFieldError{Record: "record", Field: "SetType"}
	}
	switch t := SetType(n); {
	case t == SetTypeHit:
		return HitFromRow(row)
	case t == SetTypeStatus:
		return StatusFromRow(row)
	case t == SetTypeParametric:
		return ParametricFromRow(row)
	case t.IsMarker():
		return MarkerFromRow(row)
	default:
		return nil, fmt.Errorf("%w: unknown set type %d", errs.ErrConsistency, n)
	}
}

// TraFromRow builds a TraRecord from a view_tr_data row, decoding the
// waveform blob with c. With raw set, samples stay in ADC units.
func TraFromRow(row Row, c *codec.Codec, raw bool) (TraRecord, error) {
	rr := rowReader{record: "tra", row: row}
	rec := TraRecord{
		SetID:      rr.int("SetID"),
		Time:       rr.float("Time"),
		Channel:    int(rr.int("Chan")),
		ParamID:    rr.int("ParamID"),
		Pretrigger: int(rr.int("Pretrigger")),
		Threshold:  rr.float("Thr") / micro,
		SampleRate: int(rr.int("SampleRate")),
		Samples:    int(rr.int("Samples")),
		TRAI:       rr.int("TRAI"),
		RMS:        microToUnit(rr.optFloat("RMS")),
		Raw:        raw,
	}
	format := codec.Format(rr.int("DataFormat"))
	blob := rr.bytes("Data")
	var factor float64
	if !raw {
		factor = rr.float("TR_mV")
	}
	if rr.err != nil {
		return TraRecord{}, rr.err
	}

	var err error
	if raw {
		rec.RawData, err = c.DecodeRaw(blob, format)
	} else {
		rec.Data, err = c.Decode(blob, format, factor)
	}
	if err != nil {
		return TraRecord{}, fmt.Errorf("decoding transient %d: %w", rec.TRAI, err)
	}
	if rec.Len() != rec.Samples {
		return TraRecord{}, fmt.Errorf("%w: transient %d declares %d samples, blob holds %d",
			errs.ErrConsistency, rec.TRAI, rec.Samples, rec.Len())
	}
	return rec, nil
}

// FeatureFromRow builds a FeatureRecord from a trf_data row. Every column
// other than TRAI becomes a feature; NULL columns are omitted.
func FeatureFromRow(row Row) (FeatureRecord, error) {
	rr := rowReader{record: "feature", row: row}
	rec := FeatureRecord{
		TRAI:     rr.int("TRAI"),
		Features: make(map[string]float64, len(row)),
	}
	if rr.err != nil {
		return FeatureRecord{}, rr.err
	}
	for k, v := range row {
		if k == "TRAI" || v == nil {
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			return FeatureRecord{}, fmt.Errorf("feature %s: %w", k, err)
		}
		rec.Features[k] = f
	}
	return rec, nil
}

func ptrOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
