package pridb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t testing.TB) *Database {
	t.Helper()
	ctx := context.Background()
	d, err := Open(ctx, filepath.Join(t.TempDir(), "test.pridb"), store.Options{Mode: store.ModeReadWriteCreate})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	require.NoError(t, d.InsertParameter(ctx, map[string]any{
		"ID": int64(1), "ADC_µV": 1.0, "ADC_TE": 1.0, "ADC_SS": 1.0, "PA0_mV": 2.0,
	}))
	return d
}

func ptr[T any](v T) *T { return &v }

func testHit(t float64, ch int) model.HitRecord {
	return model.HitRecord{
		Time:           t,
		Channel:        ch,
		ParamID:        1,
		Threshold:      ptr(0.001),
		Amplitude:      0.5,
		RiseTime:       ptr(0.0001),
		Duration:       0.001,
		Energy:         20,
		SignalStrength: ptr(300.0),
		RMS:            0.0001,
		Counts:         ptr(int64(12)),
		TRAI:           ptr(int64(1)),
	}
}

func collect[T any](t *testing.T, q *store.Query[T]) []T {
	t.Helper()
	recs, err := q.Collect(context.Background())
	require.NoError(t, err)
	return recs
}

func TestWriteHit_RoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	id, err := d.WriteHit(ctx, testHit(1.5, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	q, err := d.Hits(ctx, store.Filter{})
	require.NoError(t, err)
	hits := collect(t, q)
	require.Len(t, hits, 1)

	h := hits[0]
	assert.Equal(t, int64(1), h.SetID)
	assert.InDelta(t, 1.5, h.Time, 1e-9)
	assert.Equal(t, 3, h.Channel)
	assert.InDelta(t, 0.001, *h.Threshold, 1e-9)
	assert.InDelta(t, 0.5, h.Amplitude, 1e-9)
	assert.InDelta(t, 0.0001, *h.RiseTime, 1e-9)
	assert.InDelta(t, 0.001, h.Duration, 1e-9)
	assert.InDelta(t, 20, h.Energy, 1e-9)
	assert.InDelta(t, 300, *h.SignalStrength, 1e-9)
	assert.InDelta(t, 0.0001, h.RMS, 1e-8)
	assert.Equal(t, int64(12), *h.Counts)
	assert.Equal(t, int64(1), *h.TRAI)
	assert.Nil(t, h.CascadeHits)

	info, err := d.GlobalInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info["ValidSets"])
	assert.Equal(t, int64(1), info["TRAI"])
}

func TestWriteHit_OptionalFieldsNull(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	hit := testHit(0, 1)
	hit.Threshold = nil
	hit.SignalStrength = nil
	hit.TRAI = nil
	_, err := d.WriteHit(ctx, hit)
	require.NoError(t, err)

	q, err := d.Hits(ctx, store.Filter{})
	require.NoError(t, err)
	got := collect(t, q)[0]
	assert.Nil(t, got.Threshold)
	assert.Nil(t, got.SignalStrength)
	assert.Nil(t, got.TRAI)
}

func TestWriteHit_UnknownParameter(t *testing.T) {
	d := newTestDB(t)
	hit := testHit(0, 1)
	hit.ParamID = 7
	_, err := d.WriteHit(context.Background(), hit)
	var unknown *store.UnknownParameterError
	assert.ErrorAs(t, err, &unknown)
}

func TestWrite_MissingScaleFactor(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	// A spotWave-like parameter set: no energy or signal-strength factors.
	require.NoError(t, d.InsertParameter(ctx, map[string]any{"ID": int64(2), "ADC_µV": 1.0}))

	hit := testHit(0, 1)
	hit.ParamID = 2
	hit.SignalStrength = nil
	_, err := d.WriteHit(ctx, hit)
	var missing *MissingScaleError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ADC_TE", missing.Factor)
	assert.Equal(t, int64(2), missing.ParamID)
	assert.ErrorIs(t, err, errs.ErrConsistency)

	_, err = d.WriteStatus(ctx, model.StatusRecord{Time: 0, Channel: 1, ParamID: 2, Energy: 1})
	assert.ErrorAs(t, err, &missing)

	require.NoError(t, d.InsertParameter(ctx, map[string]any{"ID": int64(3), "ADC_µV": 1.0, "ADC_TE": 1.0}))
	hit.ParamID = 3
	_, err = d.WriteHit(ctx, hit)
	require.NoError(t, err, "signal strength absent, so ADC_SS is not needed")

	hit.Time = 1
	hit.SignalStrength = ptr(10.0)
	_, err = d.WriteHit(ctx, hit)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ADC_SS", missing.Factor)

	hit.SignalStrength = nil
	hit.CascadeSignalStrength = ptr(5.0)
	_, err = d.WriteHit(ctx, hit)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ADC_SS", missing.Factor)

	n, err := d.Rows(ctx, "ae_data")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "failed writes leave no rows")
}

func TestWrite_MissingADCMicroVolts(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.InsertParameter(ctx, map[string]any{"ID": int64(4), "ADC_TE": 1.0}))

	hit := testHit(0, 1)
	hit.ParamID = 4
	_, err := d.WriteHit(ctx, hit)
	var missing *MissingScaleError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ADC_µV", missing.Factor)
}

func TestWriteBatch_Monotonic(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.WriteHit(ctx, testHit(2, 1))
	require.NoError(t, err)

	_, err = d.WriteHit(ctx, testHit(1, 1))
	var nonMono *store.NonMonotonicTimeError
	require.ErrorAs(t, err, &nonMono)
	assert.ErrorIs(t, err, errs.ErrValidation)

	// Equal time on another channel is fine.
	_, err = d.WriteHit(ctx, testHit(2, 2))
	assert.NoError(t, err)

	_, err = d.WriteBatch(ctx, []model.Record{testHit(3, 1), testHit(2.5, 1)})
	assert.ErrorIs(t, err, errs.ErrValidation)

	n, err := d.Rows(ctx, "ae_data")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func writeMixed(t *testing.T, d *Database) {
	t.Helper()
	recs := []model.Record{
		model.MarkerRecord{Time: 0, Kind: model.SetTypeDatetime, Data: "2026-10-17 10:00:00"},
		model.MarkerRecord{Time: 0, Kind: model.SetTypeSection},
		model.ParametricRecord{Time: 0.5, ParamID: 1, PCTD: ptr(int64(4)), PA: [8]*float64{ptr(0.25)}},
		testHit(1, 1),
		model.StatusRecord{Time: 1.5, Channel: 1, ParamID: 1, Threshold: ptr(0.001), Energy: 1, RMS: 0.0001},
		testHit(2, 2),
		model.MarkerRecord{Time: 3, Kind: model.SetTypeLabel, Number: 1, Data: "crack"},
		testHit(4, 1),
	}
	_, err := d.WriteBatch(context.Background(), recs)
	require.NoError(t, err)
}

func TestRecords_Dispatch(t *testing.T) {
	d := newTestDB(t)
	writeMixed(t, d)

	q, err := d.Records(context.Background(), store.Filter{})
	require.NoError(t, err)
	recs := collect(t, q)
	require.Len(t, recs, 8)

	types := make([]model.SetType, len(recs))
	for i, r := range recs {
		types[i] = r.Type()
	}
	assert.Equal(t, []model.SetType{
		model.SetTypeDatetime, model.SetTypeSection, model.SetTypeParametric, model.SetTypeHit,
		model.SetTypeStatus, model.SetTypeHit, model.SetTypeLabel, model.SetTypeHit,
	}, types)

	label := recs[6].(model.MarkerRecord)
	assert.Equal(t, int64(1), label.Number)
	assert.Equal(t, "crack", label.Data)

	par := recs[2].(model.ParametricRecord)
	assert.InDelta(t, 0.25, *par.PA[0], 1e-9)
	assert.Nil(t, par.PA[1])
	assert.Equal(t, int64(4), *par.PCTD)
}

func TestQueries_Filters(t *testing.T) {
	d := newTestDB(t)
	writeMixed(t, d)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter store.Filter
		want   []int64
	}{
		{"all", store.Filter{}, []int64{4, 6, 8}},
		{"channel", store.Filter{Channels: []int{1}}, []int64{4, 8}},
		{"time start", store.Filter{TimeStart: ptr(2.0)}, []int64{6, 8}},
		{"time stop", store.Filter{TimeStop: ptr(2.0)}, []int64{4}},
		{"window", store.Filter{TimeStart: ptr(1.0), TimeStop: ptr(4.0)}, []int64{4, 6}},
		{"empty window", store.Filter{TimeStart: ptr(5.0)}, nil},
		{"set id", store.Filter{IDs: []int64{6, 7}}, []int64{6}},
		{"where", store.Filter{Where: "Chan = ? AND Time > ?", WhereArgs: []any{1, 2}}, []int64{8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := d.Hits(ctx, tt.filter)
			require.NoError(t, err)

			n, err := q.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), n)

			var ids []int64
			for h, err := range q.All(ctx) {
				require.NoError(t, err)
				ids = append(ids, h.SetID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestQuery_Restartable(t *testing.T) {
	d := newTestDB(t)
	writeMixed(t, d)

	q, err := d.Markers(context.Background(), store.Filter{Channels: []int{1}})
	require.NoError(t, err)
	first := collect(t, q)
	second := collect(t, q)
	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestStatusAndParametric(t *testing.T) {
	d := newTestDB(t)
	writeMixed(t, d)
	ctx := context.Background()

	sq, err := d.Status(ctx, store.Filter{})
	require.NoError(t, err)
	status := collect(t, sq)
	require.Len(t, status, 1)
	assert.InDelta(t, 0.001, *status[0].Threshold, 1e-9)
	assert.Nil(t, status[0].SignalStrength)

	pq, err := d.Parametric(ctx, store.Filter{TimeStop: ptr(1.0)})
	require.NoError(t, err)
	assert.Len(t, collect(t, pq), 1)
}

func TestListen(t *testing.T) {
	d := newTestDB(t)
	writeMixed(t, d)
	ctx := context.Background()

	seq, err := d.Listen(ctx, store.TailOptions{Existing: true}, "")
	require.NoError(t, err)
	var n int
	for _, err := range seq {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 8, n)

	seq, err = d.Listen(ctx, store.TailOptions{}, "")
	require.NoError(t, err)
	n = 0
	for range seq {
		n++
	}
	assert.Zero(t, n)

	seq, err = d.Listen(ctx, store.TailOptions{Existing: true}, "SetType = ?", int(model.SetTypeHit))
	require.NoError(t, err)
	n = 0
	for rec, err := range seq {
		require.NoError(t, err)
		assert.IsType(t, model.HitRecord{}, rec)
		n++
	}
	assert.Equal(t, 3, n)
}

func TestWriteMarker_InvalidKind(t *testing.T) {
	d := newTestDB(t)
	_, err := d.WriteMarker(context.Background(), model.MarkerRecord{Kind: model.SetTypeHit})
	assert.ErrorIs(t, err, errs.ErrValidation)
}
