// Package tradb reads and writes transient waveform files.
package tradb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/ae-archive/vae/internal/cache"
	"github.com/ae-archive/vae/internal/codec"
	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/store"
)

const (
	dataView = "view_tr_data"
	indexCol = "TRAI"

	// DefaultListenBuffer is smaller than for pridb since rows carry blobs.
	DefaultListenBuffer = 100
)

// Options configures Open.
type Options struct {
	Store store.Options
	// Format is used for new blobs. Existing blobs carry their own format.
	Format codec.Format
	// Codec defaults to a codec with FLAC enabled.
	Codec *codec.Codec
	// AxisCacheSize bounds the number of cached time axes.
	AxisCacheSize int
}

// Database is an open tradb file.
type Database struct {
	*store.Database
	codec  *codec.Codec
	format codec.Format
	axes   *cache.TimeAxes
}

// Open opens a tradb file.
func Open(ctx context.Context, path string, opts Options) (*Database, error) {
	if opts.Codec == nil {
		opts.Codec = codec.New(codec.Options{FLAC: true})
	}
	if opts.Format == codec.FLAC && !opts.Codec.FLACAvailable() {
		return nil, &codec.CodecUnavailableError{Format: opts.Format}
	}
	db, err := store.Open(ctx, path, store.TraDB, opts.Store)
	if err != nil {
		return nil, err
	}
	return &Database{
		Database: db,
		codec:    opts.Codec,
		format:   opts.Format,
		axes:     cache.NewTimeAxes(opts.AxisCacheSize),
	}, nil
}

// Format returns the format used for new blobs.
func (d *Database) Format() codec.Format { return d.format }

func (d *Database) decoder(raw bool) func(model.Row) (model.TraRecord, error) {
	return func(row model.Row) (model.TraRecord, error) {
		return model.TraFromRow(row, d.codec, raw)
	}
}

// Records streams transient records ordered by TRAI. Filter.IDs selects
// TRAIs. With raw set, samples stay in ADC units.
func (d *Database) Records(ctx context.Context, f store.Filter, raw bool) (*store.Query[model.TraRecord], error) {
	cond, ok, err := d.Conditions(ctx, f, indexCol)
	if err != nil {
		return nil, err
	}
	if !ok {
		return store.EmptyQuery[model.TraRecord](), nil
	}
	stmt := fmt.Sprintf("SELECT * FROM %s %s ORDER BY %s", dataView, cond, indexCol)
	return store.NewQuery(d.Database, stmt, cond.Args(), d.decoder(raw)), nil
}

// ReadWave returns the transient with the given TRAI.
func (d *Database) ReadWave(ctx context.Context, trai int64, raw bool) (model.TraRecord, error) {
	q, err := d.Records(ctx, store.Filter{IDs: []int64{trai}}, raw)
	if err != nil {
		return model.TraRecord{}, err
	}
	tra, ok, err := q.First(ctx)
	if err != nil {
		return model.TraRecord{}, err
	}
	if !ok {
		return model.TraRecord{}, &TraNotFoundError{TRAI: trai}
	}
	return tra, nil
}

// TimeAxis returns the time of each sample of tra relative to the trigger.
// The slice is shared between records of the same shape and must not be
// modified.
func (d *Database) TimeAxis(tra model.TraRecord) []float32 {
	return d.axes.Get(cache.AxisKey{Samples: tra.Samples, SampleRate: tra.SampleRate, Pretrigger: tra.Pretrigger})
}

// Listen yields transients appended to the file.
func (d *Database) Listen(ctx context.Context, opts store.TailOptions, raw bool, where string, args ...any) (iter.Seq2[model.TraRecord, error], error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultListenBuffer
	}
	var cond store.Conditions
	cond.Where(where, args...)
	t, err := d.NewTailer(ctx, dataView, "SetID", cond, opts.Existing, opts.BufferSize)
	if err != nil {
		return nil, err
	}
	return store.Listen(ctx, t, opts, d.decoder(raw)), nil
}

// TimeSpan returns the start of the first transient and the end of the
// last one (its time plus its duration).
func (d *Database) TimeSpan(ctx context.Context) (tmin, tmax float64, ok bool, err error) {
	var first, last, samples, samplerate sql.NullInt64
	err = d.readRow(ctx, "SELECT Time FROM tr_data WHERE TRAI = (SELECT MIN(TRAI) FROM tr_data)").Scan(&first)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !first.Valid) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("reading first transient time: %w", err)
	}
	err = d.readRow(ctx,
		"SELECT Time, Samples, SampleRate FROM tr_data WHERE TRAI = (SELECT MAX(TRAI) FROM tr_data)").
		Scan(&last, &samples, &samplerate)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !last.Valid) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("reading last transient time: %w", err)
	}

	tb := float64(d.TimeBase())
	tmin = float64(first.Int64) / tb
	tmax = float64(last.Int64) / tb
	if samplerate.Int64 > 0 {
		tmax += float64(samples.Int64) / float64(samplerate.Int64)
	}
	return tmin, tmax, true, nil
}

// previousTRAI returns the last TRAI of channel before trai.
func (d *Database) previousTRAI(ctx context.Context, channel int, trai int64) (int64, bool, error) {
	var prev int64
	err := d.readRow(ctx,
		"SELECT TRAI FROM tr_data WHERE Chan = ? AND TRAI < ? ORDER BY TRAI DESC LIMIT 1", channel, trai).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("finding previous transient: %w", err)
	}
	return prev, true, nil
}

func (d *Database) readRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.Reader().QueryRowContext(ctx, query, args...)
}

// TraNotFoundError is returned by ReadWave for an unknown TRAI.
type TraNotFoundError struct {
	TRAI int64
}

func (e *TraNotFoundError) Error() string {
	return fmt.Sprintf("transient %d not found", e.TRAI)
}

func (e *TraNotFoundError) Is(target error) bool { return target == errs.ErrValidation }

// InconsistentSampleRateError reports a sample rate change inside a
// continuous read.
type InconsistentSampleRateError struct {
	TRAI int64
	Want int
	Got  int
}

func (e *InconsistentSampleRateError) Error() string {
	return fmt.Sprintf("transient %d has sample rate %d Hz, expected %d Hz", e.TRAI, e.Got, e.Want)
}

func (e *InconsistentSampleRateError) Is(target error) bool { return target == errs.ErrConsistency }
