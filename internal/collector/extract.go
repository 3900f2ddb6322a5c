package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/features"
	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/store"
	"github.com/ae-archive/vae/internal/timepicker"
	"github.com/ae-archive/vae/internal/tradb"
	"github.com/ae-archive/vae/internal/trfdb"
)

// ArrivalField is the feature written by the arrival-time picker.
var ArrivalField = features.Field{Name: "ArrivalT", Unit: "[µs]", LongName: "Arrival time relative to trigger"}

const progressEvery = 1000

// ExtractOptions configures a feature-extraction run.
type ExtractOptions struct {
	Workers int
	// Threshold in volts, used for transients without a stored threshold.
	Threshold float64
	// Picker selects the arrival-time picker. Empty disables ArrivalT.
	Picker timepicker.Picker
	// Features restricts the written features. Empty writes all.
	Features []string
	// Channels restricts extraction to these channels. Empty means all.
	Channels []int
	Tail     store.TailOptions
}

// Extraction tails a transient store, computes features on a worker pool
// and upserts them into a feature store in arrival order.
type Extraction struct {
	src    *tradb.Database
	dst    *trfdb.Database
	pool   *WorkerPool
	opts   ExtractOptions
	fields []features.Field
	// compute turns a transient into its feature record on a pool worker.
	compute func(model.TraRecord) model.FeatureRecord
}

// NewExtraction validates opts and creates an extraction pipeline.
func NewExtraction(src *tradb.Database, dst *trfdb.Database, opts ExtractOptions) (*Extraction, error) {
	if dst.ReadOnly() {
		return nil, &store.ReadOnlyError{Path: dst.Path()}
	}
	if opts.Picker != "" {
		if _, ok := timepicker.Pick(opts.Picker, nil); !ok {
			return nil, fmt.Errorf("%w: unknown picker %q", errs.ErrValidation, opts.Picker)
		}
	}

	available := slices.Clone(features.Fields)
	if opts.Picker != "" {
		available = append(available, ArrivalField)
	}
	fields := available
	if len(opts.Features) > 0 {
		fields = nil
		for _, name := range opts.Features {
			i := slices.IndexFunc(available, func(f features.Field) bool { return f.Name == name })
			if i < 0 {
				return nil, fmt.Errorf("%w: unknown feature %q", errs.ErrValidation, name)
			}
			fields = append(fields, available[i])
		}
	}

	e := &Extraction{
		src:    src,
		dst:    dst,
		pool:   NewWorkerPool(opts.Workers),
		opts:   opts,
		fields: fields,
	}
	e.compute = e.extract
	return e, nil
}

func channelClause(channels []int) (string, []any) {
	if len(channels) == 0 {
		return "", nil
	}
	args := make([]any, len(channels))
	for i, ch := range channels {
		args[i] = ch
	}
	return "Chan IN (?" + strings.Repeat(", ?", len(channels)-1) + ")", args
}

// Fields returns the features this pipeline writes.
func (e *Extraction) Fields() []features.Field { return e.fields }

// Run processes transients until the source is exhausted (or, with
// Tail.Wait, until ctx is cancelled) and returns the number of written
// records. The feature store is marked active while running.
func (e *Extraction) Run(ctx context.Context) (int, error) {
	if err := e.dst.SetFileStatus(ctx, store.FileStatusActive); err != nil {
		return 0, err
	}
	defer func() {
		if err := e.dst.SetFileStatus(context.WithoutCancel(ctx), store.FileStatusOffline); err != nil {
			slog.Error("resetting feature store status", "error", err)
		}
	}()

	for _, f := range e.fields {
		err := e.dst.WriteFieldInfo(ctx, f.Name, map[string]string{"Unit": f.Unit, "LongName": f.LongName})
		if err != nil {
			return 0, fmt.Errorf("writing field info: %w", err)
		}
	}

	slog.Info("feature extraction started",
		"source", e.src.Path(), "target", e.dst.Path(), "features", len(e.fields), "follow", e.opts.Tail.Wait)

	g, gctx := errgroup.WithContext(ctx)
	pending := make(chan chan model.FeatureRecord, 2*cap(e.pool.sem))

	g.Go(func() error {
		defer close(pending)
		where, args := channelClause(e.opts.Channels)
		records, err := e.src.Listen(gctx, e.opts.Tail, false, where, args...)
		if err != nil {
			return err
		}
		for tra, err := range records {
			if err != nil {
				return err
			}
			res := make(chan model.FeatureRecord, 1)
			select {
			case pending <- res:
			case <-gctx.Done():
				return gctx.Err()
			}
			if err := e.pool.Submit(gctx, func() { res <- e.compute(tra) }); err != nil {
				return err
			}
		}
		return nil
	})

	var written int
	g.Go(func() error {
		for res := range pending {
			var rec model.FeatureRecord
			select {
			case rec = <-res:
			case <-gctx.Done():
				return gctx.Err()
			}
			if len(rec.Features) == 0 {
				continue
			}
			if _, err := e.dst.Write(gctx, rec); err != nil {
				return fmt.Errorf("writing features of TRAI %d: %w", rec.TRAI, err)
			}
			written++
			if written%progressEvery == 0 {
				slog.Debug("feature extraction progress", "written", written, "trai", rec.TRAI)
			}
		}
		return nil
	})

	err := g.Wait()
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	slog.Info("feature extraction finished", "written", written, "error", err)
	return written, err
}

func (e *Extraction) extract(tra model.TraRecord) model.FeatureRecord {
	threshold := tra.Threshold
	if threshold <= 0 {
		threshold = e.opts.Threshold
	}
	all := features.Extract(tra, threshold)
	if e.opts.Picker != "" && tra.SampleRate > 0 {
		if idx, ok := timepicker.Pick(e.opts.Picker, tra.Data); ok {
			all.Features[ArrivalField.Name] = float64(idx-tra.Pretrigger) / float64(tra.SampleRate) * 1e6
		}
	}

	rec := model.FeatureRecord{TRAI: tra.TRAI, Features: make(map[string]float64, len(e.fields))}
	for _, f := range e.fields {
		if v, ok := all.Features[f.Name]; ok {
			rec.Features[f.Name] = v
		}
	}
	return rec
}
