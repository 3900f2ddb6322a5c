package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/model"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultBufferSize   = 1000
)

// TailOptions configures a live-tail listener.
type TailOptions struct {
	// Existing yields rows already present when the listener starts.
	Existing bool
	// Wait keeps polling even when no writer is active.
	Wait         bool
	BufferSize   int
	PollInterval time.Duration
}

func (o TailOptions) withDefaults() TailOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Tailer polls a table for rows with a key above its high-water mark.
type Tailer struct {
	d      *Database
	source string
	key    string
	cond   Conditions
	last   int64
	buffer int
}

// NewTailer creates a tailer over source (a table or view) ordered by key.
// cond filters rows in addition to the key bound. Unless existing is set,
// the mark starts at the current maximum key.
func (d *Database) NewTailer(ctx context.Context, source, key string, cond Conditions, existing bool, buffer int) (*Tailer, error) {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	t := &Tailer{d: d, source: source, key: key, cond: cond, buffer: buffer}
	if !existing {
		var max sql.NullInt64
		if err := d.reader.QueryRowContext(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", key, source)).Scan(&max); err != nil {
			return nil, fmt.Errorf("reading max %s: %w", key, err)
		}
		t.last = max.Int64
	}
	return t, nil
}

// LastID returns the high-water mark.
func (t *Tailer) LastID() int64 { return t.last }

// Poll returns up to the buffer size of rows above the mark, in key order.
// The mark is left alone; Mark advances it once a row has been consumed.
func (t *Tailer) Poll(ctx context.Context) ([]model.Row, error) {
	var cond Conditions
	cond.Compare(t.key, ">", t.last)
	if clause := t.cond.Clause(); clause != "" {
		cond.Where(clause, t.cond.Args()...)
	}
	stmt := fmt.Sprintf("SELECT * FROM %s %s ORDER BY %s LIMIT ?", t.source, cond, t.key)
	rows, err := t.d.reader.QueryContext(ctx, stmt, append(cond.Args(), t.buffer)...)
	if err != nil {
		return nil, fmt.Errorf("polling %s: %w", t.source, err)
	}
	defer rows.Close()

	var batch []model.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("polling %s: %w", t.source, err)
	}
	return batch, nil
}

// Mark advances the high-water mark to the key of row.
func (t *Tailer) Mark(row model.Row) error {
	id, ok, err := row.Int(t.key)
	if err != nil {
		return err
	}
	if !ok {
		return &model.MissingFieldError{Record: t.source, Field: t.key}
	}
	t.last = id
	return nil
}

// Listen yields decoded rows from t as they appear. The mark follows the
// last yielded row, so ranging the sequence again after an early break
// resumes with the next row. On an empty poll it returns if opts.Wait is
// unset and the file is offline; otherwise it sleeps for the poll interval.
// Cancelling ctx yields ctx.Err() and stops.
func Listen[T any](ctx context.Context, t *Tailer, opts TailOptions, decode func(model.Row) (T, error)) iter.Seq2[T, error] {
	opts = opts.withDefaults()
	store := t.d.kind.Name
	return func(yield func(T, error) bool) {
		var zero T
		timer := time.NewTimer(0)
		defer timer.Stop()
		<-timer.C

		for {
			batch, err := t.Poll(ctx)
			if err != nil {
				metrics.TailPolls.WithLabelValues(store, "error").Inc()
				yield(zero, err)
				return
			}
			if len(batch) > 0 {
				metrics.TailPolls.WithLabelValues(store, "rows").Inc()
			}
			for _, row := range batch {
				rec, err := decode(row)
				if err != nil {
					yield(zero, err)
					return
				}
				if err := t.Mark(row); err != nil {
					yield(zero, err)
					return
				}
				metrics.RecordsStreamed.WithLabelValues(store).Inc()
				if !yield(rec, nil) {
					return
				}
			}
			if len(batch) > 0 {
				continue
			}

			metrics.TailPolls.WithLabelValues(store, "empty").Inc()
			if !opts.Wait {
				status, err := t.d.FileStatus(ctx)
				if err != nil {
					yield(zero, err)
					return
				}
				if status == FileStatusOffline {
					return
				}
			}

			timer.Reset(opts.PollInterval)
			select {
			case <-ctx.Done():
				yield(zero, ctx.Err())
				return
			case <-timer.C:
			}
		}
	}
}
