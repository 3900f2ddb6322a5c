package tradb

import (
	"context"
	"math"

	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/store"
)

// Wave is a continuous signal of one channel. Data holds volts, or RawData
// holds ADC samples when read raw.
type Wave struct {
	Data       []float32
	RawData    []int16
	Raw        bool
	SampleRate int
	// TimeStart is the time of the first sample in seconds.
	TimeStart float64
}

// Len returns the number of samples.
func (w Wave) Len() int {
	if w.Raw {
		return len(w.RawData)
	}
	return len(w.Data)
}

// TimeAxis returns the time of each sample in seconds.
func (w Wave) TimeAxis() []float32 {
	n := w.Len()
	if n == 0 || w.SampleRate <= 0 {
		return nil
	}
	t := make([]float32, n)
	sr := float64(w.SampleRate)
	for i := range t {
		t[i] = float32(float64(i)/sr + w.TimeStart)
	}
	return t
}

// ContinuousOptions selects the window of a continuous read. Nil bounds
// extend to the first or last transient.
type ContinuousOptions struct {
	TimeStart *float64
	TimeStop  *float64
	Raw       bool
}

type stitcher[E int16 | float32] struct {
	out []E
}

func (s *stitcher[E]) zeros(n int) {
	if n > 0 {
		s.out = append(s.out, make([]E, n)...)
	}
}

func (s *stitcher[E]) add(block []E) {
	s.out = append(s.out, block...)
}

// ReadContinuousWave stitches the transients of one channel into a single
// buffer cropped to the requested window. Gaps between transients longer
// than one sample period are filled with zeros, as are the parts of the
// window before the first and after the last transient. Windows outside the
// stored data (before the first transient starts or after the last one
// ends), or with start >= stop, yield an empty wave. Records are
// streamed, so memory use is bounded by the output buffer.
func (d *Database) ReadContinuousWave(ctx context.Context, channel int, opts ContinuousOptions) (Wave, error) {
	wave := Wave{Raw: opts.Raw}

	tmin, tmax, ok, err := d.TimeSpan(ctx)
	if err != nil || !ok {
		return wave, err
	}
	start, stop := opts.TimeStart, opts.TimeStop
	switch {
	case start != nil && *start >= tmax,
		stop != nil && *stop < tmin,
		start != nil && stop != nil && *start >= *stop:
		return wave, nil
	}

	q, err := d.Records(ctx, store.Filter{Channels: []int{channel}, TimeStart: start, TimeStop: stop}, opts.Raw)
	if err != nil {
		return wave, err
	}

	// The transient preceding the window may still reach into it.
	var prev *model.TraRecord
	if start != nil {
		b, err := d.ResolveTimeRange(ctx, store.TraDB.DataTable(), indexCol, start, nil)
		if err != nil {
			return wave, err
		}
		// No transient starts inside the window; the channel's last one may
		// still cover its beginning.
		before := int64(math.MaxInt64)
		if b.Lo != nil {
			before = *b.Lo
		}
		if b.Lo != nil || b.Empty {
			trai, found, err := d.previousTRAI(ctx, channel, before)
			if err != nil {
				return wave, err
			}
			if found {
				tra, err := d.ReadWave(ctx, trai, opts.Raw)
				if err != nil {
					return wave, err
				}
				prev = &tra
			}
		}
	}

	timeStart := tmin
	if start != nil {
		timeStart = *start
	}
	wave.TimeStart = timeStart

	var (
		f32      stitcher[float32]
		i16      stitcher[int16]
		sr       int
		expected = timeStart
	)
	zeros := func(n int) {
		if opts.Raw {
			i16.zeros(n)
		} else {
			f32.zeros(n)
		}
	}

	process := func(tra model.TraRecord) error {
		if sr == 0 {
			sr = tra.SampleRate
		}
		if tra.SampleRate != sr {
			return &InconsistentSampleRateError{TRAI: tra.TRAI, Want: sr, Got: tra.SampleRate}
		}
		fs := float64(sr)

		if gap := tra.Time - expected; gap > 1/fs {
			zeros(int(math.Round(gap * fs)))
		}

		limit := func(n int) int { return min(max(0, n), tra.Samples) }
		nStart := limit(int(math.Round((timeStart - tra.Time) * fs)))
		nStop := tra.Samples
		if stop != nil {
			nStop = limit(int(math.Round((*stop - tra.Time) * fs)))
		}
		if nStart < nStop {
			if opts.Raw {
				i16.add(tra.RawData[nStart:nStop])
			} else {
				f32.add(tra.Data[nStart:nStop])
			}
		}
		expected = max(tra.Time+float64(nStop)/fs, timeStart)
		return nil
	}

	if prev != nil {
		if err := process(*prev); err != nil {
			return wave, err
		}
	}
	for tra, err := range q.All(ctx) {
		if err != nil {
			return wave, err
		}
		if err := process(tra); err != nil {
			return wave, err
		}
	}

	if stop != nil && sr > 0 && math.Abs(expected-*stop) > 1/float64(sr) {
		zeros(int(math.Round((*stop - expected) * float64(sr))))
	}

	wave.SampleRate = sr
	wave.Data = f32.out
	wave.RawData = i16.out
	return wave, nil
}
