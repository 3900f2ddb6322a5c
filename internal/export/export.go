// Package export writes continuous waveforms to audio files.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/tradb"
)

const (
	bitDepth = 16
	// pcmFormat is the WAVE_FORMAT_PCM tag.
	pcmFormat = 1
)

// DefaultBlock is the default duration of one read block in seconds.
const DefaultBlock = 1.0

// Options selects the exported window. Nil bounds extend to the first or
// last transient.
type Options struct {
	Channel   int
	TimeStart *float64
	TimeStop  *float64
	// Block is the duration read per step in seconds.
	Block float64
}

// Result summarizes a finished export.
type Result struct {
	Samples    int
	SampleRate int
	Blocks     int
}

// WAV reads the continuous raw wave of one channel block by block and writes
// it as 16-bit mono PCM to w. Memory use is bounded by one block.
func WAV(ctx context.Context, src *tradb.Database, w io.WriteSeeker, opts Options) (Result, error) {
	var res Result
	if opts.Block <= 0 {
		opts.Block = DefaultBlock
	}

	tmin, tmax, ok, err := src.TimeSpan(ctx)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, fmt.Errorf("%w: no transients in %s", errs.ErrValidation, src.Path())
	}
	start := tmin
	if opts.TimeStart != nil {
		start = *opts.TimeStart
	}
	last := tmax
	if opts.TimeStop != nil {
		last = *opts.TimeStop
	}

	var enc *wav.Encoder
	for t := start; ; t += opts.Block {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		from, to := t, t+opts.Block
		final := to >= last
		copts := tradb.ContinuousOptions{TimeStart: &from, TimeStop: &to, Raw: true}
		if final {
			copts.TimeStop = opts.TimeStop
		}

		wave, err := src.ReadContinuousWave(ctx, opts.Channel, copts)
		if err != nil {
			return res, fmt.Errorf("reading block at %gs: %w", t, err)
		}
		res.Blocks++

		if wave.Len() > 0 {
			if enc == nil {
				res.SampleRate = wave.SampleRate
				enc = wav.NewEncoder(w, wave.SampleRate, bitDepth, 1, pcmFormat)
			}
			if wave.SampleRate != res.SampleRate {
				return res, &tradb.InconsistentSampleRateError{Want: res.SampleRate, Got: wave.SampleRate}
			}
			if err := enc.Write(intBuffer(wave)); err != nil {
				return res, fmt.Errorf("writing wav block: %w", err)
			}
			res.Samples += wave.Len()
		}
		if final {
			break
		}
	}

	if enc == nil {
		return res, fmt.Errorf("%w: no samples for channel %d", errs.ErrValidation, opts.Channel)
	}
	if err := enc.Close(); err != nil {
		return res, fmt.Errorf("closing wav encoder: %w", err)
	}
	slog.Info("wav export finished",
		"channel", opts.Channel, "samples", res.Samples, "samplerate", res.SampleRate, "blocks", res.Blocks)
	return res, nil
}

func intBuffer(wave tradb.Wave) *audio.IntBuffer {
	data := make([]int, len(wave.RawData))
	for i, v := range wave.RawData {
		data[i] = int(v)
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: wave.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
}
