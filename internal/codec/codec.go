// Package codec converts waveform blobs between stored 16-bit ADC samples
// and physical voltages.
//
// Two blob layouts exist on disk: raw little-endian int16 PCM (format 0) and
// a FLAC stream of the same samples (format 2). The FLAC path is optional: it
// can be disabled at build time with the noflac tag, or at runtime through
// Options. When it is unavailable every call touching format 2 fails with
// CodecUnavailableError while format 0 keeps working.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/metrics"
)

// Format is the on-disk layout of a waveform blob.
type Format int

const (
	// Uncompressed stores raw little-endian int16 samples.
	Uncompressed Format = 0
	// FLAC stores a mono 16-bit FLAC stream.
	FLAC Format = 2
)

func (f Format) String() string {
	switch f {
	case Uncompressed:
		return "uncompressed"
	case FLAC:
		return "flac"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat maps a config name to a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "none", "uncompressed":
		return Uncompressed, nil
	case "flac":
		return FLAC, nil
	default:
		return 0, fmt.Errorf("%w: unknown compression %q", errs.ErrValidation, name)
	}
}

// Options controls optional codec capabilities.
type Options struct {
	// FLAC enables the compressed path. It has no effect in noflac builds.
	FLAC bool
}

// Codec encodes and decodes waveform blobs. It is safe for concurrent use.
type Codec struct {
	flac bool
}

// New returns a Codec. The FLAC capability is resolved once here.
func New(opts Options) *Codec {
	return &Codec{flac: opts.FLAC && flacBuilt}
}

// FLACAvailable reports whether format 2 blobs can be read and written.
func (c *Codec) FLACAvailable() bool {
	return c.flac
}

// Decode converts a blob to volts. factorMilliVolts is the ADC step in mV
// (TR_mV): volts = adc * 1e-3 * factorMilliVolts.
func (c *Codec) Decode(blob []byte, format Format, factorMilliVolts float64) ([]float32, error) {
	adc, err := c.DecodeRaw(blob, format)
	if err != nil {
		return nil, err
	}
	scale := 1e-3 * factorMilliVolts
	out := make([]float32, len(adc))
	for i, s := range adc {
		out[i] = float32(float64(s) * scale)
	}
	return out, nil
}

// DecodeRaw returns the stored ADC samples without scaling.
func (c *Codec) DecodeRaw(blob []byte, format Format) ([]int16, error) {
	switch format {
	case Uncompressed:
		return decodePCM(blob)
	case FLAC:
		if !c.flac {
			metrics.CodecErrors.WithLabelValues(format.String(), "decode").Inc()
			return nil, &CodecUnavailableError{Format: format}
		}
		adc, err := decodeFLAC(blob)
		if err != nil {
			metrics.CodecErrors.WithLabelValues(format.String(), "decode").Inc()
			return nil, err
		}
		return adc, nil
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
}

// Encode converts volts to ADC samples and packs them. Values are scaled by
// 1e3/factorMilliVolts, clamped to the int16 range and rounded half away
// from zero.
func (c *Codec) Encode(samples []float32, format Format, factorMilliVolts float64) ([]byte, error) {
	if factorMilliVolts <= 0 || math.IsNaN(factorMilliVolts) || math.IsInf(factorMilliVolts, 0) {
		return nil, fmt.Errorf("%w: invalid scale factor %v", errs.ErrValidation, factorMilliVolts)
	}
	k := 1e3 / factorMilliVolts
	adc := make([]int16, len(samples))
	for i, v := range samples {
		x := float64(v) * k
		if math.IsNaN(x) {
			continue
		}
		x = max(min(x, math.MaxInt16), math.MinInt16)
		adc[i] = int16(math.Round(x))
	}
	return c.pack(adc, format)
}

// EncodeRaw packs ADC samples as they are. Accepted element types are int16,
// int8 and uint8; anything wider or floating point fails with
// TypeEncodingError.
func (c *Codec) EncodeRaw(samples any, format Format) ([]byte, error) {
	if format != Uncompressed && format != FLAC {
		return nil, &UnsupportedFormatError{Format: format}
	}
	var adc []int16
	switch s := samples.(type) {
	case []int16:
		adc = s
	case []int8:
		adc = make([]int16, len(s))
		for i, v := range s {
			adc[i] = int16(v)
		}
	case []uint8:
		adc = make([]int16, len(s))
		for i, v := range s {
			adc[i] = int16(v)
		}
	default:
		return nil, &TypeEncodingError{Type: fmt.Sprintf("%T", samples)}
	}
	return c.pack(adc, format)
}

func (c *Codec) pack(adc []int16, format Format) ([]byte, error) {
	switch format {
	case Uncompressed:
		return encodePCM(adc), nil
	case FLAC:
		if !c.flac {
			metrics.CodecErrors.WithLabelValues(format.String(), "encode").Inc()
			return nil, &CodecUnavailableError{Format: format}
		}
		blob, err := encodeFLAC(adc)
		if err != nil {
			metrics.CodecErrors.WithLabelValues(format.String(), "encode").Inc()
			return nil, err
		}
		return blob, nil
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
}

func decodePCM(blob []byte) ([]int16, error) {
	if len(blob)%2 != 0 {
		return nil, fmt.Errorf("%w: pcm blob length %d is odd", errs.ErrConsistency, len(blob))
	}
	out := make([]int16, len(blob)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(blob[2*i:]))
	}
	return out, nil
}

func encodePCM(adc []int16) []byte {
	out := make([]byte, 0, 2*len(adc))
	for _, s := range adc {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}
