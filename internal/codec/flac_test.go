//go:build !noflac

package codec

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFLAC_EmptyAndShort(t *testing.T) {
	c := New(Options{FLAC: true})
	for _, n := range []int{0, 1, 15, flacBlockSize, flacBlockSize + 1} {
		data := randomADC(n)
		blob, err := c.EncodeRaw(data, FLAC)
		require.NoError(t, err)
		got, err := c.DecodeRaw(blob, FLAC)
		require.NoError(t, err)
		assert.Len(t, got, n)
		if n > 0 {
			assert.Equal(t, data, got)
		}
	}
}

// --- Compression ---

func burst(n int) []int16 {
	r := rand.New(rand.NewPCG(3, 4))
	out := make([]int16, n)
	for i := range out {
		decay := math.Exp(-float64(i) / 2000)
		v := 8000*decay*math.Sin(2*math.Pi*float64(i)/25) + float64(r.IntN(21)-10)
		out[i] = int16(math.Round(v))
	}
	return out
}

func TestFLAC_Compresses(t *testing.T) {
	c := New(Options{FLAC: true})
	sawtooth := make([]int16, 100_000)
	for i := range sawtooth {
		sawtooth[i] = int16(i % 7)
	}
	noise := make([]int16, 10_000)
	r := rand.New(rand.NewPCG(5, 6))
	for i := range noise {
		noise[i] = int16(r.IntN(33) - 16)
	}

	tests := []struct {
		name string
		adc  []int16
	}{
		{"sawtooth", sawtooth},
		{"low amplitude noise", noise},
		{"decaying burst", burst(20_000)},
		{"silence", make([]int16, 5000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm, err := c.EncodeRaw(tt.adc, Uncompressed)
			require.NoError(t, err)
			blob, err := c.EncodeRaw(tt.adc, FLAC)
			require.NoError(t, err)
			assert.Less(t, len(blob), len(pcm)/2, "flac=%d pcm=%d", len(blob), len(pcm))

			got, err := c.DecodeRaw(blob, FLAC)
			require.NoError(t, err)
			assert.Equal(t, tt.adc, got)
		})
	}
}

func TestFLAC_FullScaleNoiseStaysVerbatim(t *testing.T) {
	c := New(Options{FLAC: true})
	data := randomADC(3 * flacBlockSize)
	blob, err := c.EncodeRaw(data, FLAC)
	require.NoError(t, err)

	pcm := encodePCM(data)
	// Stream header and frame headers only.
	assert.Less(t, len(blob)-len(pcm), 200)

	got, err := c.DecodeRaw(blob, FLAC)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFLAC_SubframePrediction(t *testing.T) {
	ramp := make([]int32, 64)
	for i := range ramp {
		ramp[i] = int32(3*i - 90)
	}
	sub := subframe(ramp)
	assert.Equal(t, frame.PredFixed, sub.Pred)
	assert.Equal(t, 2, sub.Order, "a linear ramp has zero second-order residuals")
	require.NotNil(t, sub.RiceSubframe)
	assert.Equal(t, uint(0), sub.RiceSubframe.Partitions[0].Param)

	r := rand.New(rand.NewPCG(7, 8))
	noise := make([]int32, 64)
	for i := range noise {
		noise[i] = int32(r.IntN(math.MaxUint16+1) + math.MinInt16)
	}
	assert.Equal(t, frame.PredVerbatim, subframe(noise).Pred)
}

func TestFixedResiduals(t *testing.T) {
	block := []int32{1, 4, 9, 16, 25, 36}
	assert.Equal(t, block, fixedResiduals(block, 0))
	assert.Equal(t, []int32{3, 5, 7, 9, 11}, fixedResiduals(block, 1))
	assert.Equal(t, []int32{2, 2, 2, 2}, fixedResiduals(block, 2))
	assert.Equal(t, []int32{0, 0, 0}, fixedResiduals(block, 3))
}

func TestRiceParam(t *testing.T) {
	k, bits := riceParam([]int32{0, 0, 0, 0})
	assert.Equal(t, uint(0), k)
	assert.Equal(t, uint64(4), bits)

	// Zigzag values near 2000 cost the same at 10 and 11; the smaller wins.
	k, _ = riceParam([]int32{1000, -1000, 999, -998})
	assert.Equal(t, uint(10), k)
}

func TestFLAC_StreamIsStandard(t *testing.T) {
	c := New(Options{FLAC: true})
	data := burst(flacBlockSize + 100)
	blob, err := c.EncodeRaw(data, FLAC)
	require.NoError(t, err)

	stream, err := flac.Parse(bytes.NewReader(blob))
	require.NoError(t, err)
	defer stream.Close()
	assert.Equal(t, uint8(1), stream.Info.NChannels)
	assert.Equal(t, uint8(16), stream.Info.BitsPerSample)
	assert.Equal(t, uint64(len(data)), stream.Info.NSamples)
}

// FuzzFLACSmoothSignal integrates the input as 8-bit steps, which keeps most
// blocks on the fixed-predictor path.
func FuzzFLACSmoothSignal(f *testing.F) {
	f.Add([]byte{1, 2, 3, 250, 4, 0, 0, 7}, int16(0))
	f.Add([]byte{127, 127, 127, 127}, int16(32000))
	f.Add(bytes.Repeat([]byte{0x80}, 600), int16(-32768))
	c := New(Options{FLAC: true})
	f.Fuzz(func(t *testing.T, steps []byte, start int16) {
		adc := make([]int16, 0, 4*len(steps))
		v := start
		for _, d := range steps {
			for range 4 {
				v += int16(int8(d))
				adc = append(adc, v)
			}
		}
		if len(adc) < 16 || len(adc) > 2*flacBlockSize {
			return
		}
		blob, err := c.EncodeRaw(adc, FLAC)
		require.NoError(t, err)
		got, err := c.DecodeRaw(blob, FLAC)
		require.NoError(t, err)
		require.Equal(t, adc, got)
	})
}
