package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/store"
	"github.com/ae-archive/vae/internal/tradb"
)

const (
	testSampleRate = 100
	testSamples    = 100
	testBlocks     = 3
)

func ptr[T any](v T) *T { return &v }

// newTestSource writes contiguous one-second transients on channel 1 whose
// raw samples count up from zero.
func newTestSource(t testing.TB) *tradb.Database {
	t.Helper()
	ctx := context.Background()
	d, err := tradb.Open(ctx, filepath.Join(t.TempDir(), "test.tradb"), tradb.Options{
		Store: store.Options{Mode: store.ModeReadWriteCreate},
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.InsertParameter(ctx, map[string]any{"ID": int64(1), "ADC_µV": 1.0, "TR_mV": 0.1}))

	for b := range testBlocks {
		raw := make([]int16, testSamples)
		for i := range raw {
			raw[i] = int16(b*testSamples + i)
		}
		_, err := d.Write(ctx, model.TraRecord{
			Time: float64(b), Channel: 1, ParamID: 1, SampleRate: testSampleRate, Raw: true, RawData: raw,
		})
		require.NoError(t, err)
	}
	return d
}

func decode(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return dec, buf.Data
}

func TestWAV(t *testing.T) {
	src := newTestSource(t)
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	res, err := WAV(context.Background(), src, f, Options{Channel: 1, Block: 0.5})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, testBlocks*testSamples, res.Samples)
	assert.Equal(t, testSampleRate, res.SampleRate)
	assert.Equal(t, 6, res.Blocks, "blocks run to the end of the last transient")

	dec, data := decode(t, path)
	assert.Equal(t, uint32(testSampleRate), dec.SampleRate)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Equal(t, uint16(1), dec.NumChans)
	require.Len(t, data, testBlocks*testSamples)
	for i, v := range data {
		assert.Equal(t, i, v)
	}
}

func TestWAV_Window(t *testing.T) {
	src := newTestSource(t)
	path := filepath.Join(t.TempDir(), "window.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	res, err := WAV(context.Background(), src, f, Options{
		Channel: 1, TimeStart: ptr(0.5), TimeStop: ptr(1.5), Block: 0.25,
	})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, 100, res.Samples)

	_, data := decode(t, path)
	require.Len(t, data, 100)
	assert.Equal(t, 50, data[0])
	assert.Equal(t, 149, data[99])
}

func TestWAV_NoData(t *testing.T) {
	ctx := context.Background()
	empty, err := tradb.Open(ctx, filepath.Join(t.TempDir(), "empty.tradb"), tradb.Options{
		Store: store.Options{Mode: store.ModeReadWriteCreate},
	})
	require.NoError(t, err)
	t.Cleanup(func() { empty.Close() })

	f, err := os.Create(filepath.Join(t.TempDir(), "empty.wav"))
	require.NoError(t, err)
	defer f.Close()

	_, err = WAV(ctx, empty, f, Options{Channel: 1})
	assert.ErrorIs(t, err, errs.ErrValidation)

	src := newTestSource(t)
	_, err = WAV(ctx, src, f, Options{Channel: 7})
	assert.ErrorIs(t, err, errs.ErrValidation)
}
