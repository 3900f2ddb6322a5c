package features

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ae-archive/vae/internal/model"
)

const testLen = 100

var testSampleRates = []int{1, 10, 1_000_000}

func randomArray(t testing.TB) []float32 {
	t.Helper()
	r := rand.New(rand.NewPCG(1, 2))
	data := make([]float32, testLen)
	for i := range data {
		data[i] = r.Float32()
	}
	return data
}

func TestDBConversion(t *testing.T) {
	assert.Equal(t, 0.0, AmplitudeToDB(1e-6, DBReference))
	assert.InDelta(t, 120.0, AmplitudeToDB(1, DBReference), 1e-12)
	assert.Equal(t, 1e-6, DBToAmplitude(0, DBReference))
	assert.InDelta(t, 1.0, DBToAmplitude(120, DBReference), 1e-12)
}

func TestPeakAmplitude(t *testing.T) {
	data := []float32{1, 1, 1, -10, 1}
	assert.Equal(t, 10.0, PeakAmplitude(data))
	assert.Equal(t, 3, PeakAmplitudeIndex(data))
	assert.Equal(t, 0.0, PeakAmplitude(nil))
}

func TestIsAboveThreshold(t *testing.T) {
	data := randomArray(t)
	assert.True(t, IsAboveThreshold(data, -1))
	assert.True(t, IsAboveThreshold(data, 0))
	data[len(data)-1] = 1
	assert.True(t, IsAboveThreshold(data, 1))
	data[0] = 2
	assert.True(t, IsAboveThreshold(data, 2))
	assert.False(t, IsAboveThreshold(data, 2.01))
}

func TestFirstThresholdCrossing(t *testing.T) {
	_, ok := FirstThresholdCrossing(make([]float32, testLen), 1)
	assert.False(t, ok)

	data := randomArray(t)
	data[0] = 1
	idx, ok := FirstThresholdCrossing(data, 1)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	data[0] = 0
	data[len(data)-1] = 2
	idx, ok = FirstThresholdCrossing(data, 2)
	require.True(t, ok)
	assert.Equal(t, testLen-1, idx)

	data[10] = -3
	idx, ok = FirstThresholdCrossing(data, 2)
	require.True(t, ok)
	assert.Equal(t, 10, idx)
}

func TestRiseTime(t *testing.T) {
	for _, sr := range testSampleRates {
		data := randomArray(t)
		data[0] = 2
		assert.Equal(t, 0.0, RiseTime(data, 2, sr))

		data[len(data)-1] = 3
		assert.Equal(t, float64(testLen-1)/float64(sr), RiseTime(data, 0, sr))

		assert.Equal(t, 0.0, RiseTime(data, 10, sr))
	}
}

func TestEnergyAndSignalStrength(t *testing.T) {
	data := randomArray(t)
	var sq, abs float64
	for _, v := range data {
		sq += float64(v) * float64(v)
		abs += math.Abs(float64(v))
	}
	for _, sr := range testSampleRates {
		assert.InEpsilon(t, sq*1e14/float64(sr), Energy(data, sr), 1e-9)
		assert.InEpsilon(t, abs*1e9/float64(sr), SignalStrength(data, sr), 1e-9)
	}
	assert.Equal(t, 0.0, Energy(data, 0))
}

func TestCounts(t *testing.T) {
	zeros := make([]float32, testLen)
	assert.Equal(t, 0, Counts(zeros, 0))
	assert.Equal(t, 0, Counts(zeros, 0.5))

	tests := []struct {
		name      string
		data      []float32
		threshold float64
		want      int
	}{
		{"single", []float32{0, 1, 0}, 0.5, 1},
		{"negative ignored", []float32{0, -1, 0, -1}, 0.5, 0},
		{"starts above", []float32{1, 1, 0, 1}, 0.5, 1},
		{"oscillating", []float32{0, 1, -1, 1, -1, 1}, 0.5, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Counts(tt.data, tt.threshold))
		})
	}
}

func TestRMS(t *testing.T) {
	assert.Equal(t, 0.0, RMS(nil))
	assert.InDelta(t, 1.0, RMS([]float32{1, -1, 1, -1}), 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), RMS([]float32{1, 2}), 1e-6)
}

func TestExtract(t *testing.T) {
	tra := model.TraRecord{
		TRAI:       7,
		SampleRate: 1_000_000,
		Data:       []float32{0, 0.5, -1, 0.5, 0},
	}
	rec := Extract(tra, 0.25)
	assert.Equal(t, int64(7), rec.TRAI)
	assert.InDelta(t, 1e6, rec.Features["Amp"], 1e-6)
	assert.InDelta(t, 120.0, rec.Features["AmpDB"], 1e-9)
	assert.InDelta(t, 1.0, rec.Features["RiseT"], 1e-9)
	assert.Equal(t, 2.0, rec.Features["Cnts"])
	for _, f := range Fields {
		assert.Contains(t, rec.Features, f.Name)
	}

	silent := Extract(model.TraRecord{TRAI: 1, SampleRate: 1, Data: make([]float32, 4)}, 0.1)
	assert.NotContains(t, silent.Features, "AmpDB")
}

func BenchmarkExtract(b *testing.B) {
	r := rand.New(rand.NewPCG(5, 6))
	data := make([]float32, 8192)
	for i := range data {
		data[i] = r.Float32() - 0.5
	}
	tra := model.TraRecord{TRAI: 1, SampleRate: 10_000_000, Data: data}
	for b.Loop() {
		Extract(tra, 0.1)
	}
}
