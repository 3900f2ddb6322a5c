// Package features computes acoustic emission features of transient
// signals.
package features

import (
	"math"
	"time"

	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/model"
)

// DBReference is the reference amplitude of dB(AE): 1 µV.
const DBReference = 1e-6

// AmplitudeToDB converts volts to dB relative to ref.
func AmplitudeToDB(amplitude, ref float64) float64 {
	return 20 * math.Log10(amplitude/ref)
}

// DBToAmplitude converts dB relative to ref to volts.
func DBToAmplitude(db, ref float64) float64 {
	return ref * math.Pow(10, db/20)
}

// PeakAmplitude returns the maximum absolute value.
func PeakAmplitude(data []float32) float64 {
	var peak float64
	for _, v := range data {
		peak = max(peak, math.Abs(float64(v)))
	}
	return peak
}

// PeakAmplitudeIndex returns the index of the first maximum absolute value.
func PeakAmplitudeIndex(data []float32) int {
	var idx int
	var peak float64
	for i, v := range data {
		if a := math.Abs(float64(v)); a > peak {
			peak, idx = a, i
		}
	}
	return idx
}

func aboveThreshold(v float32, threshold float64) bool {
	x := float64(v)
	return x >= threshold || x <= -threshold
}

// IsAboveThreshold reports whether any absolute value reaches threshold.
func IsAboveThreshold(data []float32, threshold float64) bool {
	_, ok := FirstThresholdCrossing(data, threshold)
	return ok
}

// FirstThresholdCrossing returns the index of the first sample whose
// absolute value reaches threshold.
func FirstThresholdCrossing(data []float32, threshold float64) (int, bool) {
	for i, v := range data {
		if aboveThreshold(v, threshold) {
			return i, true
		}
	}
	return 0, false
}

// RiseTime returns the time in seconds from the first threshold crossing to
// the peak. It is zero if the threshold is never reached.
func RiseTime(data []float32, threshold float64, samplerate int) float64 {
	first, ok := FirstThresholdCrossing(data, threshold)
	if !ok || samplerate <= 0 {
		return 0
	}
	return float64(PeakAmplitudeIndex(data)-first) / float64(samplerate)
}

// Energy returns the integral of the squared signal in eu (1e-14 V²s).
func Energy(data []float32, samplerate int) float64 {
	if samplerate <= 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += float64(v) * float64(v)
	}
	return sum * 1e14 / float64(samplerate)
}

// SignalStrength returns the integral of the rectified signal in nVs.
func SignalStrength(data []float32, samplerate int) float64 {
	if samplerate <= 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += math.Abs(float64(v))
	}
	return sum * 1e9 / float64(samplerate)
}

// Counts returns the number of positive threshold crossings.
func Counts(data []float32, threshold float64) int {
	var n int
	for i := 1; i < len(data); i++ {
		if float64(data[i-1]) < threshold && float64(data[i]) >= threshold {
			n++
		}
	}
	return n
}

// RMS returns the root mean square.
func RMS(data []float32) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(data)))
}

// Field describes one extracted feature column.
type Field struct {
	Name     string
	Unit     string
	LongName string
}

// Fields lists the features Extract produces.
var Fields = []Field{
	{"Amp", "[µV]", "Amplitude"},
	{"AmpDB", "[dB]", "Amplitude in dB(AE)"},
	{"RiseT", "[µs]", "Rise time"},
	{"Eny", "[eu]", "Energy"},
	{"SS", "[nVs]", "Signal strength"},
	{"Cnts", "[-]", "Counts"},
	{"RMS", "[µV]", "RMS of the transient"},
}

// Extract computes all features of tra using threshold in volts. Amplitude
// and rise time are stored in µV and µs to match the primary-data units.
func Extract(tra model.TraRecord, threshold float64) model.FeatureRecord {
	start := time.Now()

	data := tra.Data
	amp := PeakAmplitude(data)
	f := map[string]float64{
		"Amp":   amp * 1e6,
		"RiseT": RiseTime(data, threshold, tra.SampleRate) * 1e6,
		"Eny":   Energy(data, tra.SampleRate),
		"SS":    SignalStrength(data, tra.SampleRate),
		"Cnts":  float64(Counts(data, threshold)),
		"RMS":   RMS(data) * 1e6,
	}
	if amp > 0 {
		f["AmpDB"] = AmplitudeToDB(amp, DBReference)
	}

	metrics.FeatureDuration.Observe(time.Since(start).Seconds())
	return model.FeatureRecord{TRAI: tra.TRAI, Features: f}
}
