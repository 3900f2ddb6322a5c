// Package timepicker estimates the arrival time of a transient signal.
//
// Every picker returns its detection function and the index it picks. The
// detection function has the same length as the input.
package timepicker

import "math"

// varianceFloor bounds variances and energies away from zero before taking
// logarithms or ratios. It equals the smallest normal float32.
const varianceFloor = 1.1754944e-38

// DefaultAlpha is the default trend divisor of Hinkley.
const DefaultAlpha = 5

// DefaultWindow is the default window length of the energy ratio pickers.
const DefaultWindow = 100

// Hinkley applies the Hinkley criterion: the cumulative energy with a
// negative trend of totalEnergy/(alpha*n). The pick is the minimum.
func Hinkley(data []float32, alpha int) ([]float64, int) {
	n := len(data)
	result := make([]float64, n)
	if n == 0 || alpha <= 0 {
		return result, 0
	}

	var total float64
	for _, v := range data {
		total += float64(v) * float64(v)
	}
	trend := total / float64(alpha*n)

	minValue, minIndex := math.Inf(1), 0
	var partial float64
	for i, v := range data {
		partial += float64(v) * float64(v)
		result[i] = partial - float64(i)*trend
		if result[i] < minValue {
			minValue, minIndex = result[i], i
		}
	}
	return result, minIndex
}

// AIC applies the Akaike information criterion, modelling the signal as
// noise followed by noise plus signal. The last value is NaN. The pick is
// the minimum.
func AIC(data []float32) ([]float64, int) {
	n := len(data)
	result := make([]float64, n)
	for i := range result {
		result[i] = math.NaN()
	}

	var lSum, rSum, lSq, rSq float64
	for _, v := range data {
		rSum += float64(v)
		rSq += float64(v) * float64(v)
	}

	minValue, minIndex := math.Inf(1), 0
	for i := 0; i < n-1; i++ {
		v := float64(data[i])
		lSum += v
		lSq += v * v
		rSum -= v
		rSq -= v * v

		lLen := float64(i + 1)
		rLen := float64(n - i - 1)
		lVar := max(lSq/lLen-(lSum/lLen)*(lSum/lLen), varianceFloor)
		rVar := max(rSq/rLen-(rSum/rLen)*(rSum/rLen), varianceFloor)

		result[i] = float64(i+1)*math.Log10(lVar) + float64(n-i-2)*math.Log10(rVar)
		if result[i] < minValue {
			minValue, minIndex = result[i], i
		}
	}
	return result, minIndex
}

// EnergyRatio compares the energy of a following window with a preceding
// one. Values closer than window to either end are zero. The pick is the
// maximum.
func EnergyRatio(data []float32, window int) ([]float64, int) {
	n := len(data)
	result := make([]float64, n)
	if window <= 0 || n < 2*window {
		return result, 0
	}

	sq := func(i int) float64 { return float64(data[i]) * float64(data[i]) }

	var lSq, rSq float64
	for i := range window {
		lSq += sq(i)
	}
	for i := window; i < 2*window; i++ {
		rSq += sq(i)
	}

	maxValue, maxIndex := math.Inf(-1), 0
	for i := window; i < n-window; i++ {
		lSq += sq(i) - sq(i-window)
		rSq += sq(i+window) - sq(i)
		result[i] = rSq / (varianceFloor + lSq)
		if result[i] > maxValue {
			maxValue, maxIndex = result[i], i
		}
	}
	return result, maxIndex
}

// ModifiedEnergyRatio weights the energy ratio with the signal amplitude,
// (ratio*|x|)³, which suppresses picks in random noise. The pick is the
// maximum.
func ModifiedEnergyRatio(data []float32, window int) ([]float64, int) {
	result, _ := EnergyRatio(data, window)

	maxValue, maxIndex := math.Inf(-1), 0
	for i, v := range data {
		result[i] = math.Pow(result[i]*math.Abs(float64(v)), 3)
		if result[i] > maxValue {
			maxValue, maxIndex = result[i], i
		}
	}
	return result, maxIndex
}

// Picker names a picking method.
type Picker string

const (
	PickerHinkley             Picker = "hinkley"
	PickerAIC                 Picker = "aic"
	PickerEnergyRatio         Picker = "energy_ratio"
	PickerModifiedEnergyRatio Picker = "modified_energy_ratio"
)

// Pick runs the named picker with default parameters. ok is false for an
// unknown picker.
func Pick(p Picker, data []float32) (index int, ok bool) {
	switch p {
	case PickerHinkley:
		_, index = Hinkley(data, DefaultAlpha)
	case PickerAIC:
		_, index = AIC(data)
	case PickerEnergyRatio:
		_, index = EnergyRatio(data, DefaultWindow)
	case PickerModifiedEnergyRatio:
		_, index = ModifiedEnergyRatio(data, DefaultWindow)
	default:
		return 0, false
	}
	return index, true
}
