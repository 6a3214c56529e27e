package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// PowerSpectrum returns the magnitude of the first half of the Hann-windowed
// DFT of data, mean removed. Bin k is k/len(data) cycles per step.
func PowerSpectrum(data []float64) []float64 {
	if len(data) < 2 {
		return nil
	}
	var mean float64
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	x := make([]float64, len(data))
	for i, v := range data {
		x[i] = v - mean
	}
	window.Apply(x, window.Hann)

	coeffs := fft.FFTReal(x)
	ps := make([]float64, len(coeffs)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(coeffs[i])
	}
	return ps
}

// DominantPeriod is the period in steps of the strongest nonzero frequency,
// or 0 when data has no oscillation.
func DominantPeriod(data []float64) float64 {
	ps := PowerSpectrum(data)
	best := 0
	for k := 1; k < len(ps); k++ {
		if ps[k] > ps[best] {
			best = k
		}
	}
	if best == 0 || ps[best] < 1e-9 {
		return 0
	}
	return float64(len(data)) / float64(best)
}
