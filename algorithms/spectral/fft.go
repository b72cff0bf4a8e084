package spectral

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT provides Fast Fourier Transform functionality
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes Fast Fourier Transform using mjibson/go-dsp
// Takes []float64 input and returns []complex128 output
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	// mjibson/go-dsp handles all sizes efficiently, including non-power-of-2
	return fft.FFTReal(x)
}

// Magnitude returns the one-sided magnitude spectrum of a real signal:
// len(x)/2+1 bins from DC up to and including Nyquist.
func (f *FFT) Magnitude(x []float64) ([]float64, error) {
	if len(x) < 2 {
		return nil, fmt.Errorf("signal too short for transform: %d samples", len(x))
	}

	spectrum := f.Compute(x)
	bins := len(spectrum)/2 + 1

	magnitude := make([]float64, bins)
	for i := range bins {
		magnitude[i] = cmplx.Abs(spectrum[i])
	}
	return magnitude, nil
}

// BinFrequencies returns the centre frequency of each bin of a one-sided
// spectrum with numBins bins
func BinFrequencies(numBins, sampleRate int) []float64 {
	if numBins < 2 {
		return make([]float64, max(numBins, 0))
	}
	freqs := make([]float64, numBins)
	for i := range numBins {
		freqs[i] = float64(i) * float64(sampleRate) / float64((numBins-1)*2)
	}
	return freqs
}
