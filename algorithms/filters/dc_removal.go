package filters

import (
	"math"
)

// DefaultDCCutoff is the -3 dB point used by the ingest prefilter
const DefaultDCCutoff = 10.0

// DCRemoval is a one-pole DC blocker:
//
//	y[n] = x[n] - x[n-1] + R*y[n-1]
//
// See J. O. Smith, "Introduction to Digital Filters", DC Blocker.
// State carries across calls so a stream can be filtered in chunks.
type DCRemoval struct {
	pole float64

	x1 float64
	y1 float64
}

// NewDCRemoval creates a DC blocker with pole 0.995 (about 35 Hz at 44.1 kHz)
func NewDCRemoval() *DCRemoval {
	return &DCRemoval{pole: 0.995}
}

// NewDCRemovalWithCutoff derives the pole from the cutoff: R = 1 - 2*pi*fc/fs.
// The approximation holds for fc << fs/2.
func NewDCRemovalWithCutoff(sampleRate int, cutoffFreq float64) *DCRemoval {
	dc := NewDCRemoval()
	if sampleRate <= 0 || cutoffFreq <= 0 {
		return dc
	}

	dc.pole = 1.0 - 2.0*math.Pi*cutoffFreq/float64(sampleRate)
	switch {
	case dc.pole >= 1.0:
		dc.pole = 0.999
	case dc.pole <= 0.0:
		dc.pole = 0.001
	}
	return dc
}

// Process filters a single sample
func (dc *DCRemoval) Process(input float64) float64 {
	output := input - dc.x1 + dc.pole*dc.y1
	dc.x1 = input
	dc.y1 = output
	return output
}

// ProcessInPlace filters samples, overwriting them
func (dc *DCRemoval) ProcessInPlace(samples []float64) {
	for i, s := range samples {
		samples[i] = dc.Process(s)
	}
}

// Reset clears the filter memory. Call between discontinuous segments.
func (dc *DCRemoval) Reset() {
	dc.x1 = 0
	dc.y1 = 0
}

// Pole returns the pole location R
func (dc *DCRemoval) Pole() float64 {
	return dc.pole
}

// CutoffFrequency inverts the design formula: fc = (1-R)*fs/(2*pi)
func (dc *DCRemoval) CutoffFrequency(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return (1.0 - dc.pole) * float64(sampleRate) / (2.0 * math.Pi)
}
