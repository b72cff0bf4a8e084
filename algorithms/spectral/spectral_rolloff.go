package spectral

// DefaultRolloffPercent is the share of spectral power below the rolloff frequency
const DefaultRolloffPercent = 0.85

// SpectralRolloff computes spectral rolloff frequency
type SpectralRolloff struct {
	sampleRate int
	freqBins   []float64 // Pre-calculated frequency bins
}

// NewSpectralRolloff creates a new spectral rolloff calculator
func NewSpectralRolloff(sampleRate int) *SpectralRolloff {
	return &SpectralRolloff{
		sampleRate: sampleRate,
	}
}

// Compute calculates spectral rolloff for a single magnitude spectrum.
// threshold is the power fraction, typically 0.85.
func (sr *SpectralRolloff) Compute(spectrum []float64, threshold float64) float64 {
	if len(spectrum) == 0 {
		return 0.0
	}

	if len(sr.freqBins) != len(spectrum) {
		sr.freqBins = BinFrequencies(len(spectrum), sr.sampleRate)
	}

	totalEnergy := 0.0
	for _, mag := range spectrum {
		totalEnergy += mag * mag
	}

	if totalEnergy == 0 {
		return 0
	}

	targetEnergy := threshold * totalEnergy
	cumulativeEnergy := 0.0

	for i, mag := range spectrum {
		cumulativeEnergy += mag * mag
		if cumulativeEnergy >= targetEnergy {
			return sr.freqBins[i]
		}
	}

	return sr.freqBins[len(sr.freqBins)-1]
}
