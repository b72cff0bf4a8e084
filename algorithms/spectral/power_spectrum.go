package spectral

// PowerSpectrum provides power spectral density computation
type PowerSpectrum struct{}

// NewPowerSpectrum creates a new power spectrum calculator
func NewPowerSpectrum() *PowerSpectrum {
	return &PowerSpectrum{}
}

// Compute computes power spectral density from magnitude spectrum
func (ps *PowerSpectrum) Compute(magnitudeSpectrum []float64) []float64 {
	if len(magnitudeSpectrum) == 0 {
		return []float64{}
	}

	power := make([]float64, len(magnitudeSpectrum))
	for i, mag := range magnitudeSpectrum {
		power[i] = mag * mag
	}

	return power
}

// Band is a half-open frequency range [Low, High) in Hz
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether freq falls inside the band
func (b Band) Contains(freq float64) bool {
	return freq >= b.Low && freq < b.High
}

// BandEnergies sums the power of a magnitude spectrum inside each band.
// Bins outside every band are ignored.
func BandEnergies(magnitudeSpectrum []float64, sampleRate int, bands []Band) []float64 {
	energies := make([]float64, len(bands))
	if len(magnitudeSpectrum) == 0 {
		return energies
	}

	freqs := BinFrequencies(len(magnitudeSpectrum), sampleRate)
	for i, mag := range magnitudeSpectrum {
		for b, band := range bands {
			if band.Contains(freqs[i]) {
				energies[b] += mag * mag
				break
			}
		}
	}
	return energies
}

// BandBalance maps each band's share of the total energy onto a balance value:
// (share - 1/n) * n. An equal split gives 0 everywhere; all energy in one band
// gives n-1 for that band and -1 for the others. A silent spectrum is balanced.
func BandBalance(energies []float64) []float64 {
	balances := make([]float64, len(energies))
	if len(energies) == 0 {
		return balances
	}

	total := 0.0
	for _, e := range energies {
		total += e
	}
	if total <= 0 {
		return balances
	}

	n := float64(len(energies))
	for i, e := range energies {
		balances[i] = (e/total - 1/n) * n
	}
	return balances
}
