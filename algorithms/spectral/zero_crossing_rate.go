package spectral

// ZeroCrossingRate counts sign changes between adjacent samples.
// High ZCR indicates noisy or bright content, low ZCR tonal or bass-heavy content.
type ZeroCrossingRate struct {
	sampleRate int
}

// NewZeroCrossingRate creates a new zero crossing rate calculator
func NewZeroCrossingRate(sampleRate int) *ZeroCrossingRate {
	return &ZeroCrossingRate{
		sampleRate: sampleRate,
	}
}

// Compute calculates ZCR for a single frame as crossings per second
func (zcr *ZeroCrossingRate) Compute(frame []float64) float64 {
	if len(frame) < 2 || zcr.sampleRate <= 0 {
		return 0.0
	}

	frameDuration := float64(len(frame)) / float64(zcr.sampleRate)
	return float64(countCrossings(frame)) / frameDuration
}

// ComputeNormalized calculates the fraction of adjacent sample pairs with
// opposite sign (0-1 range)
func (zcr *ZeroCrossingRate) ComputeNormalized(frame []float64) float64 {
	if len(frame) < 2 {
		return 0.0
	}

	// Normalize by maximum possible crossings (alternating signal)
	return float64(countCrossings(frame)) / float64(len(frame)-1)
}

func countCrossings(frame []float64) int {
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0 && frame[i] < 0) || (frame[i-1] < 0 && frame[i] >= 0) {
			crossings++
		}
	}
	return crossings
}
