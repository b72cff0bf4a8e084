package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-mix/algorithms/common"
)

// SilenceEpsilon keeps the dB conversion finite on digital silence
const SilenceEpsilon = 1e-10

// Energy computes block-level energy features
type Energy struct {
	blockSize int
}

// NewEnergy creates a new energy calculator for blocks of blockSize samples
func NewEnergy(blockSize int) *Energy {
	return &Energy{blockSize: blockSize}
}

// RMS returns the root mean square amplitude of a block
func (e *Energy) RMS(block []float64) float64 {
	return common.RMS(block)
}

// RMSdB converts an RMS amplitude to dBFS: 20*log10(rms + eps)
func (e *Energy) RMSdB(rms float64) float64 {
	return 20.0 * math.Log10(rms+SilenceEpsilon)
}

// BlockEnergy returns the unnormalized energy (sum of squares) of a block
func (e *Energy) BlockEnergy(block []float64) float64 {
	return common.SumSquares(block)
}

// TrailingMean returns the mean block energy of the complete blocks in
// history, which holds consecutive blocks of blockSize samples, oldest first.
// It returns the number of blocks that contributed; 0 means no reference.
func (e *Energy) TrailingMean(history []float64) (float64, int) {
	if e.blockSize <= 0 {
		return 0, 0
	}

	blocks := len(history) / e.blockSize
	if blocks == 0 {
		return 0, 0
	}

	// Drop any partial block at the oldest end
	history = history[len(history)-blocks*e.blockSize:]

	energies := make([]float64, blocks)
	for i := range blocks {
		energies[i] = e.BlockEnergy(history[i*e.blockSize : (i+1)*e.blockSize])
	}
	return common.Mean(energies), blocks
}
