package features

import (
	"math"

	"github.com/RyanBlaney/sonido-mix/algorithms/common"
)

// Quality score credits and bounds
const (
	healthyLoudnessLow   = -20.0
	healthyLoudnessHigh  = -6.0
	healthyLoudnessScore = 0.3

	acceptableLoudnessLow   = -30.0
	acceptableLoudnessHigh  = -3.0
	acceptableLoudnessScore = 0.15

	noiseFloorEnergy = 0.01
	energyScore      = 0.2

	balancedCentroidLow  = 1000.0
	balancedCentroidHigh = 3000.0
	centroidScore        = 0.2

	tempoScore = 0.1

	imbalanceThreshold = 0.5
	imbalancePenalty   = 0.05
)

// QualityInputs are the features the quality score is built from
type QualityInputs struct {
	RMSdB            float64
	Energy           float64
	SpectralCentroid float64
	BPM              float64
	Balances         [3]float64
}

// QualityScore sums bounded partial credits for loudness, energy, centroid
// and tempo, subtracts a penalty per strongly unbalanced band and clamps to
// [0, 1]. Non-finite inputs earn no credit.
func QualityScore(in QualityInputs) float64 {
	score := 0.0

	switch {
	case in.RMSdB >= healthyLoudnessLow && in.RMSdB <= healthyLoudnessHigh:
		score += healthyLoudnessScore
	case in.RMSdB >= acceptableLoudnessLow && in.RMSdB <= acceptableLoudnessHigh:
		score += acceptableLoudnessScore
	}

	if in.Energy > noiseFloorEnergy {
		score += energyScore
	}

	if in.SpectralCentroid > balancedCentroidLow && in.SpectralCentroid < balancedCentroidHigh {
		score += centroidScore
	}

	if in.BPM > 0 {
		score += tempoScore
	}

	for _, b := range in.Balances {
		if math.Abs(b) > imbalanceThreshold {
			score -= imbalancePenalty
		}
	}

	return common.Clamp(score, 0, 1)
}
