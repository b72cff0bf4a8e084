package reward

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/sonido-mix/algorithms/common"
)

// Loudness rewards closeness to the target level, minus the clipping and
// deep-silence penalties, floored at LoudnessFloor
func (c *Config) Loudness(rmsDB float64) float64 {
	r := math.Max(0, 1-math.Abs(rmsDB-c.LoudnessTarget)/c.LoudnessMargin)

	if rmsDB >= c.ClipLevel-c.ClipWindow {
		r -= c.ClipPenalty
	}
	if rmsDB < c.DeepSilenceFloor {
		r -= c.DeepSilencePenalty
	}

	return math.Max(r, c.LoudnessFloor)
}

// TempoMatch rewards matching deck tempos. An unknown tempo earns nothing.
func (c *Config) TempoMatch(bpmA, bpmB float64) float64 {
	if bpmA <= 0 || bpmB <= 0 {
		return 0
	}
	diff := math.Min(math.Abs(bpmA-bpmB), c.TempoMaxDiff)
	return math.Max(0, 1-diff/c.TempoMaxDiff)
}

// EnergyFlow rewards smooth energy between cycles. Without a previous
// energy it returns InitialFlowReward.
func (c *Config) EnergyFlow(energy, prevEnergy float64, hasPrev bool) float64 {
	if !hasPrev {
		return c.InitialFlowReward
	}
	return math.Max(0, 1-math.Abs(energy-prevEnergy)/c.FlowMaxDelta)
}

// CrossfaderBehavior rewards deliberate crossfader moves. Moves below the
// minimum are ignored, moves up to the maximum earn credit in proportion,
// larger jumps earn CrossfaderOvershoot. A move on a beat earns BeatBonus.
func (c *Config) CrossfaderBehavior(prev, current float64, hasPrev, beat bool) float64 {
	if !hasPrev {
		return 0
	}

	movement := math.Abs(current - prev)
	if movement < c.CrossfaderMinMove {
		return 0
	}

	var r float64
	if movement <= c.CrossfaderMaxMove {
		r = movement / c.CrossfaderMaxMove
	} else {
		r = c.CrossfaderOvershoot
	}
	if beat {
		r += c.BeatBonus
	}

	return common.Clamp(r, -1, 1)
}

// SpectralBalance averages per-band credit for staying near an even split
func (c *Config) SpectralBalance(balances [3]float64) float64 {
	credit := make([]float64, len(balances))
	for i, b := range balances {
		credit[i] = math.Max(0, 1-math.Abs(b)/c.SpectralMaxAllowed)
	}
	return stat.Mean(credit, nil)
}

// QualityBase is the snapshot quality score clamped to [0, 1]
func QualityBase(quality float64) float64 {
	if math.IsNaN(quality) {
		return 0
	}
	return common.Clamp(quality, 0, 1)
}
