package policy

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/RyanBlaney/sonido-mix/console"
	"github.com/RyanBlaney/sonido-mix/features"
	"github.com/RyanBlaney/sonido-mix/logging"
)

// Heuristic is the fixed rule table. Apart from the effect draw it is
// deterministic.
type Heuristic struct {
	config    *Config
	mu        sync.Mutex
	rng       *rand.Rand
	decisions atomic.Uint64
	logger    logging.Logger
}

// NewHeuristic creates the rule-table policy. The effect draw is seeded
// from config.Seed.
func NewHeuristic(config *Config) (*Heuristic, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Heuristic{
		config: config,
		rng:    rand.New(rand.NewPCG(config.Seed, config.Seed)),
		logger: logging.WithFields(logging.Fields{
			"component": "decision_policy",
			"mode":      string(ModeHeuristic),
		}),
	}, nil
}

// Mode returns ModeHeuristic
func (h *Heuristic) Mode() Mode {
	return ModeHeuristic
}

// Decide applies the rule table to one snapshot and console state
func (h *Heuristic) Decide(snap features.Snapshot, state console.State) console.Recommendation {
	c := h.config
	snap = snap.Sanitized()
	state = state.Sanitized()
	h.decisions.Add(1)

	var rec console.Recommendation

	// Loudness: nudge the deck the crossfader favours
	var step float64
	switch {
	case snap.RMSdB < c.OptimalLoudness[0]:
		step = c.VolumeStep
	case snap.RMSdB > c.OptimalLoudness[1]:
		step = -c.VolumeStep
	}
	if step != 0 {
		if console.ActiveDeck(state.CrossfaderPosition) == console.DeckA {
			rec.VolumeAdjustA = step
		} else {
			rec.VolumeAdjustB = step
		}
	}

	if snap.BeatDetected {
		switch {
		case state.DeckAPlaying && !state.DeckBPlaying && state.CrossfaderPosition < c.TransitionLowXF:
			rec.TransitionNow = true
		case state.DeckBPlaying && !state.DeckAPlaying && state.CrossfaderPosition > c.TransitionHighXF:
			rec.TransitionNow = true
		}
	}

	switch {
	case snap.SpectralCentroid > c.BrightCentroid:
		rec.EQAdjust = map[console.EQBand]float64{console.EQHigh: -c.EQStep}
	case snap.SpectralCentroid < c.DarkCentroid:
		rec.EQAdjust = map[console.EQBand]float64{console.EQHigh: c.EQStep}
	}

	rec.EffectTrigger = h.drawEffect(snap.BeatDetected)

	if rec.TransitionNow || rec.EffectTrigger != 0 {
		h.logger.Debug("Heuristic cue", logging.Fields{
			"function":   "Decide",
			"transition": rec.TransitionNow,
			"effect":     rec.EffectTrigger,
			"crossfader": state.CrossfaderPosition,
		})
	}
	return rec
}

// drawEffect consumes one draw per call and a second when an effect fires
func (h *Heuristic) drawEffect(beat bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rng.Float64() >= h.config.EffectProbability || !beat {
		return 0
	}
	ids := h.config.EffectIDs
	return ids[h.rng.IntN(len(ids))]
}

// Statistics reports the number of decisions made
func (h *Heuristic) Statistics() Statistics {
	return Statistics{
		Mode:      ModeHeuristic,
		Decisions: h.decisions.Load(),
	}
}
