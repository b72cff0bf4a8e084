package reward

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned for unusable reward settings
var ErrInvalidConfig = errors.New("invalid reward config")

// Weights scale each sub-reward in the linear combination. They are tunable
// and need not sum to 1.
type Weights struct {
	Mix             float64 `json:"mix"`
	TempoMatch      float64 `json:"tempo_match"`
	EnergyFlow      float64 `json:"energy_flow"`
	Crossfader      float64 `json:"crossfader"`
	SpectralBalance float64 `json:"spectral_balance"`
}

// DefaultWeights returns the reference weighting
func DefaultWeights() Weights {
	return Weights{
		Mix:             0.35,
		TempoMatch:      0.20,
		EnergyFlow:      0.15,
		Crossfader:      0.15,
		SpectralBalance: 0.15,
	}
}

// Validate rejects negative or non-finite weights
func (w Weights) Validate() error {
	named := map[string]float64{
		"mix":              w.Mix,
		"tempo_match":      w.TempoMatch,
		"energy_flow":      w.EnergyFlow,
		"crossfader":       w.Crossfader,
		"spectral_balance": w.SpectralBalance,
	}
	for name, v := range named {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: weight %s = %v", ErrInvalidConfig, name, v)
		}
	}
	return nil
}

// Config holds every constant used by the reward engine
type Config struct {
	Weights Weights `json:"weights"`

	// Loudness
	LoudnessTarget     float64 `json:"loudness_target"`      // dB
	LoudnessMargin     float64 `json:"loudness_margin"`      // dB to zero credit
	ClipLevel          float64 `json:"clip_level"`           // dB
	ClipWindow         float64 `json:"clip_window"`          // penalty applies from ClipLevel-ClipWindow up
	ClipPenalty        float64 `json:"clip_penalty"`         // subtracted from the loudness sub-reward
	DeepSilenceFloor   float64 `json:"deep_silence_floor"`   // dB
	DeepSilencePenalty float64 `json:"deep_silence_penalty"` // subtracted from the loudness sub-reward
	LoudnessFloor      float64 `json:"loudness_floor"`

	// Tempo match
	TempoMaxDiff float64 `json:"tempo_max_diff"` // BPM

	// Energy flow
	InitialFlowReward float64 `json:"initial_flow_reward"`
	FlowMaxDelta      float64 `json:"flow_max_delta"`

	// Crossfader behaviour
	CrossfaderMinMove   float64 `json:"crossfader_min_move"`
	CrossfaderMaxMove   float64 `json:"crossfader_max_move"`
	CrossfaderOvershoot float64 `json:"crossfader_overshoot"` // value beyond the max move
	BeatBonus           float64 `json:"beat_bonus"`

	// Spectral balance
	SpectralMaxAllowed float64 `json:"spectral_max_allowed"`

	// Hard penalties applied after weighting
	SilenceFloor    float64 `json:"silence_floor"` // dB
	SilencePenalty  float64 `json:"silence_penalty"`
	ClipCeiling     float64 `json:"clip_ceiling"` // dB
	ClippingPenalty float64 `json:"clipping_penalty"`
}

// DefaultConfig returns the reference reward configuration
func DefaultConfig() *Config {
	return &Config{
		Weights: DefaultWeights(),

		LoudnessTarget:     -16,
		LoudnessMargin:     8,
		ClipLevel:          -1,
		ClipWindow:         1,
		ClipPenalty:        0.7,
		DeepSilenceFloor:   -40,
		DeepSilencePenalty: 0.5,
		LoudnessFloor:      -1,

		TempoMaxDiff: 6,

		InitialFlowReward: 0.5,
		FlowMaxDelta:      0.4,

		CrossfaderMinMove:   0.02,
		CrossfaderMaxMove:   0.3,
		CrossfaderOvershoot: -0.5,
		BeatBonus:           0.3,

		SpectralMaxAllowed: 0.8,

		SilenceFloor:    -55,
		SilencePenalty:  0.7,
		ClipCeiling:     -3,
		ClippingPenalty: 0.5,
	}
}

// Validate checks divisors and weights
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	switch {
	case c.LoudnessMargin <= 0:
		return fmt.Errorf("%w: loudness_margin must be positive", ErrInvalidConfig)
	case c.TempoMaxDiff <= 0:
		return fmt.Errorf("%w: tempo_max_diff must be positive", ErrInvalidConfig)
	case c.FlowMaxDelta <= 0:
		return fmt.Errorf("%w: flow_max_delta must be positive", ErrInvalidConfig)
	case c.CrossfaderMaxMove <= 0 || c.CrossfaderMinMove < 0 || c.CrossfaderMinMove > c.CrossfaderMaxMove:
		return fmt.Errorf("%w: crossfader moves must satisfy 0 <= min <= max, max > 0", ErrInvalidConfig)
	case c.SpectralMaxAllowed <= 0:
		return fmt.Errorf("%w: spectral_max_allowed must be positive", ErrInvalidConfig)
	case c.ClipWindow < 0:
		return fmt.Errorf("%w: clip_window cannot be negative", ErrInvalidConfig)
	}
	return nil
}
