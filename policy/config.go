package policy

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-mix/console"
)

// ErrInvalidConfig is returned for unusable policy settings
var ErrInvalidConfig = errors.New("invalid policy config")

// Config holds the parameters of every decision strategy
type Config struct {
	// Heuristic rule table
	OptimalLoudness   [2]float64 `json:"optimal_loudness"` // dB, [low, high]
	VolumeStep        float64    `json:"volume_step"`
	EQStep            float64    `json:"eq_step"`
	BrightCentroid    float64    `json:"bright_centroid"` // Hz
	DarkCentroid      float64    `json:"dark_centroid"`   // Hz
	TransitionLowXF   float64    `json:"transition_low_xf"`
	TransitionHighXF  float64    `json:"transition_high_xf"`
	EffectProbability float64    `json:"effect_probability"`
	EffectIDs         []int      `json:"effect_ids"`

	// Tabular Q-learning
	LearningRate     float64 `json:"learning_rate"`
	DiscountFactor   float64 `json:"discount_factor"`
	ExplorationRate  float64 `json:"exploration_rate"`
	ExplorationDecay float64 `json:"exploration_decay"`
	MinExploration   float64 `json:"min_exploration"`
	HistorySize      int     `json:"history_size"`
	ExperienceSize   int     `json:"experience_size"`
	MaxStates        int     `json:"max_states"` // 0 = unbounded

	Seed uint64 `json:"seed"`
}

// DefaultConfig returns the reference policy configuration
func DefaultConfig() *Config {
	return &Config{
		OptimalLoudness:   [2]float64{-15, -6},
		VolumeStep:        0.05,
		EQStep:            0.1,
		BrightCentroid:    3000,
		DarkCentroid:      1000,
		TransitionLowXF:   0.3,
		TransitionHighXF:  0.7,
		EffectProbability: 0.15,
		EffectIDs:         []int{1, 2, 3},

		LearningRate:     0.1,
		DiscountFactor:   0.95,
		ExplorationRate:  0.2,
		ExplorationDecay: 0.995,
		MinExploration:   0.01,
		HistorySize:      100,
		ExperienceSize:   1000,
		MaxStates:        0,

		Seed: 42,
	}
}

// Validate checks ranges for every strategy's parameters
func (c *Config) Validate() error {
	if c.OptimalLoudness[0] >= c.OptimalLoudness[1] {
		return fmt.Errorf("%w: optimal_loudness low %v must be below high %v",
			ErrInvalidConfig, c.OptimalLoudness[0], c.OptimalLoudness[1])
	}
	if c.DarkCentroid > c.BrightCentroid {
		return fmt.Errorf("%w: dark_centroid above bright_centroid", ErrInvalidConfig)
	}
	for name, v := range map[string]float64{
		"volume_step": c.VolumeStep,
		"eq_step":     c.EQStep,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s = %v", ErrInvalidConfig, name, v)
		}
	}
	if !inUnit(c.EffectProbability) {
		return fmt.Errorf("%w: effect_probability must be in [0, 1]", ErrInvalidConfig)
	}
	if c.EffectProbability > 0 && len(c.EffectIDs) == 0 {
		return fmt.Errorf("%w: effect_ids empty with non-zero effect_probability", ErrInvalidConfig)
	}
	for _, id := range c.EffectIDs {
		if id < 1 || id > console.MaxEffectID {
			return fmt.Errorf("%w: effect id %d outside 1..%d", ErrInvalidConfig, id, console.MaxEffectID)
		}
	}

	switch {
	case c.LearningRate <= 0 || c.LearningRate > 1:
		return fmt.Errorf("%w: learning_rate must be in (0, 1]", ErrInvalidConfig)
	case !inUnit(c.DiscountFactor):
		return fmt.Errorf("%w: discount_factor must be in [0, 1]", ErrInvalidConfig)
	case !inUnit(c.ExplorationRate):
		return fmt.Errorf("%w: exploration_rate must be in [0, 1]", ErrInvalidConfig)
	case c.ExplorationDecay <= 0 || c.ExplorationDecay > 1:
		return fmt.Errorf("%w: exploration_decay must be in (0, 1]", ErrInvalidConfig)
	case !inUnit(c.MinExploration) || c.MinExploration > c.ExplorationRate:
		return fmt.Errorf("%w: min_exploration must be in [0, exploration_rate]", ErrInvalidConfig)
	case c.HistorySize < 2:
		return fmt.Errorf("%w: history_size must be at least 2", ErrInvalidConfig)
	case c.ExperienceSize < 1:
		return fmt.Errorf("%w: experience_size must be positive", ErrInvalidConfig)
	case c.MaxStates < 0 || c.MaxStates == 1:
		return fmt.Errorf("%w: max_states must be 0 (unbounded) or at least 2", ErrInvalidConfig)
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
