package config

import (
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-mix/algorithms/spectral"
	"github.com/RyanBlaney/sonido-mix/capture"
	"github.com/RyanBlaney/sonido-mix/features"
	"github.com/RyanBlaney/sonido-mix/logging"
	"github.com/RyanBlaney/sonido-mix/policy"
	"github.com/RyanBlaney/sonido-mix/reward"
	"github.com/RyanBlaney/sonido-mix/session"
)

// ExtractorConfig builds the extractor settings for a source running at
// sampleRate.
func (c *Config) ExtractorConfig(sampleRate int) (*features.Config, error) {
	e := c.Extractor
	if len(e.Bands) != 3 {
		return nil, fmt.Errorf("%w: extractor.bands needs 3 ranges, got %d", ErrInvalid, len(e.Bands))
	}

	out := &features.Config{
		SampleRate:       sampleRate,
		WindowSeconds:    e.WindowSeconds,
		BlockSize:        e.BlockSize,
		TickInterval:     time.Duration(e.TickIntervalMS) * time.Millisecond,
		MinTransformSize: e.MinTransformSize,
		BeatThreshold:    e.BeatThreshold,
		BeatWindowBlocks: e.BeatWindowBlocks,
		RefractoryPeriod: time.Duration(e.RefractoryMS) * time.Millisecond,
		BeatHistorySize:  e.BeatHistorySize,
		RolloffPercent:   e.RolloffPercent,
		DCBlock:          e.DCBlock,
	}
	for i, b := range e.Bands {
		if len(b) != 2 {
			return nil, fmt.Errorf("%w: extractor.bands[%d] needs [low, high]", ErrInvalid, i)
		}
		out.Bands[i] = spectral.Band{Low: b[0], High: b[1]}
	}
	return out, nil
}

// PolicyConfig builds the settings shared by every decision strategy
func (c *Config) PolicyConfig() (*policy.Config, error) {
	p := c.Policy
	if len(p.OptimalLoudness) != 2 {
		return nil, fmt.Errorf("%w: policy.optimal_loudness needs [low, high]", ErrInvalid)
	}
	return &policy.Config{
		OptimalLoudness:   [2]float64{p.OptimalLoudness[0], p.OptimalLoudness[1]},
		VolumeStep:        p.VolumeStep,
		EQStep:            p.EQStep,
		BrightCentroid:    p.BrightCentroid,
		DarkCentroid:      p.DarkCentroid,
		TransitionLowXF:   p.TransitionLowXF,
		TransitionHighXF:  p.TransitionHighXF,
		EffectProbability: p.EffectProbability,
		EffectIDs:         append([]int(nil), p.EffectIDs...),
		LearningRate:      p.LearningRate,
		DiscountFactor:    p.DiscountFactor,
		ExplorationRate:   p.ExplorationRate,
		ExplorationDecay:  p.ExplorationDecay,
		MinExploration:    p.MinExploration,
		HistorySize:       p.HistorySize,
		ExperienceSize:    p.ExperienceSize,
		MaxStates:         p.MaxStates,
		Seed:              p.Seed,
	}, nil
}

// PolicyMode returns the configured decision strategy
func (c *Config) PolicyMode() policy.Mode {
	mode, err := policy.ParseMode(c.Policy.Mode)
	if err != nil {
		return policy.ModeHeuristic
	}
	return mode
}

func (c *Config) RewardConfig() *reward.Config {
	r := c.Reward
	return &reward.Config{
		Weights: reward.Weights{
			Mix:             r.Weights.Mix,
			TempoMatch:      r.Weights.TempoMatch,
			EnergyFlow:      r.Weights.EnergyFlow,
			Crossfader:      r.Weights.Crossfader,
			SpectralBalance: r.Weights.SpectralBalance,
		},
		LoudnessTarget:      r.LoudnessTarget,
		LoudnessMargin:      r.LoudnessMargin,
		ClipLevel:           r.ClipLevel,
		ClipWindow:          r.ClipWindow,
		ClipPenalty:         r.ClipPenalty,
		DeepSilenceFloor:    r.DeepSilenceFloor,
		DeepSilencePenalty:  r.DeepSilencePenalty,
		LoudnessFloor:       r.LoudnessFloor,
		TempoMaxDiff:        r.TempoMaxDiff,
		InitialFlowReward:   r.InitialFlowReward,
		FlowMaxDelta:        r.FlowMaxDelta,
		CrossfaderMinMove:   r.CrossfaderMinMove,
		CrossfaderMaxMove:   r.CrossfaderMaxMove,
		CrossfaderOvershoot: r.CrossfaderOvershoot,
		BeatBonus:           r.BeatBonus,
		SpectralMaxAllowed:  r.SpectralMaxAllowed,
		SilenceFloor:        r.SilenceFloor,
		SilencePenalty:      r.SilencePenalty,
		ClipCeiling:         r.ClipCeiling,
		ClippingPenalty:     r.ClippingPenalty,
	}
}

func (c *Config) SessionConfig() *session.Config {
	return &session.Config{
		DecisionInterval:   time.Duration(c.Session.DecisionIntervalMS) * time.Millisecond,
		ShutdownTimeout:    time.Duration(c.Session.ShutdownTimeoutMS) * time.Millisecond,
		ModelDir:           c.Persistence.ModelDir,
		PersistenceEnabled: c.Persistence.Enabled,
		StopOnSourceEnd:    c.Session.StopOnSourceEnd,
	}
}

// WAVConfig returns replay settings for a WAV source
func (c *Config) WAVConfig() capture.WAVConfig {
	return capture.WAVConfig{
		BlockSize: c.Audio.BlockSize,
		Realtime:  c.Audio.Realtime,
		Loop:      c.Audio.Loop,
	}
}

// SyntheticConfig returns generator settings. A zero duration streams until
// the context ends.
func (c *Config) SyntheticConfig(duration time.Duration) capture.SyntheticConfig {
	return capture.SyntheticConfig{
		SampleRate: c.Audio.SampleRate,
		BlockSize:  c.Audio.BlockSize,
		BPM:        c.Audio.SyntheticBPM,
		Duration:   duration,
		Seed:       c.Audio.Seed,
		Realtime:   c.Audio.Realtime,
	}
}

// LogLevel returns the configured log level, falling back to info
func (c *Config) LogLevel() logging.Level {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.InfoLevel
	}
	return level
}
