package config

import (
	"github.com/RyanBlaney/sonido-mix/capture"
	"github.com/RyanBlaney/sonido-mix/features"
	"github.com/RyanBlaney/sonido-mix/policy"
	"github.com/RyanBlaney/sonido-mix/reward"
	"github.com/RyanBlaney/sonido-mix/session"
)

// Default returns a Config populated with the defaults of every subsystem.
func Default() Config {
	syn := capture.DefaultSyntheticConfig()
	ext := features.DefaultConfig()
	pol := policy.DefaultConfig()
	rew := reward.DefaultConfig()
	ses := session.DefaultConfig()

	bands := make([][]float64, len(ext.Bands))
	for i, b := range ext.Bands {
		bands[i] = []float64{b.Low, b.High}
	}

	return Config{
		Audio: Audio{
			SampleRate:   syn.SampleRate,
			BlockSize:    syn.BlockSize,
			Loop:         false,
			Realtime:     true,
			SyntheticBPM: syn.BPM,
			Seed:         syn.Seed,
		},
		Extractor: Extractor{
			WindowSeconds:    ext.WindowSeconds,
			BlockSize:        ext.BlockSize,
			TickIntervalMS:   int(ext.TickInterval.Milliseconds()),
			MinTransformSize: ext.MinTransformSize,
			BeatThreshold:    ext.BeatThreshold,
			BeatWindowBlocks: ext.BeatWindowBlocks,
			RefractoryMS:     int(ext.RefractoryPeriod.Milliseconds()),
			BeatHistorySize:  ext.BeatHistorySize,
			RolloffPercent:   ext.RolloffPercent,
			Bands:            bands,
			DCBlock:          ext.DCBlock,
		},
		Policy: Policy{
			Mode:              string(policy.ModeHeuristic),
			OptimalLoudness:   []float64{pol.OptimalLoudness[0], pol.OptimalLoudness[1]},
			VolumeStep:        pol.VolumeStep,
			EQStep:            pol.EQStep,
			BrightCentroid:    pol.BrightCentroid,
			DarkCentroid:      pol.DarkCentroid,
			TransitionLowXF:   pol.TransitionLowXF,
			TransitionHighXF:  pol.TransitionHighXF,
			EffectProbability: pol.EffectProbability,
			EffectIDs:         append([]int(nil), pol.EffectIDs...),
			LearningRate:      pol.LearningRate,
			DiscountFactor:    pol.DiscountFactor,
			ExplorationRate:   pol.ExplorationRate,
			ExplorationDecay:  pol.ExplorationDecay,
			MinExploration:    pol.MinExploration,
			HistorySize:       pol.HistorySize,
			ExperienceSize:    pol.ExperienceSize,
			MaxStates:         pol.MaxStates,
			Seed:              pol.Seed,
		},
		Reward: Reward{
			Weights: RewardWeights{
				Mix:             rew.Weights.Mix,
				TempoMatch:      rew.Weights.TempoMatch,
				EnergyFlow:      rew.Weights.EnergyFlow,
				Crossfader:      rew.Weights.Crossfader,
				SpectralBalance: rew.Weights.SpectralBalance,
			},
			LoudnessTarget:      rew.LoudnessTarget,
			LoudnessMargin:      rew.LoudnessMargin,
			ClipLevel:           rew.ClipLevel,
			ClipWindow:          rew.ClipWindow,
			ClipPenalty:         rew.ClipPenalty,
			DeepSilenceFloor:    rew.DeepSilenceFloor,
			DeepSilencePenalty:  rew.DeepSilencePenalty,
			LoudnessFloor:       rew.LoudnessFloor,
			TempoMaxDiff:        rew.TempoMaxDiff,
			InitialFlowReward:   rew.InitialFlowReward,
			FlowMaxDelta:        rew.FlowMaxDelta,
			CrossfaderMinMove:   rew.CrossfaderMinMove,
			CrossfaderMaxMove:   rew.CrossfaderMaxMove,
			CrossfaderOvershoot: rew.CrossfaderOvershoot,
			BeatBonus:           rew.BeatBonus,
			SpectralMaxAllowed:  rew.SpectralMaxAllowed,
			SilenceFloor:        rew.SilenceFloor,
			SilencePenalty:      rew.SilencePenalty,
			ClipCeiling:         rew.ClipCeiling,
			ClippingPenalty:     rew.ClippingPenalty,
		},
		Session: Session{
			DecisionIntervalMS: int(ses.DecisionInterval.Milliseconds()),
			ShutdownTimeoutMS:  int(ses.ShutdownTimeout.Milliseconds()),
			StopOnSourceEnd:    ses.StopOnSourceEnd,
		},
		Persistence: Persistence{
			Enabled:  ses.PersistenceEnabled,
			ModelDir: "~/.local/share/sonido-mix/models",
		},
		Logging: Logging{
			Level:  "info",
			Colors: "auto",
		},
	}
}
