package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Audio describes the capture source
type Audio struct {
	SampleRate   int     `toml:"sample_rate"`
	BlockSize    int     `toml:"block_size"` // samples per capture callback
	WAVPath      string  `toml:"wav_path"`   // empty selects the synthetic source
	Loop         bool    `toml:"loop"`
	Realtime     bool    `toml:"realtime"`
	SyntheticBPM float64 `toml:"synthetic_bpm"`
	Seed         uint64  `toml:"seed"`
}

// Extractor contains feature extraction settings
type Extractor struct {
	WindowSeconds    float64     `toml:"window_seconds"`
	BlockSize        int         `toml:"block_size"`
	TickIntervalMS   int         `toml:"tick_interval_ms"`
	MinTransformSize int         `toml:"min_transform_size"`
	BeatThreshold    float64     `toml:"beat_threshold"`
	BeatWindowBlocks int         `toml:"beat_window_blocks"`
	RefractoryMS     int         `toml:"refractory_ms"`
	BeatHistorySize  int         `toml:"beat_history_size"`
	RolloffPercent   float64     `toml:"rolloff_percent"`
	Bands            [][]float64 `toml:"bands"` // [[low_lo, low_hi], [mid_lo, mid_hi], [high_lo, high_hi]] Hz
	DCBlock          bool        `toml:"dc_block"`
}

// Policy contains decision strategy settings
type Policy struct {
	Mode              string    `toml:"mode"`
	OptimalLoudness   []float64 `toml:"optimal_loudness"`
	VolumeStep        float64   `toml:"volume_step"`
	EQStep            float64   `toml:"eq_step"`
	BrightCentroid    float64   `toml:"bright_centroid"`
	DarkCentroid      float64   `toml:"dark_centroid"`
	TransitionLowXF   float64   `toml:"transition_low_xf"`
	TransitionHighXF  float64   `toml:"transition_high_xf"`
	EffectProbability float64   `toml:"effect_probability"`
	EffectIDs         []int     `toml:"effect_ids"`
	LearningRate      float64   `toml:"learning_rate"`
	DiscountFactor    float64   `toml:"discount_factor"`
	ExplorationRate   float64   `toml:"exploration_rate"`
	ExplorationDecay  float64   `toml:"exploration_decay"`
	MinExploration    float64   `toml:"min_exploration"`
	HistorySize       int       `toml:"history_size"`
	ExperienceSize    int       `toml:"experience_size"`
	MaxStates         int       `toml:"max_states"`
	Seed              uint64    `toml:"seed"`
}

// RewardWeights scale the sub-rewards
type RewardWeights struct {
	Mix             float64 `toml:"mix"`
	TempoMatch      float64 `toml:"tempo_match"`
	EnergyFlow      float64 `toml:"energy_flow"`
	Crossfader      float64 `toml:"crossfader"`
	SpectralBalance float64 `toml:"spectral_balance"`
}

// Reward contains the reward engine constants
type Reward struct {
	Weights             RewardWeights `toml:"weights"`
	LoudnessTarget      float64       `toml:"loudness_target"`
	LoudnessMargin      float64       `toml:"loudness_margin"`
	ClipLevel           float64       `toml:"clip_level"`
	ClipWindow          float64       `toml:"clip_window"`
	ClipPenalty         float64       `toml:"clip_penalty"`
	DeepSilenceFloor    float64       `toml:"deep_silence_floor"`
	DeepSilencePenalty  float64       `toml:"deep_silence_penalty"`
	LoudnessFloor       float64       `toml:"loudness_floor"`
	TempoMaxDiff        float64       `toml:"tempo_max_diff"`
	InitialFlowReward   float64       `toml:"initial_flow_reward"`
	FlowMaxDelta        float64       `toml:"flow_max_delta"`
	CrossfaderMinMove   float64       `toml:"crossfader_min_move"`
	CrossfaderMaxMove   float64       `toml:"crossfader_max_move"`
	CrossfaderOvershoot float64       `toml:"crossfader_overshoot"`
	BeatBonus           float64       `toml:"beat_bonus"`
	SpectralMaxAllowed  float64       `toml:"spectral_max_allowed"`
	SilenceFloor        float64       `toml:"silence_floor"`
	SilencePenalty      float64       `toml:"silence_penalty"`
	ClipCeiling         float64       `toml:"clip_ceiling"`
	ClippingPenalty     float64       `toml:"clipping_penalty"`
}

// Session contains decision loop timing
type Session struct {
	DecisionIntervalMS int  `toml:"decision_interval_ms"`
	ShutdownTimeoutMS  int  `toml:"shutdown_timeout_ms"`
	StopOnSourceEnd    bool `toml:"stop_on_source_end"`
}

// Persistence controls where learned models are kept
type Persistence struct {
	Enabled  bool   `toml:"enabled"`
	ModelDir string `toml:"model_dir"`
}

// Logging contains configuration for log output
type Logging struct {
	Level  string `toml:"level"`
	Colors string `toml:"colors"` // auto, always or never
}

// Config encapsulates all configuration values for sonido-mix.
//
// Configuration sections by subsystem:
//   - Audio: capture source (WAV replay or synthetic pulse track)
//   - Extractor: buffering, analysis cadence and beat detection
//   - Policy: decision strategy and its parameters
//   - Reward: reward weights and thresholds
//   - Session: decision loop timing
//   - Persistence: model directory for learned state
//   - Logging: log level and colour output
type Config struct {
	Audio       Audio       `toml:"audio"`
	Extractor   Extractor   `toml:"extractor"`
	Policy      Policy      `toml:"policy"`
	Reward      Reward      `toml:"reward"`
	Session     Session     `toml:"session"`
	Persistence Persistence `toml:"persistence"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/sonido-mix/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error: the defaults are returned with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sonido-mix.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// ExpandPath expands a leading ~ and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
