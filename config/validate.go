package config

import (
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-mix/logging"
	"github.com/RyanBlaney/sonido-mix/policy"
)

// ErrInvalid is returned when a configuration value is unusable
var ErrInvalid = errors.New("invalid configuration")

// Validate ensures the configuration contains usable values. Subsystem
// settings are checked by converting them and running the subsystem's own
// validation.
func (c *Config) Validate() error {
	if err := c.validateAudio(); err != nil {
		return err
	}

	if _, err := policy.ParseMode(c.Policy.Mode); err != nil {
		return fmt.Errorf("%w: policy.mode: %v", ErrInvalid, err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalid, err)
	}
	switch c.Logging.Colors {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("%w: logging.colors must be auto, always or never, got %q", ErrInvalid, c.Logging.Colors)
	}

	ext, err := c.ExtractorConfig(c.Audio.SampleRate)
	if err != nil {
		return err
	}
	if err := ext.Validate(); err != nil {
		return fmt.Errorf("extractor: %w", err)
	}

	pol, err := c.PolicyConfig()
	if err != nil {
		return err
	}
	if err := pol.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if err := c.RewardConfig().Validate(); err != nil {
		return fmt.Errorf("reward: %w", err)
	}

	if c.Persistence.Enabled && c.Persistence.ModelDir == "" {
		return fmt.Errorf("%w: persistence.model_dir must be set when persistence is enabled", ErrInvalid)
	}
	if err := c.SessionConfig().Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("%w: audio.sample_rate must be positive", ErrInvalid)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("%w: audio.block_size must be positive", ErrInvalid)
	}
	if c.Audio.WAVPath == "" && c.Audio.SyntheticBPM <= 0 {
		return fmt.Errorf("%w: audio.synthetic_bpm must be positive", ErrInvalid)
	}
	return nil
}
