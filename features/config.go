package features

import (
	"errors"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-mix/algorithms/spectral"
)

// ErrInvalidConfig is returned when an extractor configuration cannot be used
var ErrInvalidConfig = errors.New("invalid extractor config")

// Config holds configuration for the feature extractor
type Config struct {
	SampleRate       int              `json:"sample_rate"`
	WindowSeconds    float64          `json:"window_seconds"`     // ring buffer length
	BlockSize        int              `json:"block_size"`         // samples analysed per tick
	TickInterval     time.Duration    `json:"tick_interval"`      // analysis cadence
	MinTransformSize int              `json:"min_transform_size"` // spectral step needs at least this many samples
	BeatThreshold    float64          `json:"beat_threshold"`
	BeatWindowBlocks int              `json:"beat_window_blocks"` // trailing blocks forming the beat reference
	RefractoryPeriod time.Duration    `json:"refractory_period"`
	BeatHistorySize  int              `json:"beat_history_size"`
	RolloffPercent   float64          `json:"rolloff_percent"`
	Bands            [3]spectral.Band `json:"bands"` // low, mid, high
	DCBlock          bool             `json:"dc_block"`
}

// DefaultConfig returns the default extractor configuration
func DefaultConfig() *Config {
	return &Config{
		SampleRate:       44100,
		WindowSeconds:    5,
		BlockSize:        2048,
		TickInterval:     100 * time.Millisecond,
		MinTransformSize: 2048,
		BeatThreshold:    1.5,
		BeatWindowBlocks: 3,
		RefractoryPeriod: 300 * time.Millisecond,
		BeatHistorySize:  8,
		RolloffPercent:   spectral.DefaultRolloffPercent,
		Bands: [3]spectral.Band{
			{Low: 20, High: 250},
			{Low: 250, High: 2000},
			{Low: 2000, High: 8000},
		},
		DCBlock: false,
	}
}

// Capacity returns the ring buffer capacity in samples
func (c *Config) Capacity() int {
	return int(float64(c.SampleRate) * c.WindowSeconds)
}

// Validate checks the configuration for values the extractor cannot run with
func (c *Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample_rate must be positive", ErrInvalidConfig)
	case c.BlockSize < 2:
		return fmt.Errorf("%w: block_size must be at least 2", ErrInvalidConfig)
	case c.BeatWindowBlocks < 1:
		return fmt.Errorf("%w: beat_window_blocks must be at least 1", ErrInvalidConfig)
	case c.Capacity() < (1+c.BeatWindowBlocks)*c.BlockSize:
		return fmt.Errorf("%w: window of %d samples cannot hold %d blocks of %d",
			ErrInvalidConfig, c.Capacity(), 1+c.BeatWindowBlocks, c.BlockSize)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick_interval must be positive", ErrInvalidConfig)
	case c.BeatThreshold <= 0:
		return fmt.Errorf("%w: beat_threshold must be positive", ErrInvalidConfig)
	case c.RefractoryPeriod < 0:
		return fmt.Errorf("%w: refractory_period cannot be negative", ErrInvalidConfig)
	case c.BeatHistorySize < 4:
		return fmt.Errorf("%w: beat_history_size must hold at least 4 beats", ErrInvalidConfig)
	case c.RolloffPercent <= 0 || c.RolloffPercent > 1:
		return fmt.Errorf("%w: rolloff_percent must be in (0, 1]", ErrInvalidConfig)
	}

	for i, b := range c.Bands {
		if b.Low < 0 || b.High <= b.Low {
			return fmt.Errorf("%w: band %d range [%v, %v) is empty", ErrInvalidConfig, i, b.Low, b.High)
		}
		if i > 0 && b.Low < c.Bands[i-1].High {
			return fmt.Errorf("%w: band %d overlaps band %d", ErrInvalidConfig, i, i-1)
		}
	}
	return nil
}
