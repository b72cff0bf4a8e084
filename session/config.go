package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned for unusable session settings
var ErrInvalidConfig = errors.New("invalid session config")

// Config controls the decision loop
type Config struct {
	DecisionInterval   time.Duration `json:"decision_interval"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout"` // bound on joining capture and analysis
	ModelDir           string        `json:"model_dir"`
	PersistenceEnabled bool          `json:"persistence_enabled"`
	StopOnSourceEnd    bool          `json:"stop_on_source_end"` // end the session when a finite source is exhausted
}

// DefaultConfig returns a one-second decision cadence with persistence on
func DefaultConfig() *Config {
	return &Config{
		DecisionInterval:   time.Second,
		ShutdownTimeout:    2 * time.Second,
		ModelDir:           "models",
		PersistenceEnabled: true,
		StopOnSourceEnd:    true,
	}
}

// Validate checks the loop timings
func (c *Config) Validate() error {
	switch {
	case c.DecisionInterval <= 0:
		return fmt.Errorf("%w: decision_interval must be positive", ErrInvalidConfig)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
