// Package policy turns feature snapshots and console state into mixing
// recommendations. Three strategies share one interface: a fixed rule
// table, an external classifier mapped onto the action vocabulary, and
// tabular Q-learning.
package policy

import (
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-mix/console"
	"github.com/RyanBlaney/sonido-mix/features"
)

// Mode selects a decision strategy
type Mode string

const (
	ModeHeuristic     Mode = "heuristic"
	ModeClassifier    Mode = "classifier"
	ModeReinforcement Mode = "reinforcement"
)

// ParseMode maps a configured mode name onto a Mode. "supervised" is
// accepted as an alias for the classifier strategy.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeHeuristic, ModeClassifier, ModeReinforcement:
		return m, nil
	case "supervised":
		return ModeClassifier, nil
	case "":
		return ModeHeuristic, nil
	}
	return "", fmt.Errorf("%w: unknown policy mode %q", ErrInvalidConfig, s)
}

// Policy produces one recommendation per decision cycle
type Policy interface {
	Decide(snap features.Snapshot, state console.State) console.Recommendation
	Mode() Mode
	Statistics() Statistics
}

// Learner is implemented by policies that adapt to the reward signal.
// Learn reports whether an update was applied.
type Learner interface {
	Learn(reward float64) bool
}

// Persistable is implemented by policies whose learned state survives
// across sessions
type Persistable interface {
	Export() Model
	Import(Model)
}

// Statistics summarises a policy's activity
type Statistics struct {
	Mode            Mode    `json:"mode"`
	Decisions       uint64  `json:"decisions"`
	Fallbacks       uint64  `json:"fallbacks,omitempty"`
	ExperienceCount int     `json:"experience_count"`
	ExplorationRate float64 `json:"exploration_rate"`
	TableSize       int     `json:"q_table_size"`
	Rewards         int     `json:"rewards"`
	AvgReward       float64 `json:"avg_reward"`
	TotalReward     float64 `json:"total_reward"`
	RewardTrend     float64 `json:"reward_trend"`
}

// New builds the strategy for mode. The classifier is only consulted in
// classifier mode and may be nil, in which case every decision falls back
// to the rule table.
func New(mode Mode, config *Config, classifier Classifier) (Policy, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch mode {
	case ModeHeuristic:
		return NewHeuristic(config)
	case ModeClassifier:
		h, err := NewHeuristic(config)
		if err != nil {
			return nil, err
		}
		return NewClassifierPolicy(classifier, h), nil
	case ModeReinforcement:
		return NewReinforcement(config)
	}
	return nil, fmt.Errorf("%w: unknown policy mode %q", ErrInvalidConfig, mode)
}
