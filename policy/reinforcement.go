package policy

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/RyanBlaney/sonido-mix/console"
	"github.com/RyanBlaney/sonido-mix/features"
	"github.com/RyanBlaney/sonido-mix/logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// rewardTrendWindow is the number of recent rewards averaged into the trend
const rewardTrendWindow = 10

// Experience is one learned transition
type Experience struct {
	State  StateKey `json:"state"`
	Action Action   `json:"action"`
	Reward float64  `json:"reward"`
	Next   StateKey `json:"next_state"`
}

// Model is the persisted part of a reinforcement policy
type Model struct {
	Table           map[StateKey]Row
	ExplorationRate float64
}

// Reinforcement is an epsilon-greedy tabular Q-learner. Decide and Learn
// are expected from one decision loop; the table is also safe to read
// concurrently.
type Reinforcement struct {
	config *Config
	table  *QTable
	logger logging.Logger

	mu          sync.Mutex
	rng         *rand.Rand
	exploration float64
	decisions   uint64
	states      []StateKey
	actions     []Action
	rewards     []float64
	experience  []Experience
}

// NewReinforcement creates a learner with an empty table
func NewReinforcement(config *Config) (*Reinforcement, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Reinforcement{
		config:      config,
		table:       NewQTable(config.MaxStates),
		rng:         rand.New(rand.NewPCG(config.Seed, config.Seed)),
		exploration: config.ExplorationRate,
		logger: logging.WithFields(logging.Fields{
			"component": "decision_policy",
			"mode":      string(ModeReinforcement),
		}),
	}, nil
}

// Mode returns ModeReinforcement
func (r *Reinforcement) Mode() Mode {
	return ModeReinforcement
}

// Table returns the learner's Q-table
func (r *Reinforcement) Table() *QTable {
	return r.table
}

// Decide selects an action index epsilon-greedily and records the state
// and action for the next Learn call
func (r *Reinforcement) Decide(snap features.Snapshot, state console.State) console.Recommendation {
	key := NewStateKey(snap, state)

	r.mu.Lock()
	defer r.mu.Unlock()

	var action Action
	explored := r.rng.Float64() < r.exploration
	if explored {
		action = Action(r.rng.IntN(NumActions))
	} else {
		action = r.table.Row(key).Best()
	}

	r.states = pushBounded(r.states, key, r.config.HistorySize)
	r.actions = pushBounded(r.actions, action, r.config.HistorySize)
	r.decisions++

	r.logger.Debug("Action selected", logging.Fields{
		"function": "Decide",
		"state":    key.String(),
		"action":   action.String(),
		"explored": explored,
	})
	return ActionTemplate(action)
}

// LastAction returns the most recently selected action
func (r *Reinforcement) LastAction() (Action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.actions) == 0 {
		return 0, false
	}
	return r.actions[len(r.actions)-1], true
}

// Learn credits reward to the previous state and the latest action, then
// decays exploration. It needs two recorded states; until then, and for
// non-finite rewards, it does nothing and returns false.
func (r *Reinforcement) Learn(reward float64) bool {
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		r.logger.Warn("Ignoring non-finite reward", logging.Fields{"function": "Learn"})
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.states) < 2 || len(r.actions) < 1 {
		return false
	}

	prev := r.states[len(r.states)-2]
	next := r.states[len(r.states)-1]
	action := r.actions[len(r.actions)-1]

	oldQ, newQ := r.table.Update(prev, action, reward, next, r.config.LearningRate, r.config.DiscountFactor)

	r.experience = pushBounded(r.experience, Experience{
		State:  prev,
		Action: action,
		Reward: reward,
		Next:   next,
	}, r.config.ExperienceSize)

	r.exploration = math.Max(r.config.MinExploration, r.exploration*r.config.ExplorationDecay)
	r.rewards = pushBounded(r.rewards, reward, r.config.HistorySize)

	r.logger.Debug("Q-value updated", logging.Fields{
		"function":    "Learn",
		"state":       prev.String(),
		"action":      action.String(),
		"reward":      reward,
		"old_q":       oldQ,
		"new_q":       newQ,
		"exploration": r.exploration,
	})
	return true
}

// ExplorationRate returns the current exploration probability
func (r *Reinforcement) ExplorationRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exploration
}

// Experience returns a copy of the bounded experience history, oldest first
func (r *Reinforcement) Experience() []Experience {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Experience(nil), r.experience...)
}

// Statistics summarises learning progress
func (r *Reinforcement) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Statistics{
		Mode:            ModeReinforcement,
		Decisions:       r.decisions,
		ExperienceCount: len(r.experience),
		ExplorationRate: r.exploration,
		TableSize:       r.table.Len(),
		Rewards:         len(r.rewards),
	}
	if n := len(r.rewards); n > 0 {
		s.TotalReward = floats.Sum(r.rewards)
		s.AvgReward = s.TotalReward / float64(n)
		if n >= rewardTrendWindow {
			s.RewardTrend = stat.Mean(r.rewards[n-rewardTrendWindow:], nil)
		}
	}
	return s
}

// Reset clears the state, action, reward and experience histories. The
// table and exploration rate are kept.
func (r *Reinforcement) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = nil
	r.actions = nil
	r.rewards = nil
	r.experience = nil
}

// Export copies the table and exploration rate for persistence
func (r *Reinforcement) Export() Model {
	r.mu.Lock()
	exploration := r.exploration
	r.mu.Unlock()
	return Model{Table: r.table.Snapshot(), ExplorationRate: exploration}
}

// Import replaces the table and exploration rate. An exploration rate
// outside [MinExploration, 1] keeps the current value.
func (r *Reinforcement) Import(m Model) {
	r.table.Load(m.Table)

	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ExplorationRate >= r.config.MinExploration && m.ExplorationRate <= 1 {
		r.exploration = m.ExplorationRate
	}

	r.logger.Info("Model imported", logging.Fields{
		"states":      len(m.Table),
		"exploration": r.exploration,
	})
}

// pushBounded appends v and drops the oldest entries beyond limit
func pushBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if over := len(s) - limit; over > 0 {
		s = append(s[:0], s[over:]...)
	}
	return s
}
