package reward

import (
	"sync"

	"github.com/RyanBlaney/sonido-mix/algorithms/common"
	"github.com/RyanBlaney/sonido-mix/console"
	"github.com/RyanBlaney/sonido-mix/features"
	"github.com/RyanBlaney/sonido-mix/logging"
)

// SubRewards are the individually bounded reward terms
type SubRewards struct {
	Loudness        float64 `json:"loudness"`
	QualityBase     float64 `json:"quality_base"`
	Mix             float64 `json:"mix"` // 0.5*loudness + 0.5*quality_base
	TempoMatch      float64 `json:"tempo_match"`
	EnergyFlow      float64 `json:"energy_flow"`
	Crossfader      float64 `json:"crossfader"`
	SpectralBalance float64 `json:"spectral_balance"`
}

// Contributions are the weighted terms that sum to the pre-penalty total
type Contributions struct {
	Mix             float64 `json:"mix"`
	TempoMatch      float64 `json:"tempo_match"`
	EnergyFlow      float64 `json:"energy_flow"`
	Crossfader      float64 `json:"crossfader"`
	SpectralBalance float64 `json:"spectral_balance"`
}

// Penalties are the hard penalties applied after weighting (zero or negative)
type Penalties struct {
	Silence  float64 `json:"silence"`
	Clipping float64 `json:"clipping"`
}

// Breakdown explains one reward computation
type Breakdown struct {
	SubRewards           SubRewards    `json:"sub_rewards"`
	Contributions        Contributions `json:"weighted_contributions"`
	Penalties            Penalties     `json:"penalties"`
	TotalBeforePenalties float64       `json:"total_before_penalties"`
	Total                float64       `json:"total"`
}

// Engine turns a snapshot and console state into a scalar reward. It carries
// the previous cycle's energy and console state, so Score must be called
// exactly once per decision cycle, in order.
type Engine struct {
	config *Config
	logger logging.Logger

	mu        sync.Mutex
	prev      memory
	last      Breakdown
	scored    uint64
	sumReward float64
}

type memory struct {
	valid  bool
	energy float64
	state  console.State
}

// NewEngine creates a reward engine. A nil config uses DefaultConfig.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "reward_engine",
		}),
	}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() *Config {
	return e.config
}

// Score computes the reward and then replaces the carried memory with this
// cycle's energy and console state
func (e *Engine) Score(snap features.Snapshot, state console.State) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.compute(snap, state)

	e.prev = memory{valid: true, energy: snap.Sanitized().Energy, state: state.Sanitized()}
	e.last = b
	e.scored++
	e.sumReward += b.Total

	e.logger.Debug("Reward scored", logging.Fields{
		"total":       b.Total,
		"before":      b.TotalBeforePenalties,
		"loudness":    b.SubRewards.Loudness,
		"tempo_match": b.SubRewards.TempoMatch,
		"crossfader":  b.SubRewards.Crossfader,
	})
	return b.Total
}

// Breakdown computes the reward terms without touching the carried memory
func (e *Engine) Breakdown(snap features.Snapshot, state console.State) Breakdown {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compute(snap, state)
}

// Last returns the breakdown of the most recent Score call
func (e *Engine) Last() Breakdown {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Scored returns how many rewards have been scored and their mean
func (e *Engine) Scored() (count uint64, mean float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scored == 0 {
		return 0, 0
	}
	return e.scored, e.sumReward / float64(e.scored)
}

// Reset forgets the carried energy and console state
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prev = memory{}
	e.last = Breakdown{}
	e.scored = 0
	e.sumReward = 0
}

func (e *Engine) compute(snap features.Snapshot, state console.State) Breakdown {
	c := e.config
	snap = snap.Sanitized()
	state = state.Sanitized()

	var b Breakdown
	sr := &b.SubRewards
	sr.Loudness = c.Loudness(snap.RMSdB)
	sr.QualityBase = QualityBase(snap.QualityScore)
	sr.Mix = 0.5*sr.Loudness + 0.5*sr.QualityBase
	sr.TempoMatch = c.TempoMatch(state.DeckABPM, state.DeckBBPM)
	sr.EnergyFlow = c.EnergyFlow(snap.Energy, e.prev.energy, e.prev.valid)
	sr.Crossfader = c.CrossfaderBehavior(e.prev.state.CrossfaderPosition, state.CrossfaderPosition, e.prev.valid, snap.BeatDetected)
	sr.SpectralBalance = c.SpectralBalance(snap.Balances())

	w := c.Weights
	b.Contributions = Contributions{
		Mix:             w.Mix * sr.Mix,
		TempoMatch:      w.TempoMatch * sr.TempoMatch,
		EnergyFlow:      w.EnergyFlow * sr.EnergyFlow,
		Crossfader:      w.Crossfader * sr.Crossfader,
		SpectralBalance: w.SpectralBalance * sr.SpectralBalance,
	}
	cb := b.Contributions
	b.TotalBeforePenalties = cb.Mix + cb.TempoMatch + cb.EnergyFlow + cb.Crossfader + cb.SpectralBalance

	if snap.RMSdB < c.SilenceFloor {
		b.Penalties.Silence = -c.SilencePenalty
	}
	if snap.RMSdB > c.ClipCeiling {
		b.Penalties.Clipping = -c.ClippingPenalty
	}

	b.Total = common.Clamp(b.TotalBeforePenalties+b.Penalties.Silence+b.Penalties.Clipping, -1, 1)
	return b
}
