package console

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RyanBlaney/sonido-mix/algorithms/common"
	"github.com/RyanBlaney/sonido-mix/logging"
)

// ErrInvalidRecommendation is returned for recommendations carrying
// non-finite values or an unknown effect
var ErrInvalidRecommendation = errors.New("invalid recommendation")

const (
	nominalVolume = 0.8
	neutralEQ     = 0.5
	// MaxEffectID is the highest effect slot the console exposes
	MaxEffectID = 3
)

// Simulated is an in-memory console. Volumes are set relative to a 0.8
// nominal level and EQ relative to a neutral 0.5 on the active deck, the
// way a hardware mapping would translate deltas into absolute positions.
type Simulated struct {
	mu sync.Mutex

	state      State
	volume     [2]float64
	eq         [2]map[EQBand]float64
	lastEffect int
	applied    int
	logger     logging.Logger
}

// NewSimulated creates a simulated console starting from state
func NewSimulated(state State) *Simulated {
	s := &Simulated{
		state:  state,
		volume: [2]float64{nominalVolume, nominalVolume},
		logger: logging.WithFields(logging.Fields{
			"component": "simulated_console",
		}),
	}
	for d := range s.eq {
		s.eq[d] = map[EQBand]float64{EQLow: neutralEQ, EQMid: neutralEQ, EQHigh: neutralEQ}
	}
	return s
}

// State returns the current console state
func (s *Simulated) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState replaces the console state
func (s *Simulated) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Apply translates rec into console positions
func (s *Simulated) Apply(ctx context.Context, rec Recommendation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active := ActiveDeck(s.state.CrossfaderPosition)

	if rec.CrossfadeAdjust != 0 {
		s.state.CrossfaderPosition = common.Clamp(s.state.CrossfaderPosition+rec.CrossfadeAdjust, 0, 1)
	}
	if rec.VolumeAdjustA != 0 {
		s.volume[DeckA] = common.Clamp(nominalVolume+rec.VolumeAdjustA, 0, 1)
	}
	if rec.VolumeAdjustB != 0 {
		s.volume[DeckB] = common.Clamp(nominalVolume+rec.VolumeAdjustB, 0, 1)
	}
	for band, delta := range rec.EQAdjust {
		s.eq[active][band] = common.Clamp(neutralEQ+delta, 0, 1)
	}
	if rec.EffectTrigger != 0 {
		s.lastEffect = rec.EffectTrigger
	}
	if rec.TransitionNow {
		s.startTransition(active)
	}

	s.applied++
	return nil
}

// startTransition starts the deck opposite to active and syncs its tempo
func (s *Simulated) startTransition(active Deck) {
	if active == DeckA {
		s.state.DeckBPlaying = true
		if s.state.DeckABPM > 0 {
			s.state.DeckBBPM = s.state.DeckABPM
		}
	} else {
		s.state.DeckAPlaying = true
		if s.state.DeckBBPM > 0 {
			s.state.DeckABPM = s.state.DeckBBPM
		}
	}

	s.logger.Debug("Transition started", logging.Fields{
		"from": active.String(),
	})
}

func validate(rec Recommendation) error {
	values := []float64{rec.CrossfadeAdjust, rec.VolumeAdjustA, rec.VolumeAdjustB}
	for band, v := range rec.EQAdjust {
		if _, err := ParseEQBand(string(band)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecommendation, err)
		}
		values = append(values, v)
	}
	for _, v := range values {
		if !finite(v) {
			return fmt.Errorf("%w: non-finite adjustment", ErrInvalidRecommendation)
		}
	}
	if rec.EffectTrigger < 0 || rec.EffectTrigger > MaxEffectID {
		return fmt.Errorf("%w: effect %d out of range", ErrInvalidRecommendation, rec.EffectTrigger)
	}
	return nil
}

// Volume returns the absolute volume of a deck
func (s *Simulated) Volume(d Deck) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume[d]
}

// EQ returns the absolute EQ position of a deck band
func (s *Simulated) EQ(d Deck, band EQBand) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eq[d][band]
}

// LastEffect returns the most recently triggered effect, 0 if none
func (s *Simulated) LastEffect() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEffect
}

// Applied returns the number of recommendations applied
func (s *Simulated) Applied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}
