package console

import (
	"context"
	"fmt"
	"maps"
	"math"
	"strings"
)

// Deck identifies one of the two console decks
type Deck int

const (
	DeckA Deck = iota
	DeckB
)

func (d Deck) String() string {
	if d == DeckA {
		return "A"
	}
	return "B"
}

// ActiveDeck returns the deck the crossfader favours: A below centre, else B
func ActiveDeck(crossfader float64) Deck {
	if crossfader < 0.5 {
		return DeckA
	}
	return DeckB
}

// EQBand names an equaliser band
type EQBand string

const (
	EQLow  EQBand = "low"
	EQMid  EQBand = "mid"
	EQHigh EQBand = "high"
)

// EQBands lists the bands in low to high order
var EQBands = []EQBand{EQLow, EQMid, EQHigh}

// ParseEQBand maps a band name onto an EQBand
func ParseEQBand(s string) (EQBand, error) {
	switch b := EQBand(strings.ToLower(s)); b {
	case EQLow, EQMid, EQHigh:
		return b, nil
	}
	return "", fmt.Errorf("unknown eq band %q", s)
}

// State is the console as read once per decision cycle
type State struct {
	CrossfaderPosition float64 `json:"crossfader_position"` // 0 = full A, 1 = full B
	DeckAPlaying       bool    `json:"deck_a_playing"`
	DeckBPlaying       bool    `json:"deck_b_playing"`
	DeckABPM           float64 `json:"deck_a_bpm"`
	DeckBBPM           float64 `json:"deck_b_bpm"`
	MasterVolume       float64 `json:"master_volume"`
}

// DefaultState is a centred crossfader with both decks stopped
func DefaultState() State {
	return State{
		CrossfaderPosition: 0.5,
		MasterVolume:       0.8,
	}
}

// Sanitized treats non-finite readings as unknown: a centred crossfader,
// zero BPM and the nominal master volume
func (s State) Sanitized() State {
	def := DefaultState()
	if !finite(s.CrossfaderPosition) {
		s.CrossfaderPosition = def.CrossfaderPosition
	}
	if !finite(s.DeckABPM) {
		s.DeckABPM = 0
	}
	if !finite(s.DeckBBPM) {
		s.DeckBBPM = 0
	}
	if !finite(s.MasterVolume) {
		s.MasterVolume = def.MasterVolume
	}
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Recommendation is one cycle's worth of logical console adjustments.
// Values are deltas roughly bounded to [-1, 1], not device units.
type Recommendation struct {
	CrossfadeAdjust float64            `json:"crossfade_adjust"`
	VolumeAdjustA   float64            `json:"volume_adjust_a"`
	VolumeAdjustB   float64            `json:"volume_adjust_b"`
	EQAdjust        map[EQBand]float64 `json:"eq_adjust,omitempty"`
	EffectTrigger   int                `json:"effect_trigger,omitempty"` // 0 means no effect
	TransitionNow   bool               `json:"transition_now"`
}

// Clone returns a copy that shares no map with r
func (r Recommendation) Clone() Recommendation {
	out := r
	if r.EQAdjust != nil {
		out.EQAdjust = make(map[EQBand]float64, len(r.EQAdjust))
		maps.Copy(out.EQAdjust, r.EQAdjust)
	}
	return out
}

// IsZero reports whether the recommendation asks for nothing
func (r Recommendation) IsZero() bool {
	if r.CrossfadeAdjust != 0 || r.VolumeAdjustA != 0 || r.VolumeAdjustB != 0 {
		return false
	}
	if r.EffectTrigger != 0 || r.TransitionNow {
		return false
	}
	for _, v := range r.EQAdjust {
		if v != 0 {
			return false
		}
	}
	return true
}

// Controller is the console-control collaborator. It owns device scaling
// and transport; the decision loop only reads State and submits deltas.
type Controller interface {
	State() State
	Apply(ctx context.Context, rec Recommendation) error
}
