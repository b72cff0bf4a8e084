package policy

import (
	"fmt"

	"github.com/RyanBlaney/sonido-mix/console"
)

// Action indexes the fixed action vocabulary shared by the classifier and
// reinforcement strategies
type Action int

const (
	ActionCrossfadeUp Action = iota
	ActionCrossfadeDown
	ActionVolumeBoost
	ActionHighBoost
	ActionEffectTransition
)

// NumActions is the size of the action vocabulary and of every Q-table row
const NumActions = 5

const (
	templateCrossfade = 0.1
	templateVolume    = 0.05
	templateEQ        = 0.1
	templateEffect    = 1
)

func (a Action) String() string {
	switch a {
	case ActionCrossfadeUp:
		return "crossfade_up"
	case ActionCrossfadeDown:
		return "crossfade_down"
	case ActionVolumeBoost:
		return "volume_boost"
	case ActionHighBoost:
		return "high_boost"
	case ActionEffectTransition:
		return "effect_transition"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Valid reports whether a is inside the vocabulary
func (a Action) Valid() bool {
	return a >= 0 && a < NumActions
}

// ActionTemplate maps an action index onto its recommendation. Indexes
// outside the vocabulary map onto the first template.
func ActionTemplate(a Action) console.Recommendation {
	switch a {
	case ActionCrossfadeDown:
		return console.Recommendation{CrossfadeAdjust: -templateCrossfade}
	case ActionVolumeBoost:
		return console.Recommendation{VolumeAdjustA: templateVolume, VolumeAdjustB: templateVolume}
	case ActionHighBoost:
		return console.Recommendation{EQAdjust: map[console.EQBand]float64{console.EQHigh: templateEQ}}
	case ActionEffectTransition:
		return console.Recommendation{EffectTrigger: templateEffect, TransitionNow: true}
	default:
		return console.Recommendation{CrossfadeAdjust: templateCrossfade}
	}
}
