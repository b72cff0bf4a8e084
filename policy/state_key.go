package policy

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/RyanBlaney/sonido-mix/console"
	"github.com/RyanBlaney/sonido-mix/features"
)

// maxBin bounds quantised values before integer conversion
const maxBin = 1 << 20

// StateKey is the discretised state used to index the Q-table
type StateKey struct {
	Energy     int
	Loudness   int
	Crossfader int
	Beat       bool
}

// NewStateKey quantises energy in steps of 0.1, rms_db offset by 80 dB in
// steps of 10 dB and the crossfader in steps of 0.1. Bins truncate toward
// zero.
func NewStateKey(snap features.Snapshot, state console.State) StateKey {
	snap = snap.Sanitized()
	state = state.Sanitized()
	return StateKey{
		Energy:     bin(snap.Energy * 10),
		Loudness:   bin((snap.RMSdB + 80) / 10),
		Crossfader: bin(state.CrossfaderPosition * 10),
		Beat:       snap.BeatDetected,
	}
}

func bin(v float64) int {
	return int(math.Max(-maxBin, math.Min(maxBin, v)))
}

// String renders the key as energy_loudness_crossfader_beat
func (k StateKey) String() string {
	beat := 0
	if k.Beat {
		beat = 1
	}
	return fmt.Sprintf("%d_%d_%d_%d", k.Energy, k.Loudness, k.Crossfader, beat)
}

// ParseStateKey parses the String form
func ParseStateKey(s string) (StateKey, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 4 {
		return StateKey{}, fmt.Errorf("state key %q: want 4 fields, got %d", s, len(parts))
	}

	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return StateKey{}, fmt.Errorf("state key %q: %w", s, err)
		}
		v[i] = n
	}
	if v[3] != 0 && v[3] != 1 {
		return StateKey{}, fmt.Errorf("state key %q: beat flag must be 0 or 1", s)
	}

	return StateKey{Energy: v[0], Loudness: v[1], Crossfader: v[2], Beat: v[3] == 1}, nil
}
