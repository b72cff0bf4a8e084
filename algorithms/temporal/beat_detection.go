package temporal

import (
	"time"

	"github.com/RyanBlaney/sonido-mix/algorithms/common"
)

const (
	// DefaultBeatThreshold is how far block energy must exceed the trailing mean
	DefaultBeatThreshold = 1.5
	// DefaultRefractoryPeriod caps detection at 200 BPM
	DefaultRefractoryPeriod = 300 * time.Millisecond
	// DefaultBeatHistorySize is the number of beat timestamps kept for tempo
	DefaultBeatHistorySize = 8
	// minBeatsForTempo is the number of beats needed before a tempo is reported
	minBeatsForTempo = 4
)

// BeatHistory is a bounded, append-only record of beat timestamps.
// Oldest entries are dropped once capacity is reached.
type BeatHistory struct {
	times []time.Time
	size  int
}

// NewBeatHistory creates a beat history holding at most size timestamps
func NewBeatHistory(size int) *BeatHistory {
	if size < 2 {
		size = 2
	}
	return &BeatHistory{
		times: make([]time.Time, 0, size),
		size:  size,
	}
}

// Append records a beat timestamp
func (bh *BeatHistory) Append(at time.Time) {
	if len(bh.times) == bh.size {
		copy(bh.times, bh.times[1:])
		bh.times = bh.times[:bh.size-1]
	}
	bh.times = append(bh.times, at)
}

// Len returns the number of stored timestamps
func (bh *BeatHistory) Len() int {
	return len(bh.times)
}

// Tempo estimates BPM as 60 / mean inter-beat interval. It returns 0 until
// at least four beats have been recorded.
func (bh *BeatHistory) Tempo() float64 {
	if len(bh.times) < minBeatsForTempo {
		return 0
	}

	seconds := make([]float64, len(bh.times))
	origin := bh.times[0]
	for i, t := range bh.times {
		seconds[i] = t.Sub(origin).Seconds()
	}

	avgInterval := common.Mean(common.Diff(seconds))
	if avgInterval <= 0 {
		return 0
	}
	return 60.0 / avgInterval
}

// Reset forgets every recorded beat
func (bh *BeatHistory) Reset() {
	bh.times = bh.times[:0]
}

// BeatDetector flags energy peaks against a trailing reference with a
// refractory period between detections
type BeatDetector struct {
	threshold  float64
	refractory time.Duration
	lastBeat   time.Time
	history    *BeatHistory
}

// NewBeatDetector creates a new energy-based beat detector
func NewBeatDetector(threshold float64, refractory time.Duration, historySize int) *BeatDetector {
	if threshold <= 0 {
		threshold = DefaultBeatThreshold
	}
	if refractory < 0 {
		refractory = 0
	}
	return &BeatDetector{
		threshold:  threshold,
		refractory: refractory,
		history:    NewBeatHistory(historySize),
	}
}

// Detect reports whether the block energy observed at time at is a beat.
// A beat requires energy > trailingMean*threshold and at least the refractory
// period since the previous beat. Detected beats are appended to the history.
func (bd *BeatDetector) Detect(energy, trailingMean float64, at time.Time) bool {
	if !bd.lastBeat.IsZero() && at.Sub(bd.lastBeat) < bd.refractory {
		return false
	}
	if trailingMean <= 0 || energy <= trailingMean*bd.threshold {
		return false
	}

	bd.lastBeat = at
	bd.history.Append(at)
	return true
}

// Tempo returns the current tempo estimate from the beat history
func (bd *BeatDetector) Tempo() float64 {
	return bd.history.Tempo()
}

// Reset clears the refractory clock and the beat history
func (bd *BeatDetector) Reset() {
	bd.lastBeat = time.Time{}
	bd.history.Reset()
}
