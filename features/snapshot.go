package features

import (
	"math"
	"time"
)

// Snapshot is one analysis result. It is a plain value: copies never alias
// extractor state.
type Snapshot struct {
	RMS              float64   `json:"rms"`
	RMSdB            float64   `json:"rms_db"`
	Energy           float64   `json:"energy"`
	ZeroCrossingRate float64   `json:"zero_crossing_rate"`
	SpectralCentroid float64   `json:"spectral_centroid"`
	SpectralRolloff  float64   `json:"spectral_rolloff"`
	LowBalance       float64   `json:"low_balance"`
	MidBalance       float64   `json:"mid_balance"`
	HighBalance      float64   `json:"high_balance"`
	BeatDetected     bool      `json:"beat_detected"`
	BPM              float64   `json:"bpm"`
	QualityScore     float64   `json:"quality_score"`
	Timestamp        time.Time `json:"timestamp"`
	Sequence         uint64    `json:"sequence"` // 0 until the first analysed block
}

// InitialSnapshot is the state before any audio has been analysed
func InitialSnapshot() Snapshot {
	return Snapshot{
		RMSdB:        -80,
		QualityScore: 0.5,
	}
}

// Balances returns the band balances in low, mid, high order
func (s Snapshot) Balances() [3]float64 {
	return [3]float64{s.LowBalance, s.MidBalance, s.HighBalance}
}

// Sanitized returns a copy with every non-finite field replaced by its
// InitialSnapshot value. Consumers call it instead of rejecting input.
func (s Snapshot) Sanitized() Snapshot {
	def := InitialSnapshot()
	for _, f := range []struct {
		v   *float64
		def float64
	}{
		{&s.RMS, def.RMS},
		{&s.RMSdB, def.RMSdB},
		{&s.Energy, def.Energy},
		{&s.ZeroCrossingRate, def.ZeroCrossingRate},
		{&s.SpectralCentroid, def.SpectralCentroid},
		{&s.SpectralRolloff, def.SpectralRolloff},
		{&s.LowBalance, def.LowBalance},
		{&s.MidBalance, def.MidBalance},
		{&s.HighBalance, def.HighBalance},
		{&s.BPM, def.BPM},
		{&s.QualityScore, def.QualityScore},
	} {
		if math.IsNaN(*f.v) || math.IsInf(*f.v, 0) {
			*f.v = f.def
		}
	}
	return s
}
