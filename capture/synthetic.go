package capture

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// SyntheticConfig describes a generated pulse track
type SyntheticConfig struct {
	SampleRate int           `json:"sample_rate"`
	BlockSize  int           `json:"block_size"`
	BPM        float64       `json:"bpm"`
	Duration   time.Duration `json:"duration"` // 0 streams until cancelled
	Seed       uint64        `json:"seed"`
	Realtime   bool          `json:"realtime"`
}

// DefaultSyntheticConfig returns a 124 BPM track at 44.1 kHz
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		SampleRate: 44100,
		BlockSize:  DefaultBlockSize,
		BPM:        124,
		Seed:       1,
	}
}

// Kick and bed shape
const (
	kickFrequency = 55.0
	kickAmplitude = 0.9
	kickDecay     = 0.04 // seconds
	bedAmplitude  = 0.04
	noiseLevel    = 0.005
)

// SyntheticSource generates a kick-drum pulse train over a quiet tonal bed
// with seeded noise. Output is identical for identical configs.
type SyntheticSource struct {
	config SyntheticConfig
}

// NewSyntheticSource creates a synthetic source
func NewSyntheticSource(config SyntheticConfig) *SyntheticSource {
	def := DefaultSyntheticConfig()
	if config.SampleRate <= 0 {
		config.SampleRate = def.SampleRate
	}
	if config.BlockSize <= 0 {
		config.BlockSize = def.BlockSize
	}
	if config.BPM <= 0 {
		config.BPM = def.BPM
	}
	return &SyntheticSource{config: config}
}

// SampleRate returns the generated sample rate
func (s *SyntheticSource) SampleRate() int {
	return s.config.SampleRate
}

// Stream generates blocks until Duration is reached or ctx is cancelled
func (s *SyntheticSource) Stream(ctx context.Context, sink func(block []float64)) error {
	cfg := s.config
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	pace := newPacer(cfg.Realtime)

	sr := float64(cfg.SampleRate)
	beatPeriod := 60.0 / cfg.BPM
	total := int64(-1)
	if cfg.Duration > 0 {
		total = int64(cfg.Duration.Seconds() * sr)
	}

	block := make([]float64, cfg.BlockSize)
	var pos int64
	for total < 0 || pos < total {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := cfg.BlockSize
		if total >= 0 && total-pos < int64(n) {
			n = int(total - pos)
		}

		for i := range n {
			t := float64(pos+int64(i)) / sr
			sinceBeat := math.Mod(t, beatPeriod)

			kick := kickAmplitude * math.Exp(-sinceBeat/kickDecay) * math.Sin(2*math.Pi*kickFrequency*sinceBeat)
			bed := bedAmplitude * (math.Sin(2*math.Pi*440*t) + 0.5*math.Sin(2*math.Pi*1760*t))
			noise := noiseLevel * (rng.Float64()*2 - 1)

			block[i] = kick + bed + noise
		}

		sink(block[:n])
		pos += int64(n)

		if err := pace.wait(ctx, n, cfg.SampleRate); err != nil {
			return err
		}
	}
	return nil
}
