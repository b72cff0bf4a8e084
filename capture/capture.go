// Package capture provides audio sources that feed the feature extractor.
package capture

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupportedFormat is returned for audio the sources cannot decode
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// DefaultBlockSize is the number of mono samples per delivered block
const DefaultBlockSize = 1024

// Source delivers mono sample blocks to sink until ctx is cancelled or the
// input ends. Multi-channel input is downmixed before delivery. Stream
// returns nil at end of input and ctx.Err() on cancellation. The sink must
// not retain the block after it returns.
type Source interface {
	Stream(ctx context.Context, sink func(block []float64)) error
	SampleRate() int
}

// pacer sleeps between blocks so delivery follows the audio clock
type pacer struct {
	enabled bool
	start   time.Time
	sent    time.Duration
}

func newPacer(enabled bool) *pacer {
	return &pacer{enabled: enabled, start: time.Now()}
}

// wait blocks until the audio already delivered is due, or ctx ends
func (p *pacer) wait(ctx context.Context, samples, sampleRate int) error {
	if !p.enabled || sampleRate <= 0 {
		return ctx.Err()
	}

	p.sent += time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
	delay := time.Until(p.start.Add(p.sent))
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
