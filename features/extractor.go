package features

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-mix/algorithms/common"
	"github.com/RyanBlaney/sonido-mix/algorithms/filters"
	"github.com/RyanBlaney/sonido-mix/algorithms/spectral"
	"github.com/RyanBlaney/sonido-mix/algorithms/temporal"
	"github.com/RyanBlaney/sonido-mix/algorithms/windowing"
	"github.com/RyanBlaney/sonido-mix/logging"
)

var (
	// ErrAlreadyRunning is returned by Start when the tick loop is active
	ErrAlreadyRunning = errors.New("extractor already running")
	// ErrNotRunning is returned by Stop when no tick loop is active
	ErrNotRunning = errors.New("extractor not running")
	// ErrStopTimeout is returned by Stop when the tick loop did not exit in time
	ErrStopTimeout = errors.New("extractor stop timed out")

	errNonFinite = errors.New("block contains non-finite samples")
)

// Stats counts extractor activity since construction
type Stats struct {
	Ingested uint64 `json:"ingested"` // samples accepted
	Ticks    uint64 `json:"ticks"`
	Analysed uint64 `json:"analysed"`
	Skipped  uint64 `json:"skipped"`  // ticks with no new or too few samples
	Rejected uint64 `json:"rejected"` // blocks with non-finite samples
	Failures uint64 `json:"failures"` // recovered spectral/beat failures
	Beats    uint64 `json:"beats"`
}

// Extractor keeps a live window of mono samples and turns its most recent
// block into a Snapshot on every tick. Ingest and Tick may run on different
// goroutines; Features never blocks on either.
type Extractor struct {
	config *Config
	logger logging.Logger
	now    func() time.Time

	// Capture side, guarded by bufMu
	bufMu    sync.Mutex
	buffer   *common.SampleBuffer
	dirty    bool
	dcFilter *filters.DCRemoval

	// Analysis side, serialised by tickMu
	tickMu   sync.Mutex
	frame    []float64 // frozen copy of the buffer tail
	windowed []float64
	window   *windowing.Hann
	fft      *spectral.FFT
	centroid *spectral.SpectralCentroid
	rolloff  *spectral.SpectralRolloff
	zcr      *spectral.ZeroCrossingRate
	energy   *temporal.Energy
	beats    *temporal.BeatDetector

	snapMu   sync.RWMutex
	snapshot Snapshot

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	ingested, ticks, analysed, skipped, rejected, failures, beatCount atomic.Uint64
}

// NewExtractor creates a feature extractor. A nil config uses DefaultConfig.
func NewExtractor(config *Config) (*Extractor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	frameSize := (1 + config.BeatWindowBlocks) * config.BlockSize

	e := &Extractor{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "feature_extractor",
		}),
		now:      time.Now,
		buffer:   common.NewSampleBuffer(config.Capacity()),
		frame:    make([]float64, frameSize),
		windowed: make([]float64, config.BlockSize),
		window:   windowing.NewHann(config.BlockSize, false),
		fft:      spectral.NewFFT(),
		centroid: spectral.NewSpectralCentroid(config.SampleRate),
		rolloff:  spectral.NewSpectralRolloff(config.SampleRate),
		zcr:      spectral.NewZeroCrossingRate(config.SampleRate),
		energy:   temporal.NewEnergy(config.BlockSize),
		beats:    temporal.NewBeatDetector(config.BeatThreshold, config.RefractoryPeriod, config.BeatHistorySize),
		snapshot: InitialSnapshot(),
	}
	if config.DCBlock {
		e.dcFilter = filters.NewDCRemovalWithCutoff(config.SampleRate, filters.DefaultDCCutoff)
	}

	return e, nil
}

// Config returns the extractor configuration
func (e *Extractor) Config() *Config {
	return e.config
}

// Ingest appends a block of mono samples. It holds the buffer lock for
// O(len(block)) and marks the buffer as changed since the last analysis.
func (e *Extractor) Ingest(block []float64) {
	if len(block) == 0 {
		return
	}

	e.bufMu.Lock()
	if e.dcFilter != nil {
		filtered := make([]float64, len(block))
		copy(filtered, block)
		e.dcFilter.ProcessInPlace(filtered)
		block = filtered
	}
	e.buffer.Write(block)
	e.dirty = true
	e.bufMu.Unlock()

	e.ingested.Add(uint64(len(block)))
}

// IngestInterleaved downmixes interleaved multi-channel samples by channel
// average and ingests the result
func (e *Extractor) IngestInterleaved(samples []float64, channels int) {
	e.Ingest(common.Downmix(samples, channels))
}

// Features returns a copy of the latest snapshot
func (e *Extractor) Features() Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapshot
}

// Stats returns the activity counters
func (e *Extractor) Stats() Stats {
	return Stats{
		Ingested: e.ingested.Load(),
		Ticks:    e.ticks.Load(),
		Analysed: e.analysed.Load(),
		Skipped:  e.skipped.Load(),
		Rejected: e.rejected.Load(),
		Failures: e.failures.Load(),
		Beats:    e.beatCount.Load(),
	}
}

// Tick analyses the most recent block and replaces the snapshot. It reports
// whether a new snapshot was published.
func (e *Extractor) Tick() bool {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.ticks.Add(1)

	n := e.freeze()
	if n == 0 {
		e.skipped.Add(1)
		return false
	}

	frame := e.frame[:n]
	block := frame[n-e.config.BlockSize:]
	history := frame[:n-e.config.BlockSize]

	next, err := e.analyze(block, history, e.now())
	if err != nil {
		e.rejected.Add(1)
		e.logger.Warn("Rejected audio block, keeping previous features", logging.Fields{
			"function": "Tick",
			"error":    err.Error(),
		})
		return false
	}

	e.snapMu.Lock()
	e.snapshot = next
	e.snapMu.Unlock()

	e.analysed.Add(1)
	if next.BeatDetected {
		e.beatCount.Add(1)
	}
	return true
}

// freeze copies the buffer tail into the frame under the buffer lock. The
// copy is bounded by the frame size, never the buffer capacity. It returns 0
// when there is nothing new or not yet a full block.
func (e *Extractor) freeze() int {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()

	if !e.dirty || e.buffer.Len() < e.config.BlockSize {
		return 0
	}
	n := e.buffer.Tail(e.frame, len(e.frame))
	e.dirty = false
	return n
}

// analyze runs the pipeline on block. history holds the samples that precede
// block, oldest first. Steps that cannot run leave their fields at the
// previous snapshot's values.
func (e *Extractor) analyze(block, history []float64, at time.Time) (Snapshot, error) {
	if !common.AllFinite(block) || !common.AllFinite(history) {
		return Snapshot{}, errNonFinite
	}

	next := e.Features()
	next.Timestamp = at
	next.Sequence++

	next.RMS = e.energy.RMS(block)
	next.RMSdB = e.energy.RMSdB(next.RMS)
	next.Energy = e.energy.BlockEnergy(block)
	next.ZeroCrossingRate = e.zcr.ComputeNormalized(block)

	if err := e.analyzeDerived(block, history, at, &next); err != nil {
		// A beat found before the failure is not published
		next.BeatDetected = false
		e.failures.Add(1)
		e.logger.Warn("Feature analysis step failed, keeping previous values", logging.Fields{
			"function": "analyze",
			"sequence": next.Sequence,
			"error":    err.Error(),
		})
	}

	return next, nil
}

// analyzeDerived covers the spectral, beat, tempo and quality steps. Results
// are committed to snap only when every step succeeds.
func (e *Extractor) analyzeDerived(block, history []float64, at time.Time, snap *Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()

	out := *snap

	if len(block) >= e.config.MinTransformSize {
		if err := e.window.ApplyTo(e.windowed, block); err != nil {
			return fmt.Errorf("window: %w", err)
		}
		mag, err := e.fft.Magnitude(e.windowed)
		if err != nil {
			return fmt.Errorf("magnitude spectrum: %w", err)
		}

		out.SpectralCentroid = e.centroid.Compute(mag)
		out.SpectralRolloff = e.rolloff.Compute(mag, e.config.RolloffPercent)

		balance := spectral.BandBalance(spectral.BandEnergies(mag, e.config.SampleRate, e.config.Bands[:]))
		out.LowBalance, out.MidBalance, out.HighBalance = balance[0], balance[1], balance[2]
	}

	out.BeatDetected = false
	if reference, blocks := e.energy.TrailingMean(history); blocks > 0 {
		out.BeatDetected = e.beats.Detect(out.Energy, reference, at)
	}
	out.BPM = e.beats.Tempo()

	out.QualityScore = QualityScore(QualityInputs{
		RMSdB:            out.RMSdB,
		Energy:           out.Energy,
		SpectralCentroid: out.SpectralCentroid,
		BPM:              out.BPM,
		Balances:         out.Balances(),
	})

	if !common.AllFinite([]float64{
		out.SpectralCentroid, out.SpectralRolloff,
		out.LowBalance, out.MidBalance, out.HighBalance, out.BPM,
	}) {
		return errors.New("non-finite derived feature")
	}

	*snap = out
	return nil
}

// Start launches the periodic tick loop. The loop exits when ctx is
// cancelled or Stop is called.
func (e *Extractor) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.done != nil {
		select {
		case <-e.done:
		default:
			return ErrAlreadyRunning
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	go e.run(ctx, done)

	e.logger.Debug("Feature extraction started", logging.Fields{
		"tick_interval": e.config.TickInterval.String(),
		"block_size":    e.config.BlockSize,
	})
	return nil
}

func (e *Extractor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Stop signals the tick loop and waits up to timeout for it to exit. On
// timeout the loop is abandoned and ErrStopTimeout returned.
func (e *Extractor) Stop(timeout time.Duration) error {
	e.runMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.runMu.Unlock()

	if done == nil {
		return ErrNotRunning
	}
	cancel()

	select {
	case <-done:
		e.logger.Debug("Feature extraction stopped")
		return nil
	case <-time.After(timeout):
		e.logger.Warn("Feature extraction did not stop in time", logging.Fields{
			"timeout": timeout.String(),
		})
		return ErrStopTimeout
	}
}

// Running reports whether the tick loop is active
func (e *Extractor) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}
