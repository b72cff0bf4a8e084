// Package session runs the closed decision loop: captured audio feeds the
// feature extractor, and on every decision tick the policy recommends
// console adjustments, the console applies them, the reward engine scores
// the outcome and learning policies are updated.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-mix/capture"
	"github.com/RyanBlaney/sonido-mix/console"
	"github.com/RyanBlaney/sonido-mix/features"
	"github.com/RyanBlaney/sonido-mix/logging"
	"github.com/RyanBlaney/sonido-mix/policy"
	"github.com/RyanBlaney/sonido-mix/reward"
)

var (
	// ErrAlreadyRunning is returned when Run is called on a running session
	ErrAlreadyRunning = errors.New("session already running")
	// ErrMissingDependency is returned when a required collaborator is nil
	ErrMissingDependency = errors.New("missing session dependency")
	// ErrSampleRateMismatch is returned when the source and extractor disagree
	ErrSampleRateMismatch = errors.New("source and extractor sample rates differ")
)

// ModelStore persists learned policy state between sessions
type ModelStore interface {
	LoadPolicy(ctx context.Context, mode policy.Mode) (policy.Model, bool, error)
	SavePolicy(ctx context.Context, mode policy.Mode, model policy.Model) (string, error)
}

// Deps are the collaborators a session wires together. Source, Store,
// Logger and Observer are optional.
type Deps struct {
	Extractor  *features.Extractor
	Policy     policy.Policy
	Engine     *reward.Engine
	Controller console.Controller
	Source     capture.Source
	Store      ModelStore
	Logger     logging.Logger
	Observer   func(Cycle) // called after every cycle, on the loop goroutine
}

// Cycle records one pass through the decision loop
type Cycle struct {
	Index          uint64                 `json:"index"`
	At             time.Time              `json:"at"`
	Snapshot       features.Snapshot      `json:"snapshot"`
	Before         console.State          `json:"before"`
	Recommendation console.Recommendation `json:"recommendation"`
	After          console.State          `json:"after"`
	Reward         float64                `json:"reward"`
	Learned        bool                   `json:"learned"`
	DispatchErr    error                  `json:"-"`
}

// Summary describes a session's activity so far
type Summary struct {
	SessionID        string            `json:"session_id"`
	Mode             policy.Mode       `json:"mode"`
	Cycles           uint64            `json:"cycles"`
	DispatchFailures uint64            `json:"dispatch_failures"`
	AvgReward        float64           `json:"avg_reward"`
	LastReward       float64           `json:"last_reward"`
	Policy           policy.Statistics `json:"policy"`
	Extractor        features.Stats    `json:"extractor"`
	Duration         time.Duration     `json:"duration"`
	SnapshotID       string            `json:"snapshot_id,omitempty"`
	CaptureErr       string            `json:"capture_error,omitempty"`
}

// Session owns one decision loop and its collaborators
type Session struct {
	id         string
	config     *Config
	extractor  *features.Extractor
	policy     policy.Policy
	engine     *reward.Engine
	controller console.Controller
	source     capture.Source
	store      ModelStore
	observer   func(Cycle)
	logger     logging.Logger

	running atomic.Bool

	mu               sync.Mutex // guards the counters below and serialises Step
	cycles           uint64
	dispatchFailures uint64
	sumReward        float64
	lastReward       float64
	started          time.Time
	stopped          time.Time
	snapshotID       string
	captureErr       error
}

// New validates the collaborators, assigns a session ID and, for
// persistable policies, restores the saved model
func New(config *Config, deps Deps) (*Session, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Extractor == nil:
		return nil, fmt.Errorf("%w: extractor", ErrMissingDependency)
	case deps.Policy == nil:
		return nil, fmt.Errorf("%w: policy", ErrMissingDependency)
	case deps.Engine == nil:
		return nil, fmt.Errorf("%w: reward engine", ErrMissingDependency)
	case deps.Controller == nil:
		return nil, fmt.Errorf("%w: console controller", ErrMissingDependency)
	}
	if deps.Source != nil && deps.Source.SampleRate() != deps.Extractor.Config().SampleRate {
		return nil, fmt.Errorf("%w: source %d Hz, extractor %d Hz",
			ErrSampleRateMismatch, deps.Source.SampleRate(), deps.Extractor.Config().SampleRate)
	}

	id := uuid.New().String()
	logger := deps.Logger
	if logger == nil {
		logger = logging.WithFields(logging.Fields{"component": "session"})
	}
	logger = logger.WithContext(logging.ContextWithFields(context.Background(), logging.Fields{
		"session_id": id,
	}))

	s := &Session{
		id:         id,
		config:     config,
		extractor:  deps.Extractor,
		policy:     deps.Policy,
		engine:     deps.Engine,
		controller: deps.Controller,
		source:     deps.Source,
		store:      deps.Store,
		observer:   deps.Observer,
		logger:     logger,
	}
	s.restore()
	return s, nil
}

// restore loads the persisted model. Failures leave the policy empty.
func (s *Session) restore() {
	p, ok := s.policy.(policy.Persistable)
	if !ok || s.store == nil || !s.config.PersistenceEnabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	model, found, err := s.store.LoadPolicy(ctx, s.policy.Mode())
	switch {
	case err != nil:
		s.logger.Warn("Could not load saved policy, starting fresh", logging.Fields{
			"error": err.Error(),
		})
	case !found:
		s.logger.Info("No saved policy, starting fresh")
	default:
		p.Import(model)
	}
}

// ID returns the session's unique identifier
func (s *Session) ID() string {
	return s.id
}

// Step runs one decision cycle: read features, read the console, decide,
// dispatch, re-read the console, score once and learn. A dispatch failure
// is recorded in the cycle and does not stop the loop.
func (s *Session) Step(ctx context.Context) (Cycle, error) {
	if err := ctx.Err(); err != nil {
		return Cycle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := Cycle{Index: s.cycles + 1, At: time.Now()}
	c.Snapshot = s.extractor.Features()
	c.Before = s.controller.State()
	c.Recommendation = s.policy.Decide(c.Snapshot, c.Before)

	if err := s.controller.Apply(ctx, c.Recommendation); err != nil {
		c.DispatchErr = err
		s.dispatchFailures++
		s.logger.Warn("Console dispatch failed", logging.Fields{
			"function": "Step",
			"cycle":    c.Index,
			"error":    err.Error(),
		})
	}

	c.After = s.controller.State()
	c.Reward = s.engine.Score(c.Snapshot, c.After)
	if l, ok := s.policy.(policy.Learner); ok {
		c.Learned = l.Learn(c.Reward)
	}

	s.cycles++
	s.sumReward += c.Reward
	s.lastReward = c.Reward

	s.logger.Debug("Cycle complete", logging.Fields{
		"function":   "Step",
		"cycle":      c.Index,
		"reward":     c.Reward,
		"beat":       c.Snapshot.BeatDetected,
		"rms_db":     c.Snapshot.RMSdB,
		"crossfader": c.After.CrossfaderPosition,
	})

	if s.observer != nil {
		s.observer(c)
	}
	return c, nil
}

// Run starts capture and analysis and runs decision cycles until ctx is
// cancelled or, with StopOnSourceEnd, the source is exhausted. Shutdown
// waits at most ShutdownTimeout for capture and analysis to stop, then
// saves the policy on a best-effort basis.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.extractor.Start(runCtx); err != nil {
		return fmt.Errorf("start extractor: %w", err)
	}

	s.mu.Lock()
	s.started = time.Now()
	s.stopped = time.Time{}
	s.mu.Unlock()

	captureDone := make(chan struct{})
	sourceEnded := make(chan struct{})
	if s.source != nil {
		go s.capture(runCtx, captureDone, sourceEnded)
	} else {
		close(captureDone)
	}

	s.logger.Info("Session started", logging.Fields{
		"mode":              string(s.policy.Mode()),
		"decision_interval": s.config.DecisionInterval.String(),
	})

	ticker := time.NewTicker(s.config.DecisionInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case <-sourceEnded:
			if s.config.StopOnSourceEnd {
				break loop
			}
			sourceEnded = nil
		case <-ticker.C:
			if _, err := s.Step(runCtx); err != nil {
				break loop
			}
		}
	}

	cancel()
	s.shutdown(captureDone)
	return nil
}

func (s *Session) capture(ctx context.Context, done, ended chan struct{}) {
	defer close(done)

	err := s.source.Stream(ctx, s.extractor.Ingest)
	switch {
	case ctx.Err() != nil:
		return
	case err != nil:
		s.mu.Lock()
		s.captureErr = err
		s.mu.Unlock()
		s.logger.Error(err, "Capture failed")
	default:
		s.logger.Info("Capture source exhausted")
	}
	close(ended)
}

func (s *Session) shutdown(captureDone <-chan struct{}) {
	deadline := time.Now().Add(s.config.ShutdownTimeout)

	select {
	case <-captureDone:
	case <-time.After(time.Until(deadline)):
		s.logger.Warn("Capture did not stop in time", logging.Fields{
			"timeout": s.config.ShutdownTimeout.String(),
		})
	}

	remaining := max(time.Until(deadline), time.Millisecond)
	if err := s.extractor.Stop(remaining); err != nil && !errors.Is(err, features.ErrNotRunning) {
		s.logger.Warn("Feature extraction did not stop cleanly", logging.Fields{"error": err.Error()})
	}

	if s.config.PersistenceEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		_, _ = s.Save(ctx)
		cancel()
	}

	s.mu.Lock()
	s.stopped = time.Now()
	s.mu.Unlock()

	sum := s.Summary()
	s.logger.Info("Session stopped", logging.Fields{
		"cycles":     sum.Cycles,
		"avg_reward": sum.AvgReward,
		"duration":   sum.Duration.String(),
	})
}

// Save persists the policy's learned state. Policies that learn nothing
// and sessions without a store save nothing and return an empty ID.
func (s *Session) Save(ctx context.Context) (string, error) {
	p, ok := s.policy.(policy.Persistable)
	if !ok || s.store == nil {
		return "", nil
	}

	id, err := s.store.SavePolicy(ctx, s.policy.Mode(), p.Export())
	if err != nil {
		s.logger.Warn("Could not save policy", logging.Fields{"error": err.Error()})
		return "", err
	}

	s.mu.Lock()
	s.snapshotID = id
	s.mu.Unlock()
	return id, nil
}

// Summary reports the session's counters together with policy and
// extractor statistics
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		SessionID:        s.id,
		Mode:             s.policy.Mode(),
		Cycles:           s.cycles,
		DispatchFailures: s.dispatchFailures,
		LastReward:       s.lastReward,
		Policy:           s.policy.Statistics(),
		Extractor:        s.extractor.Stats(),
		SnapshotID:       s.snapshotID,
	}
	if s.cycles > 0 {
		sum.AvgReward = s.sumReward / float64(s.cycles)
	}
	if s.captureErr != nil {
		sum.CaptureErr = s.captureErr.Error()
	}
	switch {
	case s.started.IsZero():
	case s.stopped.IsZero():
		sum.Duration = time.Since(s.started)
	default:
		sum.Duration = s.stopped.Sub(s.started)
	}
	return sum
}
