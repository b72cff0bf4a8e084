package policy

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/RyanBlaney/sonido-mix/console"
	"github.com/RyanBlaney/sonido-mix/features"
	"github.com/RyanBlaney/sonido-mix/logging"
)

// ErrClassifierUnavailable is reported when no classifier is configured
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// Classifier maps a feature vector onto an action class. Implementations
// are external, trained offline.
type Classifier interface {
	Predict(vector []float64) (int, error)
}

// ClassifierFunc adapts a function to the Classifier interface
type ClassifierFunc func(vector []float64) (int, error)

func (f ClassifierFunc) Predict(vector []float64) (int, error) {
	return f(vector)
}

// FeatureVectorSize is the length of FeatureVector's output
const FeatureVectorSize = 14

// FeatureVector flattens a snapshot and console state in the order the
// classifier was trained on
func FeatureVector(snap features.Snapshot, state console.State) []float64 {
	snap = snap.Sanitized()
	state = state.Sanitized()
	return []float64{
		snap.RMS,
		snap.RMSdB,
		snap.Energy,
		snap.BPM,
		snap.SpectralCentroid,
		snap.SpectralRolloff,
		snap.ZeroCrossingRate,
		boolFloat(snap.BeatDetected),
		state.CrossfaderPosition,
		state.MasterVolume,
		boolFloat(state.DeckAPlaying),
		boolFloat(state.DeckBPlaying),
		state.DeckABPM,
		state.DeckBBPM,
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ClassifierPolicy asks a classifier for an action class and falls back to
// the rule table whenever the classifier is missing, fails or panics
type ClassifierPolicy struct {
	classifier Classifier
	fallback   *Heuristic
	decisions  atomic.Uint64
	fallbacks  atomic.Uint64
	logger     logging.Logger
}

// NewClassifierPolicy wraps classifier with a heuristic fallback
func NewClassifierPolicy(classifier Classifier, fallback *Heuristic) *ClassifierPolicy {
	return &ClassifierPolicy{
		classifier: classifier,
		fallback:   fallback,
		logger: logging.WithFields(logging.Fields{
			"component": "decision_policy",
			"mode":      string(ModeClassifier),
		}),
	}
}

// Mode returns ModeClassifier
func (p *ClassifierPolicy) Mode() Mode {
	return ModeClassifier
}

// Decide maps the predicted class onto its action template
func (p *ClassifierPolicy) Decide(snap features.Snapshot, state console.State) console.Recommendation {
	p.decisions.Add(1)

	class, err := p.predict(FeatureVector(snap, state))
	if err != nil {
		p.fallbacks.Add(1)
		p.logger.Warn("Classifier unavailable, using heuristic", logging.Fields{
			"function": "Decide",
			"error":    err.Error(),
		})
		return p.fallback.Decide(snap, state)
	}

	action := Action(class)
	if !action.Valid() {
		p.logger.Debug("Classifier returned class outside vocabulary", logging.Fields{
			"function": "Decide",
			"class":    class,
		})
	}
	return ActionTemplate(action)
}

func (p *ClassifierPolicy) predict(vector []float64) (class int, err error) {
	if p.classifier == nil {
		return 0, ErrClassifierUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: classifier panic: %v", ErrClassifierUnavailable, r)
		}
	}()
	return p.classifier.Predict(vector)
}

// Statistics reports decisions and how many fell back to the rule table
func (p *ClassifierPolicy) Statistics() Statistics {
	return Statistics{
		Mode:      ModeClassifier,
		Decisions: p.decisions.Load(),
		Fallbacks: p.fallbacks.Load(),
	}
}
