package policy

import (
	"errors"
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-mix/console"
	"github.com/RyanBlaney/sonido-mix/features"
	"github.com/RyanBlaney/sonido-mix/logging"
)

func init() {
	logging.SetGlobalLogger(&logging.NoOpLogger{})
}

func testConfig(mutate func(*Config)) *Config {
	c := DefaultConfig()
	if mutate != nil {
		mutate(c)
	}
	return c
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"heuristic":     ModeHeuristic,
		"Reinforcement": ModeReinforcement,
		" classifier ":  ModeClassifier,
		"supervised":    ModeClassifier,
		"":              ModeHeuristic,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("genetic"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewSelectsStrategy(t *testing.T) {
	for _, mode := range []Mode{ModeHeuristic, ModeClassifier, ModeReinforcement} {
		p, err := New(mode, nil, nil)
		if err != nil {
			t.Fatalf("New(%s): %v", mode, err)
		}
		if p.Mode() != mode {
			t.Fatalf("New(%s) built %s", mode, p.Mode())
		}
	}
	if _, err := New("other", nil, nil); err == nil {
		t.Fatal("expected error for unknown mode")
	}

	p, _ := New(ModeReinforcement, nil, nil)
	if _, ok := p.(Learner); !ok {
		t.Fatal("reinforcement policy should learn")
	}
	if _, ok := p.(Persistable); !ok {
		t.Fatal("reinforcement policy should persist")
	}
	h, _ := New(ModeHeuristic, nil, nil)
	if _, ok := h.(Learner); ok {
		t.Fatal("heuristic policy should not learn")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := []func(*Config){
		func(c *Config) { c.OptimalLoudness = [2]float64{-6, -15} },
		func(c *Config) { c.EffectProbability = 1.5 },
		func(c *Config) { c.EffectIDs = []int{4} },
		func(c *Config) { c.EffectIDs = nil },
		func(c *Config) { c.LearningRate = 0 },
		func(c *Config) { c.DiscountFactor = 1.1 },
		func(c *Config) { c.ExplorationDecay = 0 },
		func(c *Config) { c.MinExploration = 0.5 },
		func(c *Config) { c.HistorySize = 1 },
		func(c *Config) { c.MaxStates = 1 },
		func(c *Config) { c.VolumeStep = math.NaN() },
	}
	for i, mutate := range bad {
		if err := testConfig(mutate).Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestActionTemplates(t *testing.T) {
	if r := ActionTemplate(ActionCrossfadeUp); r.CrossfadeAdjust != 0.1 {
		t.Fatalf("template 0 = %+v", r)
	}
	if r := ActionTemplate(ActionCrossfadeDown); r.CrossfadeAdjust != -0.1 {
		t.Fatalf("template 1 = %+v", r)
	}
	if r := ActionTemplate(ActionVolumeBoost); r.VolumeAdjustA != 0.05 || r.VolumeAdjustB != 0.05 {
		t.Fatalf("template 2 = %+v", r)
	}
	if r := ActionTemplate(ActionHighBoost); r.EQAdjust[console.EQHigh] != 0.1 {
		t.Fatalf("template 3 = %+v", r)
	}
	if r := ActionTemplate(ActionEffectTransition); r.EffectTrigger != 1 || !r.TransitionNow {
		t.Fatalf("template 4 = %+v", r)
	}
	if r := ActionTemplate(Action(17)); r.CrossfadeAdjust != 0.1 {
		t.Fatalf("out-of-range action should map to template 0, got %+v", r)
	}
}

func quietDarkSnapshot() features.Snapshot {
	return features.Snapshot{RMSdB: -30, SpectralCentroid: 500}
}

func TestHeuristicRules(t *testing.T) {
	h, err := NewHeuristic(testConfig(func(c *Config) { c.EffectProbability = 0 }))
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		snap  features.Snapshot
		state console.State
		check func(console.Recommendation) bool
	}{
		{
			name:  "quiet on deck A",
			snap:  features.Snapshot{RMSdB: -30, SpectralCentroid: 2000},
			state: console.State{CrossfaderPosition: 0.2},
			check: func(r console.Recommendation) bool { return r.VolumeAdjustA == 0.05 && r.VolumeAdjustB == 0 },
		},
		{
			name:  "loud on deck B",
			snap:  features.Snapshot{RMSdB: -3, SpectralCentroid: 2000},
			state: console.State{CrossfaderPosition: 0.5},
			check: func(r console.Recommendation) bool { return r.VolumeAdjustB == -0.05 && r.VolumeAdjustA == 0 },
		},
		{
			name:  "in band",
			snap:  features.Snapshot{RMSdB: -10, SpectralCentroid: 2000},
			state: console.State{CrossfaderPosition: 0.5},
			check: func(r console.Recommendation) bool { return r.IsZero() },
		},
		{
			name:  "bright",
			snap:  features.Snapshot{RMSdB: -10, SpectralCentroid: 4000},
			state: console.State{CrossfaderPosition: 0.5},
			check: func(r console.Recommendation) bool { return r.EQAdjust[console.EQHigh] == -0.1 },
		},
		{
			name:  "dark",
			snap:  quietDarkSnapshot(),
			state: console.State{CrossfaderPosition: 0.5},
			check: func(r console.Recommendation) bool { return r.EQAdjust[console.EQHigh] == 0.1 },
		},
		{
			name:  "transition from A on beat",
			snap:  features.Snapshot{RMSdB: -10, SpectralCentroid: 2000, BeatDetected: true},
			state: console.State{CrossfaderPosition: 0.2, DeckAPlaying: true},
			check: func(r console.Recommendation) bool { return r.TransitionNow },
		},
		{
			name:  "transition from B on beat",
			snap:  features.Snapshot{RMSdB: -10, SpectralCentroid: 2000, BeatDetected: true},
			state: console.State{CrossfaderPosition: 0.8, DeckBPlaying: true},
			check: func(r console.Recommendation) bool { return r.TransitionNow },
		},
		{
			name:  "no transition with both decks",
			snap:  features.Snapshot{RMSdB: -10, SpectralCentroid: 2000, BeatDetected: true},
			state: console.State{CrossfaderPosition: 0.2, DeckAPlaying: true, DeckBPlaying: true},
			check: func(r console.Recommendation) bool { return !r.TransitionNow },
		},
		{
			name:  "no transition off beat",
			snap:  features.Snapshot{RMSdB: -10, SpectralCentroid: 2000},
			state: console.State{CrossfaderPosition: 0.2, DeckAPlaying: true},
			check: func(r console.Recommendation) bool { return !r.TransitionNow },
		},
		{
			name:  "non-finite fields use defaults",
			snap:  features.Snapshot{RMSdB: math.NaN(), SpectralCentroid: math.Inf(1)},
			state: console.State{CrossfaderPosition: math.NaN()},
			check: func(r console.Recommendation) bool {
				return r.VolumeAdjustB == 0.05 && r.EQAdjust[console.EQHigh] == 0.1
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if r := h.Decide(tc.snap, tc.state); !tc.check(r) {
				t.Fatalf("unexpected recommendation %+v", r)
			}
		})
	}
}

func TestHeuristicEffects(t *testing.T) {
	h, err := NewHeuristic(testConfig(func(c *Config) { c.EffectProbability = 1 }))
	if err != nil {
		t.Fatal(err)
	}
	state := console.State{CrossfaderPosition: 0.5}

	offBeat := features.Snapshot{RMSdB: -10, SpectralCentroid: 2000}
	if r := h.Decide(offBeat, state); r.EffectTrigger != 0 {
		t.Fatalf("effect fired without a beat: %d", r.EffectTrigger)
	}

	onBeat := offBeat
	onBeat.BeatDetected = true
	for range 50 {
		id := h.Decide(onBeat, state).EffectTrigger
		if id < 1 || id > 3 {
			t.Fatalf("effect id %d outside the configured set", id)
		}
	}
	if got := h.Statistics().Decisions; got != 51 {
		t.Fatalf("decisions = %d, want 51", got)
	}
}

func TestHeuristicEffectSequenceSeeded(t *testing.T) {
	run := func() []int {
		h, _ := NewHeuristic(testConfig(func(c *Config) { c.Seed = 5 }))
		snap := features.Snapshot{RMSdB: -10, SpectralCentroid: 2000, BeatDetected: true}
		var out []int
		for range 200 {
			out = append(out, h.Decide(snap, console.DefaultState()).EffectTrigger)
		}
		return out
	}
	a, b := run(), run()
	fired := 0
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("effect draw %d differs between seeded runs", i)
		}
		if a[i] != 0 {
			fired++
		}
	}
	if fired == 0 || fired > 100 {
		t.Fatalf("effect fired %d/200 times at probability 0.15", fired)
	}
}

func TestFeatureVector(t *testing.T) {
	snap := features.Snapshot{RMS: 0.1, RMSdB: -20, Energy: 0.3, BPM: 124, SpectralCentroid: 1500,
		SpectralRolloff: 4000, ZeroCrossingRate: 0.05, BeatDetected: true}
	state := console.State{CrossfaderPosition: 0.4, MasterVolume: 0.8, DeckAPlaying: true, DeckABPM: 124, DeckBBPM: 126}

	v := FeatureVector(snap, state)
	want := []float64{0.1, -20, 0.3, 124, 1500, 4000, 0.05, 1, 0.4, 0.8, 1, 0, 124, 126}
	if len(v) != FeatureVectorSize {
		t.Fatalf("len = %d", len(v))
	}
	for i := range want {
		if v[i] != want[i] {
			t.Fatalf("feature %d = %v, want %v", i, v[i], want[i])
		}
	}
}

func TestClassifierPolicy(t *testing.T) {
	h, _ := NewHeuristic(testConfig(func(c *Config) { c.EffectProbability = 0 }))
	snap := quietDarkSnapshot()
	state := console.State{CrossfaderPosition: 0.2}
	heuristic := h.Decide(snap, state)

	cases := []struct {
		name       string
		classifier Classifier
		want       console.Recommendation
		fallback   bool
	}{
		{"nil", nil, heuristic, true},
		{"error", ClassifierFunc(func([]float64) (int, error) { return 0, errors.New("model not trained") }), heuristic, true},
		{"panic", ClassifierFunc(func([]float64) (int, error) { panic("bad weights") }), heuristic, true},
		{"class 2", ClassifierFunc(func([]float64) (int, error) { return 2, nil }), ActionTemplate(ActionVolumeBoost), false},
		{"out of range", ClassifierFunc(func([]float64) (int, error) { return 9, nil }), ActionTemplate(ActionCrossfadeUp), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewClassifierPolicy(tc.classifier, h)
			got := p.Decide(snap, state)
			if got.CrossfadeAdjust != tc.want.CrossfadeAdjust ||
				got.VolumeAdjustA != tc.want.VolumeAdjustA ||
				got.VolumeAdjustB != tc.want.VolumeAdjustB ||
				got.EQAdjust[console.EQHigh] != tc.want.EQAdjust[console.EQHigh] {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
			if fb := p.Statistics().Fallbacks == 1; fb != tc.fallback {
				t.Fatalf("fallback = %v, want %v", fb, tc.fallback)
			}
		})
	}
}

func TestClassifierReceivesFeatureVector(t *testing.T) {
	var seen []float64
	p, err := New(ModeClassifier, nil, ClassifierFunc(func(v []float64) (int, error) {
		seen = v
		return 3, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	r := p.Decide(features.Snapshot{RMSdB: -12}, console.DefaultState())
	if len(seen) != FeatureVectorSize || seen[1] != -12 {
		t.Fatalf("classifier saw %v", seen)
	}
	if r.EQAdjust[console.EQHigh] != 0.1 {
		t.Fatalf("class 3 should boost highs, got %+v", r)
	}
}
