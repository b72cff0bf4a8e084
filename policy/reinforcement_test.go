package policy

import (
	"math"
	"sync"
	"testing"

	"github.com/RyanBlaney/sonido-mix/console"
	"github.com/RyanBlaney/sonido-mix/features"
)

func greedyLearner(t *testing.T) *Reinforcement {
	t.Helper()
	r, err := NewReinforcement(testConfig(func(c *Config) {
		c.ExplorationRate = 0
		c.MinExploration = 0
	}))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestStateKey(t *testing.T) {
	cases := []struct {
		snap  features.Snapshot
		state console.State
		want  StateKey
	}{
		{features.Snapshot{Energy: 0.25, RMSdB: -20}, console.State{CrossfaderPosition: 0.5}, StateKey{2, 6, 5, false}},
		{features.Snapshot{Energy: 0, RMSdB: -80, BeatDetected: true}, console.State{CrossfaderPosition: 0.99}, StateKey{0, 0, 9, true}},
		{features.Snapshot{Energy: 1.5, RMSdB: -85}, console.State{CrossfaderPosition: 1}, StateKey{15, 0, 10, false}},
		{features.Snapshot{Energy: math.NaN(), RMSdB: math.Inf(-1)}, console.State{CrossfaderPosition: math.NaN()}, StateKey{0, 0, 5, false}},
		{features.Snapshot{Energy: 1e300}, console.State{}, StateKey{maxBin, 8, 0, false}},
	}
	for _, tc := range cases {
		if got := NewStateKey(tc.snap, tc.state); got != tc.want {
			t.Errorf("NewStateKey(%+v, %+v) = %+v, want %+v", tc.snap, tc.state, got, tc.want)
		}
	}
}

func TestStateKeyString(t *testing.T) {
	k := StateKey{Energy: 3, Loudness: -1, Crossfader: 10, Beat: true}
	if k.String() != "3_-1_10_1" {
		t.Fatalf("String = %q", k.String())
	}
	back, err := ParseStateKey(k.String())
	if err != nil || back != k {
		t.Fatalf("ParseStateKey = %+v, %v", back, err)
	}

	for _, bad := range []string{"", "1_2_3", "1_2_3_4_5", "a_2_3_0", "1_2_3_2"} {
		if _, err := ParseStateKey(bad); err == nil {
			t.Errorf("ParseStateKey(%q) should fail", bad)
		}
	}
}

func TestRowBestTiesLowest(t *testing.T) {
	if a := (Row{}).Best(); a != ActionCrossfadeUp {
		t.Fatalf("zero row best = %v", a)
	}
	if a := (Row{1, 3, 3, 0, -1}).Best(); a != ActionCrossfadeDown {
		t.Fatalf("tie best = %v", a)
	}
	if m := (Row{1, 3, 3, 0, -1}).Max(); m != 3 {
		t.Fatalf("max = %v", m)
	}
}

func TestQTableLRU(t *testing.T) {
	q := NewQTable(2)
	a, b, c := StateKey{Energy: 1}, StateKey{Energy: 2}, StateKey{Energy: 3}

	q.Row(a)
	q.Row(b)
	q.Row(a)
	q.Row(c)

	if q.Len() != 2 {
		t.Fatalf("len = %d", q.Len())
	}
	if _, ok := q.Lookup(b); ok {
		t.Fatal("least recently used state should have been evicted")
	}
	if _, ok := q.Lookup(a); !ok {
		t.Fatal("recently used state evicted")
	}
	if q.Evictions() != 1 {
		t.Fatalf("evictions = %d", q.Evictions())
	}

	unbounded := NewQTable(0)
	for i := range 500 {
		unbounded.Row(StateKey{Energy: i})
	}
	if unbounded.Len() != 500 || unbounded.Evictions() != 0 {
		t.Fatalf("unbounded table len %d evictions %d", unbounded.Len(), unbounded.Evictions())
	}
}

func TestQTableConcurrentInsert(t *testing.T) {
	q := NewQTable(0)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				q.Row(StateKey{Energy: i % 10, Beat: g%2 == 0})
			}
		}()
	}
	wg.Wait()
	if q.Len() != 20 {
		t.Fatalf("expected 20 states, got %d", q.Len())
	}
}

func TestLearnExactUpdate(t *testing.T) {
	r := greedyLearner(t)
	s := features.Snapshot{Energy: 0.25, RMSdB: -20}
	sNext := features.Snapshot{Energy: 0.55, RMSdB: -10}
	state := console.State{CrossfaderPosition: 0.5}
	keyS, keyNext := NewStateKey(s, state), NewStateKey(sNext, state)

	if r.Learn(1) {
		t.Fatal("Learn with no history should be a no-op")
	}
	r.Decide(s, state)
	if r.Learn(1) {
		t.Fatal("Learn with one state should be a no-op")
	}
	if len(r.Experience()) != 0 {
		t.Fatal("no-op Learn recorded experience")
	}

	r.Decide(sNext, state)
	if !r.Learn(1) {
		t.Fatal("Learn should apply with two states")
	}
	row, _ := r.Table().Lookup(keyS)
	if math.Abs(row[ActionCrossfadeUp]-0.1) > 1e-12 {
		t.Fatalf("Q[S][0] = %v, want 0.1", row[ActionCrossfadeUp])
	}

	// Q[S] now prefers action 0 with value 0.1
	r.Decide(s, state)
	if !r.Learn(0.5) {
		t.Fatal("second Learn should apply")
	}
	row, _ = r.Table().Lookup(keyNext)
	want := 0.1 * (0.5 + 0.95*0.1)
	if math.Abs(row[ActionCrossfadeUp]-want) > 1e-12 {
		t.Fatalf("Q[S'][0] = %v, want %v", row[ActionCrossfadeUp], want)
	}

	exp := r.Experience()
	if len(exp) != 2 || exp[0].State != keyS || exp[0].Next != keyNext || exp[1].Reward != 0.5 {
		t.Fatalf("experience = %+v", exp)
	}
}

func TestLearnIgnoresNonFiniteReward(t *testing.T) {
	r := greedyLearner(t)
	snap := features.Snapshot{RMSdB: -12}
	r.Decide(snap, console.DefaultState())
	r.Decide(snap, console.DefaultState())

	for _, v := range []float64{math.NaN(), math.Inf(1)} {
		if r.Learn(v) {
			t.Fatalf("Learn(%v) applied", v)
		}
	}
	for _, row := range r.Table().Snapshot() {
		for _, q := range row {
			if q != 0 {
				t.Fatalf("table changed by non-finite reward: %v", row)
			}
		}
	}
}

func TestExplorationDecaysToFloor(t *testing.T) {
	r, err := NewReinforcement(testConfig(func(c *Config) {
		c.ExplorationRate = 0.2
		c.ExplorationDecay = 0.9
		c.MinExploration = 0.05
	}))
	if err != nil {
		t.Fatal(err)
	}

	snap := features.Snapshot{RMSdB: -12, Energy: 0.3}
	prev := r.ExplorationRate()
	for i := range 100 {
		snap.Energy = float64(i%7) / 10
		r.Decide(snap, console.DefaultState())
		r.Learn(0.1)

		cur := r.ExplorationRate()
		if cur > prev {
			t.Fatalf("exploration increased from %v to %v", prev, cur)
		}
		if cur < 0.05 {
			t.Fatalf("exploration %v fell below the floor", cur)
		}
		prev = cur
	}
	if prev != 0.05 {
		t.Fatalf("exploration should settle at the floor, got %v", prev)
	}
}

// Identical seeds and inputs reproduce the action sequence
func TestReinforcementSeededReplay(t *testing.T) {
	inputs := make([]features.Snapshot, 300)
	for i := range inputs {
		inputs[i] = features.Snapshot{
			Energy:       float64(i%5) / 10,
			RMSdB:        -30 + float64(i%4)*5,
			BeatDetected: i%3 == 0,
		}
	}

	run := func(seed uint64) []Action {
		r, err := NewReinforcement(testConfig(func(c *Config) { c.Seed = seed }))
		if err != nil {
			t.Fatal(err)
		}
		out := make([]Action, 0, len(inputs))
		for i, snap := range inputs {
			state := console.State{CrossfaderPosition: float64(i%10) / 10}
			r.Decide(snap, state)
			a, _ := r.LastAction()
			out = append(out, a)
			r.Learn(snap.Energy - 0.2)
		}
		return out
	}

	a, b := run(11), run(11)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("action %d differs between identical runs: %v vs %v", i, a[i], b[i])
		}
	}

	c := run(12)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("a different seed should change the exploration sequence")
	}
}

func TestStatisticsAndReset(t *testing.T) {
	r := greedyLearner(t)
	snap := features.Snapshot{RMSdB: -12}
	state := console.DefaultState()

	r.Decide(snap, state)
	for i := range 12 {
		r.Decide(snap, state)
		r.Learn(float64(i))
	}

	s := r.Statistics()
	if s.Mode != ModeReinforcement || s.Rewards != 12 || s.ExperienceCount != 12 || s.TableSize != 1 {
		t.Fatalf("statistics = %+v", s)
	}
	if s.TotalReward != 66 || math.Abs(s.AvgReward-5.5) > 1e-12 {
		t.Fatalf("reward totals = %+v", s)
	}
	if math.Abs(s.RewardTrend-6.5) > 1e-12 {
		t.Fatalf("trend = %v, want mean of the last ten rewards", s.RewardTrend)
	}

	r.Reset()
	s = r.Statistics()
	if s.Rewards != 0 || s.ExperienceCount != 0 || s.RewardTrend != 0 {
		t.Fatalf("Reset left history behind: %+v", s)
	}
	if s.TableSize != 1 {
		t.Fatal("Reset should keep the table")
	}
	if r.Learn(1) {
		t.Fatal("Learn after Reset needs fresh history")
	}
}

func TestHistoriesBounded(t *testing.T) {
	r, err := NewReinforcement(testConfig(func(c *Config) {
		c.HistorySize = 4
		c.ExperienceSize = 3
	}))
	if err != nil {
		t.Fatal(err)
	}
	for i := range 20 {
		r.Decide(features.Snapshot{Energy: float64(i) / 10}, console.DefaultState())
		r.Learn(1)
	}
	if n := len(r.Experience()); n != 3 {
		t.Fatalf("experience length %d, want 3", n)
	}
	if s := r.Statistics(); s.Rewards != 4 {
		t.Fatalf("reward history %d, want 4", s.Rewards)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) != 4 || len(r.actions) != 4 {
		t.Fatalf("state/action history %d/%d, want 4", len(r.states), len(r.actions))
	}
}

func TestExportImport(t *testing.T) {
	src := greedyLearner(t)
	key := StateKey{Energy: 2, Loudness: 6, Crossfader: 5}
	src.Import(Model{
		Table:           map[StateKey]Row{key: {0, 0, 0.7, 0, 0}},
		ExplorationRate: 0,
	})

	m := src.Export()
	if m.Table[key][ActionVolumeBoost] != 0.7 || len(m.Table) != 1 {
		t.Fatalf("exported table = %v", m.Table)
	}

	dst := greedyLearner(t)
	dst.Import(m)
	rec := dst.Decide(features.Snapshot{Energy: 0.25, RMSdB: -20}, console.State{CrossfaderPosition: 0.5})
	if rec.VolumeAdjustA != 0.05 {
		t.Fatalf("imported table should pick the volume boost, got %+v", rec)
	}

	dst.Import(Model{ExplorationRate: math.NaN()})
	if dst.ExplorationRate() != 0 || dst.Table().Len() != 0 {
		t.Fatalf("bad exploration should be ignored, table replaced: rate %v len %d", dst.ExplorationRate(), dst.Table().Len())
	}
}
