package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-mix/logging"
	"github.com/RyanBlaney/sonido-mix/policy"
	"github.com/RyanBlaney/sonido-mix/reward"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("missing file reported as existing")
	}
	if resolved != path {
		t.Fatalf("resolved %q, want %q", resolved, path)
	}
	if cfg.PolicyMode() != policy.ModeHeuristic {
		t.Fatalf("default mode = %v", cfg.PolicyMode())
	}
	if !filepath.IsAbs(cfg.Persistence.ModelDir) || strings.Contains(cfg.Persistence.ModelDir, "~") {
		t.Fatalf("model dir not expanded: %q", cfg.Persistence.ModelDir)
	}
	if got := cfg.SessionConfig().DecisionInterval; got != time.Second {
		t.Fatalf("decision interval = %v", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, `
[audio]
synthetic_bpm = 128.0

[policy]
mode = "Supervised"
max_states = 500

[reward.weights]
tempo_match = 0.5

[session]
decision_interval_ms = 250

[logging]
level = "DEBUG"
`)

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("existing file reported as missing")
	}
	if cfg.Audio.SyntheticBPM != 128 {
		t.Fatalf("bpm = %v", cfg.Audio.SyntheticBPM)
	}
	if cfg.PolicyMode() != policy.ModeClassifier {
		t.Fatalf("mode = %v", cfg.PolicyMode())
	}
	pol, err := cfg.PolicyConfig()
	if err != nil {
		t.Fatalf("PolicyConfig: %v", err)
	}
	if pol.MaxStates != 500 || pol.LearningRate != 0.1 {
		t.Fatalf("policy config = %+v", pol)
	}

	w := cfg.RewardConfig().Weights
	if w.TempoMatch != 0.5 || w.Mix != reward.DefaultWeights().Mix {
		t.Fatalf("weights = %+v", w)
	}
	if got := cfg.SessionConfig().DecisionInterval; got != 250*time.Millisecond {
		t.Fatalf("decision interval = %v", got)
	}
	if cfg.LogLevel() != logging.DebugLevel {
		t.Fatalf("log level = %v", cfg.LogLevel())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cases := map[string]string{
		"negative weight": "[reward.weights]\nmix = -0.2\n",
		"unknown mode":    "[policy]\nmode = \"oracle\"\n",
		"bad log level":   "[logging]\nlevel = \"chatty\"\n",
		"bad colors":      "[logging]\ncolors = \"rainbow\"\n",
		"two bands":       "[extractor]\nbands = [[20.0, 250.0], [250.0, 2000.0]]\n",
		"inverted band":   "[extractor]\nbands = [[250.0, 20.0], [250.0, 2000.0], [2000.0, 8000.0]]\n",
		"single state":    "[policy]\nmax_states = 1\n",
		"zero interval":   "[session]\ndecision_interval_ms = 0\n",
		"bad bpm":         "[audio]\nsynthetic_bpm = 0.0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, _, _, err := Load(writeConfig(t, "[audio\nsample_rate = "))
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestInvalidWeightWrapsRewardError(t *testing.T) {
	cfg := Default()
	cfg.Reward.Weights.Crossfader = -1
	if err := cfg.Validate(); !errors.Is(err, reward.ErrInvalidConfig) {
		t.Fatalf("expected reward.ErrInvalidConfig, got %v", err)
	}
}

func TestCreateSampleMatchesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	fromSample, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample not found after CreateSample")
	}
	defaults, _, _, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}
	if !reflect.DeepEqual(fromSample, defaults) {
		t.Fatalf("sample config drifted from defaults:\n%+v\n%+v", fromSample, defaults)
	}
}

func TestExtractorConfigUsesSourceRate(t *testing.T) {
	cfg := Default()
	ext, err := cfg.ExtractorConfig(22050)
	if err != nil {
		t.Fatalf("ExtractorConfig: %v", err)
	}
	if ext.SampleRate != 22050 || ext.TickInterval != 100*time.Millisecond {
		t.Fatalf("extractor config = %+v", ext)
	}
	if ext.Bands[1].Low != 250 || ext.Bands[1].High != 2000 {
		t.Fatalf("bands = %+v", ext.Bands)
	}
	if err := ext.Validate(); err != nil {
		t.Fatalf("default extractor config invalid: %v", err)
	}
}
