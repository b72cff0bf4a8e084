package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/RyanBlaney/sonido-mix/logging"
	"github.com/RyanBlaney/sonido-mix/policy"
)

func init() {
	logging.SetGlobalLogger(&logging.NoOpLogger{})
}

func mustOpen(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleModel() policy.Model {
	return policy.Model{
		Table: map[policy.StateKey]policy.Row{
			{Energy: 2, Loudness: 6, Crossfader: 5}:             {0.1, 0, -0.2, 0, 0.05},
			{Energy: 0, Loudness: 0, Crossfader: 9, Beat: true}: {0, 0, 0, 0.4, 0},
			{Energy: 11, Loudness: -1, Crossfader: 0}:           {-1, 1, 0, 0, 0},
		},
		ExplorationRate: 0.137,
	}
}

func TestLoadFromFreshDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "models")
	s := mustOpen(t, dir)

	if _, err := os.Stat(filepath.Join(dir, dbFileName)); err != nil {
		t.Fatalf("database not created: %v", err)
	}

	m, found, err := s.LoadPolicy(context.Background(), policy.ModeReinforcement)
	if err != nil {
		t.Fatalf("LoadPolicy on a first run: %v", err)
	}
	if found || len(m.Table) != 0 {
		t.Fatalf("expected nothing saved, got found=%v model=%+v", found, m)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	want := sampleModel()

	s := mustOpen(t, dir)
	id, err := s.SavePolicy(ctx, policy.ModeReinforcement, want)
	if err != nil {
		t.Fatalf("SavePolicy: %v", err)
	}
	if id == "" {
		t.Fatal("expected a snapshot id")
	}
	_ = s.Close()

	reopened := mustOpen(t, dir)
	got, found, err := reopened.LoadPolicy(ctx, policy.ModeReinforcement)
	if err != nil || !found {
		t.Fatalf("LoadPolicy: found=%v err=%v", found, err)
	}
	if got.ExplorationRate != want.ExplorationRate {
		t.Fatalf("exploration = %v, want %v", got.ExplorationRate, want.ExplorationRate)
	}
	if len(got.Table) != len(want.Table) {
		t.Fatalf("loaded %d states, want %d", len(got.Table), len(want.Table))
	}
	for k, row := range want.Table {
		if got.Table[k] != row {
			t.Fatalf("state %s = %v, want %v", k, got.Table[k], row)
		}
	}

	meta, found, err := reopened.Meta(ctx, policy.ModeReinforcement)
	if err != nil || !found {
		t.Fatalf("Meta: found=%v err=%v", found, err)
	}
	if meta.SnapshotID != id || meta.States != 3 || time.Since(meta.SavedAt) > time.Minute {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestSaveReplacesPreviousRows(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t, t.TempDir())

	first, err := s.SavePolicy(ctx, policy.ModeReinforcement, sampleModel())
	if err != nil {
		t.Fatal(err)
	}

	smaller := policy.Model{
		Table:           map[policy.StateKey]policy.Row{{Energy: 1}: {0, 0, 0, 0, 1}},
		ExplorationRate: 0.05,
	}
	second, err := s.SavePolicy(ctx, policy.ModeReinforcement, smaller)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("each save should get a fresh snapshot id")
	}

	got, _, err := s.LoadPolicy(ctx, policy.ModeReinforcement)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Table) != 1 || got.ExplorationRate != 0.05 {
		t.Fatalf("stale rows survived: %+v", got)
	}

	// other modes are untouched
	if _, found, _ := s.LoadPolicy(ctx, policy.ModeHeuristic); found {
		t.Fatal("heuristic mode should have nothing saved")
	}
}

func TestLoadSkipsUnreadableKeys(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t, t.TempDir())

	if _, err := s.SavePolicy(ctx, policy.ModeReinforcement, sampleModel()); err != nil {
		t.Fatal(err)
	}
	_, err := s.db.Exec(
		"INSERT INTO q_values (mode, state_key, a0) VALUES (?, ?, ?), (?, ?, ?)",
		"reinforcement", "garbage", 1.0,
		"reinforcement", "1_2_3_7", 1.0,
	)
	if err != nil {
		t.Fatal(err)
	}

	got, found, err := s.LoadPolicy(ctx, policy.ModeReinforcement)
	if err != nil || !found {
		t.Fatalf("LoadPolicy: found=%v err=%v", found, err)
	}
	if len(got.Table) != 3 {
		t.Fatalf("expected the 3 valid states, got %d", len(got.Table))
	}
}

func TestOpenRejectsCorruptDatabase(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, dbFileName), []byte("this is not a sqlite database at all, just text"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(dir)
	if err == nil {
		_, _, err = s.LoadPolicy(context.Background(), policy.ModeReinforcement)
		_ = s.Close()
	}
	if err == nil {
		t.Fatal("expected an error for a corrupt database")
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	s := mustOpen(t, dir)
	if _, err := s.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	if _, err := Open(dir); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestSaveWaitsForLock(t *testing.T) {
	dir := t.TempDir()
	s := mustOpen(t, dir)

	holder := flock.New(filepath.Join(dir, lockFileName))
	ok, err := holder.TryLock()
	if err != nil || !ok {
		t.Fatalf("could not take the lock: ok=%v err=%v", ok, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := s.SavePolicy(ctx, policy.ModeReinforcement, sampleModel()); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked while another writer holds the lock, got %v", err)
	}

	if err := holder.Unlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SavePolicy(context.Background(), policy.ModeReinforcement, sampleModel()); err != nil {
		t.Fatalf("SavePolicy after release: %v", err)
	}
}
