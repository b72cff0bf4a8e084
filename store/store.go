// Package store persists learned policy state in a SQLite database inside
// the model directory. Writers serialise on a lock file next to it so
// sessions sharing a directory never interleave saves.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/RyanBlaney/sonido-mix/logging"
	"github.com/RyanBlaney/sonido-mix/policy"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly
const schemaVersion = 1

const (
	dbFileName   = "models.db"
	lockFileName = "models.lock"

	lockRetryDelay = 50 * time.Millisecond
	lockTimeout    = 5 * time.Second

	sqliteBusyCode      = 5
	busyRetryAttempts   = 5
	busyRetryBackoff    = 10 * time.Millisecond
	busyRetryMaxBackoff = 200 * time.Millisecond
)

var (
	// ErrSchemaMismatch indicates a database written by an incompatible version
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrLocked is returned when another writer holds the model directory lock
	ErrLocked = errors.New("model directory locked")
)

// Meta describes the most recent save of a mode's model
type Meta struct {
	Mode            policy.Mode
	SnapshotID      string
	ExplorationRate float64
	States          int
	SavedAt         time.Time
}

// Store is the model database of one directory
type Store struct {
	db     *sql.DB
	dir    string
	lock   *flock.Flock
	logger logging.Logger
}

// Open creates dir if needed and opens its model database
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{
		db:   db,
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFileName)),
		logger: logging.WithFields(logging.Fields{
			"component": "model_store",
			"dir":       dir,
		}),
	}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Dir returns the model directory
func (s *Store) Dir() string {
	return s.dir
}

// Close closes the database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start over)",
			ErrSchemaMismatch, version, schemaVersion, filepath.Join(s.dir, dbFileName))
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// LoadPolicy reads the saved model for mode. A mode that was never saved
// returns found=false and a nil error. Rows whose state key does not parse
// are skipped.
func (s *Store) LoadPolicy(ctx context.Context, mode policy.Mode) (policy.Model, bool, error) {
	meta, found, err := s.Meta(ctx, mode)
	if err != nil || !found {
		return policy.Model{}, false, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT state_key, a0, a1, a2, a3, a4 FROM q_values WHERE mode = ?", string(mode))
	if err != nil {
		return policy.Model{}, false, fmt.Errorf("query q_values: %w", err)
	}
	defer rows.Close()

	model := policy.Model{
		Table:           make(map[policy.StateKey]policy.Row, meta.States),
		ExplorationRate: meta.ExplorationRate,
	}
	skipped := 0
	for rows.Next() {
		var (
			raw string
			row policy.Row
		)
		if err := rows.Scan(&raw, &row[0], &row[1], &row[2], &row[3], &row[4]); err != nil {
			return policy.Model{}, false, fmt.Errorf("scan q_values: %w", err)
		}
		key, err := policy.ParseStateKey(raw)
		if err != nil {
			skipped++
			s.logger.Warn("Skipping unreadable state key", logging.Fields{
				"function":  "LoadPolicy",
				"state_key": raw,
				"error":     err.Error(),
			})
			continue
		}
		model.Table[key] = row
	}
	if err := rows.Err(); err != nil {
		return policy.Model{}, false, fmt.Errorf("iterate q_values: %w", err)
	}

	s.logger.Info("Policy loaded", logging.Fields{
		"mode":        string(mode),
		"snapshot_id": meta.SnapshotID,
		"states":      len(model.Table),
		"skipped":     skipped,
	})
	return model, true, nil
}

// Meta returns the metadata of the last save for mode
func (s *Store) Meta(ctx context.Context, mode policy.Mode) (Meta, bool, error) {
	var (
		meta    = Meta{Mode: mode}
		savedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot_id, exploration_rate, states, saved_at FROM policy_meta WHERE mode = ?",
		string(mode),
	).Scan(&meta.SnapshotID, &meta.ExplorationRate, &meta.States, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, fmt.Errorf("query policy_meta: %w", err)
	}
	if t, perr := time.Parse(time.RFC3339Nano, savedAt); perr == nil {
		meta.SavedAt = t
	}
	return meta, true, nil
}

// SavePolicy replaces the stored model for mode in one transaction while
// holding the directory lock, and returns the new snapshot ID
func (s *Store) SavePolicy(ctx context.Context, mode policy.Mode, model policy.Model) (string, error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	ok, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("acquire model lock: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrLocked, s.lock.Path())
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("Failed to release model lock", logging.Fields{"error": err.Error()})
		}
	}()

	snapshotID := uuid.New().String()
	err = retryOnBusy(ctx, func() error {
		return s.replace(ctx, mode, model, snapshotID)
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("Policy saved", logging.Fields{
		"mode":        string(mode),
		"snapshot_id": snapshotID,
		"states":      len(model.Table),
	})
	return snapshotID, nil
}

func (s *Store) replace(ctx context.Context, mode policy.Mode, model policy.Model, snapshotID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM q_values WHERE mode = ?", string(mode)); err != nil {
		return fmt.Errorf("clear q_values: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO q_values (mode, state_key, a0, a1, a2, a3, a4) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, row := range model.Table {
		if _, err := stmt.ExecContext(ctx, string(mode), key.String(), row[0], row[1], row[2], row[3], row[4]); err != nil {
			return fmt.Errorf("insert state %s: %w", key, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO policy_meta (mode, snapshot_id, exploration_rate, states, saved_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(mode) DO UPDATE SET
		   snapshot_id = excluded.snapshot_id,
		   exploration_rate = excluded.exploration_rate,
		   states = excluded.states,
		   saved_at = excluded.saved_at`,
		string(mode), snapshotID, model.ExplorationRate, len(model.Table),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write policy_meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}
