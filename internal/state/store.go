// Package state implements the local bookkeeping store under ~/.tsk:
// AI usage accounting, the service registry, persisted metric values for
// @metrics/@learn/@optimize, and a mirror of the last license
// verification. Backed by SQLite in WAL mode.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// PathEnv overrides the store location (a file path) when set.
const PathEnv = "TSK_STATE_DB"

// migrations apply in order on open; user_version tracks progress.
var migrations = []string{
	`CREATE TABLE ai_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		prompt_chars INTEGER NOT NULL DEFAULT 0,
		response_chars INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE metrics (
		name TEXT PRIMARY KEY,
		value REAL NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE services (
		name TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		port INTEGER NOT NULL DEFAULT 0,
		command TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE license_cache (
		license_key TEXT PRIMARY KEY,
		valid INTEGER NOT NULL,
		tier TEXT NOT NULL DEFAULT 'community',
		checked_at TIMESTAMP NOT NULL
	)`,
}

// Store is the SQLite-backed local state.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns ~/.tsk/state.db, honoring the override env var.
func DefaultPath() (string, error) {
	if p := os.Getenv(PathEnv); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tsk", "state.db"), nil
}

// Open opens (creating if needed) the store at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state open %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("state wal: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("state version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := s.db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("state migration %d: %w", i+1, err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("state migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// ------------------------------------------------------------------
// AI usage
// ------------------------------------------------------------------

// UsageEntry is one recorded AI call.
type UsageEntry struct {
	Provider      string
	Model         string
	PromptChars   int
	ResponseChars int
	CreatedAt     time.Time
}

// RecordUsage logs one AI call.
func (s *Store) RecordUsage(ctx context.Context, e UsageEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_usage (provider, model, prompt_chars, response_chars) VALUES (?, ?, ?, ?)`,
		e.Provider, e.Model, e.PromptChars, e.ResponseChars)
	return err
}

// Record logs one AI call from flat fields. Satisfies the ai package's
// usage recorder.
func (s *Store) Record(ctx context.Context, provider, model string, promptChars, responseChars int) error {
	return s.RecordUsage(ctx, UsageEntry{
		Provider:      provider,
		Model:         model,
		PromptChars:   promptChars,
		ResponseChars: responseChars,
	})
}

// UsageSummary aggregates calls and character counts per provider.
func (s *Store) UsageSummary(ctx context.Context) (map[string]map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, COUNT(*), COALESCE(SUM(prompt_chars), 0), COALESCE(SUM(response_chars), 0)
		 FROM ai_usage GROUP BY provider`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]int64)
	for rows.Next() {
		var provider string
		var calls, prompt, response int64
		if err := rows.Scan(&provider, &calls, &prompt, &response); err != nil {
			return nil, err
		}
		out[provider] = map[string]int64{
			"calls":          calls,
			"prompt_chars":   prompt,
			"response_chars": response,
		}
	}
	return out, rows.Err()
}

// ------------------------------------------------------------------
// Metrics (shared by @metrics, @learn, @optimize)
// ------------------------------------------------------------------

// SetMetric upserts a named metric value.
func (s *Store) SetMetric(ctx context.Context, name string, value float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		name, value)
	return err
}

// Metric reads a named metric value.
func (s *Store) Metric(ctx context.Context, name string) (float64, bool, error) {
	var v float64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metrics WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Metrics lists all persisted metric values.
func (s *Store) Metrics(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM metrics ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// ------------------------------------------------------------------
// Service registry
// ------------------------------------------------------------------

// Service records a managed background process.
type Service struct {
	Name      string
	PID       int
	Port      int
	Command   string
	StartedAt time.Time
}

// RegisterService upserts a service record.
func (s *Store) RegisterService(ctx context.Context, svc Service) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO services (name, pid, port, command, started_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(name) DO UPDATE SET pid = excluded.pid, port = excluded.port,
		 command = excluded.command, started_at = CURRENT_TIMESTAMP`,
		svc.Name, svc.PID, svc.Port, svc.Command)
	return err
}

// UnregisterService removes a service record.
func (s *Store) UnregisterService(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE name = ?`, name)
	return err
}

// GetService reads one service record.
func (s *Store) GetService(ctx context.Context, name string) (*Service, error) {
	var svc Service
	err := s.db.QueryRowContext(ctx,
		`SELECT name, pid, port, command, started_at FROM services WHERE name = ?`, name).
		Scan(&svc.Name, &svc.PID, &svc.Port, &svc.Command, &svc.StartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// Services lists all service records.
func (s *Store) Services(ctx context.Context) ([]Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, pid, port, command, started_at FROM services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.Name, &svc.PID, &svc.Port, &svc.Command, &svc.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// ------------------------------------------------------------------
// License cache mirror
// ------------------------------------------------------------------

// MirrorLicense records the last verification verdict for a key.
func (s *Store) MirrorLicense(ctx context.Context, key string, valid bool, tier string, checkedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO license_cache (license_key, valid, tier, checked_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(license_key) DO UPDATE SET valid = excluded.valid, tier = excluded.tier,
		 checked_at = excluded.checked_at`,
		key, boolInt(valid), tier, checkedAt)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// MetricSink adapts the store to the operator environment's metrics
// interface. Persistence errors log-and-drop; an operator read never
// fails a parse over bookkeeping.
type MetricSink struct {
	Store *Store
	Ctx   context.Context
}

// Record persists a metric value.
func (m MetricSink) Record(name string, value float64) {
	_ = m.Store.SetMetric(m.ctx(), name, value)
}

// Value reads a metric value.
func (m MetricSink) Value(name string) (float64, bool) {
	v, ok, err := m.Store.Metric(m.ctx(), name)
	if err != nil {
		return 0, false
	}
	return v, ok
}

func (m MetricSink) ctx() context.Context {
	if m.Ctx != nil {
		return m.Ctx
	}
	return context.Background()
}
