// Package settings persists the assistant's user settings (API key,
// personas, per-host overrides, disabled hosts, usage counters, theme) as
// JSON values in a single SQLite key/value table.
//
// Absent keys read as their default value. Writes are last-writer-wins and
// every write notifies the registered watchers with the key that changed.
// Writes made by other processes are noticed only while Follow runs.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Keys stored by the assistant.
const (
	KeyAPIKey        = "api_key"
	KeyPersonas      = "personas"
	KeyHostPersonas  = "host_personas"
	KeyDisabledHosts = "disabled_hosts"
	KeyUsage         = "usage"
	KeyTheme         = "theme"
)

// Store is a JSON key/value store on SQLite.
type Store struct {
	db  *sql.DB
	log zerolog.Logger

	mu       sync.Mutex
	watchers map[int]func(key string)
	nextID   int

	// seen holds the updated_at of every key as last written or polled.
	seen   map[string]int64
	primed bool
}

// Open opens (creating if needed) the settings database at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("settings: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("settings: open: %w", err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("settings: %s: %w", stmt, err)
		}
	}

	return &Store{
		db:       db,
		log:      log.With().Str("component", "settings").Logger(),
		watchers: make(map[int]func(string)),
		seen:     make(map[string]int64),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get decodes the value stored under key into dst. It reports false (and
// leaves dst untouched) when the key is absent.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("settings: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("settings: decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key and notifies watchers.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", key, err)
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), now)
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	s.mu.Lock()
	s.seen[key] = now
	s.mu.Unlock()
	s.log.Debug().Str("key", key).Msg("settings: updated")
	s.notify(key)
	return nil
}

// Watch registers fn to be called after every Set. The returned function
// unregisters it.
func (s *Store) Watch(fn func(key string)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Follow polls the database every interval and notifies watchers of keys
// another process changed. It returns when ctx ends.
func (s *Store) Follow(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.poll(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("settings: poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll compares every key's updated_at with the last one seen. The first
// call only records the baseline.
func (s *Store) poll(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, updated_at FROM kv`)
	if err != nil {
		return fmt.Errorf("settings: poll: %w", err)
	}
	defer rows.Close()

	current := make(map[string]int64)
	for rows.Next() {
		var key string
		var ts int64
		if err := rows.Scan(&key, &ts); err != nil {
			return fmt.Errorf("settings: poll: %w", err)
		}
		current[key] = ts
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("settings: poll: %w", err)
	}

	var changed []string
	s.mu.Lock()
	for key, ts := range current {
		if s.seen[key] != ts {
			s.seen[key] = ts
			changed = append(changed, key)
		}
	}
	primed := s.primed
	s.primed = true
	s.mu.Unlock()

	if !primed {
		return nil
	}
	for _, key := range changed {
		s.log.Debug().Str("key", key).Msg("settings: changed elsewhere")
		s.notify(key)
	}
	return nil
}

func (s *Store) notify(key string) {
	s.mu.Lock()
	fns := make([]func(string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}
