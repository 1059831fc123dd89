package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/cast"
)

// restartRequiredKeys are settings that affect already-bound resources
// (listeners, connection pools) and cannot be hot-applied.
var restartRequiredKeys = map[string]bool{
	"bind_address": true,
	"database_url": true,
	"redis_addr":   true,
}

// Settings is the typed key-value store described in §4.3: Get/Set/Delete
// with an in-memory read cache invalidated on write. Non-primitive values are
// marshaled as JSON.
type Settings struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[string]string
}

func NewSettings(db *sql.DB) *Settings {
	return &Settings{db: db, cache: make(map[string]string)}
}

// Load populates the in-memory cache from the settings table. Safe to call
// again to force a full refresh.
func (s *Settings) Load() error {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}
	defer rows.Close()

	fresh := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("settings: scan: %w", err)
		}
		fresh[k] = v
	}
	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	return nil
}

func (s *Settings) raw(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	return v, ok
}

// Get returns the string-coerced setting, or def if unset.
func Get[T any](s *Settings, key string, def T) T {
	raw, ok := s.raw(key)
	if !ok {
		return def
	}
	var out T
	switch any(out).(type) {
	case string:
		v, _ := any(cast.ToString(raw)).(T)
		return v
	case int:
		v, _ := any(cast.ToInt(raw)).(T)
		return v
	case int32:
		v, _ := any(cast.ToInt32(raw)).(T)
		return v
	case int64:
		v, _ := any(cast.ToInt64(raw)).(T)
		return v
	case float32:
		v, _ := any(cast.ToFloat32(raw)).(T)
		return v
	case float64:
		v, _ := any(cast.ToFloat64(raw)).(T)
		return v
	case bool:
		v, _ := any(cast.ToBool(raw)).(T)
		return v
	default:
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return def
		}
		return out
	}
}

// SetResult reports whether applying a setting requires a process restart to
// take effect.
type SetResult struct {
	RestartRequired bool
}

// Set persists a setting and invalidates the cache entry. Non-string values
// are JSON-encoded.
func (s *Settings) Set(key string, value any) (SetResult, error) {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return SetResult{}, fmt.Errorf("settings: marshal %s: %w", key, err)
		}
		raw = string(b)
	}

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()`, key, raw)
	if err != nil {
		return SetResult{}, fmt.Errorf("settings: set %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = raw
	s.mu.Unlock()

	return SetResult{RestartRequired: restartRequiredKeys[key]}, nil
}

func (s *Settings) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("settings: delete %s: %w", key, err)
	}
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// GetAll returns a snapshot of every cached setting.
func (s *Settings) GetAll() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}
