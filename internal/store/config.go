package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ConfigStore persists small versioned records in the shared config table.
// The backup subsystem keeps its settings, last-run state, and run lease here.
// All mutations are single SQL statements, so SQLite serializes them and the
// insert-if-absent / compare-and-swap primitives behave atomically relative to
// each other.
type ConfigStore struct {
	db *sql.DB
}

func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Get returns the value for key and whether the key exists.
func (s *ConfigStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes the value for key unconditionally.
func (s *ConfigStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

// InsertIfAbsent writes the value only when the key does not exist yet.
// It reports whether the insert happened.
func (s *ConfigStore) InsertIfAbsent(key, value string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("insert config %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert config %q: rows affected: %w", key, err)
	}
	return n == 1, nil
}

// CompareAndSwap replaces the value only when the current value equals expected.
// It reports whether the swap happened.
func (s *ConfigStore) CompareAndSwap(key, expected, value string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE config SET value = ?, updated_at = ? WHERE key = ? AND value = ?`,
		value, time.Now().UTC().Format(time.RFC3339), key, expected,
	)
	if err != nil {
		return false, fmt.Errorf("swap config %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap config %q: rows affected: %w", key, err)
	}
	return n == 1, nil
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *ConfigStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM config WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete config %q: %w", key, err)
	}
	return nil
}
