package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetAppState reads the singleton preference row into dst (a JSON target).
// A missing row leaves dst untouched.
func (s *Store) GetAppState(dst interface{}) error {
	var data string
	err := s.db.QueryRow("SELECT data FROM app_state WHERE id = 1").Scan(&data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read app state: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("failed to unmarshal app state: %w", err)
	}

	return nil
}

// SetAppState replaces the singleton preference row
func (s *Store) SetAppState(src interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal app state: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO app_state (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, string(data), time.Now())
	if err != nil {
		return fmt.Errorf("failed to write app state: %w", err)
	}

	return nil
}
