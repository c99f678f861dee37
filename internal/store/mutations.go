package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Mutation operation types
const (
	MutationInsert = "insert"
	MutationUpdate = "update"
	MutationDelete = "delete"
)

// Mutation is one operation inside a queued transaction
type Mutation struct {
	Type     string            `json:"type"`
	ID       string            `json:"id,omitempty"`
	Entity   json.RawMessage   `json:"entity,omitempty"`   // insert payload
	Changes  map[string]string `json:"changes,omitempty"`  // update diff
	Original json.RawMessage   `json:"original,omitempty"` // pre-image, for rollback
}

// MutationRecord is a durably queued transaction awaiting remote replay.
// It is destroyed only after the remote confirms, or after a non-retriable
// failure has been reported to the caller.
type MutationRecord struct {
	ID         int64
	Key        string // idempotency key; applied to the remote at most once
	Name       string // registered sync function
	Collection string
	Metadata   map[string]string
	Mutations  []Mutation
	Attempts   int
	LastError  string
	CreatedAt  time.Time
}

const mutationColumns = `id, key, name, collection, COALESCE(metadata, '{}'),
       mutations, attempts, COALESCE(last_error, ''), created_at`

// AppendMutation durably appends a transaction to the mutation log.
// Appending the same key twice is a no-op (replayed commit after a crash).
func (s *Store) AppendMutation(rec *MutationRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("mutation key cannot be empty")
	}

	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation metadata: %w", err)
	}
	mutJSON, err := json.Marshal(rec.Mutations)
	if err != nil {
		return fmt.Errorf("failed to marshal mutations: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO mutation_log (key, name, collection, metadata, mutations, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, rec.Key, rec.Name, rec.Collection, string(metaJSON), string(mutJSON), time.Now())
	if err != nil {
		return fmt.Errorf("failed to append mutation %s: %w", rec.Key, err)
	}

	return nil
}

// NextMutation returns the oldest queued mutation, or nil when the log is
// empty. The log is drained strictly FIFO.
func (s *Store) NextMutation() (*MutationRecord, error) {
	row := s.db.QueryRow(`
		SELECT ` + mutationColumns + ` FROM mutation_log
		ORDER BY id
		LIMIT 1
	`)

	rec, err := scanMutation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetMutation retrieves a queued mutation by idempotency key, nil if absent
func (s *Store) GetMutation(key string) (*MutationRecord, error) {
	row := s.db.QueryRow(`SELECT `+mutationColumns+` FROM mutation_log WHERE key = ?`, key)

	rec, err := scanMutation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListMutations returns all queued mutations in FIFO order
func (s *Store) ListMutations() ([]*MutationRecord, error) {
	rows, err := s.db.Query(`SELECT ` + mutationColumns + ` FROM mutation_log ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mutation log: %w", err)
	}
	defer rows.Close()

	var recs []*MutationRecord
	for rows.Next() {
		rec, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// MutationCount returns the queue depth
func (s *Store) MutationCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM mutation_log").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count mutations: %w", err)
	}
	return count, nil
}

// RemoveMutation deletes a mutation by key after the remote confirmed it,
// or after a non-retriable failure was reported. Returns whether a row was
// removed: with two executors racing, only one observes true.
func (s *Store) RemoveMutation(key string) (bool, error) {
	result, err := s.db.Exec("DELETE FROM mutation_log WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("failed to remove mutation %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows == 1, nil
}

// RecordMutationFailure notes a retriable failure; the row stays queued
func (s *Store) RecordMutationFailure(key string, failure error) error {
	_, err := s.db.Exec(`
		UPDATE mutation_log SET attempts = attempts + 1, last_error = ?
		WHERE key = ?
	`, failure.Error(), key)
	if err != nil {
		return fmt.Errorf("failed to record mutation failure: %w", err)
	}
	return nil
}

func scanMutation(row rowScanner) (*MutationRecord, error) {
	rec := &MutationRecord{}
	var metaJSON, mutJSON string

	err := row.Scan(&rec.ID, &rec.Key, &rec.Name, &rec.Collection,
		&metaJSON, &mutJSON, &rec.Attempts, &rec.LastError, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan mutation: %w", err)
	}

	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mutation metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(mutJSON), &rec.Mutations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mutations: %w", err)
	}

	return rec, nil
}
