package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Edit statuses
const (
	EditPending = "pending"
	EditApplied = "applied"
)

// TrackEdit is a staged field edit. Pending edits have not touched the live
// track row; applied edits are kept as the undo trail.
type TrackEdit struct {
	ID        int64
	TrackID   string
	Field     string
	OldValue  string
	NewValue  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const editColumns = `id, track_id, field, COALESCE(old_value, ''), COALESCE(new_value, ''),
       status, created_at, updated_at`

// StageEdit upserts a pending edit for a (track, field) cell. Re-staging the
// same cell replaces the pending value and refreshes its timestamp.
func (s *Store) StageEdit(trackID, field, oldValue, newValue string) error {
	_, err := s.db.Exec(`
		INSERT INTO track_edits (track_id, field, old_value, new_value, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT(track_id, field) WHERE status = 'pending' DO UPDATE SET
			old_value = excluded.old_value,
			new_value = excluded.new_value,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, trackID, field, oldValue, newValue, time.Now(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to stage edit %s.%s: %w", trackID, field, err)
	}
	return nil
}

// PendingEdits returns all pending edits, newest first by creation time.
// Re-staging a cell refreshes its timestamp, so a refreshed edit moves to
// the front even though it keeps its original row.
func (s *Store) PendingEdits() ([]*TrackEdit, error) {
	return s.queryEdits(`
		SELECT ` + editColumns + ` FROM track_edits
		WHERE status = 'pending'
		ORDER BY created_at DESC, id DESC
	`)
}

// PendingEditCount returns the number of pending edits
func (s *Store) PendingEditCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM track_edits WHERE status = 'pending'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending edits: %w", err)
	}
	return count, nil
}

// PendingEditsByTrack returns pending edits grouped by track id, preserving
// newest-first order within each group.
func (s *Store) PendingEditsByTrack() (map[string][]*TrackEdit, error) {
	edits, err := s.PendingEdits()
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*TrackEdit)
	for _, e := range edits {
		grouped[e.TrackID] = append(grouped[e.TrackID], e)
	}

	return grouped, nil
}

// MarkEditsApplied flips the given pending edits to applied, keeping the
// rows so a later undo can find them.
func (s *Store) MarkEditsApplied(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, time.Now())
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.Exec(`
		UPDATE track_edits SET status = 'applied', updated_at = ?
		WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark edits applied: %w", err)
	}

	return nil
}

// DiscardPendingEdits deletes all pending edits unconditionally.
// Returns the number of rows removed.
func (s *Store) DiscardPendingEdits() (int, error) {
	result, err := s.db.Exec("DELETE FROM track_edits WHERE status = 'pending'")
	if err != nil {
		return 0, fmt.Errorf("failed to discard pending edits: %w", err)
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// LatestAppliedEdit returns the most recent applied edit for a cell, or nil
func (s *Store) LatestAppliedEdit(trackID, field string) (*TrackEdit, error) {
	row := s.db.QueryRow(`
		SELECT `+editColumns+` FROM track_edits
		WHERE track_id = ? AND field = ? AND status = 'applied'
		ORDER BY id DESC
		LIMIT 1
	`, trackID, field)

	e, err := scanEdit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEdit removes a single edit record by id
func (s *Store) DeleteEdit(id int64) error {
	_, err := s.db.Exec("DELETE FROM track_edits WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete edit %d: %w", id, err)
	}
	return nil
}

func (s *Store) queryEdits(query string, args ...interface{}) ([]*TrackEdit, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edits: %w", err)
	}
	defer rows.Close()

	var edits []*TrackEdit
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}

	return edits, rows.Err()
}

func scanEdit(row rowScanner) (*TrackEdit, error) {
	e := &TrackEdit{}
	err := row.Scan(&e.ID, &e.TrackID, &e.Field, &e.OldValue, &e.NewValue,
		&e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan edit: %w", err)
	}
	return e, nil
}
