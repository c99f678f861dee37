package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/franz/radiola/internal/util"
)

// Channel sources
const (
	SourceLegacy = "v1" // frozen legacy archive import, never re-synced
	SourceRemote = "v2" // authoritative remote
)

// Channel represents a catalogue channel row
type Channel struct {
	ID             string
	Slug           string
	Name           string
	Description    string
	TrackCount     int
	Source         string
	FirebaseID     string
	TracksSyncedAt *time.Time
	Busy           bool
	BusySince      *time.Time
	CreatedAt      *time.Time
	UpdatedAt      *time.Time
}

// IsLegacy reports whether the channel was imported from the frozen archive
func (c *Channel) IsLegacy() bool {
	return c.Source == SourceLegacy
}

const channelColumns = `id, slug, COALESCE(name, ''), COALESCE(description, ''),
       track_count, source, COALESCE(firebase_id, ''),
       tracks_synced_at, busy, busy_since, created_at, updated_at`

// UpsertChannel inserts or updates a channel keyed by primary id.
// A row already holding the same slug keeps its id (update-in-place, never a
// duplicate), and incoming empty fields never overwrite locally-set values.
func (s *Store) UpsertChannel(ch *Channel) error {
	if ch.ID == "" {
		return fmt.Errorf("channel id cannot be empty")
	}
	ch.Slug = util.NormalizeSlug(ch.Slug)
	if ch.Slug == "" {
		return fmt.Errorf("channel slug cannot be empty")
	}
	if ch.Source == "" {
		ch.Source = SourceRemote
	}

	// Slug is the external addressing key; a row already owning this slug
	// is updated in place and keeps its id. Both conflict paths live in
	// the one statement, so concurrent writers inserting the same new
	// slug land on the same row instead of racing a lookup.
	_, err := s.db.Exec(`
		INSERT INTO channels (id, slug, name, description, track_count, source,
		                      firebase_id, created_at, updated_at)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = COALESCE(excluded.name, channels.name),
			description = COALESCE(excluded.description, channels.description),
			track_count = excluded.track_count,
			source = excluded.source,
			firebase_id = COALESCE(excluded.firebase_id, channels.firebase_id),
			created_at = COALESCE(channels.created_at, excluded.created_at),
			updated_at = COALESCE(excluded.updated_at, channels.updated_at)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			name = COALESCE(excluded.name, channels.name),
			description = COALESCE(excluded.description, channels.description),
			track_count = excluded.track_count,
			source = excluded.source,
			firebase_id = COALESCE(excluded.firebase_id, channels.firebase_id),
			created_at = COALESCE(channels.created_at, excluded.created_at),
			updated_at = COALESCE(excluded.updated_at, channels.updated_at)
		`, ch.ID, ch.Slug, ch.Name, ch.Description, ch.TrackCount, ch.Source,
		ch.FirebaseID, nullTime(ch.CreatedAt), nullTime(ch.UpdatedAt))

	if err != nil {
		return fmt.Errorf("failed to upsert channel %s: %w", ch.Slug, err)
	}

	// Report the canonical id back so callers address the surviving row
	var canonicalID string
	err = s.db.QueryRow("SELECT id FROM channels WHERE slug = ?", ch.Slug).Scan(&canonicalID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to resolve slug %s: %w", ch.Slug, err)
	}
	if canonicalID != "" {
		ch.ID = canonicalID
	}

	return nil
}

// GetChannelBySlug retrieves a channel by slug. Returns nil if not found.
func (s *Store) GetChannelBySlug(slug string) (*Channel, error) {
	slug = util.NormalizeSlug(slug)
	row := s.db.QueryRow(`SELECT `+channelColumns+` FROM channels WHERE slug = ?`, slug)
	return scanChannel(row)
}

// GetChannelByID retrieves a channel by id. Returns nil if not found.
func (s *Store) GetChannelByID(id string) (*Channel, error) {
	row := s.db.QueryRow(`SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

// ListChannels retrieves all channels ordered by slug
func (s *Store) ListChannels() ([]*Channel, error) {
	rows, err := s.db.Query(`SELECT ` + channelColumns + ` FROM channels ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	return channels, rows.Err()
}

// DeleteChannel removes a channel and (by cascade) its tracks
func (s *Store) DeleteChannel(id string) error {
	_, err := s.db.Exec("DELETE FROM channels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete channel %s: %w", id, err)
	}
	return nil
}

// CountChannels returns the number of cached channels
func (s *Store) CountChannels() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM channels").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count channels: %w", err)
	}
	return count, nil
}

// TryBeginPull attempts to mark a channel busy for a track pull.
// A busy marker older than ttl counts as abandoned (crashed puller) and is
// taken over. Returns false if another puller currently holds the channel.
func (s *Store) TryBeginPull(channelID string, ttl time.Duration) (bool, error) {
	now := time.Now().Unix()
	cutoff := now - int64(ttl.Seconds())

	result, err := s.db.Exec(`
		UPDATE channels SET busy = 1, busy_since = ?
		WHERE id = ? AND (busy = 0 OR busy_since IS NULL OR busy_since <= ?)
	`, now, channelID, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to mark channel busy: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 1, nil
}

// EndPull clears the busy marker without touching the sync timestamp, so a
// failed pull forces a full retry next time.
func (s *Store) EndPull(channelID string) error {
	_, err := s.db.Exec(`UPDATE channels SET busy = 0, busy_since = NULL WHERE id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("failed to clear busy flag: %w", err)
	}
	return nil
}

// MarkTracksSynced records a completed track sync: timestamp, track count
// and busy flag change together, only after the full batch succeeded.
func (s *Store) MarkTracksSynced(channelID string, trackCount int) error {
	_, err := s.db.Exec(`
		UPDATE channels
		SET tracks_synced_at = ?, track_count = ?, busy = 0, busy_since = NULL
		WHERE id = ?
	`, time.Now(), trackCount, channelID)
	if err != nil {
		return fmt.Errorf("failed to mark channel synced: %w", err)
	}
	return nil
}

// InvalidateChannel clears the sync timestamp so the next pull refreshes
// the track set from the remote.
func (s *Store) InvalidateChannel(channelID string) error {
	_, err := s.db.Exec(`UPDATE channels SET tracks_synced_at = NULL WHERE id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("failed to invalidate channel: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChannel(row rowScanner) (*Channel, error) {
	ch := &Channel{}
	var syncedAt, createdAt, updatedAt sql.NullTime
	var busySince sql.NullInt64
	var busy int

	err := row.Scan(
		&ch.ID, &ch.Slug, &ch.Name, &ch.Description,
		&ch.TrackCount, &ch.Source, &ch.FirebaseID,
		&syncedAt, &busy, &busySince, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan channel: %w", err)
	}

	ch.Busy = busy == 1
	ch.TracksSyncedAt = timePtr(syncedAt)
	ch.CreatedAt = timePtr(createdAt)
	ch.UpdatedAt = timePtr(updatedAt)
	if busySince.Valid {
		t := time.Unix(busySince.Int64, 0)
		ch.BusySince = &t
	}

	return ch, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
