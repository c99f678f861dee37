package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Track represents a catalogue track row, owned by exactly one channel
type Track struct {
	ID          string
	ChannelID   string
	URL         string
	Title       string
	Description string
	Tags        []string
	Mentions    []string
	DiscogsURL  string
	FirebaseID  string
	CreatedAt   *time.Time
	UpdatedAt   *time.Time
}

// TrackDetail is a row of the track_details view: the track joined with its
// derived metadata and owning channel.
type TrackDetail struct {
	Track
	ChannelSlug   string
	ChannelSource string
	DurationMs    int
	Provider      string
	ProviderID    string
}

const trackColumns = `id, channel_id, url, COALESCE(title, ''), COALESCE(description, ''),
       COALESCE(tags, '[]'), COALESCE(mentions, '[]'),
       COALESCE(discogs_url, ''), COALESCE(firebase_id, ''), created_at, updated_at`

// UpsertTracks inserts or updates a batch of tracks in one transaction.
// Inserts are idempotent upserts keyed by id; incoming empty fields never
// overwrite locally-set values. The derived metadata side table is refreshed
// for every track in the batch.
func (s *Store) UpsertTracks(tracks []*Track) error {
	if len(tracks) == 0 {
		return nil
	}

	return s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO tracks (id, channel_id, url, title, description, tags,
			                    mentions, discogs_url, firebase_id, created_at, updated_at)
			VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				channel_id = excluded.channel_id,
				url = excluded.url,
				title = COALESCE(excluded.title, tracks.title),
				description = COALESCE(excluded.description, tracks.description),
				tags = excluded.tags,
				mentions = excluded.mentions,
				discogs_url = COALESCE(excluded.discogs_url, tracks.discogs_url),
				firebase_id = COALESCE(excluded.firebase_id, tracks.firebase_id),
				created_at = COALESCE(tracks.created_at, excluded.created_at),
				updated_at = COALESCE(excluded.updated_at, tracks.updated_at)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare track upsert: %w", err)
		}
		defer stmt.Close()

		metaStmt, err := tx.Prepare(`
			INSERT INTO track_meta (track_id, provider, provider_id)
			VALUES (?, NULLIF(?, ''), NULLIF(?, ''))
			ON CONFLICT(track_id) DO UPDATE SET
				provider = COALESCE(excluded.provider, track_meta.provider),
				provider_id = COALESCE(excluded.provider_id, track_meta.provider_id)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare track meta upsert: %w", err)
		}
		defer metaStmt.Close()

		for _, t := range tracks {
			if t.ID == "" {
				return fmt.Errorf("track id cannot be empty")
			}
			if t.ChannelID == "" {
				return fmt.Errorf("track %s has no channel", t.ID)
			}

			tagsJSON, err := json.Marshal(t.Tags)
			if err != nil {
				return fmt.Errorf("failed to marshal tags: %w", err)
			}
			mentionsJSON, err := json.Marshal(t.Mentions)
			if err != nil {
				return fmt.Errorf("failed to marshal mentions: %w", err)
			}

			_, err = stmt.Exec(t.ID, t.ChannelID, t.URL, t.Title, t.Description,
				string(tagsJSON), string(mentionsJSON), t.DiscogsURL, t.FirebaseID,
				nullTime(t.CreatedAt), nullTime(t.UpdatedAt))
			if err != nil {
				return fmt.Errorf("failed to upsert track %s: %w", t.ID, err)
			}

			provider, providerID := deriveProvider(t.URL)
			if _, err := metaStmt.Exec(t.ID, provider, providerID); err != nil {
				return fmt.Errorf("failed to upsert track meta %s: %w", t.ID, err)
			}
		}

		return nil
	})
}

// GetTrackByID retrieves a track by id. Returns nil if not found.
func (s *Store) GetTrackByID(id string) (*Track, error) {
	row := s.db.QueryRow(`SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	t, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTracksByChannel retrieves all tracks of a channel, oldest first
func (s *Store) GetTracksByChannel(channelID string) ([]*Track, error) {
	rows, err := s.db.Query(`
		SELECT `+trackColumns+` FROM tracks
		WHERE channel_id = ?
		ORDER BY created_at, id
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}

	return tracks, rows.Err()
}

// GetTrackDetails reads the track_details view for a channel
func (s *Store) GetTrackDetails(channelID string) ([]*TrackDetail, error) {
	rows, err := s.db.Query(`
		SELECT id, channel_id, channel_slug, channel_source, url,
		       COALESCE(title, ''), COALESCE(description, ''),
		       COALESCE(tags, '[]'), COALESCE(mentions, '[]'),
		       COALESCE(discogs_url, ''), COALESCE(firebase_id, ''),
		       COALESCE(duration_ms, 0), COALESCE(provider, ''), COALESCE(provider_id, ''),
		       created_at, updated_at
		FROM track_details
		WHERE channel_id = ?
		ORDER BY created_at, id
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track details: %w", err)
	}
	defer rows.Close()

	var details []*TrackDetail
	for rows.Next() {
		d := &TrackDetail{}
		var tagsJSON, mentionsJSON string
		var createdAt, updatedAt sql.NullTime

		err := rows.Scan(
			&d.ID, &d.ChannelID, &d.ChannelSlug, &d.ChannelSource, &d.URL,
			&d.Title, &d.Description, &tagsJSON, &mentionsJSON,
			&d.DiscogsURL, &d.FirebaseID,
			&d.DurationMs, &d.Provider, &d.ProviderID,
			&createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track detail: %w", err)
		}

		d.Tags = unmarshalStrings(tagsJSON)
		d.Mentions = unmarshalStrings(mentionsJSON)
		d.CreatedAt = timePtr(createdAt)
		d.UpdatedAt = timePtr(updatedAt)

		details = append(details, d)
	}

	return details, rows.Err()
}

// CountTracksByChannel returns the number of cached tracks for a channel
func (s *Store) CountTracksByChannel(channelID string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM tracks WHERE channel_id = ?", channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}

// LatestTrackUpdate returns the most recent track updated_at for a channel,
// or nil when the channel has no tracks with timestamps.
func (s *Store) LatestTrackUpdate(channelID string) (*time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRow(`
		SELECT MAX(updated_at) FROM tracks WHERE channel_id = ?
	`, channelID).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest track update: %w", err)
	}
	return timePtr(latest), nil
}

// LegacyTrackIDs returns the set of firebase ids already imported for a
// channel, used to deduplicate legacy archive pulls.
func (s *Store) LegacyTrackIDs(channelID string) (map[string]bool, error) {
	rows, err := s.db.Query(`
		SELECT firebase_id FROM tracks
		WHERE channel_id = ? AND firebase_id IS NOT NULL AND firebase_id != ''
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query legacy track ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan firebase id: %w", err)
		}
		ids[id] = true
	}

	return ids, rows.Err()
}

// UpdateTrackFields applies a field->value map to a track row. Only the
// staging allow-list fields reach this; the column names are trusted.
func (s *Store) UpdateTrackFields(trackID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	var sets []string
	var args []interface{}
	for field, value := range fields {
		sets = append(sets, field+" = ?")
		args = append(args, value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now())
	args = append(args, trackID)

	query := "UPDATE tracks SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update track %s: %w", trackID, err)
	}

	return nil
}

// DeleteTrack removes a track. Idempotent: deleting a missing track is a no-op.
func (s *Store) DeleteTrack(id string) error {
	_, err := s.db.Exec("DELETE FROM tracks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete track %s: %w", id, err)
	}
	return nil
}

// SetTrackDuration records the media duration for a track
func (s *Store) SetTrackDuration(trackID string, durationMs int) error {
	_, err := s.db.Exec(`
		INSERT INTO track_meta (track_id, duration_ms) VALUES (?, ?)
		ON CONFLICT(track_id) DO UPDATE SET duration_ms = excluded.duration_ms
	`, trackID, durationMs)
	if err != nil {
		return fmt.Errorf("failed to set track duration: %w", err)
	}
	return nil
}

func scanTrack(row rowScanner) (*Track, error) {
	t := &Track{}
	var tagsJSON, mentionsJSON string
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.ChannelID, &t.URL, &t.Title, &t.Description,
		&tagsJSON, &mentionsJSON, &t.DiscogsURL, &t.FirebaseID,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	t.Tags = unmarshalStrings(tagsJSON)
	t.Mentions = unmarshalStrings(mentionsJSON)
	t.CreatedAt = timePtr(createdAt)
	t.UpdatedAt = timePtr(updatedAt)

	return t, nil
}

func unmarshalStrings(raw string) []string {
	if raw == "" || raw == "null" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

// deriveProvider extracts the media provider and its external id from a
// track URL. Unknown hosts yield empty values; the view shows NULLs.
func deriveProvider(rawURL string) (provider, providerID string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "youtube.com" || host == "m.youtube.com":
		return "youtube", u.Query().Get("v")
	case host == "youtu.be":
		return "youtube", strings.TrimPrefix(u.Path, "/")
	case host == "vimeo.com":
		return "vimeo", strings.TrimPrefix(u.Path, "/")
	case host == "soundcloud.com":
		return "soundcloud", strings.TrimPrefix(u.Path, "/")
	}

	return "", ""
}
