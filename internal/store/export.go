package store

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportChannel is a channel with its tracks in the export document
type ExportChannel struct {
	ID         string         `json:"id"`
	Slug       string         `json:"slug"`
	Name       string         `json:"name,omitempty"`
	Source     string         `json:"source"`
	TrackCount int            `json:"track_count"`
	Tracks     []*ExportTrack `json:"tracks"`
}

// ExportTrack is a track row in the export document
type ExportTrack struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Title      string     `json:"title,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	DiscogsURL string     `json:"discogs_url,omitempty"`
	FirebaseID string     `json:"firebase_id,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Export writes the cached catalogue as an indented JSON document
func (s *Store) Export(w io.Writer) error {
	channels, err := s.ListChannels()
	if err != nil {
		return err
	}

	doc := struct {
		ExportedAt time.Time        `json:"exported_at"`
		Channels   []*ExportChannel `json:"channels"`
	}{
		ExportedAt: time.Now(),
		Channels:   make([]*ExportChannel, 0, len(channels)),
	}

	for _, ch := range channels {
		tracks, err := s.GetTracksByChannel(ch.ID)
		if err != nil {
			return err
		}

		ec := &ExportChannel{
			ID:         ch.ID,
			Slug:       ch.Slug,
			Name:       ch.Name,
			Source:     ch.Source,
			TrackCount: ch.TrackCount,
			Tracks:     make([]*ExportTrack, 0, len(tracks)),
		}
		for _, t := range tracks {
			ec.Tracks = append(ec.Tracks, &ExportTrack{
				ID:         t.ID,
				URL:        t.URL,
				Title:      t.Title,
				Tags:       t.Tags,
				DiscogsURL: t.DiscogsURL,
				FirebaseID: t.FirebaseID,
				CreatedAt:  t.CreatedAt,
				UpdatedAt:  t.UpdatedAt,
			})
		}
		doc.Channels = append(doc.Channels, ec)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	return nil
}

// Reset deletes all catalogue data but keeps the schema and migration
// ledger. Pending mutations and staged edits are removed too.
func (s *Store) Reset() error {
	tables := []string{"track_edits", "mutation_log", "track_meta", "tracks", "channels", "leases", "app_state"}
	for _, table := range tables {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}
