package store

import (
	"testing"
	"time"
)

func insertTestChannel(t *testing.T, s *Store, id, slug string) {
	t.Helper()
	if err := s.UpsertChannel(&Channel{ID: id, Slug: slug, Source: SourceRemote}); err != nil {
		t.Fatalf("failed to insert channel: %v", err)
	}
}

func TestUpsertTracksAndRetrieve(t *testing.T) {
	s := openTestStore(t)
	insertTestChannel(t, s, "c1", "oskar")

	now := time.Now()
	tracks := []*Track{
		{
			ID:        "t1",
			ChannelID: "c1",
			URL:       "https://www.youtube.com/watch?v=abc123",
			Title:     "Blue Monday",
			Tags:      []string{"synth", "1983"},
			CreatedAt: &now,
			UpdatedAt: &now,
		},
		{
			ID:        "t2",
			ChannelID: "c1",
			URL:       "https://vimeo.com/98765",
			Title:     "Temptation",
		},
	}
	if err := s.UpsertTracks(tracks); err != nil {
		t.Fatalf("failed to upsert tracks: %v", err)
	}

	got, err := s.GetTracksByChannel("c1")
	if err != nil {
		t.Fatalf("failed to get tracks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(got))
	}

	track, err := s.GetTrackByID("t1")
	if err != nil {
		t.Fatalf("failed to get track: %v", err)
	}
	if track.Title != "Blue Monday" {
		t.Errorf("expected title, got %q", track.Title)
	}
	if len(track.Tags) != 2 || track.Tags[0] != "synth" {
		t.Errorf("tags did not round-trip: %v", track.Tags)
	}
}

func TestUpsertTracksPreservesLocalFields(t *testing.T) {
	s := openTestStore(t)
	insertTestChannel(t, s, "c1", "oskar")

	if err := s.UpsertTracks([]*Track{{
		ID: "t1", ChannelID: "c1", URL: "https://example.com/a", Title: "Kept title",
	}}); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	// Re-sync with an empty title must not wipe the local one
	if err := s.UpsertTracks([]*Track{{
		ID: "t1", ChannelID: "c1", URL: "https://example.com/b",
	}}); err != nil {
		t.Fatalf("failed to re-upsert: %v", err)
	}

	track, err := s.GetTrackByID("t1")
	if err != nil {
		t.Fatalf("failed to get track: %v", err)
	}
	if track.Title != "Kept title" {
		t.Errorf("expected title to survive, got %q", track.Title)
	}
	if track.URL != "https://example.com/b" {
		t.Errorf("expected url to be refreshed, got %q", track.URL)
	}
}

func TestTrackDetailsDerivesProvider(t *testing.T) {
	s := openTestStore(t)
	insertTestChannel(t, s, "c1", "oskar")

	if err := s.UpsertTracks([]*Track{
		{ID: "t1", ChannelID: "c1", URL: "https://www.youtube.com/watch?v=abc123", Title: "A"},
		{ID: "t2", ChannelID: "c1", URL: "https://youtu.be/def456", Title: "B"},
		{ID: "t3", ChannelID: "c1", URL: "https://example.com/whatever", Title: "C"},
	}); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	details, err := s.GetTrackDetails("c1")
	if err != nil {
		t.Fatalf("failed to get details: %v", err)
	}
	if len(details) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(details))
	}

	byID := make(map[string]*TrackDetail)
	for _, d := range details {
		byID[d.ID] = d
		if d.ChannelSlug != "oskar" {
			t.Errorf("expected channel slug in view, got %q", d.ChannelSlug)
		}
	}

	if byID["t1"].Provider != "youtube" || byID["t1"].ProviderID != "abc123" {
		t.Errorf("expected youtube provider for t1, got %q/%q", byID["t1"].Provider, byID["t1"].ProviderID)
	}
	if byID["t2"].Provider != "youtube" || byID["t2"].ProviderID != "def456" {
		t.Errorf("expected youtube provider for t2, got %q/%q", byID["t2"].Provider, byID["t2"].ProviderID)
	}
	if byID["t3"].Provider != "" {
		t.Errorf("expected no provider for t3, got %q", byID["t3"].Provider)
	}
}

func TestLatestTrackUpdate(t *testing.T) {
	s := openTestStore(t)
	insertTestChannel(t, s, "c1", "oskar")

	latest, err := s.LatestTrackUpdate("c1")
	if err != nil {
		t.Fatalf("failed on empty channel: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil for empty channel, got %v", latest)
	}

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	if err := s.UpsertTracks([]*Track{
		{ID: "t1", ChannelID: "c1", URL: "https://example.com/a", UpdatedAt: &older},
		{ID: "t2", ChannelID: "c1", URL: "https://example.com/b", UpdatedAt: &newer},
	}); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	latest, err = s.LatestTrackUpdate("c1")
	if err != nil {
		t.Fatalf("failed to get latest: %v", err)
	}
	if latest == nil {
		t.Fatal("expected a latest timestamp")
	}
	if latest.Truncate(time.Second).Before(newer.Truncate(time.Second)) {
		t.Errorf("expected newest timestamp, got %v (want >= %v)", latest, newer)
	}
}

func TestLegacyTrackIDs(t *testing.T) {
	s := openTestStore(t)
	insertTestChannel(t, s, "c1", "oskar")

	if err := s.UpsertTracks([]*Track{
		{ID: "t1", ChannelID: "c1", URL: "https://example.com/a", FirebaseID: "fb-1"},
		{ID: "t2", ChannelID: "c1", URL: "https://example.com/b", FirebaseID: "fb-2"},
		{ID: "t3", ChannelID: "c1", URL: "https://example.com/c"},
	}); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	ids, err := s.LegacyTrackIDs("c1")
	if err != nil {
		t.Fatalf("failed to get legacy ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 legacy ids, got %d", len(ids))
	}
	if !ids["fb-1"] || !ids["fb-2"] {
		t.Errorf("expected fb-1 and fb-2, got %v", ids)
	}
}

func TestUpdateTrackFields(t *testing.T) {
	s := openTestStore(t)
	insertTestChannel(t, s, "c1", "oskar")

	if err := s.UpsertTracks([]*Track{{
		ID: "t1", ChannelID: "c1", URL: "https://example.com/a", Title: "Old",
	}}); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	if err := s.UpdateTrackFields("t1", map[string]string{
		"title":       "New",
		"description": "now with words",
	}); err != nil {
		t.Fatalf("failed to update fields: %v", err)
	}

	track, err := s.GetTrackByID("t1")
	if err != nil {
		t.Fatalf("failed to get track: %v", err)
	}
	if track.Title != "New" {
		t.Errorf("expected updated title, got %q", track.Title)
	}
	if track.Description != "now with words" {
		t.Errorf("expected updated description, got %q", track.Description)
	}
}

func TestDeleteChannelCascadesTracks(t *testing.T) {
	s := openTestStore(t)
	insertTestChannel(t, s, "c1", "oskar")

	if err := s.UpsertTracks([]*Track{{
		ID: "t1", ChannelID: "c1", URL: "https://example.com/a",
	}}); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	if err := s.DeleteChannel("c1"); err != nil {
		t.Fatalf("failed to delete channel: %v", err)
	}

	track, err := s.GetTrackByID("t1")
	if err != nil {
		t.Fatalf("failed to get track: %v", err)
	}
	if track != nil {
		t.Error("expected track to be removed with its channel")
	}
}
