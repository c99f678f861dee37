package store

import (
	"testing"
	"time"
)

func TestUpsertChannelMergesFields(t *testing.T) {
	s := openTestStore(t)

	ch := &Channel{
		ID:          "c1",
		Slug:        "oskar",
		Name:        "Radio Oskar",
		Description: "late night tapes",
		TrackCount:  12,
		Source:      SourceRemote,
	}
	if err := s.UpsertChannel(ch); err != nil {
		t.Fatalf("failed to insert channel: %v", err)
	}

	// Re-upsert with empty name/description must not null out local values
	update := &Channel{
		ID:         "c1",
		Slug:       "oskar",
		TrackCount: 15,
		Source:     SourceRemote,
	}
	if err := s.UpsertChannel(update); err != nil {
		t.Fatalf("failed to update channel: %v", err)
	}

	got, err := s.GetChannelBySlug("oskar")
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if got == nil {
		t.Fatal("expected channel")
	}
	if got.Name != "Radio Oskar" {
		t.Errorf("expected name to survive empty update, got %q", got.Name)
	}
	if got.Description != "late night tapes" {
		t.Errorf("expected description to survive empty update, got %q", got.Description)
	}
	if got.TrackCount != 15 {
		t.Errorf("expected track count 15, got %d", got.TrackCount)
	}
}

func TestUpsertChannelSlugKeepsExistingID(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertChannel(&Channel{ID: "c1", Slug: "oskar", Name: "Old", Source: SourceRemote}); err != nil {
		t.Fatalf("failed to insert channel: %v", err)
	}

	// An incoming row with a different id but the same slug updates the
	// existing row in place instead of creating a duplicate.
	incoming := &Channel{ID: "c2", Slug: "oskar", Name: "New", Source: SourceRemote}
	if err := s.UpsertChannel(incoming); err != nil {
		t.Fatalf("failed to upsert channel: %v", err)
	}

	// The caller's struct is rewritten to address the surviving row
	if incoming.ID != "c1" {
		t.Errorf("expected the canonical id c1 reported back, got %s", incoming.ID)
	}

	count, err := s.CountChannels()
	if err != nil {
		t.Fatalf("failed to count channels: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 channel, got %d", count)
	}

	got, err := s.GetChannelBySlug("oskar")
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if got.ID != "c1" {
		t.Errorf("expected existing id c1 to be kept, got %s", got.ID)
	}
	if got.Name != "New" {
		t.Errorf("expected name to be updated, got %q", got.Name)
	}
}

func TestUpsertChannelRenamesSlug(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertChannel(&Channel{ID: "c1", Slug: "oskar", Name: "Oskar", Source: SourceRemote}); err != nil {
		t.Fatalf("failed to insert channel: %v", err)
	}

	// Same id with a fresh slug moves the row to the new address
	if err := s.UpsertChannel(&Channel{ID: "c1", Slug: "radio-oskar", Source: SourceRemote}); err != nil {
		t.Fatalf("failed to rename slug: %v", err)
	}

	count, err := s.CountChannels()
	if err != nil {
		t.Fatalf("failed to count channels: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 channel, got %d", count)
	}

	got, err := s.GetChannelBySlug("radio-oskar")
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if got == nil || got.ID != "c1" {
		t.Fatalf("expected c1 under the new slug, got %+v", got)
	}
	if got.Name != "Oskar" {
		t.Errorf("expected the empty incoming name to preserve %q, got %q", "Oskar", got.Name)
	}

	old, err := s.GetChannelBySlug("oskar")
	if err != nil {
		t.Fatalf("failed to query old slug: %v", err)
	}
	if old != nil {
		t.Errorf("expected the old slug to be gone, got %+v", old)
	}
}

func TestTryBeginPullMutualExclusion(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertChannel(&Channel{ID: "c1", Slug: "oskar", Source: SourceRemote}); err != nil {
		t.Fatalf("failed to insert channel: %v", err)
	}

	ok, err := s.TryBeginPull("c1", time.Minute)
	if err != nil {
		t.Fatalf("failed to begin pull: %v", err)
	}
	if !ok {
		t.Fatal("expected first pull to acquire the busy flag")
	}

	// Second attempt while busy must be refused
	ok, err = s.TryBeginPull("c1", time.Minute)
	if err != nil {
		t.Fatalf("failed second begin pull: %v", err)
	}
	if ok {
		t.Error("expected second pull to be refused while busy")
	}

	if err := s.EndPull("c1"); err != nil {
		t.Fatalf("failed to end pull: %v", err)
	}

	ok, err = s.TryBeginPull("c1", time.Minute)
	if err != nil {
		t.Fatalf("failed begin pull after release: %v", err)
	}
	if !ok {
		t.Error("expected pull to acquire the busy flag after release")
	}
}

func TestTryBeginPullExpiredFlagIsTakenOver(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertChannel(&Channel{ID: "c1", Slug: "oskar", Source: SourceRemote}); err != nil {
		t.Fatalf("failed to insert channel: %v", err)
	}

	// Simulate a crashed puller: busy set long ago, never cleared
	if _, err := s.db.Exec(
		"UPDATE channels SET busy = 1, busy_since = ? WHERE id = ?",
		time.Now().Add(-10*time.Minute).Unix(), "c1",
	); err != nil {
		t.Fatalf("failed to fake stale busy flag: %v", err)
	}

	ok, err := s.TryBeginPull("c1", 5*time.Minute)
	if err != nil {
		t.Fatalf("failed to begin pull: %v", err)
	}
	if !ok {
		t.Error("expected stale busy flag to be taken over")
	}
}

func TestMarkTracksSyncedClearsBusy(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertChannel(&Channel{ID: "c1", Slug: "oskar", Source: SourceRemote}); err != nil {
		t.Fatalf("failed to insert channel: %v", err)
	}
	if _, err := s.TryBeginPull("c1", time.Minute); err != nil {
		t.Fatalf("failed to begin pull: %v", err)
	}

	if err := s.MarkTracksSynced("c1", 42); err != nil {
		t.Fatalf("failed to mark synced: %v", err)
	}

	ch, err := s.GetChannelByID("c1")
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if ch.Busy {
		t.Error("expected busy flag to be cleared")
	}
	if ch.TracksSyncedAt == nil {
		t.Error("expected tracks_synced_at to be set")
	}
	if ch.TrackCount != 42 {
		t.Errorf("expected track count 42, got %d", ch.TrackCount)
	}
}

func TestInvalidateChannel(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertChannel(&Channel{ID: "c1", Slug: "oskar", Source: SourceRemote}); err != nil {
		t.Fatalf("failed to insert channel: %v", err)
	}
	if err := s.MarkTracksSynced("c1", 3); err != nil {
		t.Fatalf("failed to mark synced: %v", err)
	}

	if err := s.InvalidateChannel("c1"); err != nil {
		t.Fatalf("failed to invalidate: %v", err)
	}

	ch, err := s.GetChannelByID("c1")
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if ch.TracksSyncedAt != nil {
		t.Error("expected tracks_synced_at to be cleared")
	}
}
