package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestStoreOpenAndMigrate(t *testing.T) {
	s := openTestStore(t)

	// Verify tables exist
	tables := []string{"channels", "tracks", "track_meta", "track_edits", "mutation_log", "leases", "app_state", "migrations"}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	// Verify the read view exists
	var viewCount int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='view' AND name='track_details'").Scan(&viewCount)
	if err != nil {
		t.Fatalf("failed to query view: %v", err)
	}
	if viewCount != 1 {
		t.Error("expected view track_details to exist")
	}

	// Verify the pending-cell uniqueness index exists
	var idxCount int
	err = s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_track_edits_pending_cell'").Scan(&idxCount)
	if err != nil {
		t.Fatalf("failed to query index: %v", err)
	}
	if idxCount != 1 {
		t.Error("expected index idx_track_edits_pending_cell to exist")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	before, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	if len(before) != len(migrations) {
		t.Fatalf("expected %d applied migrations, got %d", len(migrations), len(before))
	}

	// A second run must be a no-op
	if err := s.Migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	after, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	if len(after) != len(before) {
		t.Errorf("expected %d applied migrations after re-run, got %d", len(before), len(after))
	}
}

func TestMigrateAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.UpsertChannel(&Channel{ID: "c1", Slug: "oskar", Source: SourceRemote}); err != nil {
		t.Fatalf("failed to insert channel: %v", err)
	}
	s.Close()

	// Reopening re-runs Migrate against the populated file
	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s2.Close()

	ch, err := s2.GetChannelBySlug("oskar")
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if ch == nil {
		t.Fatal("expected channel to survive reopen")
	}
}

func TestCheckIntegrity(t *testing.T) {
	s := openTestStore(t)

	if err := s.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed on a fresh database: %v", err)
	}
}
