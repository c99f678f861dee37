package store

// Named migrations, applied in order by Migrate. Each statement is
// idempotent so a half-applied migration can be re-run safely.
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{"001_channels_tracks", migrationChannelsTracks},
	{"002_track_meta_view", migrationTrackMetaView},
	{"003_track_edits", migrationTrackEdits},
	{"004_mutation_log", migrationMutationLog},
	{"005_leases_app_state", migrationLeasesAppState},
}

const migrationChannelsTracks = `
-- Channels mirrored from the authoritative remote (source='v2') or
-- imported once from the frozen legacy archive (source='v1').
CREATE TABLE IF NOT EXISTS channels (
  id TEXT PRIMARY KEY,
  slug TEXT UNIQUE NOT NULL,
  name TEXT,
  description TEXT,
  track_count INTEGER NOT NULL DEFAULT 0,
  source TEXT NOT NULL DEFAULT 'v2' CHECK (source IN ('v1', 'v2')),
  firebase_id TEXT,
  tracks_synced_at DATETIME,
  busy INTEGER NOT NULL DEFAULT 0,
  busy_since INTEGER,
  created_at DATETIME,
  updated_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_channels_slug ON channels(slug);
CREATE INDEX IF NOT EXISTS idx_channels_firebase_id ON channels(firebase_id);

-- Tracks are owned by exactly one channel; deleting the channel cascades.
CREATE TABLE IF NOT EXISTS tracks (
  id TEXT PRIMARY KEY,
  channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
  url TEXT NOT NULL,
  title TEXT,
  description TEXT,
  tags TEXT,     -- JSON array
  mentions TEXT, -- JSON array
  discogs_url TEXT,
  firebase_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tracks_channel_id ON tracks(channel_id);
CREATE INDEX IF NOT EXISTS idx_tracks_firebase_id ON tracks(firebase_id);
CREATE INDEX IF NOT EXISTS idx_tracks_updated_at ON tracks(channel_id, updated_at);
`

const migrationTrackMetaView = `
-- Derived per-track metadata (media provider, duration) kept beside the
-- track row so the raw payload stays untouched.
CREATE TABLE IF NOT EXISTS track_meta (
  track_id TEXT PRIMARY KEY REFERENCES tracks(id) ON DELETE CASCADE,
  duration_ms INTEGER,
  provider TEXT,
  provider_id TEXT
);

-- Read-only surface joining tracks with their derived metadata and owning
-- channel, so callers never write the join themselves.
CREATE VIEW IF NOT EXISTS track_details AS
SELECT
  t.id,
  t.channel_id,
  c.slug AS channel_slug,
  c.source AS channel_source,
  t.url,
  t.title,
  t.description,
  t.tags,
  t.mentions,
  t.discogs_url,
  t.firebase_id,
  m.duration_ms,
  m.provider,
  m.provider_id,
  t.created_at,
  t.updated_at
FROM tracks t
JOIN channels c ON c.id = t.channel_id
LEFT JOIN track_meta m ON m.track_id = t.id;
`

const migrationTrackEdits = `
-- Staged field edits. At most one pending edit per (track_id, field);
-- applied edits are kept as the undo trail.
CREATE TABLE IF NOT EXISTS track_edits (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  track_id TEXT NOT NULL,
  field TEXT NOT NULL,
  old_value TEXT,
  new_value TEXT,
  status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'applied')),
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_track_edits_pending_cell
  ON track_edits(track_id, field) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_track_edits_status ON track_edits(status);
`

const migrationMutationLog = `
-- Durable, append-only log of local writes awaiting remote replay.
-- Rows are removed only after the remote confirms, or after a
-- non-retriable failure has been reported. rowid gives FIFO order.
CREATE TABLE IF NOT EXISTS mutation_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  key TEXT UNIQUE NOT NULL,  -- idempotency key
  name TEXT NOT NULL,        -- registered sync function
  collection TEXT NOT NULL,
  metadata TEXT,             -- JSON object
  mutations TEXT NOT NULL,   -- JSON array of operations
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const migrationLeasesAppState = `
-- Mutual-exclusion leases over the shared store. The executor leader
-- election lives here; expiry is compared in Go against unix seconds.
CREATE TABLE IF NOT EXISTS leases (
  name TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  acquired_at INTEGER NOT NULL,
  expires_at INTEGER NOT NULL
);

-- Singleton row of UI/CLI preferences.
CREATE TABLE IF NOT EXISTS app_state (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  data TEXT NOT NULL DEFAULT '{}',
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
