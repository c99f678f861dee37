// Package puller resolves catalogue reads against the three-tier source
// hierarchy: local cache first, then the authoritative remote, then the
// frozen legacy archive. It owns staleness detection and the bulk import
// of track sets into the cache.
package puller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/franz/radiola/internal/legacy"
	"github.com/franz/radiola/internal/remote"
	"github.com/franz/radiola/internal/store"
	"github.com/franz/radiola/internal/util"
)

const (
	// DefaultBatchSize is how many tracks are inserted per transaction.
	// Large channels (thousands of rows) are committed in slices so the
	// caller can be cancelled between batches.
	DefaultBatchSize = 50

	// DefaultTolerance absorbs clock and precision skew between the local
	// and remote track timestamps.
	DefaultTolerance = 20 * time.Second

	// DefaultBusyTTL bounds how long a crashed puller can hold a channel
	// busy before another pull takes over.
	DefaultBusyTTL = 5 * time.Minute
)

// Config holds puller configuration
type Config struct {
	Store   *store.Store
	Remote  *remote.Client
	Legacy  *legacy.Archive
	Progress func(done, total int) // optional batch progress callback

	BatchSize int
	Tolerance time.Duration
	BusyTTL   time.Duration
}

// Puller implements the cache/remote/legacy fallback chain
type Puller struct {
	store  *store.Store
	remote *remote.Client
	legacy *legacy.Archive

	batchSize int
	tolerance time.Duration
	busyTTL   time.Duration
	progress  func(done, total int)

	// Serializes concurrent pulls for the same slug within this process;
	// the busy flag covers other processes.
	slugMu sync.Mutex
	slugs  map[string]*sync.Mutex
}

// New creates a Puller
func New(cfg *Config) *Puller {
	p := &Puller{
		store:     cfg.Store,
		remote:    cfg.Remote,
		legacy:    cfg.Legacy,
		batchSize: cfg.BatchSize,
		tolerance: cfg.Tolerance,
		busyTTL:   cfg.BusyTTL,
		progress:  cfg.Progress,
		slugs:     make(map[string]*sync.Mutex),
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.tolerance <= 0 {
		p.tolerance = DefaultTolerance
	}
	if p.busyTTL <= 0 {
		p.busyTTL = DefaultBusyTTL
	}
	return p
}

// PullChannel resolves a channel by slug: cache hit, else authoritative
// remote, else legacy archive. A legacy hit is imported tagged source='v1'.
func (p *Puller) PullChannel(ctx context.Context, slug string) (*store.Channel, error) {
	slug = util.NormalizeSlug(slug)

	// Local is the fast path for a known identity
	ch, err := p.store.GetChannelBySlug(slug)
	if err != nil {
		return nil, err
	}
	if ch != nil {
		util.DebugLog("pull: channel %s served from cache", slug)
		return ch, nil
	}

	// Authoritative remote
	rc, err := p.remote.GetChannel(ctx, slug)
	if err == nil {
		ch = channelFromRemote(rc)
		if err := p.store.UpsertChannel(ch); err != nil {
			return nil, err
		}
		util.DebugLog("pull: channel %s fetched from remote", slug)
		return p.store.GetChannelBySlug(slug)
	}
	if !remote.IsNotFound(err) {
		util.WarnLog("pull: remote lookup for %s failed, trying legacy: %v", slug, err)
	}

	// Frozen legacy archive
	lc, lerr := p.legacy.FindChannel(ctx, slug)
	if lerr == nil {
		ch = channelFromLegacy(lc)
		if err := p.store.UpsertChannel(ch); err != nil {
			return nil, err
		}
		util.DebugLog("pull: channel %s imported from legacy archive", slug)
		return p.store.GetChannelBySlug(slug)
	}

	return nil, fmt.Errorf("%w: %s", util.ErrChannelNotFound, slug)
}

// PullTracks refreshes and returns the track set of a locally known
// channel. Tracks cannot be pulled for an unknown channel. A fresh channel
// is served from the cache without touching the network.
func (p *Puller) PullTracks(ctx context.Context, slug string) ([]*store.Track, error) {
	slug = util.NormalizeSlug(slug)

	mu := p.slugLock(slug)
	mu.Lock()
	defer mu.Unlock()

	ch, err := p.store.GetChannelBySlug(slug)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: %s", util.ErrChannelNotFound, slug)
	}

	outdated, err := p.outdated(ctx, ch)
	if err != nil {
		return nil, err
	}
	if !outdated {
		util.DebugLog("pull: tracks for %s are fresh, serving cache", slug)
		return p.store.GetTracksByChannel(ch.ID)
	}

	ok, err := p.store.TryBeginPull(ch.ID, p.busyTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", util.ErrBusy, slug)
	}

	if err := p.syncTracks(ctx, ch); err != nil {
		// Leave tracks_synced_at untouched so the next pull retries the
		// whole batch rather than trusting a half-applied state.
		if endErr := p.store.EndPull(ch.ID); endErr != nil {
			util.WarnLog("pull: failed to clear busy flag for %s: %v", slug, endErr)
		}
		return nil, err
	}

	return p.store.GetTracksByChannel(ch.ID)
}

// Outdated is the staleness predicate for a channel's track set
func (p *Puller) Outdated(ctx context.Context, slug string) (bool, error) {
	ch, err := p.store.GetChannelBySlug(util.NormalizeSlug(slug))
	if err != nil {
		return false, err
	}
	if ch == nil {
		return false, fmt.Errorf("%w: %s", util.ErrChannelNotFound, slug)
	}

	return p.outdated(ctx, ch)
}

func (p *Puller) outdated(ctx context.Context, ch *store.Channel) (bool, error) {
	// Never completed a sync
	if ch.TracksSyncedAt == nil {
		return true, nil
	}

	// The legacy source is immutable: once imported it never changes
	if ch.IsLegacy() {
		count, err := p.store.CountTracksByChannel(ch.ID)
		if err != nil {
			return false, err
		}
		if count > 0 {
			return false, nil
		}
		return true, nil
	}

	localLatest, err := p.store.LatestTrackUpdate(ch.ID)
	if err != nil {
		return false, err
	}

	remoteLatest, err := p.remote.LatestTrackUpdate(ctx, ch.Slug)
	if err != nil {
		// Fail safe toward re-sync rather than silently serving stale data
		util.DebugLog("pull: staleness check for %s failed, assuming outdated: %v", ch.Slug, err)
		return true, nil
	}
	if remoteLatest == nil {
		return false, nil
	}
	if localLatest == nil {
		return true, nil
	}

	// Whole-second comparison with a tolerance window for clock skew
	diff := remoteLatest.Truncate(time.Second).Sub(localLatest.Truncate(time.Second))
	return diff > p.tolerance, nil
}

// syncTracks fetches the channel's full track set from its source and
// bulk-inserts it in fixed-size batches. The sync marker and track count
// move only after the whole batch succeeded.
func (p *Puller) syncTracks(ctx context.Context, ch *store.Channel) error {
	var tracks []*store.Track
	var err error

	if ch.IsLegacy() {
		tracks, err = p.legacyTracks(ctx, ch)
	} else {
		tracks, err = p.remoteTracks(ctx, ch)
	}
	if err != nil {
		return err
	}

	total := len(tracks)
	for i := 0; i < total; i += p.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := i + p.batchSize
		if end > total {
			end = total
		}
		if err := p.store.UpsertTracks(tracks[i:end]); err != nil {
			return err
		}
		if p.progress != nil {
			p.progress(end, total)
		}
	}

	count, err := p.store.CountTracksByChannel(ch.ID)
	if err != nil {
		return err
	}
	if err := p.store.MarkTracksSynced(ch.ID, count); err != nil {
		return err
	}

	util.DebugLog("pull: synced %d tracks for %s", count, ch.Slug)
	return nil
}

func (p *Puller) remoteTracks(ctx context.Context, ch *store.Channel) ([]*store.Track, error) {
	rts, err := p.remote.AllTracks(ctx, ch.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tracks for %s: %w", ch.Slug, err)
	}

	tracks := make([]*store.Track, 0, len(rts))
	for _, rt := range rts {
		tracks = append(tracks, trackFromRemote(rt, ch.ID))
	}
	return tracks, nil
}

// legacyTracks is append-only: tracks already imported from the archive
// (matched on firebase id) are skipped, never rewritten.
func (p *Puller) legacyTracks(ctx context.Context, ch *store.Channel) ([]*store.Track, error) {
	lc, err := p.legacy.FindChannel(ctx, ch.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch legacy tracks for %s: %w", ch.Slug, err)
	}

	imported, err := p.store.LegacyTrackIDs(ch.ID)
	if err != nil {
		return nil, err
	}

	var tracks []*store.Track
	for _, lt := range lc.Tracks {
		if imported[lt.FirebaseID] {
			continue
		}
		tracks = append(tracks, trackFromLegacy(lt, ch.ID))
	}
	return tracks, nil
}

func (p *Puller) slugLock(slug string) *sync.Mutex {
	p.slugMu.Lock()
	defer p.slugMu.Unlock()

	mu, ok := p.slugs[slug]
	if !ok {
		mu = &sync.Mutex{}
		p.slugs[slug] = mu
	}
	return mu
}

func channelFromRemote(rc *remote.Channel) *store.Channel {
	return &store.Channel{
		ID:          rc.ID,
		Slug:        rc.Slug,
		Name:        rc.Name,
		Description: rc.Description,
		TrackCount:  rc.TrackCount,
		Source:      store.SourceRemote,
		CreatedAt:   rc.CreatedAt,
		UpdatedAt:   rc.UpdatedAt,
	}
}

func channelFromLegacy(lc *legacy.Channel) *store.Channel {
	return &store.Channel{
		ID:          uuid.NewString(),
		Slug:        lc.Slug,
		Name:        lc.Name,
		Description: lc.Description,
		TrackCount:  len(lc.Tracks),
		Source:      store.SourceLegacy,
		FirebaseID:  lc.FirebaseID,
	}
}

func trackFromRemote(rt *remote.Track, channelID string) *store.Track {
	return &store.Track{
		ID:          rt.ID,
		ChannelID:   channelID,
		URL:         rt.URL,
		Title:       rt.Title,
		Description: rt.Description,
		Tags:        rt.Tags,
		Mentions:    rt.Mentions,
		DiscogsURL:  rt.DiscogsURL,
		CreatedAt:   rt.CreatedAt,
		UpdatedAt:   rt.UpdatedAt,
	}
}

func trackFromLegacy(lt *legacy.Track, channelID string) *store.Track {
	created := lt.CreatedTime()
	return &store.Track{
		ID:          uuid.NewString(),
		ChannelID:   channelID,
		URL:         lt.URL,
		Title:       lt.Title,
		Description: lt.Description,
		DiscogsURL:  lt.DiscogsURL,
		FirebaseID:  lt.FirebaseID,
		CreatedAt:   &created,
		UpdatedAt:   &created,
	}
}
