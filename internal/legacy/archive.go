// Package legacy reads the frozen v1 archive: a static, versioned JSON
// export of the old catalogue, fetched as one document and never mutated.
// Channels found here are imported once, tagged source='v1', and never
// re-synced afterwards.
package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/franz/radiola/internal/util"
)

// DefaultArchiveURL is where the static export document is published
const DefaultArchiveURL = "https://static.radio4000.com/v1-export.json"

// MinTracks filters out noise channels: only channels with more than this
// many tracks are served from the archive.
const MinTracks = 3

// Channel is a channel record of the legacy export
type Channel struct {
	FirebaseID  string   `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"title"`
	Description string   `json:"body"`
	Tracks      []*Track `json:"tracks"`
}

// Track is a track record of the legacy export
type Track struct {
	FirebaseID  string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"body"`
	DiscogsURL  string `json:"discogs_url"`
	Created     int64  `json:"created"` // milliseconds since epoch
}

// CreatedTime converts the firebase millisecond timestamp
func (t *Track) CreatedTime() time.Time {
	return time.UnixMilli(t.Created)
}

// Document is the whole export
type Document struct {
	Version  string     `json:"version"`
	Channels []*Channel `json:"channels"`
}

// Archive fetches and caches the legacy export document. The export is
// immutable, so it is fetched at most once per process.
type Archive struct {
	url        string
	httpClient *http.Client

	mu  sync.Mutex
	doc *Document
}

// Option configures an Archive
type Option func(*Archive)

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Archive) { a.httpClient = hc }
}

// New creates an archive reader for the given export URL.
// An empty url selects DefaultArchiveURL.
func New(url string, opts ...Option) *Archive {
	if url == "" {
		url = DefaultArchiveURL
	}

	a := &Archive{
		url: url,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FindChannel looks up a channel by slug in the export. Channels with
// MinTracks or fewer tracks are excluded as noise. Returns util.ErrNotFound
// (wrapped) when the slug is absent or filtered.
func (a *Archive) FindChannel(ctx context.Context, slug string) (*Channel, error) {
	slug = util.NormalizeSlug(slug)

	doc, err := a.load(ctx)
	if err != nil {
		return nil, err
	}

	for _, ch := range doc.Channels {
		if util.NormalizeSlug(ch.Slug) != slug {
			continue
		}
		if len(ch.Tracks) <= MinTracks {
			util.DebugLog("legacy: channel %s has only %d tracks, skipping", slug, len(ch.Tracks))
			return nil, fmt.Errorf("legacy channel %s below track threshold: %w", slug, util.ErrNotFound)
		}
		return ch, nil
	}

	return nil, fmt.Errorf("legacy channel %s: %w", slug, util.ErrNotFound)
}

// load fetches and parses the export document once
func (a *Archive) load(ctx context.Context) (*Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.doc != nil {
		return a.doc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch legacy export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d fetching legacy export: %s", resp.StatusCode, string(body))
	}

	doc, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	util.DebugLog("legacy: loaded export with %d channels", len(doc.Channels))
	a.doc = doc
	return doc, nil
}

// Parse decodes an export document from r
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode legacy export: %w", err)
	}
	return &doc, nil
}
