// Package remote implements the client for the authoritative catalogue API.
//
// Reads are keyed fetches by slug plus paginated bulk track fetches. Writes
// follow the create/update/delete contract where the response envelope
// carries either data or an error; any error is classified retriable or
// non-retriable for the mutation queue.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/franz/radiola/internal/util"
)

const (
	// DefaultBaseURL is the authoritative remote API base URL
	DefaultBaseURL = "https://api.radio4000.com/v2"

	// UserAgent identifies this client to the remote API
	UserAgent = "radiola/1.0 (https://github.com/franz/radiola)"

	// DefaultPageSize is the page size for bulk track fetches
	DefaultPageSize = 100
)

// Client talks to the authoritative remote API
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	token      string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests inject a mock
// transport through this)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent with write requests
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a remote API client for the given base URL.
// An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: UserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Channel is a channel payload from the remote API
type Channel struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	TrackCount  int        `json:"track_count"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// Track is a track payload from the remote API
type Track struct {
	ID          string     `json:"id"`
	ChannelID   string     `json:"channel_id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	Mentions    []string   `json:"mentions"`
	DiscogsURL  string     `json:"discogs_url"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// envelope is the response wrapper: absence of error signals success
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// GetChannel fetches a single channel by slug.
// Returns util.ErrNotFound (wrapped) when the slug is unknown.
func (c *Client) GetChannel(ctx context.Context, slug string) (*Channel, error) {
	slug = util.NormalizeSlug(slug)
	if slug == "" {
		return nil, fmt.Errorf("slug cannot be empty")
	}

	var ch Channel
	path := fmt.Sprintf("/channels/%s", url.PathEscape(slug))
	if err := c.get(ctx, path, &ch); err != nil {
		return nil, err
	}

	return &ch, nil
}

// GetTracks fetches one page of a channel's tracks
func (c *Client) GetTracks(ctx context.Context, slug string, limit, offset int) ([]*Track, error) {
	slug = util.NormalizeSlug(slug)
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var tracks []*Track
	path := fmt.Sprintf("/channels/%s/tracks?limit=%d&offset=%d", url.PathEscape(slug), limit, offset)
	if err := c.get(ctx, path, &tracks); err != nil {
		return nil, err
	}

	return tracks, nil
}

// AllTracks fetches the full track set of a channel, paging until a short
// page is returned.
func (c *Client) AllTracks(ctx context.Context, slug string) ([]*Track, error) {
	var all []*Track
	offset := 0

	for {
		page, err := c.GetTracks(ctx, slug, DefaultPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if len(page) < DefaultPageSize {
			return all, nil
		}
		offset += len(page)
	}
}

// LatestTrackUpdate returns the most recent track updated_at for a channel,
// or nil when the channel has no tracks remotely.
func (c *Client) LatestTrackUpdate(ctx context.Context, slug string) (*time.Time, error) {
	slug = util.NormalizeSlug(slug)

	var tracks []*Track
	path := fmt.Sprintf("/channels/%s/tracks?limit=1&order=updated_at.desc", url.PathEscape(slug))
	if err := c.get(ctx, path, &tracks); err != nil {
		return nil, err
	}

	if len(tracks) == 0 {
		return nil, nil
	}
	return tracks[0].UpdatedAt, nil
}

// Create inserts an entity into a remote collection.
// The idempotency key travels as a header; replaying the same key is a
// no-op on the remote and reported back as a duplicate conflict, which the
// caller treats as success.
func (c *Client) Create(ctx context.Context, collection, idempotencyKey string, entity interface{}) error {
	body, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	return c.write(ctx, http.MethodPost, "/"+url.PathEscape(collection), idempotencyKey, body)
}

// Update applies a field diff to an entity by id
func (c *Client) Update(ctx context.Context, collection, id, idempotencyKey string, changes map[string]string) error {
	body, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	path := fmt.Sprintf("/%s/%s", url.PathEscape(collection), url.PathEscape(id))
	return c.write(ctx, http.MethodPatch, path, idempotencyKey, body)
}

// Delete removes an entity by id
func (c *Client) Delete(ctx context.Context, collection, id, idempotencyKey string) error {
	path := fmt.Sprintf("/%s/%s", url.PathEscape(collection), url.PathEscape(id))
	return c.write(ctx, http.MethodDelete, path, idempotencyKey, nil)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := c.decodeEnvelope(resp)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (c *Client) write(ctx context.Context, method, path, idempotencyKey string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	_, err = c.decodeEnvelope(resp)
	if IsDuplicate(err) {
		// The remote already processed this idempotency key
		util.DebugLog("remote: duplicate key %s on %s %s, treating as applied", idempotencyKey, method, path)
		return nil
	}
	return err
}

// decodeEnvelope maps an HTTP response to data or a classified error
func (c *Client) decodeEnvelope(resp *http.Response) (json.RawMessage, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("failed to decode envelope: %w", err)
		}
	}

	if env.Error != nil {
		env.Error.StatusCode = resp.StatusCode
		return nil, env.Error.classify()
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("remote: %w", util.ErrNotFound)
	case resp.StatusCode >= 300:
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
		return nil, apiErr.classify()
	}

	return env.Data, nil
}
