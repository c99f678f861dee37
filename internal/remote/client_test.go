package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/franz/radiola/internal/util"
)

const testBaseURL = "https://api.test/v2"

func newTestClient(opts ...Option) (*Client, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	opts = append(opts, WithHTTPClient(&http.Client{Transport: transport}))
	return NewClient(testBaseURL, opts...), transport
}

func TestGetChannel(t *testing.T) {
	client, transport := newTestClient()

	transport.RegisterResponder("GET", testBaseURL+"/channels/oskar",
		httpmock.NewStringResponder(200, `{"data": {
			"id": "c1", "slug": "oskar", "name": "Radio Oskar", "track_count": 12
		}}`))

	ch, err := client.GetChannel(context.Background(), "oskar")
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}

	if ch.ID != "c1" || ch.Slug != "oskar" {
		t.Errorf("unexpected channel: %+v", ch)
	}
	if ch.TrackCount != 12 {
		t.Errorf("expected 12 tracks, got %d", ch.TrackCount)
	}
}

func TestGetChannelNormalizesSlug(t *testing.T) {
	client, transport := newTestClient()

	transport.RegisterResponder("GET", testBaseURL+"/channels/oskar",
		httpmock.NewStringResponder(200, `{"data": {"id": "c1", "slug": "oskar"}}`))

	// Mixed case and surrounding whitespace must hit the same endpoint
	if _, err := client.GetChannel(context.Background(), "  OsKaR "); err != nil {
		t.Fatalf("failed to get channel with unnormalized slug: %v", err)
	}
}

func TestGetChannelNotFound(t *testing.T) {
	client, transport := newTestClient()

	transport.RegisterResponder("GET", testBaseURL+"/channels/ghost",
		httpmock.NewStringResponder(404, `{"error": {"code": "not_found", "message": "no such channel"}}`))

	_, err := client.GetChannel(context.Background(), "ghost")
	if !IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestAllTracksPagination(t *testing.T) {
	client, transport := newTestClient()

	page := func(n int) string {
		out := `{"data": [`
		for i := 0; i < n; i++ {
			if i > 0 {
				out += ","
			}
			out += fmt.Sprintf(`{"id": "t%d", "url": "https://example.com/%d"}`, i, i)
		}
		return out + `]}`
	}

	calls := 0
	transport.RegisterResponder("GET", `=~^https://api\.test/v2/channels/oskar/tracks`,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if req.URL.Query().Get("offset") == "0" {
				return httpmock.NewStringResponse(200, page(DefaultPageSize)), nil
			}
			return httpmock.NewStringResponse(200, page(7)), nil
		})

	tracks, err := client.AllTracks(context.Background(), "oskar")
	if err != nil {
		t.Fatalf("failed to fetch tracks: %v", err)
	}

	if len(tracks) != DefaultPageSize+7 {
		t.Errorf("expected %d tracks, got %d", DefaultPageSize+7, len(tracks))
	}
	if calls != 2 {
		t.Errorf("expected pagination to stop after the short page, got %d calls", calls)
	}
}

func TestLatestTrackUpdateEmptyChannel(t *testing.T) {
	client, transport := newTestClient()

	transport.RegisterResponder("GET", `=~^https://api\.test/v2/channels/empty/tracks`,
		httpmock.NewStringResponder(200, `{"data": []}`))

	latest, err := client.LatestTrackUpdate(context.Background(), "empty")
	if err != nil {
		t.Fatalf("failed: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil for empty channel, got %v", latest)
	}
}

func TestCreateSendsIdempotencyKeyAndToken(t *testing.T) {
	client, transport := newTestClient(WithToken("secret"))

	transport.RegisterResponder("POST", testBaseURL+"/tracks",
		func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("Idempotency-Key"); got != "key-1" {
				t.Errorf("expected idempotency key header, got %q", got)
			}
			if got := req.Header.Get("Authorization"); got != "Bearer secret" {
				t.Errorf("expected bearer token, got %q", got)
			}
			return httpmock.NewStringResponse(201, `{"data": {"id": "t1"}}`), nil
		})

	err := client.Create(context.Background(), "tracks", "key-1", map[string]string{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}
}

func TestWriteDuplicateKeyIsSuccess(t *testing.T) {
	client, transport := newTestClient()

	transport.RegisterResponder("PATCH", testBaseURL+"/tracks/t1",
		httpmock.NewStringResponder(409, `{"error": {"code": "duplicate", "message": "key already processed"}}`))

	err := client.Update(context.Background(), "tracks", "t1", "key-1", map[string]string{"title": "x"})
	if err != nil {
		t.Errorf("expected duplicate conflict to count as applied, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	client, transport := newTestClient()

	cases := []struct {
		name      string
		status    int
		body      string
		retriable bool
		permanent bool
	}{
		{"rate limited", 429, `{"error": {"code": "rate_limit", "message": "too many requests"}}`, true, false},
		{"server error", 500, `{"error": {"message": "boom"}}`, true, false},
		{"validation", 422, `{"error": {"code": "invalid", "message": "url is required"}}`, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport.Reset()
			transport.RegisterResponder("DELETE", testBaseURL+"/tracks/t1",
				httpmock.NewStringResponder(tc.status, tc.body))

			err := client.Delete(context.Background(), "tracks", "t1", "key-1")
			if err == nil {
				t.Fatal("expected an error")
			}

			if got := util.IsRetryableError(err); got != tc.retriable {
				t.Errorf("retriable = %v, want %v (err: %v)", got, tc.retriable, err)
			}
			if got := errors.Is(err, util.ErrPermanent); got != tc.permanent {
				t.Errorf("permanent = %v, want %v (err: %v)", got, tc.permanent, err)
			}
		})
	}
}
