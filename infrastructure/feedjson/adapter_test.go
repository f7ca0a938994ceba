package feedjson_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/pricegrid/pricegrid/domain/feed"
	"github.com/pricegrid/pricegrid/infrastructure/feedjson"
	"github.com/pricegrid/pricegrid/infrastructure/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	body string
	err  error
	url  string
}

func (f *stubFetcher) Get(_ context.Context, url string) (*httpclient.Response, error) {
	f.url = url
	if f.err != nil {
		return nil, f.err
	}
	return &httpclient.Response{Body: []byte(f.body), StatusCode: http.StatusOK}, nil
}

func newAdapter(fetcher *stubFetcher) *feedjson.Adapter {
	return feedjson.New(fetcher, slog.New(slog.DiscardHandler))
}

func TestFetchParsesDocument(t *testing.T) {
	fetcher := &stubFetcher{body: `{
		"provider": {"name": "Steam", "kind": "storefront", "slug": "steam", "agent_priority": 10},
		"items": [{
			"external_id": "app/440",
			"title": "Team Fortress 2",
			"product_slug": "team-fortress-2",
			"product_kind": "game",
			"sellable_kind": "digital",
			"payload": {"appid": 440},
			"quotes": [{
				"country_code": "US",
				"currency_code": "USD",
				"amount_minor": 999,
				"tax_inclusive": false,
				"recorded_at": "2026-04-01T09:00:00Z",
				"meta": {"discount_pct": 50}
			}]
		}]
	}`}
	adapter := newAdapter(fetcher)

	result, err := adapter.Fetch(context.Background(), map[string]any{"url": "https://example.com/feed.json"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/feed.json", fetcher.url)

	assert.Equal(t, feed.ProviderRef{Name: "Steam", Kind: "storefront", Slug: "steam", AgentPriority: 10}, result.Provider)
	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.Equal(t, "app/440", item.ExternalID)
	assert.JSONEq(t, `{"appid":440}`, string(item.Payload))
	require.Len(t, item.Quotes, 1)
	assert.EqualValues(t, 999, item.Quotes[0].AmountMinor)
	assert.Equal(t, map[string]any{"discount_pct": float64(50)}, item.Quotes[0].Meta)
}

func TestFetchMissingURL(t *testing.T) {
	adapter := newAdapter(&stubFetcher{})

	_, err := adapter.Fetch(context.Background(), map[string]any{})
	assert.True(t, feed.IsPermanent(err))

	_, err = adapter.Fetch(context.Background(), map[string]any{"url": 42})
	assert.True(t, feed.IsPermanent(err))
}

func TestFetchNotModified(t *testing.T) {
	adapter := newAdapter(&stubFetcher{err: fmt.Errorf("get x: %w", httpclient.ErrNotModified)})

	result, err := adapter.Fetch(context.Background(), map[string]any{"url": "https://example.com/feed.json"})
	require.NoError(t, err)
	assert.Empty(t, result.Provider.Slug)
	assert.Empty(t, result.Items)
}

func TestFetchClassifiesStatusErrors(t *testing.T) {
	cases := map[string]struct {
		status    int
		permanent bool
	}{
		"gone":         {http.StatusGone, true},
		"unavailable":  {http.StatusServiceUnavailable, false},
		"rate-limited": {http.StatusTooManyRequests, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			adapter := newAdapter(&stubFetcher{err: &httpclient.StatusError{StatusCode: tc.status, URL: "https://example.com/feed.json"}})

			_, err := adapter.Fetch(context.Background(), map[string]any{"url": "https://example.com/feed.json"})
			require.Error(t, err)
			assert.Equal(t, tc.permanent, feed.IsPermanent(err))
		})
	}
}

func TestFetchRateLimitExhaustionStaysTransient(t *testing.T) {
	// The shape httpclient.Get returns once a persistent 429 outlives its
	// retry budget; the job queue's backoff must still get a shot at it.
	wrapped := fmt.Errorf("get https://example.com/feed.json: retries exhausted: %w",
		&httpclient.StatusError{StatusCode: http.StatusTooManyRequests, URL: "https://example.com/feed.json"})
	adapter := newAdapter(&stubFetcher{err: wrapped})

	_, err := adapter.Fetch(context.Background(), map[string]any{"url": "https://example.com/feed.json"})
	require.Error(t, err)
	assert.False(t, feed.IsPermanent(err))
}

func TestFetchMalformedDocument(t *testing.T) {
	adapter := newAdapter(&stubFetcher{body: `{"provider": `})

	_, err := adapter.Fetch(context.Background(), map[string]any{"url": "https://example.com/feed.json"})
	assert.True(t, feed.IsPermanent(err))
}

func TestFetchMissingProviderSlug(t *testing.T) {
	adapter := newAdapter(&stubFetcher{body: `{"provider": {"name": "nameless"}, "items": []}`})

	_, err := adapter.Fetch(context.Background(), map[string]any{"url": "https://example.com/feed.json"})
	require.Error(t, err)
	assert.True(t, feed.IsPermanent(err))
	assert.ErrorContains(t, err, "no provider slug")
}
