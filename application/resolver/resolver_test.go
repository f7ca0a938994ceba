package resolver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/pricegrid/pricegrid/application/resolver"
	"github.com/pricegrid/pricegrid/domain/catalog"
	"github.com/pricegrid/pricegrid/domain/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore hands out deterministic ids keyed by natural key and counts
// how many times each ensure is hit, so tests can prove memoization.
type fakeStore struct {
	nextID int64
	ids    map[string]int64
	calls  map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{ids: map[string]int64{}, calls: map[string]int{}}
}

func (s *fakeStore) ensure(key string) int64 {
	s.calls[key]++
	if id, ok := s.ids[key]; ok {
		return id
	}
	s.nextID++
	s.ids[key] = s.nextID
	return s.nextID
}

func (s *fakeStore) EnsureCurrency(_ context.Context, code, _ string, _ int) (int64, error) {
	return s.ensure("currency:" + code), nil
}

func (s *fakeStore) EnsureCountry(_ context.Context, code2, _ string, _ int64) (int64, error) {
	return s.ensure("country:" + code2), nil
}

func (s *fakeStore) EnsureJurisdiction(_ context.Context, countryID int64, regionCode string) (int64, error) {
	return s.ensure(fmt.Sprintf("jurisdiction:%d/%s", countryID, regionCode)), nil
}

func (s *fakeStore) EnsureProvider(_ context.Context, p catalog.Provider) (catalog.Provider, error) {
	p.ID = s.ensure("provider:" + p.Slug)
	return p, nil
}

func (s *fakeStore) EnsureProviderItem(_ context.Context, providerID int64, externalID string, _ json.RawMessage) (int64, error) {
	return s.ensure(fmt.Sprintf("item:%d/%s", providerID, externalID)), nil
}

func (s *fakeStore) EnsureProduct(_ context.Context, slug, _, _ string) (int64, error) {
	return s.ensure("product:" + slug), nil
}

func (s *fakeStore) EnsureSellable(_ context.Context, kind string, productID int64) (int64, error) {
	return s.ensure(fmt.Sprintf("sellable:%s/%d", kind, productID)), nil
}

func (s *fakeStore) EnsureOffer(_ context.Context, sellableID, retailerID int64, sku string) (int64, error) {
	return s.ensure(fmt.Sprintf("offer:%d/%d/%s", sellableID, retailerID, sku)), nil
}

func (s *fakeStore) EnsureOfferJurisdiction(_ context.Context, offerID, jurisdictionID, currencyID int64) (int64, error) {
	return s.ensure(fmt.Sprintf("oj:%d/%d", offerID, jurisdictionID)), nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestResolveProviderMemoized(t *testing.T) {
	store := newFakeStore()
	r := resolver.New(store, discard())
	ctx := context.Background()

	ref := feed.ProviderRef{Name: "Steam", Kind: "storefront", Slug: "steam", AgentPriority: 10}
	first, err := r.ResolveProvider(ctx, ref)
	require.NoError(t, err)
	second, err := r.ResolveProvider(ctx, ref)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.calls["provider:steam"])
}

func TestResolveItemChain(t *testing.T) {
	store := newFakeStore()
	r := resolver.New(store, discard())
	ctx := context.Background()

	provider, err := r.ResolveProvider(ctx, feed.ProviderRef{Name: "Steam", Kind: "storefront", Slug: "steam"})
	require.NoError(t, err)

	item := feed.Item{
		ExternalID:   "app/440",
		Title:        "Team Fortress 2",
		ProductSlug:  "team-fortress-2",
		ProductKind:  "game",
		SellableKind: "digital",
		Payload:      json.RawMessage(`{}`),
	}
	resolved, err := r.ResolveItem(ctx, provider, item)
	require.NoError(t, err)
	assert.NotZero(t, resolved.ProviderItemID)
	assert.NotZero(t, resolved.OfferID)

	// The same item again re-writes the provider item (payload refresh)
	// but serves the product/sellable/offer chain from cache.
	again, err := r.ResolveItem(ctx, provider, item)
	require.NoError(t, err)
	assert.Equal(t, resolved, again)
	assert.Equal(t, 2, store.calls[fmt.Sprintf("item:%d/app/440", provider.ID)])
	assert.Equal(t, 1, store.calls["product:team-fortress-2"])
}

func TestResolveItemSeparateRetailer(t *testing.T) {
	store := newFakeStore()
	r := resolver.New(store, discard())
	ctx := context.Background()

	provider, err := r.ResolveProvider(ctx, feed.ProviderRef{Name: "PriceWatch", Kind: "aggregator", Slug: "pricewatch"})
	require.NoError(t, err)

	item := feed.Item{
		ExternalID:   "sku-1",
		ProductSlug:  "elden-ring",
		ProductKind:  "game",
		SellableKind: "digital",
		RetailerSlug: "greenmangaming",
	}
	_, err = r.ResolveItem(ctx, provider, item)
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls["provider:greenmangaming"], "aggregator items attach offers to the named retailer")
}

func TestResolveQuoteMemoized(t *testing.T) {
	store := newFakeStore()
	r := resolver.New(store, discard())
	ctx := context.Background()

	quote := feed.Quote{CountryCode: "US", CurrencyCode: "USD", AmountMinor: 1999}
	first, err := r.ResolveQuote(ctx, 42, quote)
	require.NoError(t, err)
	second, err := r.ResolveQuote(ctx, 42, quote)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1, store.calls["currency:USD"])
	assert.Equal(t, 1, store.calls["country:US"])

	// A regional quote for the same country is a distinct jurisdiction.
	regional, err := r.ResolveQuote(ctx, 42, feed.Quote{CountryCode: "US", RegionCode: "CA", CurrencyCode: "USD"})
	require.NoError(t, err)
	assert.NotEqual(t, first, regional)

	assert.Positive(t, r.CacheSize())
}

func TestResolveQuoteError(t *testing.T) {
	r := resolver.New(failingStore{}, discard())

	_, err := r.ResolveQuote(context.Background(), 1, feed.Quote{CountryCode: "US", CurrencyCode: "USD"})
	assert.ErrorContains(t, err, "resolve currency USD")
}

type failingStore struct{ catalog.Store }

func (failingStore) EnsureCurrency(context.Context, string, string, int) (int64, error) {
	return 0, fmt.Errorf("connection refused")
}
