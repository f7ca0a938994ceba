// Package resolver turns the codes and slugs adapters emit into canonical
// entity ids, creating rows on first reference. It fronts catalog.Store
// with a per-run memoization cache so a feed that mentions the same
// country or product thousands of times costs one database round trip.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pricegrid/pricegrid/domain/catalog"
	"github.com/pricegrid/pricegrid/domain/feed"
)

// ResolvedItem is the outcome of resolving one feed item: the provider
// item row the raw payload landed on and the offer its quotes attach to.
type ResolvedItem struct {
	ProviderItemID int64
	OfferID        int64
}

// Resolver resolves feed shapes to canonical ids. Create one per job
// execution; the cache is run-local.
type Resolver struct {
	store  catalog.Store
	cache  *EntityCache
	logger *slog.Logger
}

// New creates a Resolver with a fresh cache.
func New(store catalog.Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		cache:  NewEntityCache(),
		logger: logger.With("component", "resolver"),
	}
}

// ResolveProvider resolves a provider reference, creating the provider on
// first sight.
func (r *Resolver) ResolveProvider(ctx context.Context, ref feed.ProviderRef) (catalog.Provider, error) {
	if p, ok := r.cache.providers[ref.Slug]; ok {
		return p, nil
	}
	p, err := r.store.EnsureProvider(ctx, catalog.Provider{
		Name:          ref.Name,
		Kind:          ref.Kind,
		Slug:          ref.Slug,
		AgentPriority: ref.AgentPriority,
	})
	if err != nil {
		return catalog.Provider{}, fmt.Errorf("resolve provider %s: %w", ref.Slug, err)
	}
	r.cache.providers[ref.Slug] = p
	return p, nil
}

// ResolveItem materializes one feed item's catalog chain: provider item,
// product, sellable, retailer, and offer. The provider item write is never
// served from cache because it refreshes the stored raw payload on every
// ingest.
func (r *Resolver) ResolveItem(ctx context.Context, provider catalog.Provider, item feed.Item) (ResolvedItem, error) {
	providerItemID, err := r.store.EnsureProviderItem(ctx, provider.ID, item.ExternalID, item.Payload)
	if err != nil {
		return ResolvedItem{}, fmt.Errorf("resolve provider item %s: %w", item.ExternalID, err)
	}

	productID, err := r.resolveProduct(ctx, item)
	if err != nil {
		return ResolvedItem{}, err
	}

	sellableID, err := r.resolveSellable(ctx, item.SellableKind, productID)
	if err != nil {
		return ResolvedItem{}, err
	}

	retailerID := provider.ID
	if item.RetailerSlug != "" && item.RetailerSlug != provider.Slug {
		retailer, err := r.ResolveProvider(ctx, feed.ProviderRef{
			Name: item.RetailerSlug,
			Kind: "retailer",
			Slug: item.RetailerSlug,
		})
		if err != nil {
			return ResolvedItem{}, err
		}
		retailerID = retailer.ID
	}

	offerID, err := r.resolveOffer(ctx, sellableID, retailerID, item.SKU)
	if err != nil {
		return ResolvedItem{}, err
	}

	return ResolvedItem{ProviderItemID: providerItemID, OfferID: offerID}, nil
}

// ResolveQuote resolves the currency, country, and jurisdiction a quote
// names and returns the offer-jurisdiction id its price observation
// belongs to.
func (r *Resolver) ResolveQuote(ctx context.Context, offerID int64, q feed.Quote) (int64, error) {
	currencyID, err := r.resolveCurrency(ctx, q)
	if err != nil {
		return 0, err
	}

	countryID, err := r.resolveCountry(ctx, q, currencyID)
	if err != nil {
		return 0, err
	}

	jurisdictionID, err := r.resolveJurisdiction(ctx, countryID, q.RegionCode)
	if err != nil {
		return 0, err
	}

	key := offerJurisdictionKey{offerID: offerID, jurisdictionID: jurisdictionID}
	if id, ok := r.cache.offerJurisdictions[key]; ok {
		return id, nil
	}
	id, err := r.store.EnsureOfferJurisdiction(ctx, offerID, jurisdictionID, currencyID)
	if err != nil {
		return 0, fmt.Errorf("resolve offer jurisdiction %d/%d: %w", offerID, jurisdictionID, err)
	}
	r.cache.offerJurisdictions[key] = id
	return id, nil
}

func (r *Resolver) resolveCurrency(ctx context.Context, q feed.Quote) (int64, error) {
	if id, ok := r.cache.currencies[q.CurrencyCode]; ok {
		return id, nil
	}
	minorUnit := q.CurrencyMinorUnit
	if minorUnit <= 0 {
		minorUnit = 2
	}
	id, err := r.store.EnsureCurrency(ctx, q.CurrencyCode, q.CurrencyName, minorUnit)
	if err != nil {
		return 0, fmt.Errorf("resolve currency %s: %w", q.CurrencyCode, err)
	}
	r.cache.currencies[q.CurrencyCode] = id
	return id, nil
}

func (r *Resolver) resolveCountry(ctx context.Context, q feed.Quote, currencyID int64) (int64, error) {
	if id, ok := r.cache.countries[q.CountryCode]; ok {
		return id, nil
	}
	id, err := r.store.EnsureCountry(ctx, q.CountryCode, q.CountryName, currencyID)
	if err != nil {
		return 0, fmt.Errorf("resolve country %s: %w", q.CountryCode, err)
	}
	r.cache.countries[q.CountryCode] = id
	return id, nil
}

func (r *Resolver) resolveJurisdiction(ctx context.Context, countryID int64, regionCode string) (int64, error) {
	key := jurisdictionKey{countryID: countryID, regionCode: regionCode}
	if id, ok := r.cache.jurisdictions[key]; ok {
		return id, nil
	}
	id, err := r.store.EnsureJurisdiction(ctx, countryID, regionCode)
	if err != nil {
		return 0, fmt.Errorf("resolve jurisdiction %d/%q: %w", countryID, regionCode, err)
	}
	r.cache.jurisdictions[key] = id
	return id, nil
}

func (r *Resolver) resolveProduct(ctx context.Context, item feed.Item) (int64, error) {
	if id, ok := r.cache.products[item.ProductSlug]; ok {
		return id, nil
	}
	name := item.Title
	if name == "" {
		name = item.ProductSlug
	}
	id, err := r.store.EnsureProduct(ctx, item.ProductSlug, name, item.ProductKind)
	if err != nil {
		return 0, fmt.Errorf("resolve product %s: %w", item.ProductSlug, err)
	}
	r.cache.products[item.ProductSlug] = id
	return id, nil
}

func (r *Resolver) resolveSellable(ctx context.Context, kind string, productID int64) (int64, error) {
	key := sellableKey{kind: kind, productID: productID}
	if id, ok := r.cache.sellables[key]; ok {
		return id, nil
	}
	id, err := r.store.EnsureSellable(ctx, kind, productID)
	if err != nil {
		return 0, fmt.Errorf("resolve sellable %s/%d: %w", kind, productID, err)
	}
	r.cache.sellables[key] = id
	return id, nil
}

func (r *Resolver) resolveOffer(ctx context.Context, sellableID, retailerID int64, sku string) (int64, error) {
	key := offerKey{sellableID: sellableID, retailerID: retailerID, sku: sku}
	if id, ok := r.cache.offers[key]; ok {
		return id, nil
	}
	id, err := r.store.EnsureOffer(ctx, sellableID, retailerID, sku)
	if err != nil {
		return 0, fmt.Errorf("resolve offer %d/%d/%q: %w", sellableID, retailerID, sku, err)
	}
	r.cache.offers[key] = id
	return id, nil
}

// CacheSize returns how many resolutions the run has memoized; logged at
// the end of an ingest for visibility into feed shape.
func (r *Resolver) CacheSize() int { return r.cache.Len() }
