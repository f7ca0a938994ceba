// Package catalog provides the canonical entity model for storefront
// catalog data: currencies, countries, jurisdictions, providers, and the
// product → sellable → offer → offer-jurisdiction hierarchy that price
// observations attach to.
package catalog

import (
	"context"
	"encoding/json"
)

// Store persists canonical entities. Every Ensure method is idempotent:
// called twice with the same natural key it returns the same id and writes
// nothing new, even under concurrent callers. Implementations must back
// each natural key with a real unique constraint and resolve insert races
// by falling back to a lookup — a uniqueness violation is never an error.
type Store interface {
	// EnsureCurrency resolves an ISO currency code to an id, creating the
	// row if absent. minorUnit is the power-of-ten scale for integer minor
	// units (2 for cents). The name backfills a NULL column only.
	EnsureCurrency(ctx context.Context, code, name string, minorUnit int) (int64, error)

	// EnsureCountry resolves an ISO-3166 alpha-2 code to an id.
	EnsureCountry(ctx context.Context, code2, name string, defaultCurrencyID int64) (int64, error)

	// EnsureJurisdiction resolves (countryID, regionCode) to an id.
	// An empty regionCode denotes the national jurisdiction.
	EnsureJurisdiction(ctx context.Context, countryID int64, regionCode string) (int64, error)

	// EnsureProvider resolves a provider slug to a Provider row.
	EnsureProvider(ctx context.Context, p Provider) (Provider, error)

	// EnsureProviderItem resolves (providerID, externalID) to an id. A
	// non-nil payload refreshes the stored raw record on every call; the
	// last-seen payload is kept for debugging and replay.
	EnsureProviderItem(ctx context.Context, providerID int64, externalID string, payload json.RawMessage) (int64, error)

	// EnsureProduct resolves a product slug to an id.
	EnsureProduct(ctx context.Context, slug, name, kind string) (int64, error)

	// EnsureSellable resolves (kind, productID) to an id.
	EnsureSellable(ctx context.Context, kind string, productID int64) (int64, error)

	// EnsureOffer resolves (sellableID, retailerID, sku) to an id. An empty
	// sku denotes a retailer offer without a distinct stock-keeping unit.
	EnsureOffer(ctx context.Context, sellableID, retailerID int64, sku string) (int64, error)

	// EnsureOfferJurisdiction resolves (offerID, jurisdictionID) to the id
	// price observations reference. currencyID fixes the pricing currency
	// on first creation.
	EnsureOfferJurisdiction(ctx context.Context, offerID, jurisdictionID, currencyID int64) (int64, error)
}

// Provider is one upstream data source: a storefront, a deal aggregator,
// or a catalog database. AgentPriority is the tie-break rank this source
// carries when reporting prices; lower values are more authoritative.
type Provider struct {
	ID            int64
	Name          string
	Kind          string
	Slug          string
	AgentPriority int
}
