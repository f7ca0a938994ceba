package resolver

import "github.com/pricegrid/pricegrid/domain/catalog"

type jurisdictionKey struct {
	countryID  int64
	regionCode string
}

type sellableKey struct {
	kind      string
	productID int64
}

type offerKey struct {
	sellableID int64
	retailerID int64
	sku        string
}

type offerJurisdictionKey struct {
	offerID        int64
	jurisdictionID int64
}

// EntityCache memoizes successful resolutions for the duration of one
// ingestion run. Only positive results are stored: a failed resolution is
// retried on the next reference rather than pinned as a miss. The cache is
// not safe for concurrent use — each job execution owns its own, so a
// stale or poisoned entry can never outlive the run that created it.
type EntityCache struct {
	currencies         map[string]int64
	countries          map[string]int64
	jurisdictions      map[jurisdictionKey]int64
	providers          map[string]catalog.Provider
	products           map[string]int64
	sellables          map[sellableKey]int64
	offers             map[offerKey]int64
	offerJurisdictions map[offerJurisdictionKey]int64
}

// NewEntityCache creates an empty cache.
func NewEntityCache() *EntityCache {
	return &EntityCache{
		currencies:         make(map[string]int64),
		countries:          make(map[string]int64),
		jurisdictions:      make(map[jurisdictionKey]int64),
		providers:          make(map[string]catalog.Provider),
		products:           make(map[string]int64),
		sellables:          make(map[sellableKey]int64),
		offers:             make(map[offerKey]int64),
		offerJurisdictions: make(map[offerJurisdictionKey]int64),
	}
}

// Len returns the number of cached resolutions across all entity kinds.
func (c *EntityCache) Len() int {
	return len(c.currencies) + len(c.countries) + len(c.jurisdictions) +
		len(c.providers) + len(c.products) + len(c.sellables) +
		len(c.offers) + len(c.offerJurisdictions)
}
