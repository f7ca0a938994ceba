package persistence_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pricegrid/pricegrid/domain/catalog"
	"github.com/pricegrid/pricegrid/infrastructure/persistence"
	"github.com/pricegrid/pricegrid/internal/database"
	"github.com/pricegrid/pricegrid/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogStore(t *testing.T) (persistence.CatalogStore, database.Database) {
	t.Helper()
	db := testdb.New(t)
	return persistence.NewCatalogStore(db, persistence.ProbeCapabilities(db)), db
}

func TestEnsureCurrencyIdempotent(t *testing.T) {
	store, db := newCatalogStore(t)
	ctx := context.Background()

	first, err := store.EnsureCurrency(ctx, "EUR", "Euro", 2)
	require.NoError(t, err)
	second, err := store.EnsureCurrency(ctx, "EUR", "Euro", 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, db.Session(ctx).Model(&persistence.CurrencyModel{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEnsureCurrencyConcurrent(t *testing.T) {
	store, db := newCatalogStore(t)
	ctx := context.Background()

	ids := make([]int64, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := store.EnsureCurrency(ctx, "GBP", "Pound Sterling", 2)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	var count int64
	require.NoError(t, db.Session(ctx).Model(&persistence.CurrencyModel{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEnsureCurrencyBackfillsNameOnly(t *testing.T) {
	store, db := newCatalogStore(t)
	ctx := context.Background()

	id, err := store.EnsureCurrency(ctx, "USD", "", 2)
	require.NoError(t, err)

	// A later call with a name fills the NULL column.
	_, err = store.EnsureCurrency(ctx, "USD", "US Dollar", 2)
	require.NoError(t, err)

	var model persistence.CurrencyModel
	require.NoError(t, db.Session(ctx).First(&model, id).Error)
	require.NotNil(t, model.Name)
	assert.Equal(t, "US Dollar", *model.Name)

	// But a different name never clobbers the stored one.
	_, err = store.EnsureCurrency(ctx, "USD", "Dollar (US)", 2)
	require.NoError(t, err)
	require.NoError(t, db.Session(ctx).First(&model, id).Error)
	assert.Equal(t, "US Dollar", *model.Name)
}

func TestEnsureCurrencyBackfillFailurePropagates(t *testing.T) {
	store, db := newCatalogStore(t)
	ctx := context.Background()

	_, err := store.EnsureCurrency(ctx, "JPY", "", 0)
	require.NoError(t, err)

	// Reads still work under query_only, so the lookup finds the row and
	// the failure surfaces from the backfill write itself.
	require.NoError(t, db.Session(ctx).Exec("PRAGMA query_only = ON").Error)
	defer db.Session(ctx).Exec("PRAGMA query_only = OFF")

	_, err = store.EnsureCurrency(ctx, "JPY", "Japanese Yen", 0)
	require.Error(t, err)
	assert.ErrorContains(t, err, "backfill currency JPY")
}

func TestEnsureJurisdictionNationalVsRegional(t *testing.T) {
	store, _ := newCatalogStore(t)
	ctx := context.Background()

	countryID, err := store.EnsureCountry(ctx, "US", "United States", 0)
	require.NoError(t, err)

	national, err := store.EnsureJurisdiction(ctx, countryID, "")
	require.NoError(t, err)
	regional, err := store.EnsureJurisdiction(ctx, countryID, "CA")
	require.NoError(t, err)
	assert.NotEqual(t, national, regional)

	again, err := store.EnsureJurisdiction(ctx, countryID, "")
	require.NoError(t, err)
	assert.Equal(t, national, again)
}

func TestEnsureProviderAppliesPriority(t *testing.T) {
	store, _ := newCatalogStore(t)
	ctx := context.Background()

	p, err := store.EnsureProvider(ctx, catalog.Provider{Name: "Steam", Kind: "storefront", Slug: "steam"})
	require.NoError(t, err)
	assert.Equal(t, 100, p.AgentPriority, "default priority")

	p, err = store.EnsureProvider(ctx, catalog.Provider{Name: "Steam", Kind: "storefront", Slug: "steam", AgentPriority: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, p.AgentPriority, "operator priority applied to existing row")
}

func TestEnsureProviderItemRefreshesPayload(t *testing.T) {
	store, db := newCatalogStore(t)
	ctx := context.Background()

	p, err := store.EnsureProvider(ctx, catalog.Provider{Name: "Steam", Kind: "storefront", Slug: "steam"})
	require.NoError(t, err)

	first, err := store.EnsureProviderItem(ctx, p.ID, "app/440", json.RawMessage(`{"v":1}`))
	require.NoError(t, err)
	second, err := store.EnsureProviderItem(ctx, p.ID, "app/440", json.RawMessage(`{"v":2}`))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var model persistence.ProviderItemModel
	require.NoError(t, db.Session(ctx).First(&model, first).Error)
	assert.JSONEq(t, `{"v":2}`, string(model.Payload))
}

func TestEnsureOfferChain(t *testing.T) {
	store, db := newCatalogStore(t)
	ctx := context.Background()

	p, err := store.EnsureProvider(ctx, catalog.Provider{Name: "Steam", Kind: "storefront", Slug: "steam"})
	require.NoError(t, err)
	productID, err := store.EnsureProduct(ctx, "half-life-3", "Half-Life 3", "game")
	require.NoError(t, err)
	sellableID, err := store.EnsureSellable(ctx, "digital", productID)
	require.NoError(t, err)

	offerID, err := store.EnsureOffer(ctx, sellableID, p.ID, "")
	require.NoError(t, err)
	again, err := store.EnsureOffer(ctx, sellableID, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, offerID, again)

	withSKU, err := store.EnsureOffer(ctx, sellableID, p.ID, "HL3-DELUXE")
	require.NoError(t, err)
	assert.NotEqual(t, offerID, withSKU, "distinct sku is a distinct offer")

	var count int64
	require.NoError(t, db.Session(ctx).Model(&persistence.OfferModel{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestEnsureOfferJurisdictionIdempotent(t *testing.T) {
	store, _ := newCatalogStore(t)
	ctx := context.Background()

	currencyID, err := store.EnsureCurrency(ctx, "EUR", "Euro", 2)
	require.NoError(t, err)
	countryID, err := store.EnsureCountry(ctx, "DE", "Germany", currencyID)
	require.NoError(t, err)
	jurisdictionID, err := store.EnsureJurisdiction(ctx, countryID, "")
	require.NoError(t, err)

	p, err := store.EnsureProvider(ctx, catalog.Provider{Name: "GOG", Kind: "storefront", Slug: "gog"})
	require.NoError(t, err)
	productID, err := store.EnsureProduct(ctx, "witcher-4", "The Witcher 4", "game")
	require.NoError(t, err)
	sellableID, err := store.EnsureSellable(ctx, "digital", productID)
	require.NoError(t, err)
	offerID, err := store.EnsureOffer(ctx, sellableID, p.ID, "")
	require.NoError(t, err)

	first, err := store.EnsureOfferJurisdiction(ctx, offerID, jurisdictionID, currencyID)
	require.NoError(t, err)
	second, err := store.EnsureOfferJurisdiction(ctx, offerID, jurisdictionID, currencyID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
