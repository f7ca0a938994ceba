package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pricegrid/pricegrid/domain/catalog"
	"github.com/pricegrid/pricegrid/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogStore implements catalog.Store using GORM.
//
// Every Ensure method follows the same race-safe shape: look up by natural
// key, and if absent insert with ON CONFLICT DO NOTHING. When the insert
// affects no rows a concurrent caller won the race, so the lookup is
// repeated and the winner's id returned. The unique constraint is the only
// concurrency-safety mechanism; no advisory locks are taken and a
// uniqueness violation never reaches the caller.
type CatalogStore struct {
	db   database.Database
	caps Capabilities
}

// NewCatalogStore creates a CatalogStore.
func NewCatalogStore(db database.Database, caps Capabilities) CatalogStore {
	return CatalogStore{db: db, caps: caps}
}

// EnsureCurrency resolves a currency code, creating the row if absent.
// A provided name backfills a NULL column only — fill, don't clobber.
func (s CatalogStore) EnsureCurrency(ctx context.Context, code, name string, minorUnit int) (int64, error) {
	var model CurrencyModel
	err := s.db.Session(ctx).Where("code = ?", code).First(&model).Error
	if err == nil {
		if name != "" && model.Name == nil {
			if err := s.db.Session(ctx).Model(&CurrencyModel{}).
				Where("id = ? AND name IS NULL", model.ID).
				Update("name", name).Error; err != nil {
				return 0, fmt.Errorf("backfill currency %s: %w", code, err)
			}
		}
		return model.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup currency %s: %w", code, err)
	}

	model = CurrencyModel{Code: code, Name: optional(name), MinorUnit: minorUnit}
	result := s.db.Session(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return 0, fmt.Errorf("insert currency %s: %w", code, result.Error)
	}
	if result.RowsAffected == 0 {
		if err := s.db.Session(ctx).Where("code = ?", code).First(&model).Error; err != nil {
			return 0, fmt.Errorf("lookup currency %s after race: %w", code, err)
		}
	}
	return model.ID, nil
}

// EnsureCountry resolves an ISO-3166 alpha-2 code, creating the row if
// absent.
func (s CatalogStore) EnsureCountry(ctx context.Context, code2, name string, defaultCurrencyID int64) (int64, error) {
	var model CountryModel
	err := s.db.Session(ctx).Where("code2 = ?", code2).First(&model).Error
	if err == nil {
		if name != "" && model.Name == nil {
			if err := s.db.Session(ctx).Model(&CountryModel{}).
				Where("id = ? AND name IS NULL", model.ID).
				Update("name", name).Error; err != nil {
				return 0, fmt.Errorf("backfill country %s: %w", code2, err)
			}
		}
		if defaultCurrencyID != 0 && model.DefaultCurrencyID == nil {
			if err := s.db.Session(ctx).Model(&CountryModel{}).
				Where("id = ? AND default_currency_id IS NULL", model.ID).
				Update("default_currency_id", defaultCurrencyID).Error; err != nil {
				return 0, fmt.Errorf("backfill country %s: %w", code2, err)
			}
		}
		return model.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup country %s: %w", code2, err)
	}

	model = CountryModel{Code2: code2, Name: optional(name)}
	if defaultCurrencyID != 0 {
		model.DefaultCurrencyID = &defaultCurrencyID
	}
	result := s.db.Session(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code2"}}, DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return 0, fmt.Errorf("insert country %s: %w", code2, result.Error)
	}
	if result.RowsAffected == 0 {
		if err := s.db.Session(ctx).Where("code2 = ?", code2).First(&model).Error; err != nil {
			return 0, fmt.Errorf("lookup country %s after race: %w", code2, err)
		}
	}
	return model.ID, nil
}

// EnsureJurisdiction resolves (countryID, regionCode). The empty region
// code is the national jurisdiction.
func (s CatalogStore) EnsureJurisdiction(ctx context.Context, countryID int64, regionCode string) (int64, error) {
	var model JurisdictionModel
	err := s.db.Session(ctx).
		Where("country_id = ? AND region_code = ?", countryID, regionCode).
		First(&model).Error
	if err == nil {
		return model.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup jurisdiction %d/%q: %w", countryID, regionCode, err)
	}

	model = JurisdictionModel{CountryID: countryID, RegionCode: regionCode}
	result := s.db.Session(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "country_id"}, {Name: "region_code"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return 0, fmt.Errorf("insert jurisdiction %d/%q: %w", countryID, regionCode, result.Error)
	}
	if result.RowsAffected == 0 {
		if err := s.db.Session(ctx).
			Where("country_id = ? AND region_code = ?", countryID, regionCode).
			First(&model).Error; err != nil {
			return 0, fmt.Errorf("lookup jurisdiction %d/%q after race: %w", countryID, regionCode, err)
		}
	}
	return model.ID, nil
}

// EnsureProvider resolves a provider slug, creating the row if absent. An
// explicit positive AgentPriority on an existing row is applied: priority
// is operator-managed ranking, not provider-reported data.
func (s CatalogStore) EnsureProvider(ctx context.Context, p catalog.Provider) (catalog.Provider, error) {
	var model ProviderModel
	err := s.db.Session(ctx).Where("slug = ?", p.Slug).First(&model).Error
	if err == nil {
		if p.AgentPriority > 0 && p.AgentPriority != model.AgentPriority {
			if err := s.db.Session(ctx).Model(&ProviderModel{}).
				Where("id = ?", model.ID).
				Update("agent_priority", p.AgentPriority).Error; err != nil {
				return catalog.Provider{}, fmt.Errorf("update provider priority %s: %w", p.Slug, err)
			}
			model.AgentPriority = p.AgentPriority
		}
		return providerToDomain(model), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return catalog.Provider{}, fmt.Errorf("lookup provider %s: %w", p.Slug, err)
	}

	model = ProviderModel{Name: p.Name, Kind: p.Kind, Slug: p.Slug, AgentPriority: p.AgentPriority}
	if model.AgentPriority <= 0 {
		model.AgentPriority = 100
	}
	result := s.db.Session(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "slug"}}, DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return catalog.Provider{}, fmt.Errorf("insert provider %s: %w", p.Slug, result.Error)
	}
	if result.RowsAffected == 0 {
		if err := s.db.Session(ctx).Where("slug = ?", p.Slug).First(&model).Error; err != nil {
			return catalog.Provider{}, fmt.Errorf("lookup provider %s after race: %w", p.Slug, err)
		}
	}
	return providerToDomain(model), nil
}

// EnsureProviderItem resolves (providerID, externalID). A non-nil payload
// refreshes the stored raw record on every call.
func (s CatalogStore) EnsureProviderItem(ctx context.Context, providerID int64, externalID string, payload json.RawMessage) (int64, error) {
	var model ProviderItemModel
	err := s.db.Session(ctx).
		Where("provider_id = ? AND external_id = ?", providerID, externalID).
		First(&model).Error
	if err == nil {
		if payload != nil && s.caps.ProviderItemPayload {
			if err := s.db.Session(ctx).Model(&ProviderItemModel{}).
				Where("id = ?", model.ID).
				Update("payload", payload).Error; err != nil {
				return 0, fmt.Errorf("refresh provider item payload %d/%s: %w", providerID, externalID, err)
			}
		}
		return model.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup provider item %d/%s: %w", providerID, externalID, err)
	}

	model = ProviderItemModel{ProviderID: providerID, ExternalID: externalID, Payload: payload}
	tx := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}, {Name: "external_id"}},
		DoNothing: true,
	})
	if !s.caps.ProviderItemPayload {
		tx = tx.Omit("payload")
	}
	result := tx.Create(&model)
	if result.Error != nil {
		return 0, fmt.Errorf("insert provider item %d/%s: %w", providerID, externalID, result.Error)
	}
	if result.RowsAffected == 0 {
		if err := s.db.Session(ctx).
			Where("provider_id = ? AND external_id = ?", providerID, externalID).
			First(&model).Error; err != nil {
			return 0, fmt.Errorf("lookup provider item %d/%s after race: %w", providerID, externalID, err)
		}
	}
	return model.ID, nil
}

// EnsureProduct resolves a product slug, creating the row if absent.
func (s CatalogStore) EnsureProduct(ctx context.Context, slug, name, kind string) (int64, error) {
	var model ProductModel
	err := s.db.Session(ctx).Where("slug = ?", slug).First(&model).Error
	if err == nil {
		return model.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup product %s: %w", slug, err)
	}

	model = ProductModel{Slug: slug, Name: name, Kind: kind}
	result := s.db.Session(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "slug"}}, DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return 0, fmt.Errorf("insert product %s: %w", slug, result.Error)
	}
	if result.RowsAffected == 0 {
		if err := s.db.Session(ctx).Where("slug = ?", slug).First(&model).Error; err != nil {
			return 0, fmt.Errorf("lookup product %s after race: %w", slug, err)
		}
	}
	return model.ID, nil
}

// EnsureSellable resolves (kind, productID), creating the row if absent.
func (s CatalogStore) EnsureSellable(ctx context.Context, kind string, productID int64) (int64, error) {
	var model SellableModel
	err := s.db.Session(ctx).
		Where("kind = ? AND product_id = ?", kind, productID).
		First(&model).Error
	if err == nil {
		return model.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup sellable %s/%d: %w", kind, productID, err)
	}

	model = SellableModel{Kind: kind, ProductID: productID}
	result := s.db.Session(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return 0, fmt.Errorf("insert sellable %s/%d: %w", kind, productID, result.Error)
	}
	if result.RowsAffected == 0 {
		if err := s.db.Session(ctx).
			Where("kind = ? AND product_id = ?", kind, productID).
			First(&model).Error; err != nil {
			return 0, fmt.Errorf("lookup sellable %s/%d after race: %w", kind, productID, err)
		}
	}
	return model.ID, nil
}

// EnsureOffer resolves (sellableID, retailerID, sku), creating the row if
// absent. An empty sku is stored as ''.
func (s CatalogStore) EnsureOffer(ctx context.Context, sellableID, retailerID int64, sku string) (int64, error) {
	var model OfferModel
	err := s.db.Session(ctx).
		Where("sellable_id = ? AND retailer_id = ? AND sku = ?", sellableID, retailerID, sku).
		First(&model).Error
	if err == nil {
		return model.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup offer %d/%d/%q: %w", sellableID, retailerID, sku, err)
	}

	model = OfferModel{SellableID: sellableID, RetailerID: retailerID, SKU: sku}
	result := s.db.Session(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sellable_id"}, {Name: "retailer_id"}, {Name: "sku"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return 0, fmt.Errorf("insert offer %d/%d/%q: %w", sellableID, retailerID, sku, result.Error)
	}
	if result.RowsAffected == 0 {
		if err := s.db.Session(ctx).
			Where("sellable_id = ? AND retailer_id = ? AND sku = ?", sellableID, retailerID, sku).
			First(&model).Error; err != nil {
			return 0, fmt.Errorf("lookup offer %d/%d/%q after race: %w", sellableID, retailerID, sku, err)
		}
	}
	return model.ID, nil
}

// EnsureOfferJurisdiction resolves (offerID, jurisdictionID), creating the
// row if absent with the given pricing currency.
func (s CatalogStore) EnsureOfferJurisdiction(ctx context.Context, offerID, jurisdictionID, currencyID int64) (int64, error) {
	var model OfferJurisdictionModel
	err := s.db.Session(ctx).
		Where("offer_id = ? AND jurisdiction_id = ?", offerID, jurisdictionID).
		First(&model).Error
	if err == nil {
		return model.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup offer jurisdiction %d/%d: %w", offerID, jurisdictionID, err)
	}

	model = OfferJurisdictionModel{OfferID: offerID, JurisdictionID: jurisdictionID, CurrencyID: currencyID}
	result := s.db.Session(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "offer_id"}, {Name: "jurisdiction_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return 0, fmt.Errorf("insert offer jurisdiction %d/%d: %w", offerID, jurisdictionID, result.Error)
	}
	if result.RowsAffected == 0 {
		if err := s.db.Session(ctx).
			Where("offer_id = ? AND jurisdiction_id = ?", offerID, jurisdictionID).
			First(&model).Error; err != nil {
			return 0, fmt.Errorf("lookup offer jurisdiction %d/%d after race: %w", offerID, jurisdictionID, err)
		}
	}
	return model.ID, nil
}

func providerToDomain(m ProviderModel) catalog.Provider {
	return catalog.Provider{
		ID:            m.ID,
		Name:          m.Name,
		Kind:          m.Kind,
		Slug:          m.Slug,
		AgentPriority: m.AgentPriority,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
