// Package persistence provides database storage implementations.
package persistence

import (
	"github.com/pricegrid/pricegrid/internal/database"
)

// AutoMigrate runs GORM auto migration for all models.
func AutoMigrate(db database.Database) error {
	return db.GORM().AutoMigrate(allModels()...)
}

// allModels returns every GORM model that AutoMigrate manages.
func allModels() []interface{} {
	return []interface{}{
		&CurrencyModel{},
		&CountryModel{},
		&JurisdictionModel{},
		&ProviderModel{},
		&ProviderItemModel{},
		&ProductModel{},
		&SellableModel{},
		&OfferModel{},
		&OfferJurisdictionModel{},
		&PriceObservationModel{},
		&CurrentPriceModel{},
		&IngestionJobModel{},
	}
}

// Capabilities describes which optional columns the connected schema
// carries. It is probed once at startup so write paths can branch on a
// typed descriptor instead of querying table metadata per write; legacy
// deployments that predate the optional columns still ingest cleanly.
type Capabilities struct {
	ObservationMeta     bool
	ProviderItemPayload bool
}

// ProbeCapabilities inspects the connected schema once.
func ProbeCapabilities(db database.Database) Capabilities {
	m := db.GORM().Migrator()
	return Capabilities{
		ObservationMeta:     m.HasColumn(&PriceObservationModel{}, "meta"),
		ProviderItemPayload: m.HasColumn(&ProviderItemModel{}, "payload"),
	}
}
