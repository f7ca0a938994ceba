package persistence

import (
	"encoding/json"
	"time"
)

// CurrencyModel represents a currency in the database.
type CurrencyModel struct {
	ID        int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Code      string  `gorm:"column:code;type:varchar(8);uniqueIndex;not null"`
	Name      *string `gorm:"column:name;type:varchar(64)"`
	MinorUnit int     `gorm:"column:minor_unit;not null;default:2"`
}

// TableName returns the table name.
func (CurrencyModel) TableName() string { return "currencies" }

// CountryModel represents a country in the database.
type CountryModel struct {
	ID                int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Code2             string  `gorm:"column:code2;type:varchar(2);uniqueIndex;not null"`
	Name              *string `gorm:"column:name;type:varchar(128)"`
	DefaultCurrencyID *int64  `gorm:"column:default_currency_id"`
}

// TableName returns the table name.
func (CountryModel) TableName() string { return "countries" }

// JurisdictionModel represents a pricing jurisdiction. The national
// jurisdiction stores an empty region code rather than NULL so the
// composite unique index actually rejects duplicates (SQL unique indexes
// treat NULLs as distinct).
type JurisdictionModel struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	CountryID  int64  `gorm:"column:country_id;not null;uniqueIndex:idx_jurisdictions_country_region"`
	RegionCode string `gorm:"column:region_code;type:varchar(16);not null;default:'';uniqueIndex:idx_jurisdictions_country_region"`
}

// TableName returns the table name.
func (JurisdictionModel) TableName() string { return "jurisdictions" }

// ProviderModel represents an upstream data source.
type ProviderModel struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name          string `gorm:"column:name;type:varchar(128);not null"`
	Kind          string `gorm:"column:kind;type:varchar(32);not null"`
	Slug          string `gorm:"column:slug;type:varchar(64);uniqueIndex;not null"`
	AgentPriority int    `gorm:"column:agent_priority;not null;default:100"`
}

// TableName returns the table name.
func (ProviderModel) TableName() string { return "providers" }

// ProviderItemModel represents one provider's raw record for an item. The
// payload is the last-seen upstream document, kept for debugging and
// replay; media and price observations attach here.
type ProviderItemModel struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	ProviderID int64           `gorm:"column:provider_id;not null;uniqueIndex:idx_provider_items_provider_external"`
	ExternalID string          `gorm:"column:external_id;type:varchar(255);not null;uniqueIndex:idx_provider_items_provider_external"`
	Payload    json.RawMessage `gorm:"column:payload;type:jsonb"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name.
func (ProviderItemModel) TableName() string { return "provider_items" }

// ProductModel represents a catalog product.
type ProductModel struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Slug string `gorm:"column:slug;type:varchar(255);uniqueIndex;not null"`
	Name string `gorm:"column:name;type:varchar(255);not null"`
	Kind string `gorm:"column:kind;type:varchar(32);not null"`
}

// TableName returns the table name.
func (ProductModel) TableName() string { return "products" }

// SellableModel represents a purchasable form of a product.
type SellableModel struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Kind      string `gorm:"column:kind;type:varchar(32);not null;uniqueIndex:idx_sellables_kind_product"`
	ProductID int64  `gorm:"column:product_id;not null;uniqueIndex:idx_sellables_kind_product"`
}

// TableName returns the table name.
func (SellableModel) TableName() string { return "sellables" }

// OfferModel represents one retailer's offer of a sellable. An offer
// without a distinct SKU stores the empty string so the composite unique
// index holds.
type OfferModel struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	SellableID int64  `gorm:"column:sellable_id;not null;uniqueIndex:idx_offers_sellable_retailer_sku"`
	RetailerID int64  `gorm:"column:retailer_id;not null;uniqueIndex:idx_offers_sellable_retailer_sku"`
	SKU        string `gorm:"column:sku;type:varchar(128);not null;default:'';uniqueIndex:idx_offers_sellable_retailer_sku"`
}

// TableName returns the table name.
func (OfferModel) TableName() string { return "offers" }

// OfferJurisdictionModel represents an offer's pricing instantiation in
// one jurisdiction and currency; price observations reference this row.
type OfferJurisdictionModel struct {
	ID             int64 `gorm:"column:id;primaryKey;autoIncrement"`
	OfferID        int64 `gorm:"column:offer_id;not null;uniqueIndex:idx_offer_jurisdictions_offer_jurisdiction"`
	JurisdictionID int64 `gorm:"column:jurisdiction_id;not null;uniqueIndex:idx_offer_jurisdictions_offer_jurisdiction"`
	CurrencyID     int64 `gorm:"column:currency_id;not null"`
}

// TableName returns the table name.
func (OfferJurisdictionModel) TableName() string { return "offer_jurisdictions" }

// PriceObservationModel is one append-only price history row.
type PriceObservationModel struct {
	ID                  int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OfferJurisdictionID int64           `gorm:"column:offer_jurisdiction_id;not null;index:idx_price_observations_oj_recorded"`
	ProviderItemID      *int64          `gorm:"column:provider_item_id"`
	RecordedAt          time.Time       `gorm:"column:recorded_at;not null;index:idx_price_observations_oj_recorded"`
	AmountMinor         int64           `gorm:"column:amount_minor;not null"`
	TaxInclusive        bool            `gorm:"column:tax_inclusive;not null"`
	Meta                json.RawMessage `gorm:"column:meta;type:jsonb"`
}

// TableName returns the table name.
func (PriceObservationModel) TableName() string { return "price_observations" }

// CurrentPriceModel is the derived latest-known price per
// offer-jurisdiction. One row per key, overwritten by the reconciler's
// conditional upsert, never deleted by ingestion.
type CurrentPriceModel struct {
	OfferJurisdictionID int64     `gorm:"column:offer_jurisdiction_id;primaryKey"`
	AmountMinor         int64     `gorm:"column:amount_minor;not null"`
	RecordedAt          time.Time `gorm:"column:recorded_at;not null"`
	Agent               string    `gorm:"column:agent;type:varchar(64);not null"`
	AgentPriority       int       `gorm:"column:agent_priority;not null"`
}

// TableName returns the table name.
func (CurrentPriceModel) TableName() string { return "current_prices" }

// IngestionJobModel represents a durable queue job.
type IngestionJobModel struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Kind        string          `gorm:"column:kind;type:varchar(64);index;not null"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb"`
	Status      string          `gorm:"column:status;type:varchar(16);not null;index:idx_ingestion_jobs_status_scheduled"`
	Priority    int             `gorm:"column:priority;not null;default:100"`
	ScheduledAt time.Time       `gorm:"column:scheduled_at;not null;index:idx_ingestion_jobs_status_scheduled"`
	LockedAt    *time.Time      `gorm:"column:locked_at"`
	LockedBy    string          `gorm:"column:locked_by;type:varchar(128);not null;default:''"`
	Attempts    int             `gorm:"column:attempts;not null;default:0"`
	MaxAttempts int             `gorm:"column:max_attempts;not null;default:3"`
	LastError   *string         `gorm:"column:last_error;type:text"`
	StartedAt   *time.Time      `gorm:"column:started_at"`
	FinishedAt  *time.Time      `gorm:"column:finished_at"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name.
func (IngestionJobModel) TableName() string { return "ingestion_jobs" }
