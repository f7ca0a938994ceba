package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pricegrid/pricegrid/domain/pricing"
	"github.com/pricegrid/pricegrid/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const observationInsertBatch = 500

// PriceStore implements pricing.Store using GORM.
type PriceStore struct {
	db   database.Database
	caps Capabilities
}

// NewPriceStore creates a PriceStore.
func NewPriceStore(db database.Database, caps Capabilities) PriceStore {
	return PriceStore{db: db, caps: caps}
}

// InsertObservations appends price history rows in one transaction.
func (s PriceStore) InsertObservations(ctx context.Context, rows []pricing.Observation) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	models := make([]PriceObservationModel, 0, len(rows))
	for _, row := range rows {
		model := PriceObservationModel{
			OfferJurisdictionID: row.OfferJurisdictionID,
			ProviderItemID:      row.ProviderItemID,
			RecordedAt:          row.RecordedAt.UTC(),
			AmountMinor:         row.AmountMinor,
			TaxInclusive:        row.TaxInclusive,
		}
		if row.Meta != nil && s.caps.ObservationMeta {
			meta, err := json.Marshal(row.Meta)
			if err != nil {
				return 0, fmt.Errorf("marshal observation meta: %w", err)
			}
			model.Meta = meta
		}
		models = append(models, model)
	}

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		insert := tx
		if !s.caps.ObservationMeta {
			insert = insert.Omit("meta")
		}
		if err := insert.CreateInBatches(&models, observationInsertBatch).Error; err != nil {
			return fmt.Errorf("insert observations: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(models), nil
}

// UpsertCurrentPrices writes each candidate only where it supersedes the
// stored row. The whole comparison lives in the upsert's WHERE clause, so
// concurrent writers applying the same batch in any order converge: a
// strictly newer recorded_at wins, an equal recorded_at with a strictly
// lower agent_priority wins, and a full tie leaves the row untouched.
func (s PriceStore) UpsertCurrentPrices(ctx context.Context, candidates []pricing.CurrentPrice) error {
	// One winner per key first; a multi-row upsert cannot touch the same
	// conflict target twice in one statement.
	candidates = pricing.BestPerKey(candidates)
	if len(candidates) == 0 {
		return nil
	}

	models := make([]CurrentPriceModel, 0, len(candidates))
	for _, c := range candidates {
		models = append(models, CurrentPriceModel{
			OfferJurisdictionID: c.OfferJurisdictionID,
			AmountMinor:         c.AmountMinor,
			RecordedAt:          c.RecordedAt.UTC(),
			Agent:               c.Agent,
			AgentPriority:       c.AgentPriority,
		})
	}

	err := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "offer_jurisdiction_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount_minor", "recorded_at", "agent", "agent_priority"}),
		Where: clause.Where{Exprs: []clause.Expression{clause.Expr{
			SQL: "current_prices.recorded_at < excluded.recorded_at OR " +
				"(current_prices.recorded_at = excluded.recorded_at AND current_prices.agent_priority > excluded.agent_priority)",
		}}},
	}).Create(&models).Error
	if err != nil {
		return fmt.Errorf("upsert current prices: %w", err)
	}
	return nil
}

// CurrentPrice returns the current-price row for one offer-jurisdiction.
func (s PriceStore) CurrentPrice(ctx context.Context, offerJurisdictionID int64) (pricing.CurrentPrice, error) {
	var model CurrentPriceModel
	err := s.db.Session(ctx).
		Where("offer_jurisdiction_id = ?", offerJurisdictionID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pricing.CurrentPrice{}, fmt.Errorf("current price %d: %w", offerJurisdictionID, database.ErrNotFound)
	}
	if err != nil {
		return pricing.CurrentPrice{}, fmt.Errorf("lookup current price %d: %w", offerJurisdictionID, err)
	}
	return pricing.CurrentPrice{
		OfferJurisdictionID: model.OfferJurisdictionID,
		AmountMinor:         model.AmountMinor,
		RecordedAt:          model.RecordedAt,
		Agent:               model.Agent,
		AgentPriority:       model.AgentPriority,
	}, nil
}

// Observations returns the newest history rows for one offer-jurisdiction.
func (s PriceStore) Observations(ctx context.Context, offerJurisdictionID int64, limit int) ([]pricing.Observation, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []PriceObservationModel
	err := s.db.Session(ctx).
		Where("offer_jurisdiction_id = ?", offerJurisdictionID).
		Order("recorded_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list observations %d: %w", offerJurisdictionID, err)
	}

	rows := make([]pricing.Observation, 0, len(models))
	for _, model := range models {
		row := pricing.Observation{
			OfferJurisdictionID: model.OfferJurisdictionID,
			ProviderItemID:      model.ProviderItemID,
			RecordedAt:          model.RecordedAt,
			AmountMinor:         model.AmountMinor,
			TaxInclusive:        model.TaxInclusive,
		}
		if len(model.Meta) > 0 {
			if err := json.Unmarshal(model.Meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal observation meta: %w", err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
