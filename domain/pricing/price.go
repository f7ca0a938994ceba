// Package pricing provides the price history model: append-only price
// observations and the derived current-price view per offer-jurisdiction.
package pricing

import (
	"context"
	"time"
)

// Observation is one reported price for an offer in one jurisdiction.
// Observations are append-only; they are never updated or deleted by
// ingestion, and they may arrive out of temporal order.
type Observation struct {
	OfferJurisdictionID int64
	ProviderItemID      *int64
	RecordedAt          time.Time
	AmountMinor         int64
	TaxInclusive        bool
	Meta                map[string]any
}

// CurrentPrice is the single latest-known price for an offer-jurisdiction,
// derived from the observation history. Agent names the reporting source;
// AgentPriority is its tie-break rank (lower wins on equal RecordedAt).
type CurrentPrice struct {
	OfferJurisdictionID int64
	AmountMinor         int64
	RecordedAt          time.Time
	Agent               string
	AgentPriority       int
}

// Supersedes reports whether the incoming candidate should replace c.
// A strictly newer RecordedAt wins; on an exact timestamp tie a strictly
// lower AgentPriority wins; a full tie keeps the existing row. The rule is
// commutative and idempotent, so concurrent unordered writers converge to
// the same final row regardless of application order.
func (c CurrentPrice) Supersedes(incoming CurrentPrice) bool {
	if incoming.RecordedAt.After(c.RecordedAt) {
		return true
	}
	return incoming.RecordedAt.Equal(c.RecordedAt) && incoming.AgentPriority < c.AgentPriority
}

// BestPerKey reduces candidates to one winner per offer-jurisdiction using
// the Supersedes rule, so a multi-row conditional upsert never carries two
// rows for the same key.
func BestPerKey(candidates []CurrentPrice) []CurrentPrice {
	best := make(map[int64]CurrentPrice, len(candidates))
	for _, c := range candidates {
		cur, ok := best[c.OfferJurisdictionID]
		if !ok || cur.Supersedes(c) {
			best[c.OfferJurisdictionID] = c
		}
	}
	out := make([]CurrentPrice, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return out
}

// Store persists price history.
type Store interface {
	// InsertObservations appends a batch of observations atomically: all
	// rows of the batch are written or none are. It does not serialize
	// against other concurrent batches.
	InsertObservations(ctx context.Context, rows []Observation) (int, error)

	// UpsertCurrentPrices writes each candidate's current-price row only if
	// it supersedes the existing one, as a single conditional upsert per
	// statement — never a separate read-then-write.
	UpsertCurrentPrices(ctx context.Context, candidates []CurrentPrice) error

	// CurrentPrice returns the current-price row for one offer-jurisdiction.
	CurrentPrice(ctx context.Context, offerJurisdictionID int64) (CurrentPrice, error)

	// Observations returns the newest observations for one
	// offer-jurisdiction, most recent first.
	Observations(ctx context.Context, offerJurisdictionID int64, limit int) ([]Observation, error)
}
