// Package feed defines the contract between the ingestion core and
// provider adapters: the canonical shapes an adapter emits and the
// transient/permanent error classification the retry policy depends on.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Quote is one price point an adapter observed, located by the codes the
// resolver needs to materialize the offer-jurisdiction it belongs to.
type Quote struct {
	CountryCode       string
	CountryName       string
	RegionCode        string // empty for the national jurisdiction
	CurrencyCode      string
	CurrencyName      string
	CurrencyMinorUnit int
	AmountMinor       int64
	TaxInclusive      bool
	RecordedAt        time.Time
	Meta              map[string]any
}

// Item is one provider record mapped to canonical coordinates: the
// product/sellable/offer it describes plus the price quotes seen for it.
// Payload carries the raw provider record for debugging and replay.
type Item struct {
	ExternalID   string
	Title        string
	ProductSlug  string
	ProductKind  string
	SellableKind string
	RetailerSlug string // empty means the provider itself is the retailer
	SKU          string
	Payload      json.RawMessage
	Quotes       []Quote
}

// ProviderRef identifies the upstream source a result came from.
// AgentPriority is the source's current-price tie-break rank; lower is
// more authoritative.
type ProviderRef struct {
	Name          string
	Kind          string
	Slug          string
	AgentPriority int
}

// Result is one fetched unit of work: the provider and the items it
// reported.
type Result struct {
	Provider ProviderRef
	Items    []Item
}

// Adapter converts one storefront/catalog API's wire format into canonical
// shapes. Adapters classify their own failures as transient or permanent
// so the job queue's retry policy behaves correctly; an unclassified error
// is treated as transient.
type Adapter interface {
	Fetch(ctx context.Context, payload map[string]any) (Result, error)
}

// PermanentError marks a failure that retrying cannot fix: a malformed
// response, a client-side rejection, or an adapter logic error.
type PermanentError struct {
	Err error
}

// Error implements error.
func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error { return e.Err }

// TransientError marks a failure worth retrying: a network fault, a server
// error, or a rate-limit response.
type TransientError struct {
	Err error
}

// Error implements error.
func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsPermanent reports whether err is classified as non-retryable anywhere
// in its chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
