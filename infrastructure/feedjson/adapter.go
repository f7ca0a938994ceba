// Package feedjson implements the feed adapter for sources that already
// speak the canonical JSON feed format: one document carrying the
// provider reference and its items. Provider-specific wire formats live
// in external adapters; this one exists for first-party feeds and
// mirrors.
package feedjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pricegrid/pricegrid/domain/feed"
	"github.com/pricegrid/pricegrid/domain/job"
	"github.com/pricegrid/pricegrid/infrastructure/httpclient"
)

// Kind is the job kind this adapter handles.
const Kind = job.Kind("feed.json")

// Fetcher is the transport the adapter pulls documents through.
type Fetcher interface {
	Get(ctx context.Context, url string) (*httpclient.Response, error)
}

// Adapter fetches a canonical JSON feed document over HTTP.
type Adapter struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// New creates an Adapter.
func New(fetcher Fetcher, logger *slog.Logger) *Adapter {
	return &Adapter{fetcher: fetcher, logger: logger.With("component", "feedjson")}
}

// document is the canonical feed wire format.
type document struct {
	Provider struct {
		Name          string `json:"name"`
		Kind          string `json:"kind"`
		Slug          string `json:"slug"`
		AgentPriority int    `json:"agent_priority"`
	} `json:"provider"`
	Items []struct {
		ExternalID   string          `json:"external_id"`
		Title        string          `json:"title"`
		ProductSlug  string          `json:"product_slug"`
		ProductKind  string          `json:"product_kind"`
		SellableKind string          `json:"sellable_kind"`
		RetailerSlug string          `json:"retailer_slug"`
		SKU          string          `json:"sku"`
		Payload      json.RawMessage `json:"payload"`
		Quotes       []struct {
			CountryCode       string         `json:"country_code"`
			CountryName       string         `json:"country_name"`
			RegionCode        string         `json:"region_code"`
			CurrencyCode      string         `json:"currency_code"`
			CurrencyName      string         `json:"currency_name"`
			CurrencyMinorUnit int            `json:"currency_minor_unit"`
			AmountMinor       int64          `json:"amount_minor"`
			TaxInclusive      bool           `json:"tax_inclusive"`
			RecordedAt        time.Time      `json:"recorded_at"`
			Meta              map[string]any `json:"meta"`
		} `json:"quotes"`
	} `json:"items"`
}

// Fetch implements feed.Adapter. The job payload must carry the feed
// "url". A 304 from the conditional cache yields an empty result: nothing
// changed upstream, so the run succeeds with no work. Client-side
// failures (4xx, malformed payload, malformed document) are permanent;
// everything else is left transient for the retry policy.
func (a *Adapter) Fetch(ctx context.Context, payload map[string]any) (feed.Result, error) {
	url, ok := payload["url"].(string)
	if !ok || url == "" {
		return feed.Result{}, feed.Permanent(errors.New("job payload has no url"))
	}

	resp, err := a.fetcher.Get(ctx, url)
	if errors.Is(err, httpclient.ErrNotModified) {
		a.logger.Debug("feed not modified", "url", url)
		return feed.Result{}, nil
	}
	if err != nil {
		return feed.Result{}, classify(err, url)
	}

	var doc document
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return feed.Result{}, feed.Permanent(fmt.Errorf("decode feed document %s: %w", url, err))
	}
	if doc.Provider.Slug == "" {
		return feed.Result{}, feed.Permanent(fmt.Errorf("feed document %s has no provider slug", url))
	}

	result := feed.Result{
		Provider: feed.ProviderRef{
			Name:          doc.Provider.Name,
			Kind:          doc.Provider.Kind,
			Slug:          doc.Provider.Slug,
			AgentPriority: doc.Provider.AgentPriority,
		},
	}
	for _, item := range doc.Items {
		out := feed.Item{
			ExternalID:   item.ExternalID,
			Title:        item.Title,
			ProductSlug:  item.ProductSlug,
			ProductKind:  item.ProductKind,
			SellableKind: item.SellableKind,
			RetailerSlug: item.RetailerSlug,
			SKU:          item.SKU,
			Payload:      item.Payload,
		}
		for _, q := range item.Quotes {
			out.Quotes = append(out.Quotes, feed.Quote{
				CountryCode:       q.CountryCode,
				CountryName:       q.CountryName,
				RegionCode:        q.RegionCode,
				CurrencyCode:      q.CurrencyCode,
				CurrencyName:      q.CurrencyName,
				CurrencyMinorUnit: q.CurrencyMinorUnit,
				AmountMinor:       q.AmountMinor,
				TaxInclusive:      q.TaxInclusive,
				RecordedAt:        q.RecordedAt,
				Meta:              q.Meta,
			})
		}
		result.Items = append(result.Items, out)
	}

	a.logger.Debug("feed document fetched", "url", url, "items", len(result.Items))
	return result, nil
}

func classify(err error, url string) error {
	var statusErr *httpclient.StatusError
	// 429 stays transient even after the client's retry budget: the
	// job-level backoff gives the host time to cool down.
	if errors.As(err, &statusErr) &&
		statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
		statusErr.StatusCode != http.StatusTooManyRequests {
		return feed.Permanent(fmt.Errorf("fetch %s: %w", url, err))
	}
	return feed.Transient(fmt.Errorf("fetch %s: %w", url, err))
}
