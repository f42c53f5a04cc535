// Package pricing resolves unit prices for normalized resources. The
// client owns the quote cache and guarantees at most one concurrent
// outbound lookup per cache key; callers only see resolved quotes or
// taxonomy errors.
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"plancost/core/determinism"
	"plancost/core/plan"
)

// Unit identifies the billing unit of a price
type Unit string

const (
	UnitPerHour    Unit = "per-hour"
	UnitPerGBMonth Unit = "per-gb-month"
	UnitPerRequest Unit = "per-request"
)

// QuoteSource records how a quote was obtained. Cached is reserved for
// expired entries served under the offline policy; fresh fetches and
// within-TTL hits are Live.
type QuoteSource string

const (
	SourceLive   QuoteSource = "live"
	SourceCached QuoteSource = "cached"
)

// PriceKey identifies one priced spec in one region. The fingerprint
// covers only pricing-relevant attributes, never the resource id.
type PriceKey struct {
	Service     string `json:"service"`
	Region      string `json:"region"`
	Fingerprint string `json:"fingerprint"`
}

// String returns the canonical key form
func (k PriceKey) String() string {
	return k.Service + ":" + k.Region + ":" + k.Fingerprint
}

// KeyFor derives the cache key for a resource
func KeyFor(r plan.Resource) PriceKey {
	return PriceKey{
		Service:     r.Kind.Service(),
		Region:      r.Region,
		Fingerprint: determinism.FingerprintAttrs(r.PricingSpec(), r.PricingAttrKeys()),
	}
}

// PriceQuote is a resolved unit price
type PriceQuote struct {
	Key        PriceKey        `json:"key"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Unit       Unit            `json:"unit"`
	Currency   string          `json:"currency"`
	ResolvedAt time.Time       `json:"resolved_at"`
	Source     QuoteSource     `json:"source"`
}

// Price is the raw answer from an outbound lookup
type Price struct {
	Amount   decimal.Decimal
	Unit     Unit
	Currency string
}

// Source is the outbound pricing lookup contract. Implementations
// return taxonomy errors: NOT_FOUND when no price exists for the spec,
// RATE_LIMITED on throttling, AUTH_ERROR on rejected credentials, and
// NETWORK_ERROR on transport failures.
type Source interface {
	// Name identifies the source for logs and metrics
	Name() string

	// Lookup resolves the unit price for a spec in a region
	Lookup(ctx context.Context, service, region string, spec map[string]string) (Price, error)
}

// Result is one entry of a batch resolution: a quote or the error that
// prevented it.
type Result struct {
	Quote PriceQuote
	Err   error
}
