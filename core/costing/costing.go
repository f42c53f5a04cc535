// Package costing turns resolved price quotes into monthly cost
// estimates. Calculation is pure and synchronous; every resource in
// the input produces exactly one estimate, resolved or not.
package costing

import (
	"github.com/shopspring/decimal"

	"plancost/core/plan"
	"plancost/core/pricing"
	"plancost/internal/errors"
)

// HoursPerMonth is the billing convention for converting hourly rates
// to monthly cost.
const HoursPerMonth = 730

// DefaultCurrency labels every estimate until multi-currency pricing exists
const DefaultCurrency = "USD"

// Breakdown component names
const (
	ComponentInstanceHours    = "instance-hours"
	ComponentAllocatedStorage = "allocated-storage"
	ComponentStorage          = "storage"
)

// defaultDatabaseStorageRate is the USD per GB-month applied to
// managed database allocated storage when no override is configured.
var defaultDatabaseStorageRate = decimal.RequireFromString("0.115")

// Component is one named line of an estimate breakdown
type Component struct {
	Name string          `json:"name" yaml:"name"`
	Cost decimal.Decimal `json:"cost" yaml:"cost"`
}

// CostEstimate is the monthly cost projection for a single resource.
// MonthlyCost is null when the price could not be resolved; such
// estimates carry the error kind and are excluded from report totals.
type CostEstimate struct {
	ResourceID  string              `json:"resource_id" yaml:"resource_id"`
	Kind        plan.Kind           `json:"resource_kind" yaml:"resource_kind"`
	Region      string              `json:"region" yaml:"region"`
	MonthlyCost decimal.NullDecimal `json:"monthly_cost" yaml:"monthly_cost"`
	Currency    string              `json:"currency" yaml:"currency"`
	Breakdown   []Component         `json:"breakdown,omitempty" yaml:"breakdown,omitempty"`
	Stale       bool                `json:"stale" yaml:"stale"`
	ErrorKind   string              `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

// Resolved reports whether the estimate carries a usable monthly cost
func (e CostEstimate) Resolved() bool {
	return e.MonthlyCost.Valid
}

// Component returns the named breakdown component cost
func (e CostEstimate) Component(name string) (decimal.Decimal, bool) {
	for _, c := range e.Breakdown {
		if c.Name == name {
			return c.Cost, true
		}
	}
	return decimal.Decimal{}, false
}

// Config holds calculator tunables
type Config struct {
	// DatabaseStorageRate is the USD per GB-month for managed database
	// allocated storage. Zero selects the default.
	DatabaseStorageRate decimal.Decimal
}

// formula maps a resolved quote to breakdown components for one kind
type formula func(c *Calculator, r plan.Resource, quote pricing.PriceQuote) []Component

// Calculator computes per-resource monthly costs from resolved quotes
type Calculator struct {
	storageRate decimal.Decimal
	formulas    map[plan.Kind]formula
}

// NewCalculator creates a calculator with the per-kind formula table
func NewCalculator(cfg Config) *Calculator {
	rate := cfg.DatabaseStorageRate
	if rate.IsZero() {
		rate = defaultDatabaseStorageRate
	}
	return &Calculator{
		storageRate: rate,
		formulas: map[plan.Kind]formula{
			plan.KindCompute:         (*Calculator).computeFormula,
			plan.KindManagedDatabase: (*Calculator).databaseFormula,
			plan.KindObjectStorage:   (*Calculator).capacityFormula,
			plan.KindBlockStorage:    (*Calculator).capacityFormula,
		},
	}
}

// Compute produces one estimate per resource, in input order. Lookup
// failures degrade the affected estimate instead of failing the batch.
func (c *Calculator) Compute(resources []plan.Resource, quotes map[string]pricing.Result) []CostEstimate {
	estimates := make([]CostEstimate, 0, len(resources))
	for _, r := range resources {
		estimates = append(estimates, c.Estimate(r, quotes[r.ID]))
	}
	return estimates
}

// Estimate computes the monthly cost for a single resource
func (c *Calculator) Estimate(r plan.Resource, result pricing.Result) CostEstimate {
	est := CostEstimate{
		ResourceID: r.ID,
		Kind:       r.Kind,
		Region:     r.Region,
		Currency:   DefaultCurrency,
	}
	if result.Err != nil {
		est.ErrorKind = string(errors.TypeOf(result.Err))
		return est
	}

	quote := result.Quote
	if quote.Currency != "" {
		est.Currency = quote.Currency
	}
	est.Stale = quote.Source == pricing.SourceCached

	f, ok := c.formulas[r.Kind]
	if !ok {
		// Normalization guarantees a known kind; reaching here is a bug
		est.ErrorKind = string(errors.TypeInternal)
		return est
	}

	est.Breakdown = f(c, r, quote)
	total := decimal.Zero
	for _, comp := range est.Breakdown {
		total = total.Add(comp.Cost)
	}
	est.MonthlyCost = decimal.NewNullDecimal(total)
	return est
}

// computeFormula prices an instance running the full month
func (c *Calculator) computeFormula(r plan.Resource, quote pricing.PriceQuote) []Component {
	return []Component{
		{Name: ComponentInstanceHours, Cost: quote.UnitPrice.Mul(decimal.NewFromInt(HoursPerMonth))},
	}
}

// databaseFormula prices the instance hours plus allocated storage at
// the configured GB-month rate.
func (c *Calculator) databaseFormula(r plan.Resource, quote pricing.PriceQuote) []Component {
	gb := decimal.NewFromInt(int64(r.AllocatedGB()))
	return []Component{
		{Name: ComponentInstanceHours, Cost: quote.UnitPrice.Mul(decimal.NewFromInt(HoursPerMonth))},
		{Name: ComponentAllocatedStorage, Cost: gb.Mul(c.storageRate)},
	}
}

// capacityFormula prices allocated capacity at a GB-month rate. Shared
// by object and block storage.
func (c *Calculator) capacityFormula(r plan.Resource, quote pricing.PriceQuote) []Component {
	gb := decimal.NewFromInt(int64(r.AllocatedGB()))
	return []Component{
		{Name: ComponentStorage, Cost: quote.UnitPrice.Mul(gb)},
	}
}

// Total sums the monthly cost of every resolved estimate
func Total(estimates []CostEstimate) decimal.Decimal {
	total := decimal.Zero
	for _, e := range estimates {
		if e.Resolved() {
			total = total.Add(e.MonthlyCost.Decimal)
		}
	}
	return total
}
