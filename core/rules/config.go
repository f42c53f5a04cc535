package rules

import (
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/shopspring/decimal"

	"plancost/internal/errors"
)

// Config holds the rule thresholds. Zero values select the defaults,
// so a partially populated config is always usable.
type Config struct {
	// UtilizationThreshold is the utilization percentage below which
	// right-sizing fires.
	UtilizationThreshold int

	// ReservedDiscount is the fraction taken off instance hours by
	// reserved capacity.
	ReservedDiscount decimal.Decimal

	// ScheduleSavings is the fraction of instance hours saved by
	// scheduling capacity around intermittent usage.
	ScheduleSavings decimal.Decimal

	// Impact bands and the discard threshold, in USD per month
	HighImpact   decimal.Decimal
	MediumImpact decimal.Decimal
	MinSavings   decimal.Decimal

	// StorageRates maps a storage class or volume type to its USD per
	// GB-month rate, used to price suggested storage transitions.
	StorageRates map[string]decimal.Decimal

	// Disabled switches off whole rule categories
	Disabled map[Category]bool
}

// DefaultConfig returns the built-in thresholds
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// defaultStorageRates prices the storage transitions the built-in
// rules can suggest (us-east-1 list rates).
func defaultStorageRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"Standard":    decimal.RequireFromString("0.023"),
		"Standard-IA": decimal.RequireFromString("0.0125"),
		"Glacier":     decimal.RequireFromString("0.004"),
		"gp2":         decimal.RequireFromString("0.10"),
		"gp3":         decimal.RequireFromString("0.08"),
	}
}

// withDefaults fills unset fields with the built-in thresholds
func (c Config) withDefaults() Config {
	if c.UtilizationThreshold == 0 {
		c.UtilizationThreshold = 40
	}
	if c.ReservedDiscount.IsZero() {
		c.ReservedDiscount = decimal.RequireFromString("0.40")
	}
	if c.ScheduleSavings.IsZero() {
		c.ScheduleSavings = decimal.RequireFromString("0.45")
	}
	if c.HighImpact.IsZero() {
		c.HighImpact = decimal.NewFromInt(50)
	}
	if c.MediumImpact.IsZero() {
		c.MediumImpact = decimal.NewFromInt(20)
	}
	if c.MinSavings.IsZero() {
		c.MinSavings = decimal.NewFromInt(1)
	}
	if c.StorageRates == nil {
		c.StorageRates = defaultStorageRates()
	}
	if c.Disabled == nil {
		c.Disabled = make(map[Category]bool)
	}
	return c
}

// storageRate looks up the GB-month rate for a class or volume type
func (c Config) storageRate(class string) (decimal.Decimal, bool) {
	rate, ok := c.StorageRates[class]
	return rate, ok
}

// rulesFile is the HCL schema for a rule-thresholds file:
//
//	thresholds {
//	  high_impact   = 100
//	  medium_impact = 40
//	  min_savings   = 2
//	}
//
//	rule "instance_type" {
//	  utilization_threshold = 30
//	}
//
//	rule "purchasing" {
//	  reserved_discount = 0.35
//	}
type rulesFile struct {
	Thresholds *thresholdsBlock `hcl:"thresholds,block"`
	Rules      []ruleBlock      `hcl:"rule,block"`
}

type thresholdsBlock struct {
	HighImpact   *float64 `hcl:"high_impact,optional"`
	MediumImpact *float64 `hcl:"medium_impact,optional"`
	MinSavings   *float64 `hcl:"min_savings,optional"`
}

type ruleBlock struct {
	Name                 string   `hcl:"name,label"`
	Enabled              *bool    `hcl:"enabled,optional"`
	UtilizationThreshold *int     `hcl:"utilization_threshold,optional"`
	ReservedDiscount     *float64 `hcl:"reserved_discount,optional"`
	ScheduleSavings      *float64 `hcl:"schedule_savings,optional"`
}

// knownCategories guards rule block labels in threshold files
var knownCategories = map[string]Category{
	string(CategoryInstanceType): CategoryInstanceType,
	string(CategoryPurchasing):   CategoryPurchasing,
	string(CategoryStorageClass): CategoryStorageClass,
	string(CategoryLifecycle):    CategoryLifecycle,
	string(CategoryScaling):      CategoryScaling,
}

// LoadConfig reads an HCL rule-thresholds file and overlays it on the
// defaults. Unknown rule names and malformed HCL are configuration
// errors.
func LoadConfig(path string) (Config, error) {
	var file rulesFile
	if err := hclsimple.DecodeFile(path, nil, &file); err != nil {
		return Config{}, errors.Config("failed to parse rules file "+path, err)
	}

	cfg := DefaultConfig()
	if t := file.Thresholds; t != nil {
		if t.HighImpact != nil {
			cfg.HighImpact = decimal.NewFromFloat(*t.HighImpact)
		}
		if t.MediumImpact != nil {
			cfg.MediumImpact = decimal.NewFromFloat(*t.MediumImpact)
		}
		if t.MinSavings != nil {
			cfg.MinSavings = decimal.NewFromFloat(*t.MinSavings)
		}
	}

	for _, block := range file.Rules {
		cat, ok := knownCategories[block.Name]
		if !ok {
			return Config{}, errors.Newf(errors.TypeConfig, "unknown rule %q in %s", block.Name, path)
		}
		if block.Enabled != nil && !*block.Enabled {
			cfg.Disabled[cat] = true
		}
		if block.UtilizationThreshold != nil {
			cfg.UtilizationThreshold = *block.UtilizationThreshold
		}
		if block.ReservedDiscount != nil {
			cfg.ReservedDiscount = decimal.NewFromFloat(*block.ReservedDiscount)
		}
		if block.ScheduleSavings != nil {
			cfg.ScheduleSavings = decimal.NewFromFloat(*block.ScheduleSavings)
		}
	}
	return cfg, nil
}
