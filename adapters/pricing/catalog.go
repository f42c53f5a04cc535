// Package pricing provides the price sources behind the core pricing
// client: a built-in on-demand catalog and a live AWS Pricing API
// source, plus the telemetry decorator shared by both.
package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	corePricing "plancost/core/pricing"
	"plancost/core/plan"
	"plancost/internal/errors"
)

// On-demand list rates, us-east-1 baseline. Other regions serve the
// same baseline; live lookups are region-exact.
var (
	computeRates = map[string]string{
		"t3.micro":   "0.0104",
		"t3.small":   "0.0208",
		"t3.medium":  "0.0416",
		"t3.large":   "0.0832",
		"t3.xlarge":  "0.1644",
		"t3.2xlarge": "0.3328",
		"m5.large":   "0.096",
		"m5.xlarge":  "0.192",
		"m5.2xlarge": "0.384",
		"m5.4xlarge": "0.768",
		"c5.large":   "0.085",
		"c5.xlarge":  "0.17",
		"c5.2xlarge": "0.34",
		"r5.large":   "0.126",
		"r5.xlarge":  "0.252",
		"r5.2xlarge": "0.504",
	}

	databaseRates = map[string]string{
		"db.t3.micro":   "0.017",
		"db.t3.small":   "0.034",
		"db.t3.medium":  "0.068",
		"db.t3.large":   "0.136",
		"db.m5.large":   "0.171",
		"db.m5.xlarge":  "0.342",
		"db.m5.2xlarge": "0.684",
		"db.r5.large":   "0.24",
		"db.r5.xlarge":  "0.48",
		"db.r5.2xlarge": "0.96",
	}

	objectStorageRates = map[string]string{
		"Standard":             "0.023",
		"Standard-IA":          "0.0125",
		"One Zone-IA":          "0.01",
		"Glacier":              "0.004",
		"Glacier Deep Archive": "0.00099",
	}

	blockStorageRates = map[string]string{
		"gp3":      "0.08",
		"gp2":      "0.10",
		"io1":      "0.125",
		"io2":      "0.125",
		"st1":      "0.045",
		"sc1":      "0.015",
		"standard": "0.05",
	}
)

// CatalogSource serves unit prices from the built-in rate catalog.
// Lookups never leave the process, so it backs default runs and tests
// without AWS credentials.
type CatalogSource struct{}

// NewCatalogSource creates the built-in catalog source
func NewCatalogSource() *CatalogSource {
	return &CatalogSource{}
}

// Name identifies the source
func (s *CatalogSource) Name() string {
	return "catalog"
}

// Lookup resolves a unit price from the catalog tables. Specs the
// catalog does not carry return NOT_FOUND rather than a guessed rate.
func (s *CatalogSource) Lookup(ctx context.Context, service, region string, spec map[string]string) (corePricing.Price, error) {
	switch service {
	case "AmazonEC2":
		return hourly(computeRates, "instance class", spec[plan.AttrInstanceClass])
	case "AmazonRDS":
		return hourly(databaseRates, "instance class", spec[plan.AttrInstanceClass])
	case "AmazonS3":
		return perGBMonth(objectStorageRates, "storage class", spec[plan.AttrStorageClass])
	case "AmazonEBS":
		return perGBMonth(blockStorageRates, "volume type", spec[plan.AttrVolumeType])
	default:
		return corePricing.Price{}, errors.NotFound("service", service)
	}
}

func hourly(rates map[string]string, what, key string) (corePricing.Price, error) {
	raw, ok := rates[key]
	if !ok {
		return corePricing.Price{}, errors.NotFound(what, key)
	}
	return corePricing.Price{
		Amount:   decimal.RequireFromString(raw),
		Unit:     corePricing.UnitPerHour,
		Currency: "USD",
	}, nil
}

func perGBMonth(rates map[string]string, what, key string) (corePricing.Price, error) {
	raw, ok := rates[key]
	if !ok {
		return corePricing.Price{}, errors.NotFound(what, key)
	}
	return corePricing.Price{
		Amount:   decimal.RequireFromString(raw),
		Unit:     corePricing.UnitPerGBMonth,
		Currency: "USD",
	}, nil
}
