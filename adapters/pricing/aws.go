package pricing

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/aws/smithy-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	corePricing "plancost/core/pricing"
	"plancost/core/determinism"
	"plancost/core/plan"
	"plancost/internal/errors"
	"plancost/internal/logging"
)

// productsAPI is the slice of the AWS Pricing API the source calls
type productsAPI interface {
	GetProducts(ctx context.Context, in *awspricing.GetProductsInput, optFns ...func(*awspricing.Options)) (*awspricing.GetProductsOutput, error)
}

// AWSSource resolves unit prices through the AWS Pricing API
type AWSSource struct {
	client productsAPI
	logger *zap.Logger
}

// NewAWSSource loads the default AWS credential chain, verifies it, and
// returns a live source. The Pricing API is only served from a handful
// of regions, so endpointRegion selects the API endpoint, not the
// region being priced.
func NewAWSSource(ctx context.Context, endpointRegion string) (*AWSSource, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(endpointRegion))
	if err != nil {
		return nil, errors.Wrap(errors.TypeAuth, "failed to load AWS configuration", err)
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, errors.Auth("no usable AWS credentials", "pricing:GetProducts")
	}
	return &AWSSource{
		client: awspricing.NewFromConfig(cfg),
		logger: logging.Named("aws-pricing"),
	}, nil
}

// Name identifies the source
func (s *AWSSource) Name() string {
	return "aws"
}

// Lookup queries GetProducts for the spec and extracts the first
// non-zero on-demand USD rate.
func (s *AWSSource) Lookup(ctx context.Context, service, region string, spec map[string]string) (corePricing.Price, error) {
	code, filters, ok := productQuery(service, region, spec)
	if !ok {
		return corePricing.Price{}, errors.NotFound("service", service)
	}

	out, err := s.client.GetProducts(ctx, &awspricing.GetProductsInput{
		ServiceCode: aws.String(code),
		Filters:     filters,
		MaxResults:  aws.Int32(10),
	})
	if err != nil {
		return corePricing.Price{}, classify(err)
	}
	if len(out.PriceList) == 0 {
		return corePricing.Price{}, errors.NotFound("price", describeSpec(service, region, spec))
	}

	rate, err := firstUSDRate(out.PriceList)
	if err != nil {
		return corePricing.Price{}, err
	}
	if rate.IsZero() {
		return corePricing.Price{}, errors.NotFound("price", describeSpec(service, region, spec))
	}

	s.logger.Debug("resolved live price",
		zap.String("service", service),
		zap.String("region", region),
		zap.String("rate", rate.String()))

	return corePricing.Price{
		Amount:   rate,
		Unit:     unitFor(service),
		Currency: "USD",
	}, nil
}

// productQuery maps an internal service code to the Pricing API service
// code and TERM_MATCH filter set. Block storage is priced under
// AmazonEC2 in the real API.
func productQuery(service, region string, spec map[string]string) (string, []pricingtypes.Filter, bool) {
	switch service {
	case "AmazonEC2":
		return "AmazonEC2", termMatch(map[string]string{
			"instanceType":    spec[plan.AttrInstanceClass],
			"operatingSystem": "Linux",
			"tenancy":         "Shared",
			"preInstalledSw":  "NA",
			"capacitystatus":  "Used",
			"regionCode":      region,
		}), true
	case "AmazonRDS":
		fields := map[string]string{
			"instanceType":     spec[plan.AttrInstanceClass],
			"deploymentOption": "Single-AZ",
			"regionCode":       region,
		}
		if engine := spec[plan.AttrEngine]; engine != "" {
			fields["databaseEngine"] = databaseEngineName(engine)
		}
		return "AmazonRDS", termMatch(fields), true
	case "AmazonS3":
		return "AmazonS3", termMatch(map[string]string{
			"storageClass": spec[plan.AttrStorageClass],
			"regionCode":   region,
		}), true
	case "AmazonEBS":
		return "AmazonEC2", termMatch(map[string]string{
			"productFamily": "Storage",
			"volumeApiName": spec[plan.AttrVolumeType],
			"regionCode":    region,
		}), true
	default:
		return "", nil, false
	}
}

// termMatch builds TERM_MATCH filters in sorted field order so requests
// are reproducible.
func termMatch(fields map[string]string) []pricingtypes.Filter {
	filters := make([]pricingtypes.Filter, 0, len(fields))
	determinism.RangeMapSorted(fields, func(field, value string) bool {
		filters = append(filters, pricingtypes.Filter{
			Type:  pricingtypes.FilterTypeTermMatch,
			Field: aws.String(field),
			Value: aws.String(value),
		})
		return true
	})
	return filters
}

// databaseEngineName maps an engine identifier to the name the Pricing
// API indexes it under.
func databaseEngineName(engine string) string {
	switch engine {
	case "mysql":
		return "MySQL"
	case "postgres":
		return "PostgreSQL"
	case "mariadb":
		return "MariaDB"
	case "oracle-se", "oracle-se1", "oracle-se2", "oracle-ee":
		return "Oracle"
	case "sqlserver-ee", "sqlserver-se", "sqlserver-ex", "sqlserver-web":
		return "SQL Server"
	case "aurora", "aurora-mysql":
		return "Aurora MySQL"
	case "aurora-postgresql":
		return "Aurora PostgreSQL"
	default:
		return engine
	}
}

// priceRecord is the slice of a price list entry the source reads
type priceRecord struct {
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]priceDimension `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

type priceDimension struct {
	Unit         string            `json:"unit"`
	PricePerUnit map[string]string `json:"pricePerUnit"`
}

// firstUSDRate walks the price list in deterministic order and returns
// the first non-zero on-demand USD rate, or zero when every dimension
// is free.
func firstUSDRate(priceList []string) (decimal.Decimal, error) {
	for _, raw := range priceList {
		var rec priceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return decimal.Decimal{}, errors.Wrap(errors.TypeInternal, "malformed price list entry", err)
		}
		for _, termKey := range determinism.SortedKeys(rec.Terms.OnDemand) {
			term := rec.Terms.OnDemand[termKey]
			for _, dimKey := range determinism.SortedKeys(term.PriceDimensions) {
				amount, ok := term.PriceDimensions[dimKey].PricePerUnit["USD"]
				if !ok {
					continue
				}
				rate, err := decimal.NewFromString(amount)
				if err != nil {
					return decimal.Decimal{}, errors.Wrapf(errors.TypeInternal, err, "malformed price %q", amount)
				}
				if !rate.IsZero() {
					return rate, nil
				}
			}
		}
	}
	return decimal.Decimal{}, nil
}

func unitFor(service string) corePricing.Unit {
	switch service {
	case "AmazonS3", "AmazonEBS":
		return corePricing.UnitPerGBMonth
	default:
		return corePricing.UnitPerHour
	}
}

func describeSpec(service, region string, spec map[string]string) string {
	parts := []string{service, region}
	determinism.RangeMapSorted(spec, func(_, v string) bool {
		parts = append(parts, v)
		return true
	})
	return strings.Join(parts, " ")
}

// classify maps SDK failures onto the error taxonomy. Cancellation
// passes through untouched; a per-call deadline reads as a network
// timeout so the retry policy applies.
func classify(err error) error {
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Network("pricing API request timed out", err)
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "Throttling", "TooManyRequestsException", "RequestLimitExceeded":
			return errors.RateLimited("pricing API throttled the request")
		case "AccessDeniedException", "UnauthorizedException", "UnrecognizedClientException",
			"InvalidSignatureException", "ExpiredTokenException", "ExpiredToken":
			return errors.Auth("pricing API rejected the credentials", "pricing:GetProducts")
		}
	}
	return errors.Network("pricing API request failed", err)
}
