package pricing

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	corePricing "plancost/core/pricing"
	"plancost/internal/errors"
	"plancost/internal/telemetry"
)

type stubSource struct {
	err error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Lookup(context.Context, string, string, map[string]string) (corePricing.Price, error) {
	if s.err != nil {
		return corePricing.Price{}, s.err
	}
	return corePricing.Price{Unit: corePricing.UnitPerHour, Currency: "USD"}, nil
}

func TestInstrumentedSourceRecordsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := telemetry.NewCollector(registry)
	stub := &stubSource{}
	source := NewInstrumentedSource(stub, collector.Lookups)

	if source.Name() != "stub" {
		t.Errorf("Name() = %s, want stub", source.Name())
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := source.Lookup(ctx, "AmazonEC2", "us-east-1", nil); err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
	}
	stub.err = errors.NotFound("instance class", "t9.mega")
	_, _ = source.Lookup(ctx, "AmazonEC2", "us-east-1", nil)
	stub.err = errors.Auth("rejected", "pricing:GetProducts")
	_, _ = source.Lookup(ctx, "AmazonEC2", "us-east-1", nil)

	expected := `
# HELP plancost_pricing_lookups_total Total outbound pricing lookups
# TYPE plancost_pricing_lookups_total counter
plancost_pricing_lookups_total{outcome="auth",service="AmazonEC2"} 1
plancost_pricing_lookups_total{outcome="not_found",service="AmazonEC2"} 1
plancost_pricing_lookups_total{outcome="success",service="AmazonEC2"} 2
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "plancost_pricing_lookups_total"); err != nil {
		t.Fatal(err)
	}
}
