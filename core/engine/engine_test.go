package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"plancost/core/plan"
	"plancost/core/pricing"
	"plancost/internal/errors"
)

const testPlan = `{
  "format_version": "1.0",
  "resources": [
    {"id": "aws_instance.web", "kind": "compute", "region": "us-east-1",
     "attributes": {"instance_class": "t3.xlarge", "usage_pattern": "sustained"}},
    {"id": "aws_instance.exotic", "kind": "compute", "region": "us-east-1",
     "attributes": {"instance_class": "t9.mega"}},
    {"id": "aws_s3_bucket.logs", "kind": "object_storage", "region": "us-east-1",
     "attributes": {"storage_class": "Standard", "allocated_gb": "500"}}
  ]
}`

type stubSource struct {
	prices map[string]string
	err    error
	calls  atomic.Int64
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Lookup(_ context.Context, service, _ string, spec map[string]string) (pricing.Price, error) {
	s.calls.Add(1)
	if s.err != nil {
		return pricing.Price{}, s.err
	}
	key := spec[plan.AttrInstanceClass]
	if key == "" {
		key = spec[plan.AttrStorageClass]
	}
	rate, ok := s.prices[key]
	if !ok {
		return pricing.Price{}, errors.NotFound("price", key)
	}
	unit := pricing.UnitPerHour
	if service == "AmazonS3" || service == "AmazonEBS" {
		unit = pricing.UnitPerGBMonth
	}
	return pricing.Price{
		Amount:   decimal.RequireFromString(rate),
		Unit:     unit,
		Currency: "USD",
	}, nil
}

func defaultStubPrices() map[string]string {
	return map[string]string{
		"t3.xlarge": "0.1644",
		"Standard":  "0.023",
	}
}

func writePlan(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestEngine(opts Options, source pricing.Source) *Engine {
	client := pricing.NewClient(pricing.Options{
		Source:       source,
		CacheEnabled: true,
		Retry:        pricing.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, Factor: 2, MaxDelay: time.Millisecond},
		Breaker:      pricing.BreakerPolicy{FailureThreshold: 100},
	})
	return New(opts, Deps{Client: client})
}

func TestRunBasicEstimate(t *testing.T) {
	source := &stubSource{prices: defaultStubPrices()}
	eng := newTestEngine(Options{PlanPath: writePlan(t, testPlan)}, source)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(rep.Estimates) != 3 {
		t.Fatalf("got %d estimates, want 3 (every input resource reported)", len(rep.Estimates))
	}
	for i, want := range []string{"aws_instance.web", "aws_instance.exotic", "aws_s3_bucket.logs"} {
		if rep.Estimates[i].ResourceID != want {
			t.Errorf("estimates[%d] = %s, want %s (input order)", i, rep.Estimates[i].ResourceID, want)
		}
	}

	web := rep.Estimates[0]
	if !web.Resolved() {
		t.Fatal("web estimate unresolved")
	}
	if want := decimal.RequireFromString("120.01"); !web.MonthlyCost.Decimal.Equal(want) {
		t.Errorf("web monthly cost = %s, want %s", web.MonthlyCost.Decimal, want)
	}

	exotic := rep.Estimates[1]
	if exotic.Resolved() {
		t.Error("exotic estimate resolved, want null cost")
	}
	if exotic.ErrorKind != string(errors.TypePricingUnavailable) {
		t.Errorf("exotic error kind = %s, want %s", exotic.ErrorKind, errors.TypePricingUnavailable)
	}

	if want := decimal.RequireFromString("131.51"); !rep.Total.Equal(want) {
		t.Errorf("total = %s, want %s (unresolved excluded)", rep.Total, want)
	}
	if len(rep.Recommendations) != 0 {
		t.Errorf("got %d recommendations without --optimize, want 0", len(rep.Recommendations))
	}
	if rep.RunID == "" {
		t.Error("report missing run id")
	}
}

func TestRunOptimize(t *testing.T) {
	source := &stubSource{prices: defaultStubPrices()}
	eng := newTestEngine(Options{PlanPath: writePlan(t, testPlan), Optimize: true}, source)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(rep.Recommendations) != 1 {
		t.Fatalf("got %d recommendations, want 1 (sustained usage → purchasing)", len(rep.Recommendations))
	}
	rec := rep.Recommendations[0]
	if rec.ResourceID != "aws_instance.web" {
		t.Errorf("recommendation resource = %s, want aws_instance.web", rec.ResourceID)
	}
	// 40% off the 120.012 instance component, rounded at the boundary
	if want := decimal.RequireFromString("48"); !rec.Savings.Equal(want) {
		t.Errorf("savings = %s, want %s", rec.Savings, want)
	}
}

func TestRunServiceFilter(t *testing.T) {
	source := &stubSource{prices: defaultStubPrices()}
	eng := newTestEngine(Options{PlanPath: writePlan(t, testPlan), Service: plan.KindObjectStorage}, source)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rep.Estimates) != 1 || rep.Estimates[0].ResourceID != "aws_s3_bucket.logs" {
		t.Fatalf("estimates = %+v, want only the object_storage resource", rep.Estimates)
	}
	if want := decimal.RequireFromString("11.5"); !rep.Total.Equal(want) {
		t.Errorf("total = %s, want %s", rep.Total, want)
	}
	if got := source.calls.Load(); got != 1 {
		t.Errorf("outbound lookups = %d, want 1", got)
	}
}

func TestRunMalformedPlan(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid json", `{"resources": [`},
		{"missing region", `{"resources": [{"id": "a", "kind": "compute", "attributes": {"instance_class": "t3.micro"}}]}`},
		{"duplicate id", `{"resources": [
			{"id": "a", "kind": "compute", "region": "us-east-1", "attributes": {"instance_class": "t3.micro"}},
			{"id": "a", "kind": "compute", "region": "us-east-1", "attributes": {"instance_class": "t3.micro"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(Options{PlanPath: writePlan(t, tt.doc)}, &stubSource{})
			_, err := eng.Run(context.Background())
			if !errors.IsType(err, errors.TypeMalformedPlan) {
				t.Fatalf("Run() error = %v, want MALFORMED_PLAN", err)
			}
		})
	}
}

func TestRunMissingPlanFile(t *testing.T) {
	eng := newTestEngine(Options{PlanPath: filepath.Join(t.TempDir(), "absent.json")}, &stubSource{})
	_, err := eng.Run(context.Background())
	if !errors.IsType(err, errors.TypeMalformedPlan) {
		t.Fatalf("Run() error = %v, want MALFORMED_PLAN", err)
	}
}

func TestRunAuthIsFatal(t *testing.T) {
	source := &stubSource{err: errors.Auth("credentials rejected", "pricing:GetProducts")}
	eng := newTestEngine(Options{PlanPath: writePlan(t, testPlan)}, source)

	rep, err := eng.Run(context.Background())
	if !errors.IsType(err, errors.TypeAuth) {
		t.Fatalf("Run() error = %v, want AUTH_ERROR", err)
	}
	if rep != nil {
		t.Error("Run() returned a report alongside a fatal error")
	}
}

func TestRunAllLookupsFailedIsFatal(t *testing.T) {
	source := &stubSource{err: errors.Network("connection refused", nil)}
	eng := newTestEngine(Options{PlanPath: writePlan(t, testPlan)}, source)

	_, err := eng.Run(context.Background())
	if !errors.IsType(err, errors.TypePricingUnavailable) {
		t.Fatalf("Run() error = %v, want PRICING_UNAVAILABLE", err)
	}
	if !errors.Transient(err) {
		t.Error("whole-run pricing failure should be transient for the monitor")
	}
}

func TestRunPartialFailureSucceeds(t *testing.T) {
	// Only the S3 rate exists; both compute lookups fail
	source := &stubSource{prices: map[string]string{"Standard": "0.023"}}
	eng := newTestEngine(Options{PlanPath: writePlan(t, testPlan)}, source)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want partial failure to succeed", err)
	}
	if rep.Estimates[0].Resolved() || rep.Estimates[1].Resolved() {
		t.Error("compute estimates resolved, want unresolved")
	}
	if !rep.Estimates[2].Resolved() {
		t.Error("object storage estimate unresolved")
	}
	if want := decimal.RequireFromString("11.5"); !rep.Total.Equal(want) {
		t.Errorf("total = %s, want %s", rep.Total, want)
	}
}
