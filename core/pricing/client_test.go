package pricing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"plancost/core/plan"
	"plancost/internal/errors"
)

// fakeSource is a scriptable Source that counts outbound calls
type fakeSource struct {
	calls atomic.Int64
	delay time.Duration
	fn    func(service, region string, spec map[string]string) (Price, error)
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Lookup(ctx context.Context, service, region string, spec map[string]string) (Price, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return Price{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.fn(service, region, spec)
}

func priceOf(amount string) Price {
	return Price{Amount: decimal.RequireFromString(amount), Unit: UnitPerHour, Currency: "USD"}
}

func computeResource(id, class string) plan.Resource {
	return plan.Resource{
		ID:     id,
		Kind:   plan.KindCompute,
		Region: "us-east-1",
		Attributes: map[string]string{
			plan.AttrInstanceClass: class,
		},
	}
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Factor:      2.0,
		MaxDelay:    5 * time.Millisecond,
	}
}

// TestResolveSingleFlight proves N concurrent resolves for the same
// cache key trigger exactly one outbound lookup.
func TestResolveSingleFlight(t *testing.T) {
	source := &fakeSource{
		delay: 50 * time.Millisecond,
		fn: func(service, region string, spec map[string]string) (Price, error) {
			return priceOf("0.1644"), nil
		},
	}
	client := NewClient(Options{
		Source:       source,
		CacheEnabled: true,
		Retry:        fastRetry(3),
	})

	resource := computeResource("i-1", "t3.xlarge")
	const waiters = 10

	var wg sync.WaitGroup
	quotes := make([]PriceQuote, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			quotes[n], errs[n] = client.Resolve(context.Background(), resource)
		}(i)
	}
	wg.Wait()

	if got := source.calls.Load(); got != 1 {
		t.Fatalf("Expected exactly 1 outbound lookup, got %d", got)
	}
	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("Waiter %d failed: %v", i, errs[i])
		}
		if !quotes[i].UnitPrice.Equal(decimal.RequireFromString("0.1644")) {
			t.Errorf("Waiter %d got price %s", i, quotes[i].UnitPrice)
		}
	}
}

// TestResolveCacheHit proves a second resolve is served from cache
func TestResolveCacheHit(t *testing.T) {
	source := &fakeSource{fn: func(service, region string, spec map[string]string) (Price, error) {
		return priceOf("0.0832"), nil
	}}
	client := NewClient(Options{Source: source, CacheEnabled: true, Retry: fastRetry(3)})

	resource := computeResource("i-1", "t3.large")
	if _, err := client.Resolve(context.Background(), resource); err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}
	if _, err := client.Resolve(context.Background(), resource); err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}

	if got := source.calls.Load(); got != 1 {
		t.Errorf("Expected 1 outbound lookup, got %d", got)
	}
	if stats := client.Stats(); stats.CacheHits != 1 {
		t.Errorf("Expected 1 cache hit, got %d", stats.CacheHits)
	}
}

// TestResolveRetryBound proves a persistently failing lookup performs
// exactly MaxAttempts attempts before PRICING_UNAVAILABLE.
func TestResolveRetryBound(t *testing.T) {
	source := &fakeSource{fn: func(service, region string, spec map[string]string) (Price, error) {
		return Price{}, errors.RateLimited("throttled")
	}}
	client := NewClient(Options{
		Source:       source,
		CacheEnabled: true,
		Retry:        fastRetry(3),
		Breaker:      BreakerPolicy{FailureThreshold: 100, Cooldown: time.Minute},
	})

	_, err := client.Resolve(context.Background(), computeResource("i-1", "t3.micro"))
	if err == nil {
		t.Fatal("Expected failure")
	}
	if !errors.IsType(err, errors.TypePricingUnavailable) {
		t.Fatalf("Expected PRICING_UNAVAILABLE, got %v", err)
	}
	if got := source.calls.Load(); got != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", got)
	}
}

// TestResolveNotFoundDoesNotRetry proves a NOT_FOUND answer maps to
// PRICING_UNAVAILABLE without consuming retry attempts.
func TestResolveNotFoundDoesNotRetry(t *testing.T) {
	source := &fakeSource{fn: func(service, region string, spec map[string]string) (Price, error) {
		return Price{}, errors.NotFound("price", "t9.mega")
	}}
	client := NewClient(Options{Source: source, CacheEnabled: true, Retry: fastRetry(3)})

	_, err := client.Resolve(context.Background(), computeResource("i-1", "t9.mega"))
	if !errors.IsType(err, errors.TypePricingUnavailable) {
		t.Fatalf("Expected PRICING_UNAVAILABLE, got %v", err)
	}
	if got := source.calls.Load(); got != 1 {
		t.Errorf("Expected a single attempt for NOT_FOUND, got %d", got)
	}
}

// TestResolveAuthFailsFast proves auth errors surface unchanged and
// unretried.
func TestResolveAuthFailsFast(t *testing.T) {
	source := &fakeSource{fn: func(service, region string, spec map[string]string) (Price, error) {
		return Price{}, errors.Auth("credentials rejected", "pricing:GetProducts")
	}}
	client := NewClient(Options{Source: source, CacheEnabled: true, Retry: fastRetry(3)})

	_, err := client.Resolve(context.Background(), computeResource("i-1", "t3.micro"))
	if !errors.IsType(err, errors.TypeAuth) {
		t.Fatalf("Expected AUTH_ERROR, got %v", err)
	}
	if got := source.calls.Load(); got != 1 {
		t.Errorf("Expected a single attempt for AUTH_ERROR, got %d", got)
	}
}

// TestResolveDegradedMode proves offline mode serves an expired cache
// entry tagged Cached without any network call.
func TestResolveDegradedMode(t *testing.T) {
	source := &fakeSource{fn: func(service, region string, spec map[string]string) (Price, error) {
		t.Error("Outbound lookup attempted in offline mode")
		return priceOf("0.10"), nil
	}}
	client := NewClient(Options{
		Source:       source,
		CacheEnabled: true,
		CachePolicy:  CachePolicy{TTL: time.Hour},
		Offline:      true,
		Retry:        fastRetry(3),
	})

	resource := computeResource("i-1", "t3.xlarge")
	client.Prime(PriceQuote{
		Key:       KeyFor(resource),
		UnitPrice: decimal.RequireFromString("0.1644"),
		Unit:      UnitPerHour,
		Currency:  "USD",
		Source:    SourceLive,
	})

	// Expire the entry
	client.cache.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	quote, err := client.Resolve(context.Background(), resource)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.Source != SourceCached {
		t.Errorf("Expected source %s, got %s", SourceCached, quote.Source)
	}
	if got := source.calls.Load(); got != 0 {
		t.Errorf("Expected no network calls, got %d", got)
	}
}

// TestResolveOfflineMiss proves offline mode fails cleanly when the
// cache has nothing to serve.
func TestResolveOfflineMiss(t *testing.T) {
	source := &fakeSource{fn: func(service, region string, spec map[string]string) (Price, error) {
		return priceOf("0.10"), nil
	}}
	client := NewClient(Options{Source: source, CacheEnabled: true, Offline: true, Retry: fastRetry(3)})

	_, err := client.Resolve(context.Background(), computeResource("i-1", "t3.micro"))
	if !errors.IsType(err, errors.TypePricingUnavailable) {
		t.Fatalf("Expected PRICING_UNAVAILABLE, got %v", err)
	}
	if got := source.calls.Load(); got != 0 {
		t.Errorf("Expected no network calls, got %d", got)
	}
}

// TestResolveCircuitOpenFailsFast proves an open circuit rejects
// lookups for other keys without dialing out.
func TestResolveCircuitOpenFailsFast(t *testing.T) {
	source := &fakeSource{fn: func(service, region string, spec map[string]string) (Price, error) {
		return Price{}, errors.Network("connection refused", nil)
	}}
	client := NewClient(Options{
		Source:       source,
		CacheEnabled: true,
		Retry:        fastRetry(3),
		Breaker:      BreakerPolicy{FailureThreshold: 1, Cooldown: time.Hour},
	})

	_, err := client.Resolve(context.Background(), computeResource("i-1", "t3.micro"))
	if !errors.IsType(err, errors.TypePricingUnavailable) {
		t.Fatalf("Expected PRICING_UNAVAILABLE, got %v", err)
	}
	callsAfterFirst := source.calls.Load()

	_, err = client.Resolve(context.Background(), computeResource("i-2", "m5.large"))
	if !errors.IsType(err, errors.TypeCircuitOpen) {
		t.Fatalf("Expected CIRCUIT_OPEN, got %v", err)
	}
	if got := source.calls.Load(); got != callsAfterFirst {
		t.Errorf("Open circuit must not dial out: %d -> %d calls", callsAfterFirst, got)
	}
}

// TestResolveBatchCoversEveryResource proves batch results include an
// entry per resource, resolved or failed, and that shared specs
// collapse to one lookup.
func TestResolveBatchCoversEveryResource(t *testing.T) {
	source := &fakeSource{
		delay: 10 * time.Millisecond,
		fn: func(service, region string, spec map[string]string) (Price, error) {
			if spec[plan.AttrInstanceClass] == "t9.mega" {
				return Price{}, errors.NotFound("price", "t9.mega")
			}
			return priceOf("0.1644"), nil
		},
	}
	client := NewClient(Options{Source: source, CacheEnabled: true, Retry: fastRetry(3), MaxInFlight: 4})

	resources := []plan.Resource{
		computeResource("a", "t3.xlarge"),
		computeResource("b", "t3.xlarge"), // same spec as a
		computeResource("c", "t9.mega"),
	}

	results := client.ResolveBatch(context.Background(), resources)
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results["a"].Err != nil || results["b"].Err != nil {
		t.Errorf("Expected a and b to resolve: %v, %v", results["a"].Err, results["b"].Err)
	}
	if !errors.IsType(results["c"].Err, errors.TypePricingUnavailable) {
		t.Errorf("Expected c to fail with PRICING_UNAVAILABLE, got %v", results["c"].Err)
	}
	if got := source.calls.Load(); got != 2 {
		t.Errorf("Expected 2 outbound lookups (one per distinct spec), got %d", got)
	}
}

// TestResolveBatchCancellation proves cancellation returns promptly
// with every resource carrying an error instead of hanging on
// in-flight lookups.
func TestResolveBatchCancellation(t *testing.T) {
	source := &fakeSource{
		delay: time.Second,
		fn: func(service, region string, spec map[string]string) (Price, error) {
			return priceOf("0.10"), nil
		},
	}
	client := NewClient(Options{Source: source, CacheEnabled: true, Retry: fastRetry(3), MaxInFlight: 2})

	resources := []plan.Resource{
		computeResource("a", "c5.large"),
		computeResource("b", "c5.xlarge"),
		computeResource("c", "c5.2xlarge"),
		computeResource("d", "c5.4xlarge"),
		computeResource("e", "c5.9xlarge"),
		computeResource("f", "c5.12xlarge"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := client.ResolveBatch(ctx, resources)
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Errorf("Batch did not abandon in-flight lookups: took %v", elapsed)
	}
	if len(results) != len(resources) {
		t.Fatalf("Expected %d results, got %d", len(resources), len(results))
	}
	for _, r := range resources {
		if results[r.ID].Err == nil {
			t.Errorf("Resource %s should carry an error after cancellation", r.ID)
		}
	}
}
