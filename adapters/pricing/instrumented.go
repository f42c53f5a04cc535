package pricing

import (
	"context"
	"time"

	corePricing "plancost/core/pricing"
	"plancost/internal/errors"
	"plancost/internal/telemetry"
)

// InstrumentedSource decorates a source with lookup metrics
type InstrumentedSource struct {
	next    corePricing.Source
	metrics *telemetry.LookupMetrics
}

// NewInstrumentedSource wraps next so every lookup is counted and timed
func NewInstrumentedSource(next corePricing.Source, metrics *telemetry.LookupMetrics) *InstrumentedSource {
	return &InstrumentedSource{next: next, metrics: metrics}
}

// Name identifies the underlying source
func (s *InstrumentedSource) Name() string {
	return s.next.Name()
}

// Lookup delegates to the underlying source and records the outcome
func (s *InstrumentedSource) Lookup(ctx context.Context, service, region string, spec map[string]string) (corePricing.Price, error) {
	start := time.Now()
	price, err := s.next.Lookup(ctx, service, region, spec)
	s.metrics.RecordLookup(service, outcomeOf(err), time.Since(start))
	return price, err
}

func outcomeOf(err error) string {
	if err == nil {
		return telemetry.OutcomeSuccess
	}
	switch errors.TypeOf(err) {
	case errors.TypeNotFound:
		return telemetry.OutcomeNotFound
	case errors.TypeRateLimited:
		return telemetry.OutcomeRateLimited
	case errors.TypeAuth:
		return telemetry.OutcomeAuth
	case errors.TypeNetwork:
		return telemetry.OutcomeNetwork
	default:
		return telemetry.OutcomeError
	}
}
