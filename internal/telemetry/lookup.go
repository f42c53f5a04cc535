package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup outcome label values
const (
	OutcomeSuccess     = "success"
	OutcomeNotFound    = "not_found"
	OutcomeRateLimited = "rate_limited"
	OutcomeAuth        = "auth"
	OutcomeNetwork     = "network"
	OutcomeError       = "error"
)

// LookupMetrics tracks pricing source traffic.
//
// Metrics:
//   - plancost_pricing_lookups_total: outbound lookups by service and outcome
//   - plancost_pricing_lookup_duration_seconds: outbound lookup latency
//   - plancost_pricing_retries_total: retry attempts by service
//   - plancost_pricing_resolves_total / cache_hits_total / stale_serves_total:
//     cumulative client counters, mirrored from the client
//   - plancost_pricing_cache_entries: current cache size
//   - plancost_pricing_breaker_state: 0 closed, 1 half-open, 2 open
type LookupMetrics struct {
	lookupsTotal   *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	retriesTotal   *prometheus.CounterVec

	resolves    prometheus.Gauge
	cacheHits   prometheus.Gauge
	staleServes prometheus.Gauge
	cacheSize   prometheus.Gauge

	breakerState prometheus.Gauge
}

func newLookupMetrics(registry *prometheus.Registry) *LookupMetrics {
	m := &LookupMetrics{
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pricing",
				Name:      "lookups_total",
				Help:      "Total outbound pricing lookups",
			},
			[]string{"service", "outcome"},
		),

		lookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pricing",
				Name:      "lookup_duration_seconds",
				Help:      "Outbound pricing lookup latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"service"},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pricing",
				Name:      "retries_total",
				Help:      "Total pricing lookup retry attempts",
			},
			[]string{"service"},
		),

		resolves: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "resolves_total",
			Help:      "Cumulative resolve calls reported by the pricing client",
		}),

		cacheHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "cache_hits_total",
			Help:      "Cumulative cache hits reported by the pricing client",
		}),

		staleServes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "stale_serves_total",
			Help:      "Cumulative expired entries served under the offline policy",
		}),

		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "cache_entries",
			Help:      "Current pricing cache entries",
		}),

		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "breaker_state",
			Help:      "Pricing circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),
	}

	registry.MustRegister(
		m.lookupsTotal,
		m.lookupDuration,
		m.retriesTotal,
		m.resolves,
		m.cacheHits,
		m.staleServes,
		m.cacheSize,
		m.breakerState,
	)

	return m
}

// RecordLookup records one outbound lookup attempt and its latency
func (m *LookupMetrics) RecordLookup(service, outcome string, duration time.Duration) {
	m.lookupsTotal.WithLabelValues(service, outcome).Inc()
	m.lookupDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt
func (m *LookupMetrics) RecordRetry(service string) {
	m.retriesTotal.WithLabelValues(service).Inc()
}

// UpdateClientStats mirrors the pricing client's cumulative counters
// and breaker state into the exported gauges.
func (m *LookupMetrics) UpdateClientStats(resolves, cacheHits, staleServes int64, cacheSize int, breakerState string) {
	m.resolves.Set(float64(resolves))
	m.cacheHits.Set(float64(cacheHits))
	m.staleServes.Set(float64(staleServes))
	m.cacheSize.Set(float64(cacheSize))

	var state float64
	switch breakerState {
	case "half-open":
		state = 1
	case "open":
		state = 2
	}
	m.breakerState.Set(state)
}
