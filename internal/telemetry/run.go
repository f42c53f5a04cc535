package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcome label values
const (
	RunSuccess = "success"
	RunFailed  = "failed"
)

// RunMetrics tracks estimation run outcomes and the latest report.
//
// Metrics:
//   - plancost_run_runs_total: completed runs by outcome
//   - plancost_run_duration_seconds: run wall-clock duration
//   - plancost_run_last_success_timestamp_seconds: unix time of the last success
//   - plancost_run_resources: resources in the latest report
//   - plancost_run_unresolved_resources: null-cost resources in the latest report
//   - plancost_run_monthly_cost: latest projected monthly cost total
//   - plancost_run_recommendations: recommendations in the latest report
//   - plancost_run_projected_savings: total savings across recommendations
type RunMetrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	lastSuccess prometheus.Gauge

	resources       prometheus.Gauge
	unresolved      prometheus.Gauge
	monthlyCost     prometheus.Gauge
	recommendations prometheus.Gauge
	savings         prometheus.Gauge
}

func newRunMetrics(registry *prometheus.Registry) *RunMetrics {
	m := &RunMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "runs_total",
				Help:      "Completed estimation runs by outcome",
			},
			[]string{"outcome"},
		),

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Estimation run wall-clock duration",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 15.0, 30.0, 60.0, 120.0},
		}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful run",
		}),

		resources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "resources",
			Help:      "Resources in the latest report",
		}),

		unresolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "unresolved_resources",
			Help:      "Resources with no resolvable price in the latest report",
		}),

		monthlyCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "monthly_cost",
			Help:      "Latest projected monthly cost total in USD",
		}),

		recommendations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "recommendations",
			Help:      "Recommendations in the latest report",
		}),

		savings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "projected_savings",
			Help:      "Total projected monthly savings in USD across recommendations",
		}),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.lastSuccess,
		m.resources,
		m.unresolved,
		m.monthlyCost,
		m.recommendations,
		m.savings,
	)

	return m
}

// RecordRun records one completed run
func (m *RunMetrics) RecordRun(outcome string, duration time.Duration) {
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
	if outcome == RunSuccess {
		m.lastSuccess.SetToCurrentTime()
	}
}

// UpdateReport publishes the latest report's headline figures
func (m *RunMetrics) UpdateReport(resources, unresolved, recommendations int, monthlyCost, savings float64) {
	m.resources.Set(float64(resources))
	m.unresolved.Set(float64(unresolved))
	m.recommendations.Set(float64(recommendations))
	m.monthlyCost.Set(monthlyCost)
	m.savings.Set(savings)
}
