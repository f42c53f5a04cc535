// Package telemetry exposes Prometheus metrics for pricing lookups and
// estimation runs, plus the /metrics listener used in live mode.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"plancost/internal/logging"
)

// namespace prefixes every metric name
const namespace = "plancost"

// Collector owns the registry and the per-concern metric groups
type Collector struct {
	registry *prometheus.Registry

	// Lookups tracks pricing source traffic
	Lookups *LookupMetrics

	// Runs tracks estimation run outcomes
	Runs *RunMetrics
}

// NewCollector creates a collector backed by the given registry, or a
// fresh private registry when nil.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Collector{
		registry: registry,
		Lookups:  newLookupMetrics(registry),
		Runs:     newRunMetrics(registry),
	}
}

// Handler returns the Prometheus exposition handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Serve runs a /metrics listener until the context is cancelled. The
// listener shuts down gracefully; startup failures are returned.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log := logging.Named("telemetry")
	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listener started", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics listener shutdown failed", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
