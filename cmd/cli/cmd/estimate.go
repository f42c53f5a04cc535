// Package cmd - estimate-costs command
package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plancost/adapters/history"
	sources "plancost/adapters/pricing"
	"plancost/core/engine"
	"plancost/core/monitor"
	"plancost/core/plan"
	"plancost/core/pricing"
	"plancost/core/report"
	"plancost/core/rules"
	"plancost/internal/config"
	"plancost/internal/errors"
	"plancost/internal/logging"
	"plancost/internal/telemetry"
	"plancost/internal/term"
)

var (
	optimize       bool
	live           bool
	serviceFilter  string
	exportFormat   string
	outputPath     string
	retryAttempts  int
	timeoutSeconds int
	metricsAddr    string
)

// estimateCmd represents the estimate-costs command
var estimateCmd = &cobra.Command{
	Use:   "estimate-costs <plan>",
	Short: "Estimate monthly costs for a plan artifact",
	Long: `Estimate monthly costs for every resource in a plan artifact.

The plan is a JSON document listing compute, managed database, object
storage and block storage resources. Resources whose price cannot be
resolved appear in the report as unresolved entries instead of failing
the whole run.

Examples:
  plancost estimate-costs plan.json
  plancost estimate-costs --optimize plan.json
  plancost estimate-costs --export csv --output report.csv plan.json
  plancost estimate-costs --live --service compute plan.json`,
	Args: cobra.ExactArgs(1),
	RunE: runEstimate,
}

func init() {
	estimateCmd.Flags().BoolVar(&optimize, "optimize", false, "evaluate optimization rules and include recommendations")
	estimateCmd.Flags().BoolVar(&live, "live", false, "re-estimate on an interval until interrupted")
	estimateCmd.Flags().StringVar(&serviceFilter, "service", "", "limit estimation to one resource kind (compute, managed_database, object_storage, block_storage)")
	estimateCmd.Flags().StringVarP(&exportFormat, "export", "e", "", "export format (json, csv, yaml)")
	estimateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the export to a path instead of stdout")
	estimateCmd.Flags().IntVar(&retryAttempts, "retry", 0, "total attempts per pricing lookup (overrides config)")
	estimateCmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "wall-clock budget per run in seconds (overrides config)")
	estimateCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address in live mode (overrides config)")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	planPath := args[0]
	cfg := config.Get()

	var service plan.Kind
	if serviceFilter != "" {
		kind, ok := plan.ParseKind(serviceFilter)
		if !ok {
			return errors.Newf(errors.TypeConfig, "unknown service %q (one of: %s)", serviceFilter, kindList())
		}
		service = kind
	}

	if exportFormat == "" && outputPath != "" {
		exportFormat = cfg.Output.DefaultFormat
	}
	var format report.Format
	if exportFormat != "" {
		parsed, err := report.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		format = parsed
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Telemetry only pays off with a listener, which only live mode runs.
	addr := metricsAddr
	if addr == "" {
		addr = cfg.Monitor.MetricsAddr
	}
	var collector *telemetry.Collector
	if live && addr != "" {
		collector = telemetry.NewCollector(prometheus.NewRegistry())
	}

	client, err := buildClient(ctx, cfg, collector)
	if err != nil {
		return err
	}

	var ruleEngine *rules.Engine
	if optimize && cfg.Rules.Path != "" {
		rulesCfg, err := rules.LoadConfig(cfg.Rules.Path)
		if err != nil {
			return err
		}
		ruleEngine = rules.NewEngine(rulesCfg)
	}

	eng := engine.New(engine.Options{
		PlanPath: planPath,
		Service:  service,
		Optimize: optimize,
	}, engine.Deps{Client: client, Rules: ruleEngine})

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.NewStore(history.DefaultConfig(cfg.History.Path))
		if err != nil {
			logging.Warn("history disabled", zap.Error(err))
			store = nil
		} else {
			defer store.Close()
		}
	}

	if live {
		return runLiveEstimate(ctx, cfg, eng, store, collector, addr, planPath, format)
	}
	return runSingleEstimate(ctx, cfg, eng, store, planPath, format)
}

// runSingleEstimate performs one estimation run and renders or exports
// the report.
func runSingleEstimate(ctx context.Context, cfg *config.Config, eng *engine.Engine, store *history.Store, planPath string, format report.Format) error {
	timeout := time.Duration(cfg.Monitor.RunTimeoutSeconds) * time.Second
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// No spinner when the export goes to stdout.
	var sp *term.Spinner
	if format == "" || outputPath != "" {
		sp = ui.NewSpinner("Estimating costs from " + planPath)
		sp.Start()
	}
	rep, err := eng.Run(ctx)
	if sp != nil {
		sp.Stop(err == nil)
	}
	if err != nil {
		return err
	}

	if store != nil {
		if err := store.Record(ctx, rep, planPath); err != nil {
			logging.Warn("failed to record run history", zap.Error(err))
		}
	}

	if format != "" {
		return writeExport(rep, format)
	}
	printReport(ui, rep, cfg.Output.ShowBreakdown)
	return nil
}

// runLiveEstimate drives the monitor loop until interrupted or a
// terminal failure.
func runLiveEstimate(ctx context.Context, cfg *config.Config, eng *engine.Engine, store *history.Store, collector *telemetry.Collector, addr, planPath string, format report.Format) error {
	if collector != nil {
		go func() {
			if err := collector.Serve(ctx, addr); err != nil {
				logging.Warn("metrics listener failed", zap.Error(err))
			}
		}()
	}

	if store != nil && cfg.History.PruneSchedule != "" {
		pruner := history.NewPruner(store, history.RetentionPolicy{
			MaxAgeDays: cfg.History.RetentionDays,
			Schedule:   cfg.History.PruneSchedule,
		})
		if err := pruner.Start(ctx); err != nil {
			return err
		}
		defer pruner.Stop()
	}

	timeout := time.Duration(cfg.Monitor.RunTimeoutSeconds) * time.Second
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}

	deps := monitor.Deps{
		Runner:  eng,
		Metrics: collector,
		OnPublish: func(rep *report.CostReport) {
			if format != "" && outputPath != "" {
				if err := writeExport(rep, format); err != nil {
					logging.Warn("export failed", zap.Error(err))
				}
				return
			}
			ui.Header("Run " + rep.GeneratedAt.Local().Format("15:04:05"))
			printReport(ui, rep, cfg.Output.ShowBreakdown)
		},
	}
	if store != nil {
		deps.History = store
	}

	mon := monitor.New(monitor.Options{
		PlanPath:   planPath,
		Interval:   time.Duration(cfg.Monitor.IntervalSeconds) * time.Second,
		RunTimeout: timeout,
		Backoff:    pricing.RetryPolicy{MaxAttempts: cfg.Monitor.MaxAttempts},
		Watch:      cfg.Monitor.WatchPlan,
	}, deps)

	ui.Println("Live estimation every %ds (Ctrl-C to stop)", cfg.Monitor.IntervalSeconds)
	return mon.Start(ctx)
}

// buildClient assembles the pricing client from configuration and flag
// overrides.
func buildClient(ctx context.Context, cfg *config.Config, collector *telemetry.Collector) (*pricing.Client, error) {
	var source pricing.Source
	switch cfg.Pricing.Source {
	case "", "catalog":
		source = sources.NewCatalogSource()
	case "aws":
		awsSource, err := sources.NewAWSSource(ctx, cfg.Pricing.DefaultRegion)
		if err != nil {
			return nil, err
		}
		source = awsSource
	default:
		return nil, errors.Newf(errors.TypeConfig, "unknown pricing source %q (catalog, aws)", cfg.Pricing.Source)
	}

	retry := pricing.RetryPolicy{
		MaxAttempts: cfg.Pricing.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Pricing.Retry.BaseDelayMS) * time.Millisecond,
		Factor:      cfg.Pricing.Retry.Factor,
		MaxDelay:    time.Duration(cfg.Pricing.Retry.MaxDelayMS) * time.Millisecond,
	}
	if retryAttempts > 0 {
		retry.MaxAttempts = retryAttempts
	}

	opts := pricing.Options{
		Source:       source,
		CacheEnabled: cfg.Pricing.CacheEnabled,
		CachePolicy: pricing.CachePolicy{
			TTL:          time.Duration(cfg.Pricing.CacheTTLSeconds) * time.Second,
			TTLOverrides: ttlOverrides(cfg.Pricing.TTLOverridesSeconds),
		},
		Offline: cfg.Pricing.OfflineFallback,
		Retry:   retry,
		Breaker: pricing.BreakerPolicy{
			FailureThreshold: cfg.Pricing.Breaker.FailureThreshold,
			Cooldown:         time.Duration(cfg.Pricing.Breaker.CooldownSeconds) * time.Second,
		},
		MaxInFlight:    cfg.Pricing.MaxInFlight,
		RequestTimeout: time.Duration(cfg.Pricing.RequestTimeoutSeconds) * time.Second,
	}

	if collector != nil {
		opts.Source = sources.NewInstrumentedSource(opts.Source, collector.Lookups)
		opts.OnRetry = collector.Lookups.RecordRetry
	}

	return pricing.NewClient(opts), nil
}

func ttlOverrides(overrides map[string]int) map[string]time.Duration {
	if len(overrides) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(overrides))
	for service, seconds := range overrides {
		out[service] = time.Duration(seconds) * time.Second
	}
	return out
}

// writeExport serializes the report to the --output path, or stdout
// when none was given.
func writeExport(rep *report.CostReport, format report.Format) error {
	if outputPath == "" {
		return report.Export(os.Stdout, rep, format)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrapf(errors.TypeConfig, err, "failed to create %s", outputPath)
	}
	defer f.Close()

	if err := report.Export(f, rep, format); err != nil {
		return err
	}
	ui.Success("Report written to %s", outputPath)
	return nil
}

func kindList() string {
	kinds := plan.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
