// Package monitor drives the estimation pipeline on an interval until
// cancelled or a terminal failure, managing recovery for transient
// errors through an explicit state machine.
//
// One unit of work is a pipeline run plus any retry attempts it needs.
// A successful run publishes its report atomically: readers see either
// the previous report or the new one, never a partial one. Transient
// failures back off and recover up to a configured attempt bound;
// malformed input and auth failures are terminal.
package monitor

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"plancost/core/pricing"
	"plancost/core/report"
	"plancost/internal/errors"
	"plancost/internal/logging"
	"plancost/internal/telemetry"
)

// Runner produces one cost report per invocation. *engine.Engine is
// the production implementation.
type Runner interface {
	Run(ctx context.Context) (*report.CostReport, error)
}

// statsProvider is implemented by runners that expose pricing client
// counters, read after each run to refresh the metrics gauges.
type statsProvider interface {
	Stats() pricing.Stats
}

// Recorder persists completed runs. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, rep *report.CostReport, planPath string) error
}

// Options configures the live monitor.
type Options struct {
	// PlanPath is the plan artifact path, recorded with history entries
	// and watched when Watch is set
	PlanPath string

	// Interval is the delay between successful runs (default 30s)
	Interval time.Duration

	// RunTimeout is the wall-clock budget for one pipeline run,
	// independent of the per-call request timeout; zero means no budget
	RunTimeout time.Duration

	// Backoff governs recovery between failed attempts. MaxAttempts
	// counts total attempts per unit of work, first run included
	// (default 3 attempts, 5s base delay doubling up to 60s)
	Backoff pricing.RetryPolicy

	// Watch re-runs immediately when the plan artifact changes
	Watch bool
}

// Deps carries the monitor's collaborators. Runner is required; the
// rest are optional.
type Deps struct {
	// Runner drives one pipeline run per invocation
	Runner Runner

	// Metrics receives run and lookup gauges when set
	Metrics *telemetry.Collector

	// History records each published report when set
	History Recorder

	// OnPublish is called after each report publish, from the monitor
	// goroutine; displays hang off this hook
	OnPublish func(*report.CostReport)
}

// Monitor owns the run state machine and the most recently published
// report.
type Monitor struct {
	opts      Options
	runner    Runner
	metrics   *telemetry.Collector
	history   Recorder
	onPublish func(*report.CostReport)
	logger    *zap.Logger

	report atomic.Pointer[report.CostReport]

	mu           sync.Mutex
	state        State
	attempts     int
	lastErr      error
	onTransition func(from, to State)
}

// New creates a live monitor around the given runner.
func New(opts Options, deps Deps) *Monitor {
	if deps.Runner == nil {
		panic("monitor: nil runner")
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Backoff.MaxAttempts <= 0 {
		opts.Backoff.MaxAttempts = 3
	}
	if opts.Backoff.BaseDelay <= 0 {
		opts.Backoff.BaseDelay = 5 * time.Second
	}
	if opts.Backoff.Factor < 1 {
		opts.Backoff.Factor = 2.0
	}
	if opts.Backoff.MaxDelay <= 0 {
		opts.Backoff.MaxDelay = 60 * time.Second
	}

	return &Monitor{
		opts:      opts,
		runner:    deps.Runner,
		metrics:   deps.Metrics,
		history:   deps.History,
		onPublish: deps.OnPublish,
		logger:    logging.Named("monitor"),
		state:     StateIdle,
	}
}

// Start runs the monitor loop: an immediate first run, then one run
// per interval tick, plus plan-change wakeups when watching. It blocks
// until the context is cancelled (returns nil) or the machine reaches
// Failed (returns the terminal error).
func (m *Monitor) Start(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	if m.opts.Watch {
		if err := m.watchPlan(ctx, wake); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.logger.Info("live monitor started",
		zap.Duration("interval", m.opts.Interval),
		zap.Int("max_attempts", m.opts.Backoff.MaxAttempts),
		zap.Bool("watch", m.opts.Watch),
	)

	for {
		if err := m.runWithRecovery(ctx); err != nil {
			if ctx.Err() != nil {
				m.logger.Info("live monitor stopped")
				return nil
			}
			m.logger.Error("live monitor failed", zap.Error(err))
			return err
		}

		select {
		case <-ctx.Done():
			m.logger.Info("live monitor stopped")
			return nil
		case <-ticker.C:
		case <-wake:
			m.logger.Info("plan artifact changed, re-running")
		}
	}
}

// runWithRecovery drives one unit of work: a run plus any retries it
// needs. Returns nil once a report is published, the context error on
// cancellation, and the terminal error when the machine reaches
// Failed.
func (m *Monitor) runWithRecovery(ctx context.Context) error {
	m.beginUnit()

	for {
		m.transition(StateRunning)

		rep, err := m.runOnce(ctx)
		if ctx.Err() != nil {
			// Terminated: leave the published report untouched and let
			// in-flight lookups unwind on their own.
			return ctx.Err()
		}

		if err == nil {
			m.publish(ctx, rep)
			m.transition(StateDone)
			m.completeUnit()
			return nil
		}

		attempt := m.failUnit(err)
		if !recoverable(err) {
			m.transition(StateFailed)
			m.logger.Error("run failed", zap.Error(err), zap.Int("attempt", attempt))
			return err
		}
		if attempt >= m.opts.Backoff.MaxAttempts {
			m.transition(StateFailed)
			m.logger.Error("run attempts exhausted", zap.Error(err), zap.Int("attempts", attempt))
			return err
		}

		m.transition(StateWaitingRetry)
		delay := m.opts.Backoff.Delay(attempt)
		m.logger.Warn("run failed, backing off",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		m.transition(StateRecovering)
		m.nextAttempt()
	}
}

// runOnce executes a single pipeline run under the per-run budget.
func (m *Monitor) runOnce(ctx context.Context) (*report.CostReport, error) {
	runCtx := ctx
	if m.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.opts.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	rep, err := m.runner.Run(runCtx)
	duration := time.Since(start)

	if m.metrics != nil && ctx.Err() == nil {
		outcome := telemetry.RunSuccess
		if err != nil {
			outcome = telemetry.RunFailed
		}
		m.metrics.Runs.RecordRun(outcome, duration)

		if sp, ok := m.runner.(statsProvider); ok {
			stats := sp.Stats()
			m.metrics.Lookups.UpdateClientStats(stats.Resolves, stats.CacheHits,
				stats.StaleServes, stats.CacheSize, stats.BreakerState)
		}
	}

	return rep, err
}

// publish swaps in a new report and pushes its headline figures to the
// metrics gauges and the history store. History failures are logged,
// not fatal: the published report is the product, the record is an
// audit trail.
func (m *Monitor) publish(ctx context.Context, rep *report.CostReport) {
	m.report.Store(rep)

	unresolved := rep.Unresolved()

	m.logger.Info("report published",
		zap.String("run_id", rep.RunID),
		zap.Int("resources", len(rep.Estimates)),
		zap.Int("unresolved", unresolved),
		zap.String("total", rep.Total.String()),
		zap.Int("recommendations", len(rep.Recommendations)),
	)

	if m.metrics != nil {
		m.metrics.Runs.UpdateReport(len(rep.Estimates), unresolved, len(rep.Recommendations),
			rep.Total.InexactFloat64(), rep.ProjectedSavings().InexactFloat64())
	}
	if m.history != nil {
		if err := m.history.Record(ctx, rep, m.opts.PlanPath); err != nil {
			m.logger.Warn("failed to record run history", zap.Error(err))
		}
	}
	if m.onPublish != nil {
		m.onPublish(rep)
	}
}

// Report returns the most recently published report, nil before the
// first successful run. Callers must treat it as read-only.
func (m *Monitor) Report() *report.CostReport {
	return m.report.Load()
}

// RunState returns a snapshot of the state machine.
func (m *Monitor) RunState() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RunState{State: m.state, Attempts: m.attempts, LastErr: m.lastErr}
}

// beginUnit marks the start of a unit of work.
func (m *Monitor) beginUnit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = 1
	m.lastErr = nil
}

// failUnit records a failed attempt and returns its number.
func (m *Monitor) failUnit(err error) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
	return m.attempts
}

// nextAttempt increments the attempt counter after a backoff.
func (m *Monitor) nextAttempt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
}

// completeUnit resets the counters after a published report.
func (m *Monitor) completeUnit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = 0
	m.lastErr = nil
}

// recoverable reports whether a failed run may succeed on a later
// attempt. Run-budget timeouts count: the next attempt may complete
// inside the budget.
func recoverable(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Transient(err)
}
