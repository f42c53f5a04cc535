// Package engine runs the estimation pipeline: load and normalize the
// plan, resolve prices, compute estimates, evaluate rules, assemble the
// report. The CLI and the live monitor are thin wrappers around it.
package engine

import (
	"context"

	"go.uber.org/zap"

	"plancost/core/costing"
	"plancost/core/plan"
	"plancost/core/pricing"
	"plancost/core/report"
	"plancost/core/rules"
	"plancost/internal/errors"
	"plancost/internal/logging"
)

// Options configures a pipeline engine
type Options struct {
	// PlanPath is the plan artifact to estimate. The file is re-read
	// on every run so live mode picks up edits.
	PlanPath string

	// Service restricts the run to one resource kind; empty runs all
	Service plan.Kind

	// Optimize enables rule evaluation
	Optimize bool
}

// Deps are the pipeline stages. Client is required; nil stages fall
// back to defaults.
type Deps struct {
	Client     *pricing.Client
	Calculator *costing.Calculator
	Rules      *rules.Engine
	Assembler  *report.Assembler
}

// Engine wires the pipeline stages into one runnable unit
type Engine struct {
	opts   Options
	client *pricing.Client
	calc   *costing.Calculator
	rules  *rules.Engine
	asm    *report.Assembler
	logger *zap.Logger
}

// New creates an engine over a configured pricing client
func New(opts Options, deps Deps) *Engine {
	if deps.Calculator == nil {
		deps.Calculator = costing.NewCalculator(costing.Config{})
	}
	if deps.Rules == nil {
		deps.Rules = rules.NewEngine(rules.DefaultConfig())
	}
	if deps.Assembler == nil {
		deps.Assembler = report.NewAssembler()
	}
	return &Engine{
		opts:   opts,
		client: deps.Client,
		calc:   deps.Calculator,
		rules:  deps.Rules,
		asm:    deps.Assembler,
		logger: logging.Named("engine"),
	}
}

// Run executes one pipeline pass and returns the assembled report.
// Per-resource pricing failures degrade the affected estimates only;
// the returned error is reserved for run-fatal conditions: a malformed
// plan, rejected credentials, cancellation, or every lookup failing.
func (e *Engine) Run(ctx context.Context) (*report.CostReport, error) {
	resources, err := plan.Load(e.opts.PlanPath)
	if err != nil {
		return nil, err
	}
	if e.opts.Service != "" {
		resources = plan.Filter(resources, e.opts.Service)
	}
	e.logger.Info("estimating plan",
		zap.String("path", e.opts.PlanPath),
		zap.Int("resources", len(resources)))

	results := e.client.ResolveBatch(ctx, resources)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := fatalLookupError(resources, results); err != nil {
		return nil, err
	}

	estimates := e.calc.Compute(resources, results)

	var recs []rules.Recommendation
	if e.opts.Optimize {
		recs = e.rules.Evaluate(resources, estimates)
	}

	rep := e.asm.Assemble(estimates, recs)
	e.logger.Info("run complete",
		zap.String("run_id", rep.RunID),
		zap.String("total", rep.Total.String()),
		zap.Int("recommendations", len(rep.Recommendations)))
	return rep, nil
}

// Stats exposes the pricing client counters for the run's caller
func (e *Engine) Stats() pricing.Stats {
	return e.client.Stats()
}

// fatalLookupError decides whether lookup failures doom the whole run.
// Rejected credentials always do; otherwise failures stay per-resource
// unless no resource resolved at all.
func fatalLookupError(resources []plan.Resource, results map[string]pricing.Result) error {
	if len(resources) == 0 {
		return nil
	}
	failed := 0
	var last error
	for _, r := range resources {
		result := results[r.ID]
		if result.Err == nil {
			continue
		}
		if errors.IsType(result.Err, errors.TypeAuth) {
			return result.Err
		}
		failed++
		last = result.Err
	}
	if failed == len(resources) {
		return errors.Wrap(errors.TypePricingUnavailable, "no prices could be resolved", last)
	}
	return nil
}
