// Package rules evaluates optimization rules against priced resources
// and ranks the resulting recommendations. Rules are independent pure
// functions; no rule ever sees another rule's output.
package rules

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"plancost/core/costing"
	"plancost/core/determinism"
	"plancost/core/plan"
	"plancost/internal/logging"
)

// Category identifies the optimization family a rule belongs to
type Category string

const (
	CategoryInstanceType Category = "instance_type"
	CategoryPurchasing   Category = "purchasing"
	CategoryStorageClass Category = "storage_class"
	CategoryLifecycle    Category = "lifecycle"
	CategoryScaling      Category = "scaling"
)

// Level grades recommendation impact and implementation complexity
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// weight orders levels for ranking comparisons
func (l Level) weight() int {
	switch l {
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}

// Recommendation is a ranked, savings-quantified optimization suggestion
type Recommendation struct {
	ResourceID     string          `json:"resource_id" yaml:"resource_id"`
	Category       Category        `json:"category" yaml:"category"`
	Action         string          `json:"action" yaml:"action"`
	CurrentCost    decimal.Decimal `json:"current_cost" yaml:"current_cost"`
	SuggestedCost  decimal.Decimal `json:"suggested_cost" yaml:"suggested_cost"`
	Savings        decimal.Decimal `json:"savings" yaml:"savings"`
	SavingsPercent decimal.Decimal `json:"savings_percentage" yaml:"savings_percentage"`
	Impact         Level           `json:"impact" yaml:"impact"`
	Complexity     Level           `json:"complexity" yaml:"complexity"`
}

// Proposal is a rule's raw suggestion before the engine quantifies
// savings, grades impact, and applies the discard thresholds.
type Proposal struct {
	Action        string
	SuggestedCost decimal.Decimal
	Complexity    Level
}

// Rule inspects one priced resource and proposes cheaper configurations
type Rule interface {
	// Category returns the optimization family this rule covers
	Category() Category

	// Evaluate proposes alternatives for the resource, or nothing.
	// Only called for resources with a resolved estimate.
	Evaluate(r plan.Resource, est costing.CostEstimate, cfg Config) []Proposal
}

var hundred = decimal.NewFromInt(100)

// Engine runs every registered rule over every priced resource
type Engine struct {
	cfg   Config
	rules []Rule
	log   *zap.Logger
}

// NewEngine creates an engine with the built-in rule set
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg: cfg.withDefaults(),
		rules: []Rule{
			InstanceTypeRule{},
			PurchasingRule{},
			StorageClassRule{},
			LifecycleRule{},
			ScalingRule{},
		},
		log: logging.Named("rules"),
	}
}

// Evaluate produces ranked recommendations for the priced resources.
// Resources without a resolved estimate are skipped; a recommendation
// is kept only when its savings clear the configured minimum.
func (e *Engine) Evaluate(resources []plan.Resource, estimates []costing.CostEstimate) []Recommendation {
	byID := make(map[string]costing.CostEstimate, len(estimates))
	for _, est := range estimates {
		byID[est.ResourceID] = est
	}

	var recs []Recommendation
	for _, r := range resources {
		est, ok := byID[r.ID]
		if !ok || !est.Resolved() {
			continue
		}
		for _, rule := range e.rules {
			if e.cfg.Disabled[rule.Category()] {
				continue
			}
			for _, p := range rule.Evaluate(r, est, e.cfg) {
				rec, keep := e.finalize(r.ID, rule.Category(), est, p)
				if !keep {
					e.log.Debug("discarded proposal below savings threshold",
						zap.String("resource_id", r.ID),
						zap.String("category", string(rule.Category())))
					continue
				}
				recs = append(recs, rec)
			}
		}
	}

	Rank(recs)
	return recs
}

// finalize quantifies a proposal against the current estimate
func (e *Engine) finalize(resourceID string, cat Category, est costing.CostEstimate, p Proposal) (Recommendation, bool) {
	current := est.MonthlyCost.Decimal
	savings := current.Sub(p.SuggestedCost)
	if savings.Sign() <= 0 || savings.LessThan(e.cfg.MinSavings) {
		return Recommendation{}, false
	}
	return Recommendation{
		ResourceID:     resourceID,
		Category:       cat,
		Action:         p.Action,
		CurrentCost:    current,
		SuggestedCost:  p.SuggestedCost,
		Savings:        savings,
		SavingsPercent: savings.Div(current).Mul(hundred),
		Impact:         e.impactOf(savings),
		Complexity:     p.Complexity,
	}, true
}

// impactOf grades savings against the configured impact bands
func (e *Engine) impactOf(savings decimal.Decimal) Level {
	switch {
	case savings.GreaterThanOrEqual(e.cfg.HighImpact):
		return LevelHigh
	case savings.GreaterThanOrEqual(e.cfg.MediumImpact):
		return LevelMedium
	default:
		return LevelLow
	}
}

// Rank orders recommendations into the canonical total order: savings
// descending, impact descending, complexity ascending, then resource
// id and category as final tiebreaks. The order is total, so identical
// inputs always render identically.
func Rank(recs []Recommendation) {
	determinism.SortSlice(recs, func(a, b Recommendation) bool {
		if !a.Savings.Equal(b.Savings) {
			return a.Savings.GreaterThan(b.Savings)
		}
		if a.Impact != b.Impact {
			return a.Impact.weight() > b.Impact.weight()
		}
		if a.Complexity != b.Complexity {
			return a.Complexity.weight() < b.Complexity.weight()
		}
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		return a.Category < b.Category
	})
}
