// Package report assembles estimates and recommendations into the
// final cost report and renders it through an exporter registry.
package report

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plancost/core/costing"
	"plancost/core/rules"
)

// CostReport is the complete output of one estimation run. Estimates
// keep plan order; recommendations are ranked. All monetary values are
// rounded to two places; only the run metadata (RunID, GeneratedAt)
// varies between runs over identical input.
type CostReport struct {
	RunID           string                 `json:"run_id"`
	GeneratedAt     time.Time              `json:"generated_at"`
	Currency        string                 `json:"currency"`
	Total           decimal.Decimal        `json:"total_monthly_cost"`
	Estimates       []costing.CostEstimate `json:"estimates"`
	Recommendations []rules.Recommendation `json:"recommendations,omitempty"`
}

// Unresolved counts the estimates whose price could not be resolved.
func (r *CostReport) Unresolved() int {
	n := 0
	for _, est := range r.Estimates {
		if !est.Resolved() {
			n++
		}
	}
	return n
}

// ProjectedSavings sums the savings across all recommendations.
func (r *CostReport) ProjectedSavings() decimal.Decimal {
	total := decimal.Zero
	for _, rec := range r.Recommendations {
		total = total.Add(rec.Savings)
	}
	return total
}

// Assembler builds reports. The clock and id source are injectable
// for tests.
type Assembler struct {
	now   func() time.Time
	newID func() string
}

// NewAssembler creates an assembler using the wall clock and random
// run ids.
func NewAssembler() *Assembler {
	return &Assembler{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Assemble computes the total over resolved estimates, ranks the
// recommendations, and rounds every monetary value to two places.
func (a *Assembler) Assemble(estimates []costing.CostEstimate, recs []rules.Recommendation) *CostReport {
	ranked := make([]rules.Recommendation, len(recs))
	copy(ranked, recs)
	rules.Rank(ranked)

	return &CostReport{
		RunID:           a.newID(),
		GeneratedAt:     a.now().UTC(),
		Currency:        costing.DefaultCurrency,
		Total:           costing.Total(estimates).Round(2),
		Estimates:       roundEstimates(estimates),
		Recommendations: roundRecommendations(ranked),
	}
}

// roundEstimates copies the estimates with money rounded to two places
func roundEstimates(estimates []costing.CostEstimate) []costing.CostEstimate {
	out := make([]costing.CostEstimate, len(estimates))
	for i, est := range estimates {
		if est.MonthlyCost.Valid {
			est.MonthlyCost = decimal.NewNullDecimal(est.MonthlyCost.Decimal.Round(2))
		}
		if len(est.Breakdown) > 0 {
			rounded := make([]costing.Component, len(est.Breakdown))
			for j, comp := range est.Breakdown {
				rounded[j] = costing.Component{Name: comp.Name, Cost: comp.Cost.Round(2)}
			}
			est.Breakdown = rounded
		}
		out[i] = est
	}
	return out
}

// roundRecommendations copies the recommendations with money and
// percentages rounded to two places. Ranking happens before rounding,
// so near ties keep their exact-value order.
func roundRecommendations(recs []rules.Recommendation) []rules.Recommendation {
	if len(recs) == 0 {
		return nil
	}
	out := make([]rules.Recommendation, len(recs))
	for i, rec := range recs {
		rec.CurrentCost = rec.CurrentCost.Round(2)
		rec.SuggestedCost = rec.SuggestedCost.Round(2)
		rec.Savings = rec.Savings.Round(2)
		rec.SavingsPercent = rec.SavingsPercent.Round(2)
		out[i] = rec
	}
	return out
}
