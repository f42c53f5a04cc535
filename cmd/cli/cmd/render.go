// Package cmd - terminal rendering for cost reports
package cmd

import (
	"fmt"

	"plancost/core/report"
	"plancost/internal/term"
)

func printReport(w *term.Writer, rep *report.CostReport, showBreakdown bool) {
	w.Println("┌─────────────────────────────────────────────────────────────────────────┐")
	w.Println("│                          MONTHLY COST ESTIMATE                          │")
	w.Println("├─────────────────────────────────────────────────────────────────────────┤")

	for _, est := range rep.Estimates {
		if !est.Resolved() {
			w.Println("%s", w.Color(term.Yellow, fmt.Sprintf("│ %-50s %20s │",
				truncate(est.ResourceID, 50), "unavailable")))
			w.Println("%s", w.Color(term.Dim, fmt.Sprintf("│   └─ %-46s %20s │",
				truncate(est.ErrorKind, 46), "")))
			continue
		}

		label := fmt.Sprintf("$%.2f/month", est.MonthlyCost.Decimal.InexactFloat64())
		if est.Stale {
			label += " (stale)"
		}
		w.Println("│ %-50s %20s │", truncate(est.ResourceID, 50), label)

		if showBreakdown {
			for _, comp := range est.Breakdown {
				w.Println("%s", w.Color(term.Dim, fmt.Sprintf("│   └─ %-46s %20s │",
					truncate(comp.Name, 46),
					fmt.Sprintf("$%.2f", comp.Cost.InexactFloat64()))))
			}
		}
	}

	w.Println("├─────────────────────────────────────────────────────────────────────────┤")
	w.Println("%s", w.Color(term.Bold, fmt.Sprintf("│ %-50s %20s │",
		"TOTAL MONTHLY ESTIMATE",
		fmt.Sprintf("$%.2f", rep.Total.InexactFloat64()))))
	w.Println("└─────────────────────────────────────────────────────────────────────────┘")

	if unresolved := rep.Unresolved(); unresolved > 0 {
		w.Println("")
		w.Warning("%d of %d resources could not be priced.", unresolved, len(rep.Estimates))
	}

	if len(rep.Recommendations) > 0 {
		printRecommendations(w, rep)
	}
	w.Println("")
}

func printRecommendations(w *term.Writer, rep *report.CostReport) {
	w.Header("OPTIMIZATION RECOMMENDATIONS")
	w.Println("")

	for i, rec := range rep.Recommendations {
		w.Println(" %d. [%s] %s", i+1, rec.Category, rec.ResourceID)
		w.Println("    %s", rec.Action)
		w.Println("    %s, impact: %s, complexity: %s",
			w.Color(term.Green, fmt.Sprintf("Saves $%.2f/month (%.1f%%)",
				rec.Savings.InexactFloat64(),
				rec.SavingsPercent.InexactFloat64())),
			rec.Impact, rec.Complexity)
	}

	w.Println("")
	w.Println("%s", w.Color(term.Bold+term.Green,
		fmt.Sprintf("Projected savings: $%.2f/month", rep.ProjectedSavings().InexactFloat64())))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
