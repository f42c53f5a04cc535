package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"plancost/core/costing"
	"plancost/core/rules"
	"plancost/internal/errors"
)

// csvHeader is the fixed column set. Estimate columns repeat on every
// row; recommendation columns are empty for resources without any.
var csvHeader = []string{
	"resource_id",
	"resource_kind",
	"region",
	"monthly_cost",
	"currency",
	"stale",
	"error_kind",
	"breakdown",
	"category",
	"action",
	"current_cost",
	"suggested_cost",
	"savings",
	"savings_percentage",
	"impact",
	"complexity",
}

// csvExporter renders one row per recommendation, joined with its
// resource's estimate. Resources without recommendations still get a
// row, so the table always covers the whole plan.
type csvExporter struct{}

func (csvExporter) Format() Format { return FormatCSV }

func (csvExporter) Export(w io.Writer, report *CostReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Internal("failed to write CSV header", err)
	}

	recsByResource := make(map[string][]rules.Recommendation, len(report.Recommendations))
	for _, rec := range report.Recommendations {
		recsByResource[rec.ResourceID] = append(recsByResource[rec.ResourceID], rec)
	}

	for _, est := range report.Estimates {
		recs := recsByResource[est.ResourceID]
		if len(recs) == 0 {
			if err := cw.Write(csvRow(est, nil)); err != nil {
				return errors.Internal("failed to write CSV row", err)
			}
			continue
		}
		for i := range recs {
			if err := cw.Write(csvRow(est, &recs[i])); err != nil {
				return errors.Internal("failed to write CSV row", err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Internal("failed to flush CSV output", err)
	}
	return nil
}

// csvRow renders one row; rec is nil for estimate-only rows
func csvRow(est costing.CostEstimate, rec *rules.Recommendation) []string {
	monthly := ""
	if est.MonthlyCost.Valid {
		monthly = est.MonthlyCost.Decimal.StringFixed(2)
	}

	row := []string{
		est.ResourceID,
		est.Kind.String(),
		est.Region,
		monthly,
		est.Currency,
		strconv.FormatBool(est.Stale),
		est.ErrorKind,
		flattenBreakdown(est.Breakdown),
	}

	if rec == nil {
		return append(row, "", "", "", "", "", "", "", "")
	}
	return append(row,
		string(rec.Category),
		rec.Action,
		rec.CurrentCost.StringFixed(2),
		rec.SuggestedCost.StringFixed(2),
		rec.Savings.StringFixed(2),
		rec.SavingsPercent.StringFixed(2),
		string(rec.Impact),
		string(rec.Complexity),
	)
}

// flattenBreakdown joins components as name=cost;name=cost
func flattenBreakdown(components []costing.Component) string {
	if len(components) == 0 {
		return ""
	}
	parts := make([]string, len(components))
	for i, comp := range components {
		parts[i] = comp.Name + "=" + comp.Cost.StringFixed(2)
	}
	return strings.Join(parts, ";")
}
