package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"plancost/core/costing"
	"plancost/core/plan"
	"plancost/core/rules"
	"plancost/internal/errors"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testAssembler() *Assembler {
	a := NewAssembler()
	a.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	a.newID = func() string { return "run-0001" }
	return a
}

func fixtureEstimates() []costing.CostEstimate {
	return []costing.CostEstimate{
		{
			ResourceID:  "aws_instance.web",
			Kind:        plan.KindCompute,
			Region:      "us-east-1",
			MonthlyCost: decimal.NewNullDecimal(dec("120.012")),
			Currency:    "USD",
			Breakdown:   []costing.Component{{Name: costing.ComponentInstanceHours, Cost: dec("120.012")}},
		},
		{
			ResourceID:  "aws_db_instance.main",
			Kind:        plan.KindManagedDatabase,
			Region:      "us-east-1",
			MonthlyCost: decimal.NewNullDecimal(dec("157.5")),
			Currency:    "USD",
			Breakdown: []costing.Component{
				{Name: costing.ComponentInstanceHours, Cost: dec("146")},
				{Name: costing.ComponentAllocatedStorage, Cost: dec("11.5")},
			},
		},
		{
			ResourceID: "aws_instance.exotic",
			Kind:       plan.KindCompute,
			Region:     "us-east-1",
			Currency:   "USD",
			ErrorKind:  string(errors.TypePricingUnavailable),
		},
		{
			ResourceID:  "aws_s3_bucket.logs",
			Kind:        plan.KindObjectStorage,
			Region:      "us-east-1",
			MonthlyCost: decimal.NewNullDecimal(dec("11.5")),
			Currency:    "USD",
			Breakdown:   []costing.Component{{Name: costing.ComponentStorage, Cost: dec("11.5")}},
			Stale:       true,
		},
	}
}

func fixtureRecommendations() []rules.Recommendation {
	return []rules.Recommendation{
		{
			ResourceID: "aws_instance.web", Category: rules.CategoryScaling,
			Action:      "Schedule capacity around intermittent usage",
			CurrentCost: dec("120.012"), SuggestedCost: dec("66.0066"),
			Savings: dec("54.0054"), SavingsPercent: dec("45"),
			Impact: rules.LevelHigh, Complexity: rules.LevelMedium,
		},
		{
			ResourceID: "aws_instance.web", Category: rules.CategoryInstanceType,
			Action:      "Downsize t3.xlarge to t3.large (25% utilization)",
			CurrentCost: dec("120.012"), SuggestedCost: dec("60.006"),
			Savings: dec("60.006"), SavingsPercent: dec("50"),
			Impact: rules.LevelHigh, Complexity: rules.LevelMedium,
		},
		{
			ResourceID: "aws_db_instance.main", Category: rules.CategoryPurchasing,
			Action:      "Purchase reserved capacity (40% discount on instance hours)",
			CurrentCost: dec("157.5"), SuggestedCost: dec("99.1"),
			Savings: dec("58.4"), SavingsPercent: dec("37.08"),
			Impact: rules.LevelHigh, Complexity: rules.LevelLow,
		},
	}
}

func assertReportEqual(t *testing.T, want, got *CostReport) {
	t.Helper()
	if got.RunID != want.RunID {
		t.Errorf("RunID: expected %s, got %s", want.RunID, got.RunID)
	}
	if !got.GeneratedAt.Equal(want.GeneratedAt) {
		t.Errorf("GeneratedAt: expected %s, got %s", want.GeneratedAt, got.GeneratedAt)
	}
	if got.Currency != want.Currency {
		t.Errorf("Currency: expected %s, got %s", want.Currency, got.Currency)
	}
	if !got.Total.Equal(want.Total) {
		t.Errorf("Total: expected %s, got %s", want.Total, got.Total)
	}
	if len(got.Estimates) != len(want.Estimates) {
		t.Fatalf("Estimates: expected %d, got %d", len(want.Estimates), len(got.Estimates))
	}
	for i, we := range want.Estimates {
		ge := got.Estimates[i]
		if ge.ResourceID != we.ResourceID || ge.Kind != we.Kind || ge.Region != we.Region {
			t.Errorf("Estimate %d identity mismatch: %+v vs %+v", i, we, ge)
		}
		if ge.MonthlyCost.Valid != we.MonthlyCost.Valid {
			t.Errorf("Estimate %d null mismatch", i)
		} else if we.MonthlyCost.Valid && !ge.MonthlyCost.Decimal.Equal(we.MonthlyCost.Decimal) {
			t.Errorf("Estimate %d cost: expected %s, got %s", i, we.MonthlyCost.Decimal, ge.MonthlyCost.Decimal)
		}
		if ge.Stale != we.Stale || ge.ErrorKind != we.ErrorKind {
			t.Errorf("Estimate %d flags mismatch: %+v vs %+v", i, we, ge)
		}
		if len(ge.Breakdown) != len(we.Breakdown) {
			t.Errorf("Estimate %d breakdown length: expected %d, got %d", i, len(we.Breakdown), len(ge.Breakdown))
			continue
		}
		for j, wc := range we.Breakdown {
			if ge.Breakdown[j].Name != wc.Name || !ge.Breakdown[j].Cost.Equal(wc.Cost) {
				t.Errorf("Estimate %d component %d mismatch", i, j)
			}
		}
	}
	if len(got.Recommendations) != len(want.Recommendations) {
		t.Fatalf("Recommendations: expected %d, got %d", len(want.Recommendations), len(got.Recommendations))
	}
	for i, wr := range want.Recommendations {
		gr := got.Recommendations[i]
		if gr.ResourceID != wr.ResourceID || gr.Category != wr.Category || gr.Action != wr.Action {
			t.Errorf("Recommendation %d identity mismatch: %+v vs %+v", i, wr, gr)
		}
		if !gr.Savings.Equal(wr.Savings) || !gr.CurrentCost.Equal(wr.CurrentCost) ||
			!gr.SuggestedCost.Equal(wr.SuggestedCost) || !gr.SavingsPercent.Equal(wr.SavingsPercent) {
			t.Errorf("Recommendation %d money mismatch: %+v vs %+v", i, wr, gr)
		}
		if gr.Impact != wr.Impact || gr.Complexity != wr.Complexity {
			t.Errorf("Recommendation %d grading mismatch", i)
		}
	}
}

// TestAssemble verifies totals over resolved estimates, ranking, and
// two-place rounding at the report boundary.
func TestAssemble(t *testing.T) {
	report := testAssembler().Assemble(fixtureEstimates(), fixtureRecommendations())

	if report.RunID != "run-0001" {
		t.Errorf("Expected injected run id, got %s", report.RunID)
	}
	// 120.012 + 157.5 + 11.5, unresolved excluded, rounded
	if !report.Total.Equal(dec("289.01")) {
		t.Errorf("Expected total 289.01, got %s", report.Total)
	}
	if len(report.Estimates) != 4 {
		t.Fatalf("Expected all 4 estimates, got %d", len(report.Estimates))
	}
	if report.Estimates[0].MonthlyCost.Decimal.String() != "120.01" {
		t.Errorf("Expected rounded 120.01, got %s", report.Estimates[0].MonthlyCost.Decimal)
	}
	if report.Estimates[2].MonthlyCost.Valid {
		t.Error("Unresolved estimate must stay null")
	}

	// Ranked by savings: 60.006 (→60.01), 58.4, 54.0054 (→54.01)
	wantOrder := []rules.Category{rules.CategoryInstanceType, rules.CategoryPurchasing, rules.CategoryScaling}
	for i, cat := range wantOrder {
		if report.Recommendations[i].Category != cat {
			t.Errorf("Rank %d: expected %s, got %s", i, cat, report.Recommendations[i].Category)
		}
	}
	if report.Recommendations[0].Savings.String() != "60.01" {
		t.Errorf("Expected rounded savings 60.01, got %s", report.Recommendations[0].Savings)
	}
}

// TestReportAggregates covers the unresolved count and projected
// savings helpers the renderers rely on.
func TestReportAggregates(t *testing.T) {
	report := testAssembler().Assemble(fixtureEstimates(), fixtureRecommendations())

	if got := report.Unresolved(); got != 1 {
		t.Errorf("Expected 1 unresolved estimate, got %d", got)
	}
	// 60.01 + 58.40 + 54.01 after rounding
	if want := dec("172.42"); !report.ProjectedSavings().Equal(want) {
		t.Errorf("Expected projected savings %s, got %s", want, report.ProjectedSavings())
	}
}

// TestJSONRoundTrip verifies an exported report decodes field-wise
// equal.
func TestJSONRoundTrip(t *testing.T) {
	report := testAssembler().Assemble(fixtureEstimates(), fixtureRecommendations())

	var buf bytes.Buffer
	if err := Export(&buf, report, FormatJSON); err != nil {
		t.Fatalf("JSON export failed: %v", err)
	}

	decoded, err := ImportJSON(&buf)
	if err != nil {
		t.Fatalf("JSON import failed: %v", err)
	}
	assertReportEqual(t, report, decoded)
}

// TestYAMLRoundTrip verifies an exported report decodes field-wise
// equal.
func TestYAMLRoundTrip(t *testing.T) {
	report := testAssembler().Assemble(fixtureEstimates(), fixtureRecommendations())

	var buf bytes.Buffer
	if err := Export(&buf, report, FormatYAML); err != nil {
		t.Fatalf("YAML export failed: %v", err)
	}

	decoded, err := ImportYAML(&buf)
	if err != nil {
		t.Fatalf("YAML import failed: %v", err)
	}
	assertReportEqual(t, report, decoded)
}

// TestCSVLayout verifies the fixed header, the recommendation join,
// and empty recommendation columns for resources without any.
func TestCSVLayout(t *testing.T) {
	report := testAssembler().Assemble(fixtureEstimates(), fixtureRecommendations())

	var buf bytes.Buffer
	if err := Export(&buf, report, FormatCSV); err != nil {
		t.Fatalf("CSV export failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV output: %v", err)
	}

	wantHeader := "resource_id,resource_kind,region,monthly_cost,currency,stale,error_kind,breakdown," +
		"category,action,current_cost,suggested_cost,savings,savings_percentage,impact,complexity"
	if got := strings.Join(rows[0], ","); got != wantHeader {
		t.Fatalf("Header mismatch:\nexpected %s\ngot      %s", wantHeader, got)
	}

	// web has 2 recommendations, db 1, exotic and bucket none
	if len(rows) != 6 {
		t.Fatalf("Expected header + 5 rows, got %d rows", len(rows))
	}
	if rows[1][0] != "aws_instance.web" || rows[1][8] != "instance_type" {
		t.Errorf("Row 1: expected web/instance_type, got %s/%s", rows[1][0], rows[1][8])
	}
	if rows[2][0] != "aws_instance.web" || rows[2][8] != "scaling" {
		t.Errorf("Row 2: expected web/scaling, got %s/%s", rows[2][0], rows[2][8])
	}
	if rows[3][0] != "aws_db_instance.main" || rows[3][8] != "purchasing" {
		t.Errorf("Row 3: expected db/purchasing, got %s/%s", rows[3][0], rows[3][8])
	}

	// Unresolved resource: empty cost, error kind, no recommendation
	exotic := rows[4]
	if exotic[0] != "aws_instance.exotic" || exotic[3] != "" || exotic[6] != "PRICING_UNAVAILABLE" {
		t.Errorf("Row 4: expected exotic with empty cost and error kind, got %v", exotic)
	}
	for col := 8; col < 16; col++ {
		if exotic[col] != "" {
			t.Errorf("Row 4 column %d should be empty, got %q", col, exotic[col])
		}
	}

	// Stale resource renders its flag and breakdown
	bucket := rows[5]
	if bucket[0] != "aws_s3_bucket.logs" || bucket[5] != "true" {
		t.Errorf("Row 5: expected stale bucket, got %v", bucket)
	}
	if bucket[7] != "storage=11.50" {
		t.Errorf("Row 5: expected flattened breakdown, got %q", bucket[7])
	}
	if rows[1][7] != "instance-hours=120.01" {
		t.Errorf("Row 1: expected flattened breakdown, got %q", rows[1][7])
	}
}

// TestExportUnknownFormat verifies the registry rejects formats it
// does not know.
func TestExportUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Export(&buf, &CostReport{}, Format("xml"))
	if !errors.IsType(err, errors.TypeConfig) {
		t.Fatalf("Expected CONFIG_ERROR, got %v", err)
	}
}

// TestParseFormat covers flag validation
func TestParseFormat(t *testing.T) {
	for _, valid := range []string{"json", "csv", "yaml"} {
		if _, err := ParseFormat(valid); err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseFormat("xml"); !errors.IsType(err, errors.TypeConfig) {
		t.Errorf("Expected CONFIG_ERROR for xml, got %v", err)
	}
}
