package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"plancost/core/costing"
	"plancost/core/plan"
	"plancost/core/report"
	"plancost/core/rules"
	"plancost/internal/errors"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := NewStore(DefaultConfig(dbPath))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dbPath
}

func testReport(runID string, generatedAt time.Time, total string) *report.CostReport {
	amount := decimal.RequireFromString(total)
	return &report.CostReport{
		RunID:       runID,
		GeneratedAt: generatedAt,
		Currency:    "USD",
		Total:       amount,
		Estimates: []costing.CostEstimate{
			{
				ResourceID:  "aws_instance.web",
				Kind:        plan.KindCompute,
				Region:      "us-east-1",
				MonthlyCost: decimal.NewNullDecimal(amount),
				Currency:    "USD",
			},
			{
				ResourceID: "aws_instance.exotic",
				Kind:       plan.KindCompute,
				Region:     "us-east-1",
				Currency:   "USD",
				ErrorKind:  "PRICING_UNAVAILABLE",
			},
		},
		Recommendations: []rules.Recommendation{
			{
				ResourceID: "aws_instance.web",
				Category:   rules.CategoryInstanceType,
				Savings:    decimal.RequireFromString("60.01"),
			},
		},
	}
}

func TestStoreInitialize(t *testing.T) {
	_, dbPath := newTestStore(t)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestStoreRecordAndList(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, runID := range []string{"run-1", "run-2", "run-3"} {
		rep := testReport(runID, base.Add(time.Duration(i)*time.Hour), "120.01")
		if err := store.Record(ctx, rep, "plans/web.json"); err != nil {
			t.Fatalf("Record(%s) error = %v", runID, err)
		}
	}

	entries, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(entries))
	}
	for i, want := range []string{"run-3", "run-2", "run-1"} {
		if entries[i].RunID != want {
			t.Errorf("entries[%d].RunID = %s, want %s (newest first)", i, entries[i].RunID, want)
		}
	}

	first := entries[0]
	if first.PlanPath != "plans/web.json" {
		t.Errorf("PlanPath = %s, want plans/web.json", first.PlanPath)
	}
	if first.Total.String() != "120.01" {
		t.Errorf("Total = %s, want 120.01", first.Total)
	}
	if first.Resources != 2 || first.Unresolved != 1 {
		t.Errorf("Resources/Unresolved = %d/%d, want 2/1", first.Resources, first.Unresolved)
	}
	if first.Recommendations != 1 {
		t.Errorf("Recommendations = %d, want 1", first.Recommendations)
	}
	if first.ProjectedSavings.String() != "60.01" {
		t.Errorf("ProjectedSavings = %s, want 60.01", first.ProjectedSavings)
	}
}

func TestStoreListLimit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rep := testReport(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute), "10")
		if err := store.Record(ctx, rep, "plan.json"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List(2) returned %d entries, want 2", len(entries))
	}
}

func TestStoreGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	want := testReport("run-42", time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), "157.5")
	if err := store.Record(ctx, want, "plan.json"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := store.Get(ctx, "run-42")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RunID != want.RunID {
		t.Errorf("RunID = %s, want %s", got.RunID, want.RunID)
	}
	if !got.Total.Equal(want.Total) {
		t.Errorf("Total = %s, want %s", got.Total, want.Total)
	}
	if !got.GeneratedAt.Equal(want.GeneratedAt) {
		t.Errorf("GeneratedAt = %s, want %s", got.GeneratedAt, want.GeneratedAt)
	}
	if len(got.Estimates) != 2 || len(got.Recommendations) != 1 {
		t.Errorf("Estimates/Recommendations = %d/%d, want 2/1", len(got.Estimates), len(got.Recommendations))
	}

	if _, err := store.Get(ctx, "no-such-run"); !errors.IsType(err, errors.TypeNotFound) {
		t.Fatalf("Get(unknown) error = %v, want NOT_FOUND", err)
	}
}

func TestStoreDuplicateRun(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rep := testReport("run-dup", time.Now().UTC(), "10")
	if err := store.Record(ctx, rep, "plan.json"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(ctx, rep, "plan.json"); !errors.IsType(err, errors.TypeStorage) {
		t.Fatalf("duplicate Record() error = %v, want STORAGE_ERROR", err)
	}
}

func TestStorePruneOlderThan(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, runID := range []string{"old-1", "old-2", "new-1"} {
		rep := testReport(runID, base.AddDate(0, 0, i*10), "10")
		if err := store.Record(ctx, rep, "plan.json"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	deleted, err := store.PruneOlderThan(ctx, base.AddDate(0, 0, 15))
	if err != nil {
		t.Fatalf("PruneOlderThan() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	entries, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].RunID != "new-1" {
		t.Errorf("surviving entries = %+v, want only new-1", entries)
	}
}

func TestStorePruneToCount(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, runID := range []string{"run-1", "run-2", "run-3", "run-4"} {
		rep := testReport(runID, base.Add(time.Duration(i)*time.Hour), "10")
		if err := store.Record(ctx, rep, "plan.json"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	deleted, err := store.PruneToCount(ctx, 2)
	if err != nil {
		t.Fatalf("PruneToCount() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	entries, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if entries[0].RunID != "run-4" || entries[1].RunID != "run-3" {
		t.Errorf("surviving runs = %s, %s; want run-4, run-3", entries[0].RunID, entries[1].RunID)
	}
}

func TestStoreEmptyPath(t *testing.T) {
	if _, err := NewStore(Config{}); !errors.IsType(err, errors.TypeConfig) {
		t.Fatalf("NewStore(empty path) error = %v, want CONFIG_ERROR", err)
	}
}
