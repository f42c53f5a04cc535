// Package cmd - history commands
package cmd

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"plancost/adapters/history"
	"plancost/core/report"
	"plancost/internal/config"
	"plancost/internal/errors"
)

var (
	historyLimit   int
	pruneOlderDays int
	pruneKeep      int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage recorded estimation runs",
	Long: `Inspect and manage recorded estimation runs.

Every successful run is recorded in a local SQLite database so cost
changes can be tracked across plan revisions.

Examples:
  plancost history list
  plancost history show 3f1c9a52-8f4e-4a6b-9c3d-2e7b51d0a914
  plancost history prune --older-than-days 30
  plancost history prune --keep 100`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a recorded report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old run records",
	RunE:  runHistoryPrune,
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list")
	historyPruneCmd.Flags().IntVar(&pruneOlderDays, "older-than-days", 0, "delete runs older than this many days (defaults to history.retention_days)")
	historyPruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "additionally keep only the newest N runs")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyPruneCmd)
}

func openHistory() (*history.Store, error) {
	cfg := config.Get()
	if !cfg.History.Enabled {
		return nil, errors.New(errors.TypeConfig, "run history is disabled in config")
	}
	return history.NewStore(history.DefaultConfig(cfg.History.Path))
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := store.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		ui.Println("No runs recorded.")
		return nil
	}

	table := ui.NewTable("RUN ID", "GENERATED", "TOTAL", "RESOURCES", "RECS", "SAVINGS", "PLAN")
	for _, e := range entries {
		table.AddRow(
			e.RunID,
			e.GeneratedAt.Local().Format("2006-01-02 15:04:05"),
			"$"+e.Total.StringFixed(2),
			strconv.Itoa(e.Resources),
			strconv.Itoa(e.Recommendations),
			"$"+e.ProjectedSavings.StringFixed(2),
			e.PlanPath,
		)
	}
	table.Render()
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rep, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return report.Export(os.Stdout, rep, report.FormatJSON)
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	days := pruneOlderDays
	if days <= 0 {
		days = config.Get().History.RetentionDays
	}

	var deleted int64
	if days > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		n, err := store.PruneOlderThan(ctx, cutoff)
		if err != nil {
			return err
		}
		deleted += n
	}
	if pruneKeep > 0 {
		n, err := store.PruneToCount(ctx, int64(pruneKeep))
		if err != nil {
			return err
		}
		deleted += n
	}

	ui.Success("Deleted %d run records.", deleted)
	return nil
}
