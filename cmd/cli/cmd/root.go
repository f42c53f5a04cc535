// Package cmd provides the CLI commands for plancost.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"plancost/internal/config"
	"plancost/internal/logging"
	"plancost/internal/term"
)

var (
	cfgFile string
	verbose bool
	noColor bool

	// ui is built in initConfig, before any RunE executes.
	ui *term.Writer
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "plancost",
	Short: "Estimate and optimize infrastructure costs from plan artifacts",
	Long: `plancost reads an infrastructure plan artifact and produces a monthly
cost report, with optional optimization recommendations and live
re-estimation.

Examples:
  plancost estimate-costs plan.json
  plancost estimate-costs --optimize --export json plan.json
  plancost estimate-costs --live --service compute plan.json
  plancost history list`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.plancost/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Add subcommands
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	ui = term.NewWriter(os.Stdout, noColor)

	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	config.Set(cfg)

	// Initialize logging
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("plancost version 0.1.0")
	},
}
