// Package main is the entry point for the plancost CLI.
package main

import (
	"os"

	"plancost/cmd/cli/cmd"
	"plancost/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.ExitCode(err))
	}
}
