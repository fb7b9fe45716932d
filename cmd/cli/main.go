// Package main is the entry point for pdsactl, the operator tool for pdsa
// campaigns: catalog inspection, analysis reports and live status.
package main

import (
	"os"

	"pdsa/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
