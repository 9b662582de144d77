// Package main provides the spatialquery command: an HTTP service and a
// one-shot CLI for relation queries between GeoPackage layers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by the linker.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "spatialquery %s (commit %s, built %s)\n", version, commit, buildDate)
	},
}
