// Package main provides the onco CLI entry point.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "onco",
	Short: "Agent-first oncology literature mining and target prioritization",
	Long: `onco mines oncology literature into a local evidence base and ranks
therapeutic targets from it.

It ingests papers from public sources, indexes them for hybrid search,
accumulates an append-only knowledge graph, and scores gene-cancer pairs
with a versioned nine-component model. All commands output JSON by
default for easy integration with AI agents and other tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}
