package main

import (
	"context"

	"github.com/spf13/cobra"

	doc "github.com/oncoscout/oncoscout/internal/docstore"
)

var searchLimit int

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", doc.DefaultLimit, "Maximum results to return")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid search over indexed paper chunks",
	Long: `Hybrid search over indexed paper chunks.

Runs the query through both the vector index and the full-text index and
fuses the rankings with reciprocal rank fusion. Falls back to lexical-only
when the embedding backend is unreachable.

Examples:
  onco search "KRAS G12D synthetic lethality"
  onco search "WRN helicase microsatellite instability" --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	idx := mustOpenIndex(root, cfg)
	store := doc.New(db, idx, newProvider(cfg))

	results, err := store.Search(context.Background(), args[0], searchLimit)
	if err != nil {
		exitWithError(ExitError, "searching: %v", err)
	}
	if results == nil {
		results = []doc.Result{}
	}

	if humanOutput {
		if len(results) == 0 {
			outputHuman("No matching chunks\n")
			return nil
		}
		for i, r := range results {
			outputHuman("%d. [%.4f] %s (%s)\n", i+1, r.Score, truncateString(r.Title, 70), r.SectionType)
			outputHuman("   %s\n\n", r.Excerpt)
		}
	} else {
		outputJSON(results)
	}
	return nil
}
