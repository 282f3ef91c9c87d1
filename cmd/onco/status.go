package main

import (
	"github.com/spf13/cobra"

	"github.com/oncoscout/oncoscout/internal/config"
	"github.com/oncoscout/oncoscout/internal/evidence"
	"github.com/oncoscout/oncoscout/internal/storage"
	"github.com/oncoscout/oncoscout/internal/vecindex"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show repository statistics",
	RunE:  runStatus,
}

// RepoStatus summarizes the repository for status output.
type RepoStatus struct {
	Papers        int                  `json:"papers"`
	Chunks        int                  `json:"chunks"`
	ActiveFacts   int                  `json:"active_facts"`
	OpenConflicts int                  `json:"open_conflicts"`
	Index         *vecindex.Stats      `json:"index,omitempty"`
	AdapterRuns   []storage.AdapterRun `json:"adapter_runs,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	db := mustOpenDatabase(root)
	defer db.Close()

	var status RepoStatus
	var err error
	if status.Papers, err = db.CountPapers(); err != nil {
		exitWithError(ExitError, "counting papers: %v", err)
	}
	if status.Chunks, err = db.CountChunks(); err != nil {
		exitWithError(ExitError, "counting chunks: %v", err)
	}
	if status.ActiveFacts, err = db.CountActiveFacts(); err != nil {
		exitWithError(ExitError, "counting facts: %v", err)
	}
	conflicts, err := db.ListConflicts(storage.ResolutionUnresolved)
	if err != nil {
		exitWithError(ExitError, "listing conflicts: %v", err)
	}
	status.OpenConflicts = len(conflicts)

	if idx, err := vecindex.Load(config.CachePath(root)); err == nil {
		stats := idx.Stats()
		status.Index = &stats
	}
	for _, source := range []string{evidence.SourceDependency, evidence.SourceMutation,
		evidence.SourceSurvival, evidence.SourceExpression, evidence.SourceStructure,
		evidence.SourceCompound, evidence.SourcePathway} {
		run, err := db.LatestAdapterRun(source)
		if err == nil && run != nil {
			status.AdapterRuns = append(status.AdapterRuns, *run)
		}
	}

	if humanOutput {
		outputHuman("Papers:         %d\n", status.Papers)
		outputHuman("Chunks:         %d\n", status.Chunks)
		outputHuman("Active facts:   %d\n", status.ActiveFacts)
		outputHuman("Open conflicts: %d\n", status.OpenConflicts)
		if status.Index != nil {
			outputHuman("Index:          %d chunks (%s, %dd)\n",
				status.Index.ChunkCount, status.Index.ModelName, status.Index.Dimensions)
		}
		for _, run := range status.AdapterRuns {
			outputHuman("Evidence:       %s %s (%d rows)\n", run.Source, run.Version, run.RowCount)
		}
	} else {
		outputJSON(status)
	}
	return nil
}
