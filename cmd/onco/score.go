package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oncoscout/oncoscout/internal/storage"
)

var (
	scoreCancer  string
	scoreGenes   []string
	scoreDrain   bool
	scoreHistory bool
)

func init() {
	scoreRunCmd.Flags().StringVar(&scoreCancer, "cancer", "", "Cancer type id, e.g. PAAD (required unless --drain)")
	scoreRunCmd.Flags().StringSliceVar(&scoreGenes, "gene", nil, "Gene ids to score (default: full dependency cohort)")
	scoreRunCmd.Flags().BoolVar(&scoreDrain, "drain", false, "Rescore every queued gene-cancer pair instead")

	scoreShowCmd.Flags().BoolVar(&scoreHistory, "history", false, "Show the full score version history")

	scoreCmd.AddCommand(scoreRunCmd, scoreShowCmd)
	rootCmd.AddCommand(scoreCmd)
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run and inspect target prioritization scores",
}

var scoreRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Score a cancer cohort",
	Long: `Score a cancer cohort.

Normalizes each evidence component across the cohort, applies the current
weights, and persists a new score version for every candidate whose inputs
changed. With --drain it instead rescores the pairs queued by knowledge
graph updates.

Examples:
  onco score run --cancer PAAD
  onco score run --cancer PAAD --gene HGNC:6407
  onco score run --drain`,
	RunE: runScoreRun,
}

func runScoreRun(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	logger := newLogger()
	graph := newGraph(db, mustOpenIndex(root, cfg), logger)
	engine := newEngine(db, graph, cfg, logger)
	ctx := context.Background()

	if scoreDrain {
		n, err := engine.DrainQueue(ctx)
		if err != nil {
			exitWithError(ExitError, "draining rescore queue: %v", err)
		}
		if humanOutput {
			outputHuman("Rescored %d queued pairs\n", n)
		} else {
			outputJSON(map[string]any{"rescored": n})
		}
		return nil
	}

	if scoreCancer == "" {
		exitWithError(ExitError, "either --cancer or --drain is required")
	}

	genes := scoreGenes
	if len(genes) == 0 {
		var err error
		if genes, err = engine.Cohort(scoreCancer); err != nil {
			exitWithError(ExitError, "loading cohort: %v", err)
		}
		if len(genes) == 0 {
			exitWithError(ExitDataError, "no dependency evidence for %s; run evidence pull first", scoreCancer)
		}
	}

	scores, err := engine.ScoreCohort(ctx, scoreCancer, genes)
	if err != nil {
		exitWithError(ExitError, "scoring cohort: %v", err)
	}

	if humanOutput {
		for i, s := range scores {
			outputHuman("%d. %s composite %.3f adjusted %.3f tier %s (v%d)\n",
				i+1, s.GeneID, s.Composite, s.ConfAdjusted, s.ShortlistTier, s.ScoreVersion)
		}
	} else {
		outputJSON(scores)
	}
	return nil
}

var scoreShowCmd = &cobra.Command{
	Use:   "show <gene-id> <cancer-id>",
	Short: "Show the current score for a gene-cancer pair",
	Args:  cobra.ExactArgs(2),
	RunE:  runScoreShow,
}

func runScoreShow(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	db := mustOpenDatabase(root)
	defer db.Close()

	if scoreHistory {
		history, err := db.ScoreHistory(args[0], args[1])
		if err != nil {
			exitWithError(ExitError, "loading score history: %v", err)
		}
		if len(history) == 0 {
			exitWithError(ExitNotFound, "no scores for %s in %s", args[0], args[1])
		}
		if humanOutput {
			for _, s := range history {
				printScore(&s)
			}
		} else {
			outputJSON(history)
		}
		return nil
	}

	score, err := db.CurrentScore(args[0], args[1])
	if err != nil {
		exitWithError(ExitError, "loading score: %v", err)
	}
	if score == nil {
		exitWithError(ExitNotFound, "no scores for %s in %s", args[0], args[1])
	}

	if humanOutput {
		printScore(score)
	} else {
		outputJSON(score)
	}
	return nil
}

func printScore(s *storage.TargetScore) {
	outputHuman("%s in %s (v%d, %s)\n", s.GeneID, s.CancerID, s.ScoreVersion, s.ScoredAt.Format("2006-01-02"))
	outputHuman("  composite %.3f  adjusted %.3f  penalty %.3f  tier %s\n",
		s.Composite, s.ConfAdjusted, s.Penalty, s.ShortlistTier)
	for name, val := range s.Components {
		outputHuman("  %-24s %.3f (w %.2f)\n", name, val, s.Weights[name])
	}
	for _, f := range s.Flags {
		outputHuman("  flag: %s\n", f)
	}
	for _, w := range s.Warnings {
		outputHuman("  warning: %s\n", w)
	}
}
