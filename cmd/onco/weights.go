package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oncoscout/oncoscout/internal/feedback"
)

var (
	weightsCancer    string
	weightsValidated []string
	weightsReason    string
	weightsApprover  string
	weightsPending   bool
)

func init() {
	weightsProposeCmd.Flags().StringVar(&weightsCancer, "cancer", "", "Cancer type id to derive observations from (required)")
	weightsProposeCmd.Flags().StringSliceVar(&weightsValidated, "validated", nil, "Gene id confirmed by external validation (repeatable)")
	weightsProposeCmd.Flags().StringVar(&weightsReason, "reason", "", "Trigger reason for the proposal (required)")
	weightsProposeCmd.MarkFlagRequired("cancer")
	weightsProposeCmd.MarkFlagRequired("reason")

	weightsShowCmd.Flags().BoolVar(&weightsPending, "pending", false, "List pending proposals instead of active weights")

	weightsApproveCmd.Flags().StringVar(&weightsApprover, "by", "", "Reviewer name (required)")

	weightsCmd.AddCommand(weightsShowCmd, weightsProposeCmd, weightsApproveCmd)
	rootCmd.AddCommand(weightsCmd)
}

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Inspect and evolve the scoring weights",
}

var weightsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active weights or pending proposals",
	RunE:  runWeightsShow,
}

func runWeightsShow(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	if weightsPending {
		updates, err := db.ListWeightUpdates(true)
		if err != nil {
			exitWithError(ExitError, "listing proposals: %v", err)
		}
		if humanOutput {
			for _, u := range updates {
				outputHuman("%s %s\n  %s\n", u.ID, u.TriggerReason, u.DeltaSummary)
			}
		} else {
			outputJSON(updates)
		}
		return nil
	}

	logger := newLogger()
	graph := newGraph(db, mustOpenIndex(root, cfg), logger)
	weights, err := newEngine(db, graph, cfg, logger).Weights()
	if err != nil {
		exitWithError(ExitError, "resolving weights: %v", err)
	}

	if humanOutput {
		for name, w := range weights {
			outputHuman("%-24s %.3f\n", name, w)
		}
	} else {
		outputJSON(weights)
	}
	return nil
}

var weightsProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a bounded weight update from validation outcomes",
	Long: `Propose a bounded weight update from validation outcomes.

Builds one observation per scored candidate in the cohort, with outcome 1
for genes named --validated and 0 otherwise, then correlates component
scores against outcomes. The proposal is inert until a reviewer approves
it with weights approve.

Examples:
  onco weights propose --cancer PAAD --validated HGNC:6407 \
    --reason "wet-lab validation round 3"`,
	RunE: runWeightsPropose,
}

func runWeightsPropose(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	scores, err := db.CurrentScoresForCancer(weightsCancer)
	if err != nil {
		exitWithError(ExitError, "loading scores: %v", err)
	}
	if len(scores) == 0 {
		exitWithError(ExitDataError, "no scores for %s; run score run first", weightsCancer)
	}

	validated := make(map[string]bool, len(weightsValidated))
	for _, g := range weightsValidated {
		validated[g] = true
	}
	observations := make([]feedback.Observation, 0, len(scores))
	for _, s := range scores {
		outcome := 0.0
		if validated[s.GeneID] {
			outcome = 1.0
		}
		observations = append(observations, feedback.Observation{
			GeneID:     s.GeneID,
			CancerID:   s.CancerID,
			Components: s.Components,
			Outcome:    outcome,
		})
	}

	logger := newLogger()
	graph := newGraph(db, mustOpenIndex(root, cfg), logger)
	var opts []feedback.Option
	if cfg.Feedback.TargetSignal != "" {
		opts = append(opts, feedback.WithTargetSignal(cfg.Feedback.TargetSignal))
	}
	ctrl := feedback.NewController(db, graph, logger, opts...)

	update, err := ctrl.Propose(observations, weightsReason)
	if err != nil {
		exitWithError(ExitDataError, "proposing update: %v", err)
	}
	if update == nil {
		if humanOutput {
			outputHuman("No component cleared the correlation bands; weights unchanged\n")
		} else {
			outputJSON(StatusResponse{Status: "no_proposal"})
		}
		return nil
	}

	if humanOutput {
		outputHuman("Proposal %s (pending review)\n", update.ID)
		outputHuman("  %s\n", update.DeltaSummary)
		for _, imp := range update.Impact {
			outputHuman("  impact: %s in %s rank %d -> %d\n",
				imp.GeneID, imp.CancerID, imp.OldRank, imp.NewRank)
		}
	} else {
		outputJSON(update)
	}
	return nil
}

var weightsApproveCmd = &cobra.Command{
	Use:   "approve <update-id>",
	Short: "Approve a pending weight update and queue rescoring",
	Args:  cobra.ExactArgs(1),
	RunE:  runWeightsApprove,
}

func runWeightsApprove(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		exitWithError(ExitError, "invalid update id: %v", err)
	}
	if weightsApprover == "" {
		exitWithError(ExitRefused, "weight updates need a named reviewer; pass --by")
	}

	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	logger := newLogger()
	graph := newGraph(db, mustOpenIndex(root, cfg), logger)
	ctrl := feedback.NewController(db, graph, logger)

	queued, err := ctrl.Apply(id, weightsApprover)
	if err != nil {
		exitWithError(ExitDataError, "applying update: %v", err)
	}

	if humanOutput {
		outputHuman("Update %s applied by %s; %d pairs queued for rescoring\n", id, weightsApprover, queued)
		outputHuman("Run score run --drain to rescore\n")
	} else {
		outputJSON(map[string]any{"update_id": id, "approved_by": weightsApprover, "queued": queued})
	}
	return nil
}
