package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oncoscout/oncoscout/internal/planner"
)

var (
	queryType          string
	queryGene          string
	queryCancer        string
	queryText          string
	queryTopN          int
	queryExcerpts      int
	queryMinStructural float64
	queryMaxInhibitors int
	queryMinConfidence float64
	queryIncludeExcl   bool
)

func init() {
	queryCmd.Flags().StringVar(&queryType, "type", planner.QueryTargetPrioritization, "Query type: target_prioritization, evidence_lookup, or similarity")
	queryCmd.Flags().StringVar(&queryGene, "gene", "", "Gene symbol or HGNC id")
	queryCmd.Flags().StringVar(&queryCancer, "cancer", "", "Cancer type name or OncoTree code")
	queryCmd.Flags().StringVar(&queryText, "text", "", "Free-text query for similarity and excerpt search")
	queryCmd.Flags().IntVar(&queryTopN, "top", planner.DefaultTopN, "Number of ranked targets to return")
	queryCmd.Flags().IntVar(&queryExcerpts, "excerpts", planner.DefaultExcerpts, "Supporting excerpts per target")
	queryCmd.Flags().Float64Var(&queryMinStructural, "min-structural", 0, "Structural tractability floor")
	queryCmd.Flags().IntVar(&queryMaxInhibitors, "max-inhibitors", 0, "Inhibitor saturation cap (0 = unlimited)")
	queryCmd.Flags().Float64Var(&queryMinConfidence, "min-confidence", 0, "Confidence-adjusted score floor")
	queryCmd.Flags().BoolVar(&queryIncludeExcl, "include-excluded", false, "Include hard-excluded targets")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(explainCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a structured query and emit a ranked, cited bundle",
	Long: `Run a structured query and emit a ranked, cited bundle.

Every factual claim in the output carries at least one traceable source id;
claims without one are tagged inferred with capped confidence.

Examples:
  onco query --cancer PAAD --top 5
  onco query --type evidence_lookup --gene KRAS
  onco query --type similarity --text "MTAP deletion PRMT5 vulnerability"`,
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	p := newPlanner(root, db, cfg, newLogger())
	bundle, err := p.Execute(context.Background(), planner.Query{
		Type:              queryType,
		Text:              queryText,
		Gene:              queryGene,
		CancerType:        queryCancer,
		TopN:              queryTopN,
		ExcerptsPerTarget: queryExcerpts,
		Constraints: planner.Constraints{
			MinStructural:   queryMinStructural,
			MaxInhibitors:   queryMaxInhibitors,
			MinConfidence:   queryMinConfidence,
			IncludeExcluded: queryIncludeExcl,
		},
	})
	if err != nil {
		exitWithError(ExitDataError, "query failed: %v", err)
	}

	if humanOutput {
		outputHuman("Query %s (overall confidence %.3f)\n", bundle.QueryID, bundle.OverallConfidence)
		for _, c := range bundle.Caveats {
			outputHuman("  caveat: %s\n", c)
		}
		for _, t := range bundle.RankedTargets {
			outputHuman("%d. %s (%s) composite %.3f adjusted %.3f tier %s\n",
				t.Rank, t.GeneSymbol, t.GeneID, t.CompositeScore, t.ConfidenceAdjustedScore, t.ShortlistTier)
		}
		for i, e := range bundle.Excerpts {
			outputHuman("%d. [%.4f] %s\n   %s\n", i+1, e.Score, truncateString(e.Title, 70), e.Excerpt)
		}
	} else {
		outputJSON(bundle)
	}
	return nil
}

var explainCmd = &cobra.Command{
	Use:   "explain <plan-id>",
	Short: "Show the execution plan of a previous query",
	Args:  cobra.ExactArgs(1),
	RunE:  runExplain,
}

func runExplain(cmd *cobra.Command, args []string) error {
	planID, err := uuid.Parse(args[0])
	if err != nil {
		exitWithError(ExitError, "invalid plan id: %v", err)
	}

	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	p := newPlanner(root, db, cfg, newLogger())
	plan, err := p.Explain(planID)
	if err != nil {
		exitWithError(ExitNotFound, "%v", err)
	}

	if humanOutput {
		outputHuman("Plan %s (%s)\n", plan.ID, plan.Query.Type)
		printPlanNode(plan.Root, "")
	} else {
		outputJSON(plan)
	}
	return nil
}

func printPlanNode(n *planner.PlanNode, indent string) {
	outputHuman("%s%s: %s\n", indent, n.Op, n.Detail)
	for _, child := range n.Children {
		printPlanNode(child, indent+"  ")
	}
}
