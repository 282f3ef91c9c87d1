package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oncoscout/oncoscout/internal/config"
	"github.com/oncoscout/oncoscout/internal/kg"
	"github.com/oncoscout/oncoscout/internal/storage"
)

var (
	kgSubject      string
	kgPredicate    string
	kgObject       string
	kgEvidence     string
	kgPMID         string
	kgDOI          string
	kgSourceDB     string
	kgStudyType    string
	kgSampleSize   int64
	kgReplicated   int
	kgHighImpact   bool
	kgPreprint     bool
	kgCellLineOnly bool
	kgDisputed     bool
	kgResolution   string
)

func init() {
	kgInsertCmd.Flags().StringVar(&kgSubject, "subject", "", "Subject entity id (required)")
	kgInsertCmd.Flags().StringVar(&kgPredicate, "predicate", "", "Predicate, e.g. inhibits or does_not_inhibit (required)")
	kgInsertCmd.Flags().StringVar(&kgObject, "object", "", "Object entity id (required)")
	kgInsertCmd.Flags().StringVar(&kgEvidence, "evidence", kg.EvidenceTextMined, "Evidence type")
	kgInsertCmd.Flags().StringVar(&kgPMID, "pmid", "", "Source PubMed id")
	kgInsertCmd.Flags().StringVar(&kgDOI, "doi", "", "Source DOI")
	kgInsertCmd.Flags().StringVar(&kgSourceDB, "source-db", "", "Source database record id")
	kgInsertCmd.Flags().StringVar(&kgStudyType, "study-type", "", "Study type annotation")
	kgInsertCmd.Flags().Int64Var(&kgSampleSize, "sample-size", 0, "Study sample size")
	kgInsertCmd.Flags().IntVar(&kgReplicated, "replicated", 0, "Number of independent replications")
	kgInsertCmd.Flags().BoolVar(&kgHighImpact, "high-impact", false, "High-impact venue")
	kgInsertCmd.Flags().BoolVar(&kgPreprint, "preprint", false, "Preprint-only evidence")
	kgInsertCmd.Flags().BoolVar(&kgCellLineOnly, "cell-line-only", false, "Cell-line-only evidence")
	kgInsertCmd.MarkFlagRequired("subject")
	kgInsertCmd.MarkFlagRequired("predicate")
	kgInsertCmd.MarkFlagRequired("object")

	kgShowCmd.Flags().BoolVar(&kgDisputed, "disputed", false, "Include disputed triples")
	kgResolveCmd.Flags().StringVar(&kgResolution, "resolution", "", "Resolution: disputed, resolved, or manual_review (required)")
	kgResolveCmd.MarkFlagRequired("resolution")

	kgCmd.AddCommand(kgInsertCmd, kgShowCmd, kgAggregateCmd, kgConflictsCmd, kgResolveCmd, kgRetractCmd)
	rootCmd.AddCommand(kgCmd)
}

var kgCmd = &cobra.Command{
	Use:   "kg",
	Short: "Inspect and update the knowledge graph",
}

var kgInsertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Assert a fact with its evidence provenance",
	Long: `Assert a fact with its evidence provenance.

The confidence is derived from the evidence type and study modifiers.
Conflicting assertions never block the insert; they append a conflict row.

Examples:
  onco kg insert --subject HGNC:6407 --predicate drives --object PAAD \
    --evidence in_vivo --pmid 12345678 --sample-size 1200`,
	RunE: runKGInsert,
}

func runKGInsert(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	logger := newLogger()
	graph := newGraph(db, mustOpenIndex(root, cfg), logger)

	a := &kg.Assertion{
		SubjectID:    kgSubject,
		Predicate:    kgPredicate,
		ObjectID:     kgObject,
		EvidenceType: kgEvidence,
		SourcePMID:   kgPMID,
		SourceDOI:    kgDOI,
		SourceDB:     kgSourceDB,
		StudyType:    kgStudyType,
		Modifiers: kg.Modifiers{
			ReplicatedCount: kgReplicated,
			HighImpact:      kgHighImpact,
			PreprintOnly:    kgPreprint,
			CellLineOnly:    kgCellLineOnly,
		},
	}
	if kgSampleSize > 0 {
		a.Modifiers.SampleSize = &kgSampleSize
	}

	fact, agg, err := graph.Assert(a)
	if err != nil {
		exitWithError(ExitDataError, "asserting fact: %v", err)
	}

	if humanOutput {
		outputHuman("Fact %s inserted (confidence %.3f)\n", fact.ID, fact.Confidence)
		outputHuman("Aggregate %s %s %s: %.3f (%s %s)\n",
			agg.Subject, agg.Predicate, agg.Object, agg.Confidence, agg.Status, agg.Direction)
	} else {
		outputJSON(map[string]any{"fact_id": fact.ID, "confidence": fact.Confidence, "aggregate": agg})
	}
	return nil
}

var kgShowCmd = &cobra.Command{
	Use:   "show <subject-id>",
	Short: "List aggregated triples for a subject",
	Args:  cobra.ExactArgs(1),
	RunE:  runKGShow,
}

func runKGShow(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	graph := newGraph(db, mustOpenIndex(root, cfg), newLogger())
	triples, err := graph.TriplesForSubject(args[0], kgDisputed)
	if err != nil {
		exitWithError(ExitError, "listing triples: %v", err)
	}
	if triples == nil {
		triples = []kg.Aggregate{}
	}

	if humanOutput {
		for _, tr := range triples {
			outputHuman("%s %s %s: %.3f (%s %s, +%d/-%d)\n",
				tr.Subject, tr.Predicate, tr.Object, tr.Confidence, tr.Status,
				tr.Direction, tr.Supporting, tr.Opposing)
		}
	} else {
		outputJSON(triples)
	}
	return nil
}

var kgAggregateCmd = &cobra.Command{
	Use:   "aggregate <subject-id> <predicate> <object-id>",
	Short: "Show the aggregated view of one triple",
	Args:  cobra.ExactArgs(3),
	RunE:  runKGAggregate,
}

func runKGAggregate(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	graph := newGraph(db, mustOpenIndex(root, cfg), newLogger())
	agg, err := graph.AggregateTriple(args[0], args[1], args[2])
	if err != nil {
		exitWithError(ExitError, "aggregating: %v", err)
	}

	if humanOutput {
		outputHuman("%s %s %s: %.3f (%s %s)\n",
			agg.Subject, agg.Predicate, agg.Object, agg.Confidence, agg.Status, agg.Direction)
	} else {
		outputJSON(agg)
	}
	return nil
}

var kgConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List open evidence conflicts",
	RunE:  runKGConflicts,
}

func runKGConflicts(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	db := mustOpenDatabase(root)
	defer db.Close()

	conflicts, err := db.ListConflicts(storage.ResolutionUnresolved)
	if err != nil {
		exitWithError(ExitError, "listing conflicts: %v", err)
	}
	if conflicts == nil {
		conflicts = []storage.Conflict{}
	}

	if humanOutput {
		for _, c := range conflicts {
			outputHuman("%s %s net %.3f (%s)\n", c.ID, c.ConflictType, c.NetConfidence, c.Resolution)
		}
	} else {
		outputJSON(conflicts)
	}
	return nil
}

var kgResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Record a resolution for a conflict",
	Args:  cobra.ExactArgs(1),
	RunE:  runKGResolve,
}

func runKGResolve(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		exitWithError(ExitError, "invalid conflict id: %v", err)
	}

	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	graph := newGraph(db, mustOpenIndex(root, cfg), newLogger())
	if err := graph.ResolveConflict(id, kgResolution); err != nil {
		exitWithError(ExitDataError, "resolving conflict: %v", err)
	}

	if humanOutput {
		outputHuman("Conflict %s resolved: %s\n", id, kgResolution)
	} else {
		outputJSON(StatusResponse{Status: "resolved", Detail: kgResolution})
	}
	return nil
}

var kgRetractCmd = &cobra.Command{
	Use:   "retract <pmid>",
	Short: "Cascade a paper retraction through the graph",
	Long: `Cascade a paper retraction through the graph.

Supersedes every live fact derived from the paper with a zero-confidence
replacement, removes the paper's chunks from the vector index, and queues
every dependent target for rescoring.`,
	Args: cobra.ExactArgs(1),
	RunE: runKGRetract,
}

func runKGRetract(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	idx := mustOpenIndex(root, cfg)
	graph := newGraph(db, idx, newLogger())
	n, err := graph.RetractPaper(args[0])
	if err != nil {
		exitWithError(ExitError, "retracting: %v", err)
	}
	if err := idx.Save(config.CachePath(root)); err != nil {
		newLogger().Warn("saving index", "err", err)
	}

	if humanOutput {
		outputHuman("Retracted pmid %s: %d facts superseded\n", args[0], n)
	} else {
		outputJSON(map[string]any{"pmid": args[0], "facts_superseded": n})
	}
	return nil
}
