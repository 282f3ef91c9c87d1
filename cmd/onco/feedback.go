package main

import (
	"github.com/spf13/cobra"

	"github.com/oncoscout/oncoscout/internal/feedback"
	"github.com/oncoscout/oncoscout/internal/storage"
)

var (
	feedbackType      string
	feedbackMetric    string
	feedbackValue     float64
	feedbackGene      string
	feedbackCancer    string
	feedbackSource    string
	feedbackLimit     int
	feedbackValidated []string
	feedbackTopN      int
	feedbackRecordIt  bool
)

func init() {
	feedbackRecordCmd.Flags().StringVar(&feedbackType, "type", storage.EventValidation, "Event type: benchmark, validation, or literature")
	feedbackRecordCmd.Flags().StringVar(&feedbackMetric, "metric", "", "Metric name, e.g. recall_at_n (required)")
	feedbackRecordCmd.Flags().Float64Var(&feedbackValue, "value", 0, "Metric value (required)")
	feedbackRecordCmd.Flags().StringVar(&feedbackGene, "gene", "", "Gene id the outcome concerns")
	feedbackRecordCmd.Flags().StringVar(&feedbackCancer, "cancer", "", "Cancer type id the outcome concerns")
	feedbackRecordCmd.Flags().StringVar(&feedbackSource, "source", "", "Evidence source, e.g. a trial registry id")
	feedbackRecordCmd.MarkFlagRequired("metric")
	feedbackRecordCmd.MarkFlagRequired("value")

	feedbackListCmd.Flags().StringVar(&feedbackMetric, "metric", "", "Only events for this metric")
	feedbackListCmd.Flags().IntVar(&feedbackLimit, "limit", 20, "Maximum events to return")

	feedbackMetricsCmd.Flags().StringVar(&feedbackCancer, "cancer", "", "Cancer type id (required)")
	feedbackMetricsCmd.Flags().StringSliceVar(&feedbackValidated, "validated", nil, "Gene id confirmed by validation (repeatable, required)")
	feedbackMetricsCmd.Flags().IntVar(&feedbackTopN, "n", 10, "Ranking depth for recall")
	feedbackMetricsCmd.Flags().BoolVar(&feedbackRecordIt, "record", false, "Also record the metric as a benchmark event")
	feedbackMetricsCmd.MarkFlagRequired("cancer")
	feedbackMetricsCmd.MarkFlagRequired("validated")

	feedbackCmd.AddCommand(feedbackRecordCmd, feedbackListCmd, feedbackMetricsCmd)
	rootCmd.AddCommand(feedbackCmd)
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record and inspect outcome signals",
}

var feedbackRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one outcome signal",
	Long: `Record one outcome signal.

Outcome signals are benchmark metrics, external validation results, and
literature confirmations. They accumulate until a weight proposal
correlates them against component scores.

Examples:
  onco feedback record --type benchmark --metric recall_at_n --value 0.7
  onco feedback record --type validation --metric binding_affinity_r \
    --value 0.82 --gene HGNC:6407 --cancer PAAD`,
	RunE: runFeedbackRecord,
}

func runFeedbackRecord(cmd *cobra.Command, args []string) error {
	switch feedbackType {
	case storage.EventBenchmark, storage.EventValidation, storage.EventLiterature:
	default:
		exitWithError(ExitError, "unknown event type %q", feedbackType)
	}

	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	logger := newLogger()
	graph := newGraph(db, mustOpenIndex(root, cfg), logger)
	ctrl := feedback.NewController(db, graph, logger)

	event := &storage.FeedbackEvent{
		EventType:      feedbackType,
		MetricName:     feedbackMetric,
		MetricValue:    feedbackValue,
		GeneID:         feedbackGene,
		CancerID:       feedbackCancer,
		EvidenceSource: feedbackSource,
	}
	if err := ctrl.Record(event); err != nil {
		exitWithError(ExitError, "recording event: %v", err)
	}

	if humanOutput {
		outputHuman("Recorded %s %s=%.3f (%s)\n", event.EventType, event.MetricName, event.MetricValue, event.ID)
	} else {
		outputJSON(event)
	}
	return nil
}

var feedbackMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Compute recall over the current ranking",
	Long: `Compute recall over the current ranking.

Takes the current confidence-adjusted ranking for a cancer and a list of
externally validated genes and reports how many of them land in the top
N. With --record the value is also appended as a benchmark event.

Examples:
  onco feedback metrics --cancer PAAD --validated HGNC:6407 --n 10
  onco feedback metrics --cancer PAAD --validated HGNC:6407 --record`,
	RunE: runFeedbackMetrics,
}

func runFeedbackMetrics(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	scores, err := db.CurrentScoresForCancer(feedbackCancer)
	if err != nil {
		exitWithError(ExitError, "loading scores: %v", err)
	}
	if len(scores) == 0 {
		exitWithError(ExitDataError, "no scores for %s; run score run first", feedbackCancer)
	}

	ranked := make([]string, len(scores))
	for i, s := range scores {
		ranked[i] = s.GeneID
	}
	validated := make(map[string]bool, len(feedbackValidated))
	for _, g := range feedbackValidated {
		validated[g] = true
	}

	recall, err := feedback.RecallAtN(ranked, validated, feedbackTopN)
	if err != nil {
		exitWithError(ExitDataError, "computing recall: %v", err)
	}

	if feedbackRecordIt {
		logger := newLogger()
		graph := newGraph(db, mustOpenIndex(root, cfg), logger)
		ctrl := feedback.NewController(db, graph, logger)
		err := ctrl.Record(&storage.FeedbackEvent{
			EventType:   storage.EventBenchmark,
			MetricName:  feedback.MetricRecallAtN,
			MetricValue: recall,
			CancerID:    feedbackCancer,
		})
		if err != nil {
			exitWithError(ExitError, "recording event: %v", err)
		}
	}

	if humanOutput {
		outputHuman("recall@%d = %.3f (%d validated, %d ranked)\n",
			feedbackTopN, recall, len(validated), len(ranked))
	} else {
		outputJSON(map[string]any{
			"metric":    feedback.MetricRecallAtN,
			"n":         feedbackTopN,
			"value":     recall,
			"validated": len(validated),
			"ranked":    len(ranked),
			"recorded":  feedbackRecordIt,
		})
	}
	return nil
}

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded outcome signals, newest first",
	RunE:  runFeedbackList,
}

func runFeedbackList(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	db := mustOpenDatabase(root)
	defer db.Close()

	events, err := db.ListFeedbackEvents(feedbackMetric, feedbackLimit)
	if err != nil {
		exitWithError(ExitError, "listing events: %v", err)
	}
	if events == nil {
		events = []storage.FeedbackEvent{}
	}

	if humanOutput {
		for _, e := range events {
			outputHuman("%s %s %s=%.3f", e.RecordedAt.Format("2006-01-02"), e.EventType, e.MetricName, e.MetricValue)
			if e.GeneID != "" {
				outputHuman(" gene=%s", e.GeneID)
			}
			if e.CancerID != "" {
				outputHuman(" cancer=%s", e.CancerID)
			}
			outputHuman("\n")
		}
	} else {
		outputJSON(events)
	}
	return nil
}
