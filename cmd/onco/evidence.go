package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oncoscout/oncoscout/internal/evidence"
)

var (
	evidenceBaseURL string
	evidenceOnly    []string
)

func init() {
	evidencePullCmd.Flags().StringVar(&evidenceBaseURL, "base-url", "", "Evidence service base URL (default: config evidence.base_url)")
	evidencePullCmd.Flags().StringSliceVar(&evidenceOnly, "only", nil, "Sync only these sources (repeatable)")

	evidenceCmd.AddCommand(evidencePullCmd)
	rootCmd.AddCommand(evidenceCmd)
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Sync structured evidence sources",
}

var evidencePullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull every structured evidence dataset",
	Long: `Pull every structured evidence dataset.

Replaces the dependency, mutation frequency, survival, expression,
structure, compound, and pathway tables from the configured evidence
service. A failing source is recorded and skipped; the rest still sync.

Examples:
  onco evidence pull
  onco evidence pull --only dependency --only structure`,
	RunE: runEvidencePull,
}

func runEvidencePull(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	baseURL := evidenceBaseURL
	if baseURL == "" {
		baseURL = cfg.Evidence.BaseURL
	}
	if baseURL == "" {
		exitWithError(ExitConfigError, "no evidence base URL; set evidence.base_url or pass --base-url")
	}

	builders := map[string]func(string, float64, ...evidence.Option) evidence.Adapter{
		evidence.SourceDependency: evidence.NewDependencyAdapter,
		evidence.SourceMutation:   evidence.NewMutationAdapter,
		evidence.SourceSurvival:   evidence.NewSurvivalAdapter,
		evidence.SourceExpression: evidence.NewExpressionAdapter,
		evidence.SourceStructure:  evidence.NewStructureAdapter,
		evidence.SourceCompound:   evidence.NewCompoundAdapter,
		evidence.SourcePathway:    evidence.NewPathwayAdapter,
	}
	order := []string{
		evidence.SourceDependency, evidence.SourceMutation, evidence.SourceSurvival,
		evidence.SourceExpression, evidence.SourceStructure, evidence.SourceCompound,
		evidence.SourcePathway,
	}

	wanted := make(map[string]bool, len(evidenceOnly))
	for _, name := range evidenceOnly {
		if _, ok := builders[name]; !ok {
			exitWithError(ExitError, "unknown evidence source %q", name)
		}
		wanted[name] = true
	}

	var adapters []evidence.Adapter
	for _, name := range order {
		if len(wanted) > 0 && !wanted[name] {
			continue
		}
		adapters = append(adapters, builders[name](baseURL, evidence.DefaultRateLimit))
	}

	svc := evidence.NewService(db, newLogger(), adapters...)
	results := svc.SyncAll(context.Background())

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	if humanOutput {
		for _, r := range results {
			if r.Error != "" {
				outputHuman("%-20s FAILED: %s\n", r.Source, r.Error)
			} else {
				outputHuman("%-20s %d rows\n", r.Source, r.Rows)
			}
		}
	} else {
		outputJSON(results)
	}

	if failed == len(results) {
		exitWithError(ExitDataError, "every evidence source failed")
	}
	return nil
}
