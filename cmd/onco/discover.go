package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oncoscout/oncoscout/internal/config"
	"github.com/oncoscout/oncoscout/internal/embedding"
	"github.com/oncoscout/oncoscout/internal/extract"
	"github.com/oncoscout/oncoscout/internal/ingest"
	"github.com/oncoscout/oncoscout/internal/ingest/sources"
)

var (
	discoverGene     string
	discoverAliases  []string
	discoverMutation string
	discoverCancer   string
	discoverMax      int
	discoverFromYear int
	discoverToYear   int
	discoverSources  []string
	discoverNoEmbed  bool
)

func init() {
	discoverCmd.Flags().StringVar(&discoverGene, "gene", "", "Gene symbol or HGNC id (required)")
	discoverCmd.Flags().StringSliceVar(&discoverAliases, "alias", nil, "Extra gene alias to search (repeatable)")
	discoverCmd.Flags().StringVar(&discoverMutation, "mutation", "", "Mutation notation, e.g. G12D")
	discoverCmd.Flags().StringVar(&discoverCancer, "cancer", "", "Cancer type name or OncoTree code (required)")
	discoverCmd.Flags().IntVar(&discoverMax, "max", ingest.DefaultMaxPapers, "Maximum papers to ingest")
	discoverCmd.Flags().IntVar(&discoverFromYear, "from-year", 0, "Only papers published from this year")
	discoverCmd.Flags().IntVar(&discoverToYear, "to-year", 0, "Only papers published up to this year")
	discoverCmd.Flags().StringSliceVar(&discoverSources, "source", nil, "Restrict to a configured source (repeatable)")
	discoverCmd.Flags().BoolVar(&discoverNoEmbed, "no-embed", false, "Skip the embedding stage")
	discoverCmd.MarkFlagRequired("gene")
	discoverCmd.MarkFlagRequired("cancer")
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a literature discovery pipeline for a gene-cancer pair",
	Long: `Run a literature discovery pipeline for a gene-cancer pair.

Expands the request through the entity catalog (aliases, mutation
notations, cancer subtypes), searches every enabled source, deduplicates,
fetches the best available full text, chunks, embeds, and extracts entity
mentions.

Examples:
  onco discover --gene KRAS --mutation G12D --cancer "pancreatic cancer"
  onco discover --gene WRN --cancer COADREAD --from-year 2019 --max 100`,
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	logger := newLogger()
	cat, tree := mustLoadCatalog(db)
	idx := mustOpenIndex(root, cfg)

	var srcs []ingest.Searcher
	var europepmc *sources.EuropePMC
	for _, name := range cfg.Sources {
		switch name {
		case "pubmed":
			srcs = append(srcs, sources.NewPubMed(cfg.RateLimit(name)))
		case "europepmc":
			europepmc = sources.NewEuropePMC(cfg.RateLimit(name))
			srcs = append(srcs, europepmc)
		case "biorxiv":
			srcs = append(srcs, sources.NewBioRxiv(cfg.RateLimit(name)))
		case "crossref":
			srcs = append(srcs, sources.NewCrossref(cfg.RateLimit(name)))
		case "semanticscholar":
			srcs = append(srcs, sources.NewSemanticScholar(cfg.RateLimit(name)))
		default:
			logger.Warn("unknown source in config", "source", name)
		}
	}

	chunker, err := ingest.NewChunker()
	if err != nil {
		exitWithError(ExitError, "building chunker: %v", err)
	}

	var fetcher *ingest.Fetcher
	if europepmc != nil {
		fetcher = ingest.NewFetcher(europepmc)
	} else {
		fetcher = ingest.NewFetcher(nil)
	}

	opts := []ingest.PipelineOption{
		ingest.WithParallelism(cfg.PipelineParallelism),
		ingest.WithExtractor(extract.New(cat)),
	}
	if !discoverNoEmbed {
		batcher := embedding.NewBatcher(newProvider(cfg), db, idx, cfg.EmbeddingBatchSize, logger)
		opts = append(opts, ingest.WithEmbedder(batcher))
	}

	pipeline := ingest.NewPipeline(db, cat, tree, srcs, fetcher, chunker, logger, opts...)

	run, err := pipeline.Discover(context.Background(), &ingest.Request{
		Gene:       discoverGene,
		Aliases:    discoverAliases,
		Mutation:   discoverMutation,
		CancerType: discoverCancer,
		MaxPapers:  discoverMax,
		FromYear:   discoverFromYear,
		ToYear:     discoverToYear,
		Sources:    discoverSources,
	})
	if err != nil {
		exitWithError(ExitError, "discovery failed: %v", err)
	}

	if err := idx.Save(config.CachePath(root)); err != nil {
		logger.Warn("saving index", "err", err)
	}

	if humanOutput {
		outputHuman("Discovery %s: %s\n", run.ID, run.Stage)
		outputHuman("  found %d, new %d, duplicates %d, failed %d\n",
			run.Found, run.New, run.Duplicates, run.Failed)
		outputHuman("  embedded %d chunks, extracted %d mentions\n", run.Embedded, run.Mentions)
	} else {
		outputJSON(run)
	}
	return nil
}
