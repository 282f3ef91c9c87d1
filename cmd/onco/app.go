package main

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/oncoscout/oncoscout/internal/catalog"
	"github.com/oncoscout/oncoscout/internal/config"
	doc "github.com/oncoscout/oncoscout/internal/docstore"
	"github.com/oncoscout/oncoscout/internal/embedding"
	"github.com/oncoscout/oncoscout/internal/kg"
	"github.com/oncoscout/oncoscout/internal/planner"
	"github.com/oncoscout/oncoscout/internal/scoring"
	"github.com/oncoscout/oncoscout/internal/storage"
	"github.com/oncoscout/oncoscout/internal/vecindex"
)

// getRepoRoot returns the starting directory for repository discovery. The
// ONCO_ROOT environment variable overrides the working directory.
func getRepoRoot() string {
	if root := os.Getenv("ONCO_ROOT"); root != "" {
		return root
	}
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}
	return cwd
}

// mustFindRepository locates the repository root or exits.
func mustFindRepository() string {
	root, err := config.FindRepository(getRepoRoot())
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return root
}

// mustLoadConfig loads the repository configuration or exits.
func mustLoadConfig(root string) *config.Snapshot {
	cfg, err := config.Load(root)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustOpenDatabase opens the repository database or exits.
func mustOpenDatabase(root string) *storage.DB {
	db, err := storage.Open(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// newLogger builds the process logger. Verbosity comes from ONCO_LOG.
func newLogger() *log.Logger {
	logger := log.New(os.Stderr)
	if lvl, err := log.ParseLevel(os.Getenv("ONCO_LOG")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	return logger
}

// mustLoadCatalog builds the entity catalog: the bundled HGNC and OncoTree
// seeds plus every entity registered in this repository.
func mustLoadCatalog(db *storage.DB) (*catalog.Catalog, *catalog.OncoTree) {
	cat := catalog.New()
	catalog.LoadHGNC(cat)
	tree := catalog.DefaultOncoTree()
	catalog.LoadOncoTree(cat, tree)

	rows, err := db.ListEntities("")
	if err != nil {
		exitWithError(ExitError, "loading entities: %v", err)
	}
	for _, r := range rows {
		cat.RegisterOrGet(catalog.EntityType(r.EntityType), r.CanonicalID, r.Name, r.Aliases, r.ExternalIDs)
	}
	return cat, tree
}

// mustOpenIndex loads the persisted vector index, or starts an empty one
// matching the configured embedding setup.
func mustOpenIndex(root string, cfg *config.Snapshot) *vecindex.Index {
	idx, err := vecindex.Load(config.CachePath(root))
	if err == nil {
		return idx
	}
	return vecindex.New(cfg.Embedding.Model, cfg.EmbeddingDimension)
}

// newProvider builds the configured embedding provider.
func newProvider(cfg *config.Snapshot) embedding.Provider {
	return embedding.NewOllamaProvider(
		embedding.WithBaseURL(cfg.Embedding.BaseURL),
		embedding.WithModel(cfg.Embedding.Model),
		embedding.WithDimensions(cfg.EmbeddingDimension),
	)
}

// newGraph builds the knowledge graph over an open database.
func newGraph(db *storage.DB, idx *vecindex.Index, logger *log.Logger) *kg.Graph {
	return kg.New(db, idx, logger)
}

// newEngine builds the scoring engine with config weight overrides.
func newEngine(db *storage.DB, graph *kg.Graph, cfg *config.Snapshot, logger *log.Logger) *scoring.Engine {
	var opts []scoring.EngineOption
	if len(cfg.Scoring.Weights) > 0 {
		opts = append(opts, scoring.WithWeightOverrides(cfg.Scoring.Weights))
	}
	return scoring.NewEngine(db, graph, logger, opts...)
}

// newPlanner wires the full query path: storage, catalog, graph, engine, and
// the hybrid document store.
func newPlanner(root string, db *storage.DB, cfg *config.Snapshot, logger *log.Logger) *planner.Planner {
	cat, _ := mustLoadCatalog(db)
	idx := mustOpenIndex(root, cfg)
	graph := newGraph(db, idx, logger)
	engine := newEngine(db, graph, cfg, logger)
	store := doc.New(db, idx, newProvider(cfg))
	return planner.New(db, cat, graph, engine, store, logger)
}
