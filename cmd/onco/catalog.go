package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/oncoscout/oncoscout/internal/catalog"
	"github.com/oncoscout/oncoscout/internal/storage"
)

var (
	catalogType    string
	catalogName    string
	catalogAliases []string
)

func init() {
	catalogResolveCmd.Flags().StringVar(&catalogType, "type", string(catalog.TypeGene), "Entity type to resolve against")

	catalogRegisterCmd.Flags().StringVar(&catalogType, "type", string(catalog.TypeGene), "Entity type")
	catalogRegisterCmd.Flags().StringVar(&catalogName, "name", "", "Canonical display name (required)")
	catalogRegisterCmd.Flags().StringSliceVar(&catalogAliases, "alias", nil, "Alias (repeatable)")
	catalogRegisterCmd.MarkFlagRequired("name")

	catalogCmd.AddCommand(catalogResolveCmd, catalogRegisterCmd, catalogSubtreeCmd)
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Resolve and register canonical entities",
}

var catalogResolveCmd = &cobra.Command{
	Use:   "resolve <text>",
	Short: "Resolve free text to a canonical entity",
	Long: `Resolve free text to a canonical entity.

Matches canonical ids first, then names and aliases. Ambiguous symbols
return every candidate rather than guessing.

Examples:
  onco catalog resolve KRAS2
  onco catalog resolve --type cancer_type "pancreatic adenocarcinoma"`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogResolve,
}

func runCatalogResolve(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	db := mustOpenDatabase(root)
	defer db.Close()

	cat, _ := mustLoadCatalog(db)
	entity, candidates, err := cat.Resolve(catalog.EntityType(catalogType), args[0])
	if errors.Is(err, catalog.ErrAmbiguous) {
		if humanOutput {
			outputHuman("Ambiguous: %d candidates\n", len(candidates))
			for _, c := range candidates {
				outputHuman("  %s %s (%s)\n", c.CanonicalID, c.Name, c.Type)
			}
		} else {
			outputJSON(map[string]any{"ambiguous": true, "candidates": candidates})
		}
		return nil
	}
	if err != nil {
		exitWithError(ExitNotFound, "resolving %q: %v", args[0], err)
	}

	if humanOutput {
		outputHuman("%s %s (%s)\n", entity.CanonicalID, entity.Name, entity.Type)
		for _, a := range entity.Aliases {
			outputHuman("  alias: %s\n", a)
		}
	} else {
		outputJSON(entity)
	}
	return nil
}

var catalogRegisterCmd = &cobra.Command{
	Use:   "register <canonical-id>",
	Short: "Register an entity and persist it to the repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogRegister,
}

func runCatalogRegister(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	db := mustOpenDatabase(root)
	defer db.Close()

	cat, _ := mustLoadCatalog(db)
	entity := cat.RegisterOrGet(catalog.EntityType(catalogType), args[0], catalogName, catalogAliases, nil)

	id, err := db.UpsertEntity(&storage.EntityRow{
		ID:          entity.ID,
		CanonicalID: entity.CanonicalID,
		EntityType:  string(entity.Type),
		Name:        entity.Name,
		Aliases:     entity.Aliases,
		ExternalIDs: entity.ExternalIDs,
	})
	if err != nil {
		exitWithError(ExitError, "persisting entity: %v", err)
	}
	entity.ID = id

	if humanOutput {
		outputHuman("Registered %s %s (%s)\n", entity.CanonicalID, entity.Name, entity.Type)
	} else {
		outputJSON(entity)
	}
	return nil
}

var catalogSubtreeCmd = &cobra.Command{
	Use:   "subtree <oncotree-code>",
	Short: "List a cancer type and all of its subtypes",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogSubtree,
}

func runCatalogSubtree(cmd *cobra.Command, args []string) error {
	tree := catalog.DefaultOncoTree()
	codes := tree.Subtree(args[0])
	if len(codes) == 0 {
		exitWithError(ExitNotFound, "unknown OncoTree code %q", args[0])
	}

	if humanOutput {
		for _, code := range codes {
			node, _ := tree.Get(code)
			outputHuman("%-12s %s\n", code, node.Name)
		}
	} else {
		outputJSON(map[string]any{"code": args[0], "subtree": codes})
	}
	return nil
}
