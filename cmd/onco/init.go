package main

import (
	"github.com/spf13/cobra"

	"github.com/oncoscout/oncoscout/internal/config"
	"github.com/oncoscout/oncoscout/internal/storage"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new oncoscout repository",
	Long: `Initialize a new oncoscout repository in the current directory.

Creates:
  .oncoscout/
  ├── config.yml      # Default config
  ├── oncoscout.db    # Embedded database
  └── cache/          # Vector index cache`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root := getRepoRoot()

	if _, err := config.Init(root); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	// Opening runs the schema migrations.
	db, err := storage.Open(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "creating database: %v", err)
	}
	db.Close()

	if humanOutput {
		outputHuman("Initialized oncoscout repository in %s\n", config.RepoPath(root))
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: config.RepoPath(root)})
	}
	return nil
}
