package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or verify the database schema",
	Long: `Applies the idempotent schema and checks that the stored embedding
width matches the configured dimensions.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dbCfg := postgres.DefaultConfig(cfg.Database.URL)
	dbCfg.Dimensions = cfg.AI.Embedding.Dimensions

	db, err := postgres.Connect(cmd.Context(), dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := db.InitSchema(cmd.Context()); err != nil {
		return err
	}
	cmd.Printf("schema ready (vector(%d))\n", db.Dimensions())
	return nil
}
