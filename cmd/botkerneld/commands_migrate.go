package main

import "github.com/spf13/cobra"

// buildMigrateCmd creates the "migrate" command that applies the storage
// schema (internal/storage.Schema) to the configured Postgres database.
func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the storage schema",
		Long: `Connect to the database named by DATABASE_URL / database.dsn and apply
every CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS statement in
the storage schema. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runMigrate(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
