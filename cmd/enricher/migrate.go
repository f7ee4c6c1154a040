package main

import (
	"github.com/spf13/cobra"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/database"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
)

func migrateCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cmd.Context(), *envFile)
			if err != nil {
				return err
			}
			defer a.close()

			if err := database.Migrate(cmd.Context(), a.db.Pool); err != nil {
				a.log.Error("Migration failed", err, nil)
				return err
			}
			a.log.Info("Schema is up to date", logger.Fields{"database": a.cfg.Database.Name})
			return nil
		},
	}
}
