package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghonijee/money-tracker-ai-agent/internal/logging"
	"github.com/ghonijee/money-tracker-ai-agent/persistence"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(globalCfg.LogLevel, globalCfg.LogFormat, cmd.ErrOrStderr())
			db, err := persistence.OpenAndMigrate(cmd.Context(), globalCfg.DatabasePath, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", globalCfg.DatabasePath)
			return nil
		},
	}
}
