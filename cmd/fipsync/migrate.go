package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := openStore(cmd.Context(), state.cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", state.cfg.DatabaseDriver)
			return nil
		},
	}
}
