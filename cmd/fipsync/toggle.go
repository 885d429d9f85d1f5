package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func toggleCmd(state *cliState) *cobra.Command {
	var (
		repo    string
		enabled bool
	)
	cmd := &cobra.Command{
		Use:   "toggle <pr-number>",
		Short: "Opt a conversation in or out of automatic sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[0])
			if err != nil || number <= 0 {
				return fmt.Errorf("invalid pull request number %q", args[0])
			}
			target, err := repoFlag(state, repo)
			if err != nil {
				return err
			}

			db, st, err := openStore(cmd.Context(), state.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			found, err := st.SetSyncEnabled(cmd.Context(), target.String(), number, enabled)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no conversation for %s#%d", target, number)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s#%d sync_enabled=%t\n", target, number, enabled)
			return nil
		},
	}
	cmd.Flags().StringVar(&repo, "repo", "", "repository as owner/name (default: the configured repository)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "whether the sync may overwrite the conversation")
	return cmd
}
