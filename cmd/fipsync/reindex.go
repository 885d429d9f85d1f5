package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func reindexCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from stored conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if state.cfg.MeiliURL == "" {
				return fmt.Errorf("search is not configured (set FIPSYNC_MEILI_URL)")
			}
			rt, err := buildRuntime(cmd.Context(), state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			total := 0
			for _, repo := range state.cfg.Repos() {
				conversations, err := rt.store.ListConversations(cmd.Context(), repo.String())
				if err != nil {
					return err
				}
				n, err := rt.search.ReindexAll(conversations)
				if err != nil {
					return fmt.Errorf("reindex %s: %w", repo, err)
				}
				state.logger.Info("reindexed", "repo", repo.String(), "conversations", n)
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d conversations\n", total)
			return nil
		},
	}
}
