package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func archiveCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived proposal documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print an archived document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if state.cfg.MinioEndpoint == "" {
				return fmt.Errorf("archive is not configured (set FIPSYNC_MINIO_ENDPOINT)")
			}
			rt, err := buildRuntime(cmd.Context(), state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			content, err := rt.archive.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), content)
			return err
		},
	})
	return cmd
}
