package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func syncCmd(state *cliState) *cobra.Command {
	var (
		repo   string
		all    bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all && repo != "" {
				return fmt.Errorf("--repo and --all are mutually exclusive")
			}
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown --format %q (want json or yaml)", format)
			}

			rt, err := buildRuntime(cmd.Context(), state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if all {
				summaries, err := rt.service.SyncAll(cmd.Context())
				if werr := writeOutput(cmd.OutOrStdout(), format, summaries); werr != nil {
					return werr
				}
				return err
			}

			target, err := repoFlag(state, repo)
			if err != nil {
				return err
			}
			summary, err := rt.service.Sync(cmd.Context(), target)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), format, summary)
		},
	}
	cmd.Flags().StringVar(&repo, "repo", "", "repository to sync as owner/name (default: the configured repository)")
	cmd.Flags().BoolVar(&all, "all", false, "sync every configured repository")
	cmd.Flags().StringVar(&format, "format", "json", "output format (json or yaml)")
	return cmd
}

func writeOutput(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
