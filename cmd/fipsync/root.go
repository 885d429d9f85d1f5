package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"fipsync/internal/config"
)

// cliState is filled by the root command before any subcommand runs.
type cliState struct {
	cfg    config.Config
	logger *slog.Logger
}

func rootCmd() *cobra.Command {
	state := &cliState{}
	var logLevel string

	cmd := &cobra.Command{
		Use:           "fipsync",
		Short:         "Reconcile FIP pull requests into Metropolis conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			state.cfg = cfg
			state.logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(state.logger)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(state),
		syncCmd(state),
		migrateCmd(state),
		toggleCmd(state),
		reindexCmd(state),
		archiveCmd(state),
	)
	return cmd
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func repoFlag(state *cliState, value string) (config.RepoRef, error) {
	if value == "" {
		return config.RepoRef{Owner: state.cfg.RepoOwner, Name: state.cfg.RepoName}, nil
	}
	repo, err := config.ParseRepoRef(value)
	if err != nil {
		return config.RepoRef{}, fmt.Errorf("--repo: %w", err)
	}
	return repo, nil
}
