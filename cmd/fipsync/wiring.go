package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"fipsync/internal/app"
	"fipsync/internal/archive"
	"fipsync/internal/config"
	"fipsync/internal/events"
	"fipsync/internal/github"
	"fipsync/internal/metrics"
	"fipsync/internal/runstate"
	"fipsync/internal/search"
	"fipsync/internal/store"
	"fipsync/internal/vcs"
)

// runtime holds the process-wide dependencies and closes them in reverse
// order of construction.
type runtime struct {
	db      *sql.DB
	store   *store.SQLStore
	service *app.Service
	search  *search.Service
	archive *archive.Archive
	closers []func() error
}

func (r *runtime) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// openStore connects to the configured database and applies pending
// migrations.
func openStore(ctx context.Context, cfg config.Config) (*sql.DB, *store.SQLStore, error) {
	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	migrations, err := store.Migrations(dialect, cfg.MigrationsDir)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := store.ApplyMigrations(ctx, db, dialect, migrations); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return db, store.NewSQLStore(db, dialect), nil
}

func newGit(cfg config.Config, logger *slog.Logger) vcs.Git {
	if cfg.GitBackend == "native" {
		return vcs.NewNative(cfg.GitTimeout)
	}
	return vcs.NewCLI(cfg.GitTimeout, logger)
}

// buildRuntime wires every configured backend. Optional backends are left
// out of app.Deps entirely when their URL is empty.
func buildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	db, st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.db = db
	rt.store = st
	rt.onClose(db.Close)

	client, err := github.New(cfg.GitHubToken, cfg.GitHubAPIURL)
	if err != nil {
		return nil, err
	}

	deps := app.Deps{
		Store:    st,
		Requests: client,
		Git:      newGit(cfg, logger),
		Metrics:  metrics.New(),
		Logger:   logger,
	}

	if cfg.RedisURL != "" {
		runs, err := runstate.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rt.onClose(runs.Close)
		deps.Runs = runs
	}

	if cfg.MeiliURL != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		rt.onClose(func() error {
			meili.Close()
			return nil
		})
		rt.search = search.NewService(meili, logger)
		// closers run in reverse, so pending index writes finish before meili closes
		rt.onClose(func() error {
			rt.search.Flush()
			return nil
		})
		deps.Search = rt.search
	}

	if cfg.MinioEndpoint != "" {
		arc, err := archive.New(ctx, archive.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		rt.archive = arc
		deps.Archive = arc
	}

	if cfg.NATSURL != "" {
		pub, err := events.Connect(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		rt.onClose(pub.Close)
		deps.Events = pub
	}

	rt.service = app.New(cfg, deps)
	return rt, nil
}
