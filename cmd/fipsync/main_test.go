package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fipsync/internal/app"
	"fipsync/internal/store"
)

// setEnv points the CLI at a throwaway SQLite database.
func setEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "fipsync.db")
	t.Setenv("FIPSYNC_CONFIG", "")
	t.Setenv("FIPSYNC_REPO_OWNER", "filecoin-project")
	t.Setenv("FIPSYNC_REPO_NAME", "FIPs")
	t.Setenv("FIPSYNC_DATABASE_DRIVER", "sqlite")
	t.Setenv("FIPSYNC_DATABASE_URL", dbPath)
	t.Setenv("FIPSYNC_MEILI_URL", "")
	t.Setenv("MEILI_URL", "")
	t.Setenv("FIPSYNC_MINIO_ENDPOINT", "")
	return dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level   string
		format  string
		enabled slog.Level
		json    bool
	}{
		{level: "debug", format: "text", enabled: slog.LevelDebug},
		{level: "warn", format: "json", enabled: slog.LevelWarn, json: true},
		{level: "", format: "text", enabled: slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.level, tt.format)
			assert.True(t, logger.Enabled(context.Background(), tt.enabled))
			assert.False(t, logger.Enabled(context.Background(), tt.enabled-1))

			logger.Log(context.Background(), tt.enabled, "hello", "k", "v")
			assert.Equal(t, tt.json, strings.HasPrefix(buf.String(), "{"), buf.String())
		})
	}
}

func TestWriteOutput(t *testing.T) {
	summary := app.Summary{ExistingDocuments: 3, OpenRequests: 2, RecordsCreated: 1, Requests: 2}

	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "yaml", summary))
	assert.Contains(t, buf.String(), "existingDocuments: 3\n")
	assert.Contains(t, buf.String(), "totalRequests: 2\n")

	buf.Reset()
	require.NoError(t, writeOutput(&buf, "json", summary))
	assert.Contains(t, buf.String(), `"recordsCreated": 1`)
}

func TestMigrateCommand(t *testing.T) {
	setEnv(t)
	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "migrations applied (sqlite)\n", out)

	// a second run finds nothing pending
	_, err = execute(t, "migrate")
	require.NoError(t, err)
}

func TestToggleCommand(t *testing.T) {
	dbPath := setEnv(t)
	ctx := context.Background()

	db, err := store.Open(ctx, store.SQLite, dbPath)
	require.NoError(t, err)
	migrations, err := store.Migrations(store.SQLite, "")
	require.NoError(t, err)
	require.NoError(t, store.ApplyMigrations(ctx, db, store.SQLite, migrations))
	st := store.NewSQLStore(db, store.SQLite)
	user, err := st.GetOrCreateUserByGitHubUsername(ctx, "alice")
	require.NoError(t, err)
	_, inserted, err := st.InsertConversation(ctx,
		store.PRFields{TrackedRepo: "filecoin-project/FIPs", PRNumber: 7, OwnerUID: user.UID, IsActive: true},
		store.FIPFields{FIPNumber: 99, FIPTitle: "Example proposal"},
	)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, db.Close())

	out, err := execute(t, "toggle", "7", "--enabled=false")
	require.NoError(t, err)
	assert.Equal(t, "filecoin-project/FIPs#7 sync_enabled=false\n", out)

	db, err = store.Open(ctx, store.SQLite, dbPath)
	require.NoError(t, err)
	defer db.Close()
	conv, err := store.NewSQLStore(db, store.SQLite).FindByPRNumber(ctx, "filecoin-project/FIPs", 7)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.False(t, conv.SyncEnabled)
}

func TestToggleCommandErrors(t *testing.T) {
	setEnv(t)

	_, err := execute(t, "toggle", "abc")
	assert.ErrorContains(t, err, "invalid pull request number")

	_, err = execute(t, "toggle", "8", "--repo", "filecoin-project/FRCs")
	assert.ErrorContains(t, err, "no conversation for filecoin-project/FRCs#8")

	_, err = execute(t, "toggle", "8", "--repo", "not-a-repo")
	assert.ErrorContains(t, err, "--repo")
}

func TestSyncCommandFlags(t *testing.T) {
	setEnv(t)

	_, err := execute(t, "sync", "--all", "--repo", "filecoin-project/FIPs")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = execute(t, "sync", "--format", "xml")
	assert.ErrorContains(t, err, "unknown --format")
}

func TestOptionalBackendsRequireConfiguration(t *testing.T) {
	setEnv(t)

	_, err := execute(t, "reindex")
	assert.ErrorContains(t, err, "search is not configured")

	_, err = execute(t, "archive", "get", "some/key")
	assert.ErrorContains(t, err, "archive is not configured")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	setEnv(t)
	t.Setenv("FIPSYNC_GIT_BACKEND", "svn")

	_, err := execute(t, "migrate")
	assert.ErrorContains(t, err, "git_backend")
}

func TestRuntimeClosesInReverseOrder(t *testing.T) {
	var order []string
	rt := &runtime{}
	rt.onClose(func() error {
		order = append(order, "meili")
		return nil
	})
	rt.onClose(func() error {
		order = append(order, "flush")
		return assert.AnError
	})

	err := rt.Close()
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"flush", "meili"}, order)
	assert.NoError(t, rt.Close())
}
