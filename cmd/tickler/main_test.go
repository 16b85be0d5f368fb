package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/tickler/config"
	"github.com/GoCodeAlone/tickler/remote"
	"github.com/GoCodeAlone/tickler/server"
)

// cliEnv is a running server plus a config file pointing the CLI at it.
type cliEnv struct {
	t          *testing.T
	configPath string
	store      *remote.SQLStore
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	for _, key := range []string{"TICKLER_TOKEN", "TICKLER_SERVER", "TICKLER_OWNER"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()

	store, err := remote.NewSQLiteStore(filepath.Join(dir, "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hash, err := server.HashPassword("secret")
	require.NoError(t, err)
	cfg := *config.DefaultConfig()
	cfg.Auth.JWTSecret = "cli-test-secret"
	cfg.Auth.Users = []config.UserConfig{{Username: "alice", PasswordHash: hash}}
	srv := server.New(cfg, "test", nil)
	srv.SetStore(store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	configPath := filepath.Join(dir, "tickler.yaml")
	yaml := fmt.Sprintf("data_dir: %s\nclient:\n  server_url: %s\n  cache_path: %s\n",
		filepath.Join(dir, "data"), ts.URL, filepath.Join(dir, "data", "cache.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o600))

	return &cliEnv{t: t, configPath: configPath, store: store}
}

// run executes one CLI invocation and returns its stdout.
func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath, "--env", filepath.Join(e.t.TempDir(), "none.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run("", args...)
	require.NoError(e.t, err, "tickler %s", strings.Join(args, " "))
	return out
}

func TestCLI_RequiresLogin(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestCLI_AddListCompleteSync(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("secret\n", "login", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as alice")

	env.mustRun("lists", "add", "Errands")
	out = env.mustRun("add", "Buy", "milk", "--list", "errands", "--at", "2026-01-31 08:00", "--freq", "monthly", "--priority", "high")
	assert.Contains(t, out, "Buy milk")

	remoteTasks, err := env.store.ListTasks(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, remoteTasks, 1, "the create is flushed before the command exits")
	assert.NotNil(t, remoteTasks[0].ListID)

	out = env.mustRun("ls", "--list", "Errands")
	assert.Contains(t, out, "Buy milk !!!")
	assert.Contains(t, out, "2026-01-31 08:00")

	id := remoteTasks[0].ID.String()
	out = env.mustRun("done", id)
	assert.Contains(t, out, "next run 2026-02-28 08:00")

	done, err := env.store.Completions(context.Background(), "alice", id)
	require.NoError(t, err)
	assert.Len(t, done, 1)

	out = env.mustRun("sync")
	assert.Contains(t, out, "0 tasks not yet on the server")
}

func TestCLI_DeleteAsksFirst(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("secret\n", "login", "alice")
	require.NoError(t, err)
	env.mustRun("add", "Throwaway")

	remoteTasks, err := env.store.ListTasks(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, remoteTasks, 1)
	id := remoteTasks[0].ID.String()

	out, err := env.run("n\n", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled")

	env.mustRun("--yes", "rm", id)
	out = env.mustRun("ls", "--view", "deleted")
	assert.Contains(t, out, "Throwaway")

	env.mustRun("--yes", "purge", id)
	remoteTasks, err = env.store.ListTasks(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, remoteTasks)
}

func TestCLI_OfflineEditsSyncLater(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("secret\n", "login", "alice")
	require.NoError(t, err)

	env.mustRun("--offline", "add", "Written on the train")
	remoteTasks, err := env.store.ListTasks(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, remoteTasks)

	out := env.mustRun("--offline", "ls")
	assert.Contains(t, out, "local:")

	env.mustRun("sync")
	remoteTasks, err = env.store.ListTasks(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, remoteTasks, 1)
	assert.Equal(t, "Written on the train", remoteTasks[0].Title)

	out = env.mustRun("ls")
	assert.NotContains(t, out, "local:")

	// Changes to a task the server already has wait in the cache too.
	ctx := context.Background()
	id := remoteTasks[0].ID.String()
	env.mustRun("--offline", "done", id)
	env.mustRun("--offline", "flag", id)

	got, err := env.store.GetTask(ctx, "alice", id)
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.False(t, got.IsFlagged)

	env.mustRun("sync")
	got, err = env.store.GetTask(ctx, "alice", id)
	require.NoError(t, err)
	assert.True(t, got.Completed, "completion sent by the next online session")
	assert.True(t, got.IsFlagged)
	done, err := env.store.Completions(ctx, "alice", id)
	require.NoError(t, err)
	assert.Len(t, done, 1)

	out = env.mustRun("ls", "--view", "completed")
	assert.Contains(t, out, "Written on the train")
}
