package server

import (
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/GoCodeAlone/tickler/config"
	"github.com/GoCodeAlone/tickler/remote"
)

// hashForTest hashes at the minimum cost to keep tests fast.
func hashForTest(t *testing.T, password string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(b)
}

// newTestStore opens a SQLite store in a temp dir.
func newTestStore(t *testing.T) *remote.SQLStore {
	t.Helper()
	store, err := remote.NewSQLiteStore(filepath.Join(t.TempDir(), "tickler.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := *config.DefaultConfig()
	cfg.Server.Addr = ":0"
	cfg.Auth.JWTSecret = "test-secret-key-1234567890"
	cfg.Auth.Users = []config.UserConfig{
		{Username: "alice", PasswordHash: hashForTest(t, "secret")},
		{Username: "bob", PasswordHash: hashForTest(t, "hunter2")},
	}
	return cfg
}
