package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_OverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickler.yaml")
	data := `
server:
  addr: ":8080"
store:
  driver: postgres
  dsn: postgres://localhost/tickler
client:
  poll_interval: 1m
assist:
  provider: gemini
  api_key_env: TEST_TICKLER_GEMINI_KEY
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEST_TICKLER_GEMINI_KEY", "g-key")
	t.Setenv("TICKLER_OWNER", "alice")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Store.Driver)
	}
	if cfg.Client.PollInterval != time.Minute {
		t.Errorf("poll interval = %v", cfg.Client.PollInterval)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("default token ttl lost: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Assist.APIKey != "g-key" {
		t.Errorf("api key = %q", cfg.Assist.APIKey)
	}
	if cfg.Client.Owner != "alice" {
		t.Errorf("owner = %q", cfg.Client.Owner)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TICKLER_TOKEN":      "tok",
		"TICKLER_SERVER":     "https://tickler.example",
		"TICKLER_STORE_DSN":  "/tmp/x.db",
		"TICKLER_JWT_SECRET": "s3cret",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Client.Token != "tok" || cfg.Client.ServerURL != "https://tickler.example" {
		t.Errorf("client overrides not applied: %+v", cfg.Client)
	}
	if cfg.Store.DSN != "/tmp/x.db" || cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("server overrides not applied")
	}
	if cfg.Client.Owner != "" {
		t.Errorf("unset variable must not override, got %q", cfg.Client.Owner)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	cfg.Store.Driver = "mysql"
	cfg.Assist.Provider = "copilot"
	cfg.Auth.Users = []UserConfig{{Username: "bob"}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_level", "store.driver", "assist.provider", "auth.users[0]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "", "warn", "error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): %v", s, err)
		}
	}
}
