// Package config defines the tickler configuration shared by the daemon and
// the CLI.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level tickler configuration.
type Config struct {
	Server   ServerConfig `json:"server" yaml:"server"`
	Auth     AuthConfig   `json:"auth" yaml:"auth"`
	Store    StoreConfig  `json:"store" yaml:"store"`
	Client   ClientConfig `json:"client" yaml:"client"`
	Assist   AssistConfig `json:"assist" yaml:"assist"`
	DataDir  string       `json:"data_dir" yaml:"data_dir"`
	LogLevel string       `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9090"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string        `json:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl" yaml:"token_ttl"`
	Users     []UserConfig  `json:"users" yaml:"users"`
}

// UserConfig is one account. The username is the owner of its records.
type UserConfig struct {
	Username     string `json:"username" yaml:"username"`
	PasswordHash string `json:"password_hash" yaml:"password_hash"` // bcrypt hash
}

// StoreConfig selects the persistent store behind the server.
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `json:"dsn" yaml:"dsn"`
}

// ClientConfig is used by the CLI.
type ClientConfig struct {
	ServerURL    string        `json:"server_url" yaml:"server_url"`
	Token        string        `json:"token,omitempty" yaml:"token"`
	Owner        string        `json:"owner" yaml:"owner"`
	CachePath    string        `json:"cache_path" yaml:"cache_path"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

// AssistConfig configures the text-generation provider.
type AssistConfig struct {
	Provider  string `json:"provider" yaml:"provider"` // "", "anthropic", "openai", "gemini", "mock"
	Model     string `json:"model,omitempty" yaml:"model"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env"`
	APIKey    string `json:"-" yaml:"-"`
	// RatePerMinute bounds assist requests per owner.
	RatePerMinute int `json:"rate_per_minute" yaml:"rate_per_minute"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "./data/tickler.db",
		},
		Client: ClientConfig{
			ServerURL:    "http://localhost:9090",
			CachePath:    "./data/cache.db",
			PollInterval: 30 * time.Second,
		},
		Assist: AssistConfig{
			APIKeyEnv:     "TICKLER_ASSIST_API_KEY",
			RatePerMinute: 10,
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Client.Token, "TICKLER_TOKEN")
	set(&c.Client.ServerURL, "TICKLER_SERVER")
	set(&c.Client.Owner, "TICKLER_OWNER")
	set(&c.Store.DSN, "TICKLER_STORE_DSN")
	set(&c.Auth.JWTSecret, "TICKLER_JWT_SECRET")
	if c.Assist.APIKeyEnv != "" {
		set(&c.Assist.APIKey, c.Assist.APIKeyEnv)
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	switch c.Assist.Provider {
	case "", "anthropic", "openai", "gemini", "mock":
	default:
		errs = append(errs, fmt.Errorf("assist.provider: unknown provider %q", c.Assist.Provider))
	}
	if c.Client.PollInterval < 0 {
		errs = append(errs, errors.New("client.poll_interval: must not be negative"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl: must be positive"))
	}
	for i, u := range c.Auth.Users {
		if u.Username == "" || u.PasswordHash == "" {
			errs = append(errs, fmt.Errorf("auth.users[%d]: username and password_hash are required", i))
		}
	}
	return errors.Join(errs...)
}

// ParseLevel maps a log_level value onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level: unknown level %q", s)
}
