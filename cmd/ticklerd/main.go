// Command ticklerd is the tickler server daemon. It serves the task API over
// a SQLite or Postgres store and, when configured, the assistant endpoint.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/GoCodeAlone/tickler/assist"
	"github.com/GoCodeAlone/tickler/config"
	"github.com/GoCodeAlone/tickler/internal/version"
	"github.com/GoCodeAlone/tickler/provider"
	"github.com/GoCodeAlone/tickler/provider/mock"
	"github.com/GoCodeAlone/tickler/remote"
	"github.com/GoCodeAlone/tickler/server"
)

var (
	configPath = flag.String("config", "", "path to YAML config file (defaults apply when empty)")
	envFile    = flag.String("env", ".env", "dotenv file loaded before the config; missing is fine")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.Arg(0) == "hash-password" {
		if err := hashPassword(); err != nil {
			log.Fatalf("hash-password: %v", err)
		}
		return
	}
	if flag.Arg(0) == "version" {
		fmt.Printf("ticklerd %s\n", version.String())
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	logger.Info("starting ticklerd",
		"version", version.Version,
		"commit", version.Commit,
	)
	if len(cfg.Auth.Users) == 0 {
		logger.Warn("no auth.users configured; nobody can log in")
	}

	if cfg.Store.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.DSN), 0o750); err != nil {
			log.Fatalf("Failed to create data dir: %v", err)
		}
	}
	store, err := remote.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close() //nolint:errcheck

	srv := server.New(*cfg, version.Version, logger)
	srv.SetStore(store)

	gen, err := newAssistant(cfg.Assist)
	if err != nil {
		log.Fatalf("Failed to configure assistant: %v", err)
	}
	if gen != nil {
		srv.SetAssistant(gen)
		logger.Info("assistant enabled", "provider", cfg.Assist.Provider)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Printf("tickler server running on %s\n", cfg.Server.Addr)
	fmt.Printf("Version: %s (%s)\n", version.Version, version.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	fmt.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	fmt.Println("Shutdown complete")
}

// newAssistant returns nil when no provider is configured.
func newAssistant(cfg config.AssistConfig) (assist.Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "mock":
		return assist.New(mock.New()), nil
	}
	p, err := provider.New(provider.Config{
		Name:      cfg.Provider,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return assist.New(p), nil
}

// hashPassword reads a password from stdin and prints its bcrypt hash for
// auth.users[].password_hash.
func hashPassword() error {
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return err
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return errors.New("empty password")
	}
	hash, err := server.HashPassword(pw)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func usage() {
	fmt.Fprint(os.Stderr, `ticklerd - tickler server

Usage:
  ticklerd [flags]                 run the server
  ticklerd [flags] hash-password   read a password on stdin and print its bcrypt hash
  ticklerd version                 print version

Flags:
`)
	flag.PrintDefaults()
}
