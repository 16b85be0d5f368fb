package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/tickler/cache"
	"github.com/GoCodeAlone/tickler/config"
	"github.com/GoCodeAlone/tickler/engine"
	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/reconcile"
	"github.com/GoCodeAlone/tickler/remote"
)

// flushTimeout bounds how long a command waits for queued remote writes.
const flushTimeout = 20 * time.Second

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	envFile    string
	serverURL  string
	offline    bool
	yes        bool
	verbose    bool
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "path to YAML config file")
	f.StringVar(&o.envFile, "env", ".env", "dotenv file loaded before the config")
	f.StringVar(&o.serverURL, "server", "", "server URL (overrides client.server_url)")
	f.BoolVar(&o.offline, "offline", false, "work from the local cache without contacting the server")
	f.BoolVarP(&o.yes, "yes", "y", false, "answer yes to every confirmation")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "log sync activity to stderr")
}

// credentials is what `tickler login` saves next to the cache.
type credentials struct {
	Owner string `yaml:"owner"`
	Token string `yaml:"token"`
}

func credentialsPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "credentials.yaml")
}

func loadCredentials(path string) (credentials, error) {
	var c credentials
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read credentials: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return c, nil
}

func saveCredentials(path string, c credentials) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// loadConfig resolves the client config: dotenv, YAML, environment, then
// saved credentials for whatever is still unset, then flags.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", opts.envFile, err)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	creds, err := loadCredentials(credentialsPath(cfg))
	if err != nil {
		return nil, err
	}
	if cfg.Client.Owner == "" {
		cfg.Client.Owner = creds.Owner
	}
	if cfg.Client.Token == "" {
		cfg.Client.Token = creds.Token
	}
	if opts.serverURL != "" {
		cfg.Client.ServerURL = opts.serverURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is one CLI session over the local cache.
type app struct {
	opts    *globalOptions
	cfg     *config.Config
	owner   string
	logger  *slog.Logger
	out     io.Writer
	errOut  io.Writer
	gw      *remote.HTTPGateway
	storage *cache.SQLiteStorage
	bus     *notify.InMemoryBus
	svc     *engine.Service
	rec     *reconcile.Engine
	stop    func()
}

// open loads the cache, re-queues records left pending by an earlier
// session and, unless offline, pulls the server state.
func open(ctx context.Context, cmd *cobra.Command, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if cfg.Client.Owner == "" {
		return nil, errors.New("not logged in; run `tickler login <username>`")
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(filepath.Dir(cfg.Client.CachePath), 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	storage, err := cache.NewSQLiteStorage(cfg.Client.CachePath)
	if err != nil {
		return nil, err
	}

	a := &app{
		opts:    opts,
		cfg:     cfg,
		owner:   cfg.Client.Owner,
		logger:  logger,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		gw:      remote.NewHTTPGateway(cfg.Client.ServerURL, cfg.Client.Token),
		storage: storage,
		bus:     notify.NewInMemoryBus(),
	}

	c := cache.New(storage, logger)
	c.SetBus(a.bus)

	var confirmer engine.Confirmer = engine.AlwaysConfirm
	if !opts.yes {
		confirmer = promptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	a.svc = engine.New(c, a.gw, engine.Options{
		Logger:    logger,
		Bus:       a.bus,
		Assistant: a.gw,
		Confirmer: confirmer,
	})
	a.rec = reconcile.New(c, a.gw, a.bus, logger)
	a.rec.Interval = cfg.Client.PollInterval
	a.rec.Retrier = a.svc

	errOut := a.errOut
	a.stop = a.bus.Subscribe(a.owner, func(_ context.Context, ev *notify.Event) error {
		if ev.Type == notify.TypeNotice {
			fmt.Fprintf(errOut, "! %s: %s\n", ev.Subject, ev.Detail)
		}
		return nil
	})

	if err := a.svc.Load(ctx, a.owner); err != nil {
		logger.Warn("local cache unreadable, starting empty", "error", err)
	}
	if !opts.offline {
		a.svc.Start(context.WithoutCancel(ctx))
		a.svc.RetryPending(ctx, a.owner)
		if err := a.rec.Reconcile(ctx, a.owner); err != nil {
			fmt.Fprintf(errOut, "! working offline: %v\n", err)
		}
	}
	return a, nil
}

// close waits for queued writes to reach the server and releases the cache.
func (a *app) close(ctx context.Context) {
	if !a.opts.offline {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		if err := a.svc.Flush(fctx); err != nil {
			a.logger.Warn("flush", "error", err)
			fmt.Fprintf(a.errOut, "! %d changes not yet synced; they will be retried next time\n", a.svc.Queued())
		}
		cancel()
	} else if n := a.svc.Unsynced(a.owner); n > 0 {
		fmt.Fprintf(a.errOut, "! %d offline changes saved; run `tickler sync` to send them\n", n)
	}
	a.svc.Stop()
	a.stop()
	if err := a.storage.Close(); err != nil {
		a.logger.Warn("close cache", "error", err)
	}
}

// run opens a session, calls fn and closes the session.
func run(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := open(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	return fn(ctx, a)
}

// promptConfirmer asks on out and reads y/yes from in.
func promptConfirmer(in io.Reader, out io.Writer) engine.Confirmer {
	r := bufio.NewReader(in)
	return engine.ConfirmFunc(func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, _ := r.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	})
}
