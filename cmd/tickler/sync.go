package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/reconcile"
	"github.com/GoCodeAlone/tickler/remote"
	"github.com/GoCodeAlone/tickler/task"
)

func syncCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send pending changes and pull the server state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.offline {
				return errors.New("sync needs the server; drop --offline")
			}
			return run(cmd, opts, func(ctx context.Context, a *app) error {
				fctx, cancel := context.WithTimeout(ctx, flushTimeout)
				defer cancel()
				if err := a.svc.Flush(fctx); err != nil {
					return fmt.Errorf("send pending changes: %w", err)
				}
				if err := a.rec.Reconcile(ctx, a.owner); err != nil {
					return err
				}
				var ids []task.ID
				for _, v := range []task.View{task.ViewAll, task.ViewCompleted, task.ViewDeleted} {
					for _, t := range a.svc.View(a.owner, task.Filter{View: v}) {
						ids = append(ids, t.ID)
					}
				}
				fmt.Fprintf(a.out, "synced; %d tasks not yet on the server\n", reconcile.PendingCount(ids)) //nolint:errcheck
				return nil
			})
		},
	}
}

func watchCmd(opts *globalOptions) *cobra.Command {
	var noEvents bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the cache in sync and print changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.offline {
				return errors.New("watch needs the server; drop --offline")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return run(cmd, opts, func(ctx context.Context, a *app) error {
				unsubscribe := a.bus.Subscribe(a.owner, func(_ context.Context, ev *notify.Event) error {
					if ev.Type == notify.TypeSynced {
						fmt.Fprintf(a.out, "%s %s (%s)\n", time.Now().Format("15:04:05"), ev.Subject, ev.Detail) //nolint:errcheck
					}
					return nil
				})
				defer unsubscribe()

				if !noEvents {
					go followEvents(ctx, a.gw, a.rec, a.owner, a.cfg.Client.PollInterval)
				}
				fmt.Fprintln(a.out, "watching; press Ctrl-C to stop") //nolint:errcheck
				a.rec.Run(ctx, a.owner)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noEvents, "no-events", false, "poll only; do not follow the server's change feed")
	return cmd
}

// followEvents reconciles whenever the server reports a change for owner,
// reconnecting after wait when the feed drops.
func followEvents(ctx context.Context, gw *remote.HTTPGateway, rec *reconcile.Engine, owner string, wait time.Duration) {
	if wait <= 0 {
		wait = reconcile.DefaultInterval
	}
	for {
		err := streamEvents(ctx, gw, func(ev notify.Event) {
			if ev.Type == notify.TypeChanged {
				_ = rec.Reconcile(ctx, owner)
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			rec.Reconcile(ctx, owner) //nolint:errcheck
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// streamEvents reads the server-sent event feed until it ends.
func streamEvents(ctx context.Context, gw *remote.HTTPGateway, fn func(notify.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gw.BaseURL+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+gw.Token)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &remote.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev notify.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		fn(ev)
	}
	return sc.Err()
}

func loginCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and remember the token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.ErrOrStderr(), "password: ") //nolint:errcheck
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")

			gw := remote.NewHTTPGateway(cfg.Client.ServerURL, "")
			token, err := gw.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			path := credentialsPath(cfg)
			if err := saveCredentials(path, credentials{Owner: args[0], Token: token}); err != nil {
				return fmt.Errorf("save credentials: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s; token saved to %s\n", args[0], path) //nolint:errcheck
			return nil
		},
	}
}

func statusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "server:  %s\n", cfg.Client.ServerURL) //nolint:errcheck
			owner := cfg.Client.Owner
			if owner == "" {
				owner = "(not logged in)"
			}
			fmt.Fprintf(out, "owner:   %s\n", owner) //nolint:errcheck

			st, err := remote.NewHTTPGateway(cfg.Client.ServerURL, cfg.Client.Token).Status(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "status:  unreachable (%v)\n", err) //nolint:errcheck
				return nil
			}
			keys := make([]string, 0, len(st))
			for k := range st {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%-8s %s\n", k+":", st[k]) //nolint:errcheck
			}
			return nil
		},
	}
}
