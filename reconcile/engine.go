package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/GoCodeAlone/tickler/cache"
	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/remote"
	"github.com/GoCodeAlone/tickler/task"
)

// DefaultInterval is the polling period used by Run.
const DefaultInterval = 30 * time.Second

// errStale aborts an Apply whose fetch was overtaken by a newer one.
var errStale = errors.New("stale reconciliation result")

// Retrier re-sends records that never reached the remote store.
type Retrier interface {
	RetryPending(ctx context.Context, owner string)
}

// Engine pulls the remote collections into the cache.
type Engine struct {
	cache  *cache.Cache
	gw     remote.Gateway
	bus    notify.Bus
	logger *slog.Logger

	// Interval between Run cycles. Zero means DefaultInterval.
	Interval time.Duration
	// Online reports connectivity; Run skips cycles while it returns false.
	Online func() bool
	// Retrier, if set, is called before every Run cycle.
	Retrier Retrier

	mu      sync.Mutex
	issued  map[string]uint64
	applied map[string]uint64
}

// New creates an Engine. bus may be nil; a nil logger discards output.
func New(c *cache.Cache, gw remote.Gateway, bus notify.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		cache:   c,
		gw:      gw,
		bus:     bus,
		logger:  logger,
		issued:  make(map[string]uint64),
		applied: make(map[string]uint64),
	}
}

type fetched struct {
	tasks     []task.Task
	lists     []task.List
	templates []task.Template
}

func (e *Engine) fetch(ctx context.Context, owner string) (*fetched, error) {
	var f fetched
	var err error
	if f.tasks, err = e.gw.ListTasks(ctx, owner); err != nil {
		return nil, err
	}
	if f.lists, err = e.gw.ListLists(ctx, owner); err != nil {
		return nil, err
	}
	if f.templates, err = e.gw.ListTemplates(ctx, owner); err != nil {
		return nil, err
	}
	return &f, nil
}

// Reconcile fetches owner's collections and merges them into the cache. On a
// fetch error the cache is left untouched and the error is returned. A
// result older than one already applied is dropped.
func (e *Engine) Reconcile(ctx context.Context, owner string) error {
	e.mu.Lock()
	e.issued[owner]++
	req := e.issued[owner]
	e.mu.Unlock()

	since := e.cache.Seq(owner)
	f, err := e.fetch(ctx, owner)
	if err != nil {
		e.logger.Warn("reconcile fetch failed", "owner", owner, "request", req, "error", err)
		return fmt.Errorf("reconcile %s: %w", owner, err)
	}

	remoteIDs := make(map[task.ID]struct{}, len(f.tasks)+len(f.lists)+len(f.templates))
	for _, t := range f.tasks {
		remoteIDs[t.ID] = struct{}{}
	}
	for _, l := range f.lists {
		remoteIDs[l.ID] = struct{}{}
	}
	for _, tp := range f.templates {
		remoteIDs[tp.ID] = struct{}{}
	}

	var pending int
	err = e.cache.Apply(owner, func(tx *cache.Tx) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if req <= e.applied[owner] {
			return errStale
		}
		e.applied[owner] = req

		// A record with changes the remote store has not acknowledged keeps
		// its local form, like one edited while the fetch was running.
		touched := func(id task.ID, since uint64) bool {
			return tx.HasUnsent(id) || tx.TouchedSince(id, since)
		}
		opts := Options{Since: since, Touched: touched, Tombstoned: tx.Tombstoned}
		merged := Merge(tx.Tasks(), f.tasks, opts)
		tx.ReplaceTasks(merged)
		tx.ReplaceLists(MergeLists(tx.Lists(), f.lists, opts))
		tx.ReplaceTemplates(MergeTemplates(tx.Templates(), f.templates, opts))

		for _, id := range tx.Tombstones() {
			if _, ok := remoteIDs[id]; !ok {
				tx.ClearTombstone(id)
			}
		}
		for _, t := range merged {
			if t.ID.IsPending() {
				pending++
			}
		}
		return nil
	})
	if errors.Is(err, errStale) {
		e.logger.Debug("dropping stale reconcile result", "owner", owner, "request", req)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", owner, err)
	}

	e.logger.Debug("reconciled", "owner", owner, "request", req,
		"tasks", len(f.tasks), "lists", len(f.lists), "templates", len(f.templates), "pending", pending)
	if e.bus != nil {
		_ = e.bus.Publish(ctx, &notify.Event{
			Type:    notify.TypeSynced,
			Owner:   owner,
			Subject: "synced",
			Detail:  fmt.Sprintf("%d tasks, %d pending", len(f.tasks), pending),
		})
	}
	return nil
}

// Run reconciles owner immediately and then every Interval until ctx ends.
// Cycles are skipped while Online reports no connectivity.
func (e *Engine) Run(ctx context.Context, owner string) {
	interval := e.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		e.cycle(ctx, owner)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) cycle(ctx context.Context, owner string) {
	if e.Online != nil && !e.Online() {
		e.logger.Debug("offline, skipping reconcile", "owner", owner)
		return
	}
	if e.Retrier != nil {
		e.Retrier.RetryPending(ctx, owner)
	}
	// Errors are logged inside Reconcile; the next tick tries again.
	_ = e.Reconcile(ctx, owner)
}
