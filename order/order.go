// Package order applies drag-and-drop reorders: the visible sequence is
// spliced, renumbered densely in the cache, and the new positions of
// confirmed tasks are sent to the remote store in the background.
package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/GoCodeAlone/tickler/cache"
	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/remote"
	"github.com/GoCodeAlone/tickler/task"
)

// ErrOutOfRange is returned when a move index falls outside the sequence.
var ErrOutOfRange = errors.New("move index out of range")

// Move returns a copy of ids with the element at from moved to index to.
func Move(ids []task.ID, from, to int) ([]task.ID, error) {
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
		return nil, fmt.Errorf("move %d -> %d in %d items: %w", from, to, len(ids), ErrOutOfRange)
	}
	out := slices.Clone(ids)
	id := out[from]
	out = slices.Delete(out, from, from+1)
	out = slices.Insert(out, to, id)
	return out, nil
}

// Manager runs reorders against a cache and a remote store.
type Manager struct {
	cache  *cache.Cache
	gw     remote.Gateway
	bus    notify.Bus
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewManager creates a Manager. bus may be nil; a nil logger discards output.
func NewManager(c *cache.Cache, gw remote.Gateway, bus notify.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{cache: c, gw: gw, bus: bus, logger: logger}
}

// Reorder moves visible[from] to index to and assigns position = index to
// every task in the resulting sequence in one cache transaction. The
// confirmed tasks' positions are then sent as one batch without blocking the
// caller. A failed batch is logged and reported as a notice; the local order
// is kept and the positions stay in the cache backlog for the next retry.
func (m *Manager) Reorder(ctx context.Context, owner string, visible []task.ID, from, to int) ([]task.ID, error) {
	seq, err := Move(visible, from, to)
	if err != nil {
		return nil, err
	}
	err = m.cache.Apply(owner, func(tx *cache.Tx) error {
		tx.SetPositions(seq)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reorder: %w", err)
	}

	batch := make([]remote.Position, 0, len(seq))
	for pos, id := range seq {
		if r, ok := id.Remote(); ok {
			batch = append(batch, remote.Position{ID: r, Position: pos})
		}
	}
	if len(batch) == 0 {
		return seq, nil
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// The batch outlives the caller's request.
		bctx := context.WithoutCancel(ctx)
		if err := m.gw.UpsertPositions(bctx, owner, batch); err != nil {
			m.logger.Warn("reorder batch failed", "owner", owner, "count", len(batch), "error", err)
			notify.Notice(bctx, m.bus, owner, "could not save the new order", err)
			return
		}
		err := m.cache.Apply(owner, func(tx *cache.Tx) error {
			for _, p := range batch {
				pos := p.Position
				tx.SettleTask(task.RemoteID(p.ID), task.Patch{Position: &pos})
			}
			return nil
		})
		if err != nil {
			m.logger.Warn("settle reorder batch", "owner", owner, "error", err)
			return
		}
		m.logger.Debug("reorder batch saved", "owner", owner, "count", len(batch))
	}()
	return seq, nil
}

// Wait blocks until every in-flight batch has finished.
func (m *Manager) Wait() { m.wg.Wait() }
