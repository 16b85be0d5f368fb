// Package cache is the on-device mirror of a user's tasks, lists and
// templates. Every mutation is applied in memory first and then flushed as a
// full snapshot to durable storage; the in-memory copy is what the UI reads.
package cache

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/task"
)

// Cache holds one collection per owner. All mutations go through Apply and
// are run-to-completion with respect to each other.
type Cache struct {
	mu      sync.Mutex
	owners  map[string]*collection
	storage Storage
	bus     notify.Bus
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Cache that writes through to storage. A nil storage keeps
// the cache purely in memory; a nil logger discards log output.
func New(storage Storage, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		owners:  make(map[string]*collection),
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// SetBus attaches a bus that receives a TypeChanged event after every Apply.
func (c *Cache) SetBus(bus notify.Bus) { c.bus = bus }

// SetClock overrides the clock used for snapshot timestamps.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// Load rehydrates owner's collection from storage. A missing snapshot leaves
// the collection empty. A read error is returned but the cache stays usable
// with an empty collection.
func (c *Cache) Load(ctx context.Context, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	col := newCollection()
	c.owners[owner] = col
	if c.storage == nil {
		return nil
	}
	snap, err := c.storage.Load(ctx, owner)
	if err != nil {
		c.logger.Warn("cache load failed, starting empty", "owner", owner, "error", err)
		return err
	}
	if snap == nil {
		c.logger.Debug("no cache snapshot", "owner", owner)
		return nil
	}
	col.restore(snap)
	c.logger.Debug("cache rehydrated", "owner", owner, "tasks", len(col.tasks), "lists", len(col.lists))
	return nil
}

// Apply runs fn against owner's collection. Changes made by fn become visible
// only if it returns nil. Afterwards the full collection is flushed to
// storage; a storage failure is logged and swallowed because the in-memory
// copy stays authoritative for the session.
func (c *Cache) Apply(owner string, fn func(tx *Tx) error) error {
	c.mu.Lock()
	cur := c.collection(owner)
	tx := &Tx{col: cur.clone(), touched: make(map[task.ID]struct{})}
	if err := fn(tx); err != nil {
		c.mu.Unlock()
		return err
	}
	next := tx.col
	next.seq = cur.seq + 1
	for id := range tx.touched {
		next.touched[id] = next.seq
	}
	c.owners[owner] = next
	c.flush(owner, next)
	c.mu.Unlock()

	if c.bus != nil {
		_ = c.bus.Publish(context.Background(), &notify.Event{
			Type:    notify.TypeChanged,
			Owner:   owner,
			Subject: "cache changed",
		})
	}
	return nil
}

func (c *Cache) flush(owner string, col *collection) {
	if c.storage == nil {
		return
	}
	snap := col.snapshot(owner, c.now())
	if err := c.storage.Save(context.Background(), snap); err != nil {
		c.logger.Warn("cache flush failed", "owner", owner, "error", err)
	}
}

// collection returns owner's collection, creating an empty one. Callers hold mu.
func (c *Cache) collection(owner string) *collection {
	col, ok := c.owners[owner]
	if !ok {
		col = newCollection()
		c.owners[owner] = col
	}
	return col
}

// Tasks returns a copy of owner's tasks in cache order.
func (c *Cache) Tasks(owner string) []task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneTasks(c.collection(owner).tasks)
}

// Task returns one task by id.
func (c *Cache) Task(owner string, id task.ID) (task.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col := c.collection(owner)
	if i := col.taskIndex(id); i >= 0 {
		return col.tasks[i].Clone(), true
	}
	return task.Task{}, false
}

// Lists returns a copy of owner's lists.
func (c *Cache) Lists(owner string) []task.List {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.collection(owner).lists)
}

// Templates returns a copy of owner's templates.
func (c *Cache) Templates(owner string) []task.Template {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.collection(owner).templates)
}

// Seq returns owner's mutation sequence number. It increases by one on every
// successful Apply.
func (c *Cache) Seq(owner string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection(owner).seq
}
