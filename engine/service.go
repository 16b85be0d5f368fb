// Package engine is the façade the UI talks to. Every mutation is applied to
// the local cache synchronously and then queued for the remote store; a
// single worker drains the queue in order and promotes pending ids once the
// remote store has assigned them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/GoCodeAlone/tickler/assist"
	"github.com/GoCodeAlone/tickler/cache"
	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/order"
	"github.com/GoCodeAlone/tickler/recur"
	"github.com/GoCodeAlone/tickler/remote"
	"github.com/GoCodeAlone/tickler/task"
)

var (
	ErrNotFound    = errors.New("no such record")
	ErrAmbiguous   = errors.New("reference matches more than one record")
	ErrNoAssistant = errors.New("no assistant configured")
)

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// AlwaysConfirm approves every prompt.
var AlwaysConfirm = ConfirmFunc(func(string) bool { return true })

// Options configures a Service. Every field is optional.
type Options struct {
	Logger    *slog.Logger
	Bus       notify.Bus
	Assistant assist.Generator
	// Confirmer defaults to AlwaysConfirm.
	Confirmer Confirmer
	Now       func() time.Time
}

// Service owns the optimistic mutation path for one cache and one remote
// store. It is safe for concurrent use.
type Service struct {
	cache     *cache.Cache
	gw        remote.Gateway
	bus       notify.Bus
	assistant assist.Generator
	confirmer Confirmer
	logger    *slog.Logger
	now       func() time.Time
	orders    *order.Manager

	box *outbox

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Service. Call Start before mutating so queued operations are
// sent.
func New(c *cache.Cache, gw remote.Gateway, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = AlwaysConfirm
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		cache:     c,
		gw:        gw,
		bus:       opts.Bus,
		assistant: opts.Assistant,
		confirmer: confirmer,
		logger:    logger,
		now:       now,
		orders:    order.NewManager(c, gw, opts.Bus, logger),
		box:       newOutbox(),
	}
}

// Load rehydrates owner from durable storage.
func (s *Service) Load(ctx context.Context, owner string) error {
	return s.cache.Load(ctx, owner)
}

// Start launches the outbox worker. It is a no-op if already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop halts the worker after the op in flight, if any. Queued ops stay
// queued; what they owe is kept in the cache backlog and re-sent by
// RetryPending after a restart.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

// Flush waits until the outbox is empty and every reorder batch finished.
func (s *Service) Flush(ctx context.Context) error {
	if err := s.box.wait(ctx); err != nil {
		return err
	}
	s.orders.Wait()
	return nil
}

// Queued returns the number of ops waiting or in flight.
func (s *Service) Queued() int { return s.box.len() }

// Unsynced returns the number of changes to confirmed records owner has made
// that the remote store has not acknowledged.
func (s *Service) Unsynced(owner string) int { return s.cache.Backlog(owner).Len() }

// RetryPending re-queues everything owner changed locally that the remote
// store has not acknowledged, skipping ops already queued. Creates go first,
// lists before tasks so the tasks can be filed; then deletes, updates and
// completions from the cache backlog.
func (s *Service) RetryPending(_ context.Context, owner string) {
	var n int
	push := func(o op) {
		if s.box.push(o) {
			n++
		}
	}
	for _, l := range s.cache.Lists(owner) {
		if l.ID.IsPending() {
			push(op{kind: opCreateList, owner: owner, id: l.ID})
		}
	}
	for _, tp := range s.cache.Templates(owner) {
		if tp.ID.IsPending() {
			push(op{kind: opCreateTemplate, owner: owner, id: tp.ID})
		}
	}
	for _, t := range s.cache.Tasks(owner) {
		if t.ID.IsPending() {
			push(op{kind: opCreateTask, owner: owner, id: t.ID})
		}
	}
	backlog := s.cache.Backlog(owner)
	for _, ts := range backlog.Tombstones {
		push(op{kind: deleteKind(ts.Kind), owner: owner, id: ts.ID})
	}
	for _, u := range backlog.Unsent {
		push(op{kind: updateKind(u.Kind), owner: owner, id: u.ID})
	}
	for _, c := range backlog.Completions {
		push(op{kind: opLogCompletion, owner: owner, id: c.TaskID, at: c.At})
	}
	if n > 0 {
		s.logger.Info("retrying pending records", "owner", owner, "count", n)
	}
}

// CreateTask validates t, stores it under a fresh pending id at the end of
// the order and queues the remote create.
func (s *Service) CreateTask(_ context.Context, owner string, t task.Task) (task.Task, error) {
	t = t.Clone()
	t.Normalize()
	if err := t.Validate(); err != nil {
		return task.Task{}, err
	}
	now := s.now()
	t.ID = task.NewPendingID()
	t.ClientRef = t.ID.Token()
	t.Owner = owner
	t.CreatedAt = now
	t.UpdatedAt = now

	err := s.cache.Apply(owner, func(tx *cache.Tx) error {
		if t.ListID != nil {
			if _, ok := tx.List(*t.ListID); !ok {
				return fmt.Errorf("list %s: %w", t.ListID, ErrNotFound)
			}
		}
		t.Position = 0
		for _, other := range tx.Tasks() {
			if other.Position >= t.Position {
				t.Position = other.Position + 1
			}
		}
		tx.PutTask(t)
		s.box.push(op{kind: opCreateTask, owner: owner, id: t.ID})
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}
	s.logger.Debug("task created", "owner", owner, "id", t.ID.String())
	return t, nil
}

// UpdateTask applies p to the task.
func (s *Service) UpdateTask(_ context.Context, owner string, id task.ID, p task.Patch) (task.Task, error) {
	return s.mutateTask(owner, id, func(tx *cache.Tx, t *task.Task) error {
		if p.ListID != nil {
			if _, ok := tx.List(*p.ListID); !ok {
				return fmt.Errorf("list %s: %w", p.ListID, ErrNotFound)
			}
		}
		t.ApplyPatch(p)
		return nil
	})
}

// CompleteTask completes the task. A recurring task with a schedule advances
// to its next occurrence instead. Either way a completion is logged remotely.
func (s *Service) CompleteTask(_ context.Context, owner string, id task.ID) (task.Task, error) {
	now := s.now()
	return s.mutateTask(owner, id, func(tx *cache.Tx, t *task.Task) error {
		if err := t.Complete(now, recur.Next); err != nil {
			return err
		}
		tx.QueueCompletion(t.ID, now)
		s.box.push(op{kind: opLogCompletion, owner: owner, id: t.ID, at: now})
		return nil
	})
}

func (s *Service) ReopenTask(_ context.Context, owner string, id task.ID) (task.Task, error) {
	return s.mutateTask(owner, id, func(_ *cache.Tx, t *task.Task) error {
		return t.Reopen()
	})
}

func (s *Service) FlagTask(_ context.Context, owner string, id task.ID, flagged bool) (task.Task, error) {
	return s.mutateTask(owner, id, func(_ *cache.Tx, t *task.Task) error {
		t.IsFlagged = flagged
		return nil
	})
}

func (s *Service) PauseTask(_ context.Context, owner string, id task.ID, paused bool) (task.Task, error) {
	return s.mutateTask(owner, id, func(_ *cache.Tx, t *task.Task) error {
		t.IsPaused = paused
		return nil
	})
}

// DeleteTask moves the task to the deleted bucket after confirmation.
func (s *Service) DeleteTask(_ context.Context, owner string, id task.ID) (bool, error) {
	t, ok := s.cache.Task(owner, id)
	if !ok {
		return false, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if !s.confirmer.Confirm(fmt.Sprintf("Move %q to the trash?", t.Title)) {
		return false, nil
	}
	_, err := s.mutateTask(owner, id, func(_ *cache.Tx, t *task.Task) error {
		t.SoftDelete()
		return nil
	})
	return err == nil, err
}

func (s *Service) RestoreTask(_ context.Context, owner string, id task.ID) (task.Task, error) {
	return s.mutateTask(owner, id, func(_ *cache.Tx, t *task.Task) error {
		return t.Restore()
	})
}

// PurgeTask removes a task from the deleted bucket for good after
// confirmation. A confirmed task is tombstoned so a reconcile that still
// sees it remotely does not bring it back.
func (s *Service) PurgeTask(_ context.Context, owner string, id task.ID) (bool, error) {
	t, ok := s.cache.Task(owner, id)
	if !ok {
		return false, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err := t.CanPurge(); err != nil {
		return false, err
	}
	if !s.confirmer.Confirm(fmt.Sprintf("Delete %q permanently?", t.Title)) {
		return false, nil
	}
	err := s.cache.Apply(owner, func(tx *cache.Tx) error {
		cur, ok := tx.Task(id)
		if !ok {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		if err := cur.CanPurge(); err != nil {
			return err
		}
		tx.RemoveTask(id)
		if !id.IsPending() {
			tx.Tombstone(id, cache.KindTask)
			s.box.push(op{kind: opDeleteTask, owner: owner, id: id})
		}
		return nil
	})
	return err == nil, err
}

// mutateTask runs fn on a copy of the task inside one cache transaction,
// validates the result and, for confirmed tasks, adds the difference to the
// backlog and queues an update. Pending tasks need no update; their create
// reads the current record.
func (s *Service) mutateTask(owner string, id task.ID, fn func(*cache.Tx, *task.Task) error) (task.Task, error) {
	var out task.Task
	err := s.cache.Apply(owner, func(tx *cache.Tx) error {
		old, ok := tx.Task(id)
		if !ok {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		cur := old.Clone()
		if err := fn(tx, &cur); err != nil {
			return err
		}
		cur.Normalize()
		if err := cur.Validate(); err != nil {
			return err
		}
		p := task.Diff(old, cur)
		if p.IsEmpty() {
			out = old
			return nil
		}
		cur.UpdatedAt = s.now()
		tx.PutTask(cur)
		if !id.IsPending() {
			tx.MarkTask(id, p)
			s.box.push(op{kind: opUpdateTask, owner: owner, id: id})
		}
		out = cur
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}
	return out, nil
}

// CreateList stores a new list under a pending id and queues its create.
func (s *Service) CreateList(_ context.Context, owner, title string) (task.List, error) {
	l := task.List{Title: title, Owner: owner}
	if err := l.Validate(); err != nil {
		return task.List{}, err
	}
	l.ID = task.NewPendingID()
	l.ClientRef = l.ID.Token()
	err := s.cache.Apply(owner, func(tx *cache.Tx) error {
		tx.PutList(l)
		s.box.push(op{kind: opCreateList, owner: owner, id: l.ID})
		return nil
	})
	if err != nil {
		return task.List{}, err
	}
	return l, nil
}

func (s *Service) RenameList(_ context.Context, owner string, id task.ID, title string) (task.List, error) {
	var out task.List
	err := s.cache.Apply(owner, func(tx *cache.Tx) error {
		l, ok := tx.List(id)
		if !ok {
			return fmt.Errorf("list %s: %w", id, ErrNotFound)
		}
		l.Title = title
		if err := l.Validate(); err != nil {
			return err
		}
		tx.PutList(l)
		if !id.IsPending() {
			tx.Mark(id, cache.KindList)
			s.box.push(op{kind: opRenameList, owner: owner, id: id})
		}
		out = l
		return nil
	})
	if err != nil {
		return task.List{}, err
	}
	return out, nil
}

// DeleteList removes a list after confirmation. Its tasks become unfiled,
// locally now and remotely by the list delete or, for a list that never
// reached the remote store, by an update of each confirmed task.
func (s *Service) DeleteList(_ context.Context, owner string, id task.ID) (bool, error) {
	l, ok := s.findList(owner, id)
	if !ok {
		return false, fmt.Errorf("list %s: %w", id, ErrNotFound)
	}
	var filed int
	for _, t := range s.cache.Tasks(owner) {
		if t.ListID != nil && *t.ListID == id {
			filed++
		}
	}
	prompt := fmt.Sprintf("Delete list %q?", l.Title)
	if filed > 0 {
		prompt = fmt.Sprintf("Delete list %q? Its %d tasks will become unfiled.", l.Title, filed)
	}
	if !s.confirmer.Confirm(prompt) {
		return false, nil
	}
	err := s.cache.Apply(owner, func(tx *cache.Tx) error {
		detached, ok := tx.RemoveList(id)
		if !ok {
			return fmt.Errorf("list %s: %w", id, ErrNotFound)
		}
		if !id.IsPending() {
			tx.Tombstone(id, cache.KindList)
			s.box.push(op{kind: opDeleteList, owner: owner, id: id})
		}
		for _, tid := range detached {
			if !tid.IsPending() {
				s.box.push(op{kind: opUpdateTask, owner: owner, id: tid})
			}
		}
		return nil
	})
	return err == nil, err
}

func (s *Service) CreateTemplate(_ context.Context, owner string, tp task.Template) (task.Template, error) {
	if tp.Type == "" {
		tp.Type = task.TypeReminder
	}
	if err := tp.Validate(); err != nil {
		return task.Template{}, err
	}
	tp.ID = task.NewPendingID()
	tp.ClientRef = tp.ID.Token()
	tp.Owner = owner
	err := s.cache.Apply(owner, func(tx *cache.Tx) error {
		tx.PutTemplate(tp)
		s.box.push(op{kind: opCreateTemplate, owner: owner, id: tp.ID})
		return nil
	})
	if err != nil {
		return task.Template{}, err
	}
	return tp, nil
}

// UpdateTemplate replaces the template's content fields.
func (s *Service) UpdateTemplate(_ context.Context, owner string, id task.ID, tp task.Template) (task.Template, error) {
	if tp.Type == "" {
		tp.Type = task.TypeReminder
	}
	if err := tp.Validate(); err != nil {
		return task.Template{}, err
	}
	var out task.Template
	err := s.cache.Apply(owner, func(tx *cache.Tx) error {
		cur, ok := tx.Template(id)
		if !ok {
			return fmt.Errorf("template %s: %w", id, ErrNotFound)
		}
		cur.Title = tp.Title
		cur.Description = tp.Description
		cur.Type = tp.Type
		tx.PutTemplate(cur)
		if !id.IsPending() {
			tx.Mark(id, cache.KindTemplate)
			s.box.push(op{kind: opUpdateTemplate, owner: owner, id: id})
		}
		out = cur
		return nil
	})
	if err != nil {
		return task.Template{}, err
	}
	return out, nil
}

func (s *Service) DeleteTemplate(_ context.Context, owner string, id task.ID) (bool, error) {
	tp, ok := s.findTemplate(owner, id)
	if !ok {
		return false, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if !s.confirmer.Confirm(fmt.Sprintf("Delete template %q?", tp.Title)) {
		return false, nil
	}
	err := s.cache.Apply(owner, func(tx *cache.Tx) error {
		if !tx.RemoveTemplate(id) {
			return fmt.Errorf("template %s: %w", id, ErrNotFound)
		}
		if !id.IsPending() {
			tx.Tombstone(id, cache.KindTemplate)
			s.box.push(op{kind: opDeleteTemplate, owner: owner, id: id})
		}
		return nil
	})
	return err == nil, err
}

// TaskFromTemplate creates a task carrying the template's content, scheduled
// at next when it is non-nil.
func (s *Service) TaskFromTemplate(ctx context.Context, owner string, templateID task.ID, next *task.Wall) (task.Task, error) {
	tp, ok := s.findTemplate(owner, templateID)
	if !ok {
		return task.Task{}, fmt.Errorf("template %s: %w", templateID, ErrNotFound)
	}
	t := tp.Draft()
	t.NextRun = next
	return s.CreateTask(ctx, owner, t)
}

// Reorder moves the task at index from of the filtered view to index to.
func (s *Service) Reorder(ctx context.Context, owner string, f task.Filter, from, to int) ([]task.ID, error) {
	visible := s.View(owner, f)
	ids := make([]task.ID, len(visible))
	for i, t := range visible {
		ids[i] = t.ID
	}
	return s.orders.Reorder(ctx, owner, ids, from, to)
}
