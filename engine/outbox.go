package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/tickler/cache"
	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/remote"
	"github.com/GoCodeAlone/tickler/task"
)

type opKind int

const (
	opCreateTask opKind = iota
	opUpdateTask
	opDeleteTask
	opLogCompletion
	opCreateList
	opRenameList
	opDeleteList
	opCreateTemplate
	opUpdateTemplate
	opDeleteTemplate
)

var opNames = map[opKind]string{
	opCreateTask:     "create task",
	opUpdateTask:     "update task",
	opDeleteTask:     "delete task",
	opLogCompletion:  "log completion",
	opCreateList:     "create list",
	opRenameList:     "rename list",
	opDeleteList:     "delete list",
	opCreateTemplate: "create template",
	opUpdateTemplate: "update template",
	opDeleteTemplate: "delete template",
}

func (k opKind) String() string { return opNames[k] }

func (k opKind) isCreate() bool {
	return k == opCreateTask || k == opCreateList || k == opCreateTemplate
}

// updateKind and deleteKind map a record kind to the op that sends it.
func updateKind(k cache.Kind) opKind {
	switch k {
	case cache.KindList:
		return opRenameList
	case cache.KindTemplate:
		return opUpdateTemplate
	}
	return opUpdateTask
}

func deleteKind(k cache.Kind) opKind {
	switch k {
	case cache.KindList:
		return opDeleteList
	case cache.KindTemplate:
		return opDeleteTemplate
	}
	return opDeleteTask
}

// op is one queued remote mutation. An op only names its record: what is
// sent is read from the cache and its backlog when the op is delivered.
type op struct {
	kind  opKind
	owner string
	id    task.ID
	at    time.Time
}

type opKey struct {
	kind  opKind
	owner string
	id    task.ID
	at    int64
}

func (o op) key() opKey {
	k := opKey{kind: o.kind, owner: o.owner, id: o.id}
	if !o.at.IsZero() {
		k.at = o.at.UnixNano()
	}
	return k
}

// outbox is a FIFO of remote mutations drained by a single worker.
type outbox struct {
	mu      sync.Mutex
	queue   []op
	busy    bool
	wake    chan struct{}
	idle    chan struct{}
	isIdle  bool
	queued  map[opKey]struct{}  // waiting ops, and creates until they finish
	aliases map[task.ID]task.ID // pending id -> remote id after promotion
}

func newOutbox() *outbox {
	idle := make(chan struct{})
	close(idle)
	return &outbox{
		wake:    make(chan struct{}, 1),
		idle:    idle,
		isIdle:  true,
		queued:  make(map[opKey]struct{}),
		aliases: make(map[task.ID]task.ID),
	}
}

// push appends o unless an equal op is already waiting. A create also counts
// while it is in flight. It reports whether o was added.
func (b *outbox) push(o op) bool {
	b.mu.Lock()
	k := o.key()
	if _, ok := b.queued[k]; ok {
		b.mu.Unlock()
		return false
	}
	b.queued[k] = struct{}{}
	b.queue = append(b.queue, o)
	if b.isIdle {
		b.idle = make(chan struct{})
		b.isIdle = false
	}
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

// next pops the head of the queue and marks the outbox busy. ok is false
// when the queue is empty, in which case the outbox is marked idle.
func (b *outbox) next() (op, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		b.busy = false
		if !b.isIdle {
			close(b.idle)
			b.isIdle = true
		}
		return op{}, false
	}
	o := b.queue[0]
	b.queue = b.queue[1:]
	b.busy = true
	if !o.kind.isCreate() {
		// A change made while this op is in flight needs an op of its own.
		delete(b.queued, o.key())
	}
	return o, true
}

func (b *outbox) done(o op) {
	if !o.kind.isCreate() {
		return
	}
	b.mu.Lock()
	delete(b.queued, o.key())
	b.mu.Unlock()
}

func (b *outbox) setAlias(pending, remote task.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aliases[pending] = remote
}

// resolve returns the remote form of id, following promotions.
func (b *outbox) resolve(id task.ID) (string, bool) {
	if r, ok := id.Remote(); ok {
		return r, true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if alias, ok := b.aliases[id]; ok {
		return alias.Remote()
	}
	return "", false
}

// wait blocks until the queue is empty and nothing is in flight.
func (b *outbox) wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 && !b.busy {
			b.mu.Unlock()
			return nil
		}
		ch := b.idle
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (b *outbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.queue)
	if b.busy {
		n++
	}
	return n
}

// run drains the outbox until ctx ends.
func (s *Service) run(ctx context.Context) {
	for {
		for {
			o, ok := s.box.next()
			if !ok {
				break
			}
			s.deliver(ctx, o)
		}
		select {
		case <-ctx.Done():
			return
		case <-s.box.wake:
		}
	}
}

// deliver sends one op. Failures are never rolled back: they are logged and
// surfaced as a notice, and whatever the op owed stays in the backlog for
// RetryPending.
func (s *Service) deliver(ctx context.Context, o op) {
	defer s.box.done(o)
	err := s.send(ctx, o)
	if err == nil {
		return
	}
	s.logger.Warn("remote mutation failed", "op", o.kind.String(), "owner", o.owner, "id", o.id.String(), "error", err)
	subject := fmt.Sprintf("could not %s", o.kind)
	if !errors.Is(err, remote.ErrNotFound) {
		subject += "; it will be retried"
	}
	notify.Notice(ctx, s.bus, o.owner, subject, err)
}

func (s *Service) send(ctx context.Context, o op) error {
	switch o.kind {
	case opCreateTask:
		return s.sendCreateTask(ctx, o)
	case opCreateList:
		return s.sendCreateList(ctx, o)
	case opCreateTemplate:
		return s.sendCreateTemplate(ctx, o)
	case opLogCompletion:
		return s.sendCompletion(ctx, o)
	}

	rid, ok := s.box.resolve(o.id)
	if !ok {
		// Never confirmed; the pending create carries the current state.
		s.logger.Debug("skipping op for pending record", "op", o.kind.String(), "id", o.id.String())
		return nil
	}
	switch o.kind {
	case opUpdateTask:
		return s.sendUpdateTask(ctx, o.owner, rid)
	case opDeleteTask:
		return ignoreNotFound(s.gw.DeleteTask(ctx, o.owner, rid))
	case opRenameList:
		return s.sendRenameList(ctx, o.owner, rid)
	case opDeleteList:
		return ignoreNotFound(s.gw.DeleteList(ctx, o.owner, rid))
	case opUpdateTemplate:
		return s.sendUpdateTemplate(ctx, o.owner, rid)
	case opDeleteTemplate:
		return ignoreNotFound(s.gw.DeleteTemplate(ctx, o.owner, rid))
	}
	return fmt.Errorf("unknown op %d", o.kind)
}

func ignoreNotFound(err error) error {
	if errors.Is(err, remote.ErrNotFound) {
		return nil
	}
	return err
}

// settle runs fn on the backlog after a send. A record the remote store no
// longer has owes nothing, so ErrNotFound settles it too and is returned.
func (s *Service) settle(owner string, err error, fn func(tx *cache.Tx)) error {
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return err
	}
	if aerr := s.cache.Apply(owner, func(tx *cache.Tx) error {
		fn(tx)
		return nil
	}); aerr != nil {
		return aerr
	}
	return err
}

// sendUpdateTask sends the patch owed for a confirmed task. A reference to a
// list that is still pending is held back and stays owed until the list's
// promotion re-files the task.
func (s *Service) sendUpdateTask(ctx context.Context, owner, rid string) error {
	id := task.RemoteID(rid)
	u, ok := s.cache.Unsent(owner, id)
	if !ok {
		return nil
	}
	sent, delivered := u.Patch, u.Patch
	if l := sent.ListID; l != nil && l.IsPending() {
		if r, ok := s.box.resolve(*l); ok {
			lid := task.RemoteID(r)
			sent.ListID = &lid
		} else {
			sent.ListID, delivered.ListID = nil, nil
		}
	}
	if sent.IsEmpty() {
		return nil
	}
	err := s.gw.UpdateTask(ctx, owner, rid, sent)
	return s.settle(owner, err, func(tx *cache.Tx) {
		if err != nil {
			tx.Settle(id)
			return
		}
		tx.SettleTask(id, delivered)
	})
}

func (s *Service) sendCompletion(ctx context.Context, o op) error {
	rid, ok := s.box.resolve(o.id)
	if !ok {
		// Logged once the task's create lands.
		return nil
	}
	id := task.RemoteID(rid)
	if !s.cache.HasCompletion(o.owner, id, o.at) {
		return nil
	}
	err := s.gw.LogCompletion(ctx, o.owner, rid, o.at)
	return s.settle(o.owner, err, func(tx *cache.Tx) { tx.AckCompletion(id, o.at) })
}

func (s *Service) sendRenameList(ctx context.Context, owner, rid string) error {
	id := task.RemoteID(rid)
	l, ok := s.findList(owner, id)
	if !ok || !s.hasUnsent(owner, id) {
		return nil
	}
	err := s.gw.RenameList(ctx, owner, rid, l.Title)
	return s.settle(owner, err, func(tx *cache.Tx) {
		if cur, ok := tx.List(id); err != nil || !ok || cur.Title == l.Title {
			tx.Settle(id)
		}
	})
}

func (s *Service) sendUpdateTemplate(ctx context.Context, owner, rid string) error {
	id := task.RemoteID(rid)
	tp, ok := s.findTemplate(owner, id)
	if !ok || !s.hasUnsent(owner, id) {
		return nil
	}
	err := s.gw.UpdateTemplate(ctx, owner, rid, tp)
	return s.settle(owner, err, func(tx *cache.Tx) {
		cur, ok := tx.Template(id)
		if err != nil || !ok || (cur.Title == tp.Title && cur.Description == tp.Description && cur.Type == tp.Type) {
			tx.Settle(id)
		}
	})
}

func (s *Service) hasUnsent(owner string, id task.ID) bool {
	_, ok := s.cache.Unsent(owner, id)
	return ok
}

func (s *Service) sendCreateTask(ctx context.Context, o op) error {
	t, ok := s.cache.Task(o.owner, o.id)
	if !ok || !t.ID.IsPending() {
		return nil
	}
	sent := t.Clone()
	sent.ClientRef = t.ID.Token()
	if sent.ListID != nil && sent.ListID.IsPending() {
		if r, ok := s.box.resolve(*sent.ListID); ok {
			id := task.RemoteID(r)
			sent.ListID = &id
		} else {
			// Filed by the list's promotion.
			sent.ListID = nil
		}
	}

	rid, err := s.gw.CreateTask(ctx, o.owner, sent)
	if err != nil {
		return err
	}
	remoteID := task.RemoteID(rid)
	s.box.setAlias(o.id, remoteID)
	s.logger.Debug("task confirmed", "owner", o.owner, "pending", o.id.String(), "id", rid)

	return s.cache.Apply(o.owner, func(tx *cache.Tx) error {
		cur, ok := tx.Task(o.id)
		if !ok {
			// Purged while the create was in flight.
			tx.Tombstone(remoteID, cache.KindTask)
			s.box.push(op{kind: opDeleteTask, owner: o.owner, id: remoteID})
			return nil
		}
		if err := tx.PromoteTask(o.id, remoteID); err != nil {
			return err
		}
		if p := task.Diff(sent, cur); !p.IsEmpty() {
			tx.MarkTask(remoteID, p)
			s.box.push(op{kind: opUpdateTask, owner: o.owner, id: remoteID})
		}
		for _, c := range tx.Completions() {
			if c.TaskID == remoteID {
				s.box.push(op{kind: opLogCompletion, owner: o.owner, id: remoteID, at: c.At})
			}
		}
		return nil
	})
}

func (s *Service) sendCreateList(ctx context.Context, o op) error {
	l, ok := s.findList(o.owner, o.id)
	if !ok || !l.ID.IsPending() {
		return nil
	}
	sent := l
	sent.ClientRef = l.ID.Token()
	rid, err := s.gw.CreateList(ctx, o.owner, sent)
	if err != nil {
		return err
	}
	remoteID := task.RemoteID(rid)
	s.box.setAlias(o.id, remoteID)

	return s.cache.Apply(o.owner, func(tx *cache.Tx) error {
		cur, ok := tx.List(o.id)
		if !ok {
			tx.Tombstone(remoteID, cache.KindList)
			s.box.push(op{kind: opDeleteList, owner: o.owner, id: remoteID})
			return nil
		}
		rewired, err := tx.PromoteList(o.id, remoteID)
		if err != nil {
			return err
		}
		for _, tid := range rewired {
			if !tid.IsPending() {
				s.box.push(op{kind: opUpdateTask, owner: o.owner, id: tid})
			}
		}
		if cur.Title != sent.Title {
			tx.Mark(remoteID, cache.KindList)
			s.box.push(op{kind: opRenameList, owner: o.owner, id: remoteID})
		}
		return nil
	})
}

func (s *Service) sendCreateTemplate(ctx context.Context, o op) error {
	tp, ok := s.findTemplate(o.owner, o.id)
	if !ok || !tp.ID.IsPending() {
		return nil
	}
	sent := tp
	sent.ClientRef = tp.ID.Token()
	rid, err := s.gw.CreateTemplate(ctx, o.owner, sent)
	if err != nil {
		return err
	}
	remoteID := task.RemoteID(rid)
	s.box.setAlias(o.id, remoteID)

	return s.cache.Apply(o.owner, func(tx *cache.Tx) error {
		cur, ok := tx.Template(o.id)
		if !ok {
			tx.Tombstone(remoteID, cache.KindTemplate)
			s.box.push(op{kind: opDeleteTemplate, owner: o.owner, id: remoteID})
			return nil
		}
		if err := tx.PromoteTemplate(o.id, remoteID); err != nil {
			return err
		}
		if cur.Title != sent.Title || cur.Description != sent.Description || cur.Type != sent.Type {
			tx.Mark(remoteID, cache.KindTemplate)
			s.box.push(op{kind: opUpdateTemplate, owner: o.owner, id: remoteID})
		}
		return nil
	})
}

func (s *Service) findList(owner string, id task.ID) (task.List, bool) {
	for _, l := range s.cache.Lists(owner) {
		if l.ID == id {
			return l, true
		}
	}
	return task.List{}, false
}

func (s *Service) findTemplate(owner string, id task.ID) (task.Template, bool) {
	for _, tp := range s.cache.Templates(owner) {
		if tp.ID == id {
			return tp, true
		}
	}
	return task.Template{}, false
}
