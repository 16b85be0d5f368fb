// Package remotetest provides an in-memory remote.Gateway for tests.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/GoCodeAlone/tickler/remote"
	"github.com/GoCodeAlone/tickler/task"
)

// ErrOffline is returned by every call while the gateway is offline.
var ErrOffline = errors.New("remote unreachable")

// Completion is one logged completion.
type Completion struct {
	TaskID string
	At     time.Time
}

// Gateway is an in-memory remote store. It honors client refs the way the
// SQL store does and can be switched offline or made to fail per method.
type Gateway struct {
	mu          sync.Mutex
	nextID      int
	tasks       map[string][]task.Task
	lists       map[string][]task.List
	templates   map[string][]task.Template
	completions map[string][]Completion
	offline     bool
	failures    map[string]error
	calls       map[string]int
	hooks       map[string]func()
}

// New returns an empty online Gateway.
func New() *Gateway {
	return &Gateway{
		tasks:       make(map[string][]task.Task),
		lists:       make(map[string][]task.List),
		templates:   make(map[string][]task.Template),
		completions: make(map[string][]Completion),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
		hooks:       make(map[string]func()),
	}
}

// SetOffline makes every call fail with ErrOffline.
func (g *Gateway) SetOffline(offline bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offline = offline
}

// Online reports whether the gateway is reachable.
func (g *Gateway) Online() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.offline
}

// FailOn makes calls to method return err; a nil err clears the failure.
func (g *Gateway) FailOn(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, method)
		return
	}
	g.failures[method] = err
}

// OnCall runs fn, without the gateway lock held, at the start of every call
// to method. Useful to interleave local edits with an in-flight request.
func (g *Gateway) OnCall(method string, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks[method] = fn
}

// Calls returns how many times method was invoked.
func (g *Gateway) Calls(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

// Completions returns the completions logged for owner.
func (g *Gateway) Completions(owner string) []Completion {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.completions[owner])
}

// Seed stores tasks directly, assigning ids to those without one.
func (g *Gateway) Seed(owner string, tasks ...task.Task) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for _, t := range tasks {
		if _, ok := t.ID.Remote(); !ok {
			t.ID = task.RemoteID(g.newID())
		}
		t.Owner = owner
		t.Normalize()
		g.tasks[owner] = append(g.tasks[owner], t.Clone())
		r, _ := t.ID.Remote()
		ids = append(ids, r)
	}
	return ids
}

// begin records a call and returns the injected error, if any.
func (g *Gateway) begin(method string) error {
	g.mu.Lock()
	g.calls[method]++
	hook := g.hooks[method]
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return ErrOffline
	}
	return g.failures[method]
}

func (g *Gateway) newID() string {
	g.nextID++
	return strconv.Itoa(g.nextID)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, remote.ErrNotFound)
}

// --- tasks ---

func (g *Gateway) ListTasks(_ context.Context, owner string) ([]task.Task, error) {
	if err := g.begin("ListTasks"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]task.Task, len(g.tasks[owner]))
	for i, t := range g.tasks[owner] {
		out[i] = t.Clone()
	}
	task.Sort(out)
	return out, nil
}

// Task returns one stored task.
func (g *Gateway) Task(owner, id string) (task.Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.tasks[owner] {
		if t.ID == task.RemoteID(id) {
			return t.Clone(), true
		}
	}
	return task.Task{}, false
}

func (g *Gateway) CreateTask(_ context.Context, owner string, t task.Task) (string, error) {
	if err := g.begin("CreateTask"); err != nil {
		return "", err
	}
	if t.ListID != nil && t.ListID.IsPending() {
		return "", remote.ErrPendingID
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.ClientRef != "" {
		for _, existing := range g.tasks[owner] {
			if existing.ClientRef == t.ClientRef {
				r, _ := existing.ID.Remote()
				return r, nil
			}
		}
	}
	id := g.newID()
	t.ID = task.RemoteID(id)
	t.Owner = owner
	t.Normalize()
	g.tasks[owner] = append(g.tasks[owner], t.Clone())
	return id, nil
}

func (g *Gateway) UpdateTask(_ context.Context, owner, id string, p task.Patch) error {
	if err := g.begin("UpdateTask"); err != nil {
		return err
	}
	if p.ListID != nil && p.ListID.IsPending() {
		return remote.ErrPendingID
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.tasks[owner] {
		if g.tasks[owner][i].ID == task.RemoteID(id) {
			g.tasks[owner][i].ApplyPatch(p)
			return nil
		}
	}
	return notFound("task", id)
}

func (g *Gateway) DeleteTask(_ context.Context, owner, id string) error {
	if err := g.begin("DeleteTask"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := slices.IndexFunc(g.tasks[owner], func(t task.Task) bool { return t.ID == task.RemoteID(id) })
	if i < 0 {
		return notFound("task", id)
	}
	g.tasks[owner] = slices.Delete(g.tasks[owner], i, i+1)
	return nil
}

func (g *Gateway) UpsertPositions(_ context.Context, owner string, positions []remote.Position) error {
	if err := g.begin("UpsertPositions"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range positions {
		for i := range g.tasks[owner] {
			if g.tasks[owner][i].ID == task.RemoteID(p.ID) {
				g.tasks[owner][i].Position = p.Position
			}
		}
	}
	return nil
}

func (g *Gateway) LogCompletion(_ context.Context, owner, id string, at time.Time) error {
	if err := g.begin("LogCompletion"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completions[owner] = append(g.completions[owner], Completion{TaskID: id, At: at})
	return nil
}

// --- lists ---

func (g *Gateway) ListLists(_ context.Context, owner string) ([]task.List, error) {
	if err := g.begin("ListLists"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.lists[owner]), nil
}

func (g *Gateway) CreateList(_ context.Context, owner string, l task.List) (string, error) {
	if err := g.begin("CreateList"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if l.ClientRef != "" {
		for _, existing := range g.lists[owner] {
			if existing.ClientRef == l.ClientRef {
				r, _ := existing.ID.Remote()
				return r, nil
			}
		}
	}
	id := g.newID()
	l.ID = task.RemoteID(id)
	l.Owner = owner
	g.lists[owner] = append(g.lists[owner], l)
	return id, nil
}

func (g *Gateway) RenameList(_ context.Context, owner, id, title string) error {
	if err := g.begin("RenameList"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.lists[owner] {
		if g.lists[owner][i].ID == task.RemoteID(id) {
			g.lists[owner][i].Title = title
			return nil
		}
	}
	return notFound("list", id)
}

func (g *Gateway) DeleteList(_ context.Context, owner, id string) error {
	if err := g.begin("DeleteList"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	lid := task.RemoteID(id)
	i := slices.IndexFunc(g.lists[owner], func(l task.List) bool { return l.ID == lid })
	if i < 0 {
		return notFound("list", id)
	}
	g.lists[owner] = slices.Delete(g.lists[owner], i, i+1)
	for j := range g.tasks[owner] {
		if t := &g.tasks[owner][j]; t.ListID != nil && *t.ListID == lid {
			t.ListID = nil
		}
	}
	return nil
}

// --- templates ---

func (g *Gateway) ListTemplates(_ context.Context, owner string) ([]task.Template, error) {
	if err := g.begin("ListTemplates"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.templates[owner]), nil
}

func (g *Gateway) CreateTemplate(_ context.Context, owner string, tp task.Template) (string, error) {
	if err := g.begin("CreateTemplate"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if tp.ClientRef != "" {
		for _, existing := range g.templates[owner] {
			if existing.ClientRef == tp.ClientRef {
				r, _ := existing.ID.Remote()
				return r, nil
			}
		}
	}
	id := g.newID()
	tp.ID = task.RemoteID(id)
	tp.Owner = owner
	g.templates[owner] = append(g.templates[owner], tp)
	return id, nil
}

func (g *Gateway) UpdateTemplate(_ context.Context, owner, id string, tp task.Template) error {
	if err := g.begin("UpdateTemplate"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.templates[owner] {
		if g.templates[owner][i].ID == task.RemoteID(id) {
			tp.ID = g.templates[owner][i].ID
			tp.ClientRef = g.templates[owner][i].ClientRef
			tp.Owner = owner
			g.templates[owner][i] = tp
			return nil
		}
	}
	return notFound("template", id)
}

func (g *Gateway) DeleteTemplate(_ context.Context, owner, id string) error {
	if err := g.begin("DeleteTemplate"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := slices.IndexFunc(g.templates[owner], func(tp task.Template) bool { return tp.ID == task.RemoteID(id) })
	if i < 0 {
		return notFound("template", id)
	}
	g.templates[owner] = slices.Delete(g.templates[owner], i, i+1)
	return nil
}

var _ remote.Gateway = (*Gateway)(nil)
