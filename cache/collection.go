package cache

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/GoCodeAlone/tickler/task"
)

// collection is one owner's records. Slices keep cache order, which breaks
// position ties.
type collection struct {
	tasks       []task.Task
	lists       []task.List
	templates   []task.Template
	tombstones  map[task.ID]Kind
	unsent      map[task.ID]Unsent
	completions []Completion
	touched     map[task.ID]uint64 // id -> seq of the last local mutation
	seq         uint64
}

func newCollection() *collection {
	return &collection{
		tombstones: make(map[task.ID]Kind),
		unsent:     make(map[task.ID]Unsent),
		touched:    make(map[task.ID]uint64),
	}
}

func (c *collection) clone() *collection {
	return &collection{
		tasks:       cloneTasks(c.tasks),
		lists:       slices.Clone(c.lists),
		templates:   slices.Clone(c.templates),
		tombstones:  maps.Clone(c.tombstones),
		unsent:      maps.Clone(c.unsent),
		completions: slices.Clone(c.completions),
		touched:     maps.Clone(c.touched),
		seq:         c.seq,
	}
}

func (c *collection) taskIndex(id task.ID) int {
	return slices.IndexFunc(c.tasks, func(t task.Task) bool { return t.ID == id })
}

func (c *collection) listIndex(id task.ID) int {
	return slices.IndexFunc(c.lists, func(l task.List) bool { return l.ID == id })
}

func (c *collection) templateIndex(id task.ID) int {
	return slices.IndexFunc(c.templates, func(t task.Template) bool { return t.ID == id })
}

func (c *collection) completionIndex(id task.ID, at time.Time) int {
	return slices.IndexFunc(c.completions, func(cp Completion) bool { return cp.TaskID == id && cp.At.Equal(at) })
}

func (c *collection) tombstoneList() []Tombstone {
	out := make([]Tombstone, 0, len(c.tombstones))
	for id, kind := range c.tombstones {
		out = append(out, Tombstone{ID: id, Kind: kind})
	}
	slices.SortFunc(out, func(a, b Tombstone) int { return strings.Compare(a.ID.String(), b.ID.String()) })
	return out
}

func (c *collection) unsentList() []Unsent {
	out := make([]Unsent, 0, len(c.unsent))
	for _, u := range c.unsent {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b Unsent) int { return strings.Compare(a.ID.String(), b.ID.String()) })
	return out
}

func (c *collection) snapshot(owner string, at time.Time) *Snapshot {
	return &Snapshot{
		Owner:       owner,
		Tasks:       cloneTasks(c.tasks),
		Lists:       slices.Clone(c.lists),
		Templates:   slices.Clone(c.templates),
		Tombstones:  c.tombstoneList(),
		Unsent:      c.unsentList(),
		Completions: slices.Clone(c.completions),
		SavedAt:     at,
	}
}

func (c *collection) restore(snap *Snapshot) {
	c.tasks = cloneTasks(snap.Tasks)
	c.lists = slices.Clone(snap.Lists)
	c.templates = slices.Clone(snap.Templates)
	for _, ts := range snap.Tombstones {
		c.tombstones[ts.ID] = ts.Kind
	}
	for _, u := range snap.Unsent {
		c.unsent[u.ID] = u
	}
	c.completions = slices.Clone(snap.Completions)
}

func cloneTasks(in []task.Task) []task.Task {
	if in == nil {
		return nil
	}
	out := make([]task.Task, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
