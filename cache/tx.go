package cache

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/tickler/task"
)

// ErrNotFound is returned by Tx operations addressing a missing record.
var ErrNotFound = errors.New("record not found in cache")

// Tx is a view of one owner's collection inside Apply. It is only valid for
// the duration of the Apply callback.
type Tx struct {
	col     *collection
	touched map[task.ID]struct{}
}

func (tx *Tx) touch(ids ...task.ID) {
	for _, id := range ids {
		tx.touched[id] = struct{}{}
	}
}

// Seq returns the sequence number of the last committed Apply.
func (tx *Tx) Seq() uint64 { return tx.col.seq }

// TouchedSince reports whether id was mutated locally by an Apply that
// committed after seq.
func (tx *Tx) TouchedSince(id task.ID, seq uint64) bool {
	return tx.col.touched[id] > seq
}

// --- tasks ---

// Tasks returns a copy of the tasks in cache order.
func (tx *Tx) Tasks() []task.Task { return cloneTasks(tx.col.tasks) }

// Task returns one task by id.
func (tx *Tx) Task(id task.ID) (task.Task, bool) {
	if i := tx.col.taskIndex(id); i >= 0 {
		return tx.col.tasks[i].Clone(), true
	}
	return task.Task{}, false
}

// PutTask inserts t, or replaces the task with the same id in place.
func (tx *Tx) PutTask(t task.Task) {
	t = t.Clone()
	if i := tx.col.taskIndex(t.ID); i >= 0 {
		tx.col.tasks[i] = t
	} else {
		tx.col.tasks = append(tx.col.tasks, t)
	}
	tx.touch(t.ID)
}

// RemoveTask deletes a task from the collection. It reports whether the task
// was present.
func (tx *Tx) RemoveTask(id task.ID) bool {
	i := tx.col.taskIndex(id)
	if i < 0 {
		return false
	}
	tx.col.tasks = append(tx.col.tasks[:i], tx.col.tasks[i+1:]...)
	tx.forget(id)
	tx.touch(id)
	return true
}

// PromoteTask replaces a pending id with the id the remote store assigned.
// The record keeps its place in cache order. A record already holding the
// remote id (brought in by a reconciliation) is dropped so ids stay unique.
func (tx *Tx) PromoteTask(pending, remote task.ID) error {
	i := tx.col.taskIndex(pending)
	if i < 0 {
		return fmt.Errorf("promote task %s: %w", pending, ErrNotFound)
	}
	tx.col.tasks[i].ID = remote
	for j := len(tx.col.tasks) - 1; j >= 0; j-- {
		if j != i && tx.col.tasks[j].ID == remote {
			tx.col.tasks = append(tx.col.tasks[:j], tx.col.tasks[j+1:]...)
		}
	}
	for j := range tx.col.completions {
		if tx.col.completions[j].TaskID == pending {
			tx.col.completions[j].TaskID = remote
		}
	}
	tx.touch(pending, remote)
	return nil
}

// SetPositions assigns position = index to each listed task. Ids not in the
// collection are skipped. Changed positions of confirmed tasks are owed to
// the remote store until settled.
func (tx *Tx) SetPositions(ids []task.ID) {
	for pos, id := range ids {
		i := tx.col.taskIndex(id)
		if i < 0 {
			continue
		}
		if tx.col.tasks[i].Position != pos {
			tx.col.tasks[i].Position = pos
			tx.MarkTask(id, task.Patch{Position: &pos})
		}
		tx.touch(id)
	}
}

// ReplaceTasks swaps in a reconciled task collection. It does not count as a
// local mutation of the records it carries.
func (tx *Tx) ReplaceTasks(tasks []task.Task) {
	tx.col.tasks = cloneTasks(tasks)
}

// --- lists ---

// Lists returns a copy of the lists.
func (tx *Tx) Lists() []task.List {
	out := make([]task.List, len(tx.col.lists))
	copy(out, tx.col.lists)
	return out
}

// List returns one list by id.
func (tx *Tx) List(id task.ID) (task.List, bool) {
	if i := tx.col.listIndex(id); i >= 0 {
		return tx.col.lists[i], true
	}
	return task.List{}, false
}

// PutList inserts or replaces a list.
func (tx *Tx) PutList(l task.List) {
	if i := tx.col.listIndex(l.ID); i >= 0 {
		tx.col.lists[i] = l
	} else {
		tx.col.lists = append(tx.col.lists, l)
	}
	tx.touch(l.ID)
}

// RemoveList deletes a list and detaches its tasks to unfiled. It returns the
// ids of the detached tasks; the confirmed ones owe the remote store an
// unfiling.
func (tx *Tx) RemoveList(id task.ID) ([]task.ID, bool) {
	i := tx.col.listIndex(id)
	if i < 0 {
		return nil, false
	}
	tx.col.lists = append(tx.col.lists[:i], tx.col.lists[i+1:]...)
	tx.forget(id)
	tx.touch(id)

	var detached []task.ID
	for j := range tx.col.tasks {
		t := &tx.col.tasks[j]
		if t.ListID != nil && *t.ListID == id {
			t.ListID = nil
			detached = append(detached, t.ID)
			tx.MarkTask(t.ID, task.Patch{ClearList: true})
			tx.touch(t.ID)
		}
	}
	return detached, true
}

// PromoteList replaces a pending list id and rewrites every task referencing
// it. It returns the ids of the rewritten tasks; the confirmed ones owe the
// remote store their new list.
func (tx *Tx) PromoteList(pending, remote task.ID) ([]task.ID, error) {
	i := tx.col.listIndex(pending)
	if i < 0 {
		return nil, fmt.Errorf("promote list %s: %w", pending, ErrNotFound)
	}
	tx.col.lists[i].ID = remote
	for j := len(tx.col.lists) - 1; j >= 0; j-- {
		if j != i && tx.col.lists[j].ID == remote {
			tx.col.lists = append(tx.col.lists[:j], tx.col.lists[j+1:]...)
		}
	}
	tx.touch(pending, remote)

	var rewired []task.ID
	for j := range tx.col.tasks {
		t := &tx.col.tasks[j]
		if t.ListID != nil && *t.ListID == pending {
			id := remote
			t.ListID = &id
			rewired = append(rewired, t.ID)
			tx.MarkTask(t.ID, task.Patch{ListID: &id})
			tx.touch(t.ID)
		}
	}
	return rewired, nil
}

// ReplaceLists swaps in a reconciled list collection.
func (tx *Tx) ReplaceLists(lists []task.List) {
	tx.col.lists = append([]task.List(nil), lists...)
}

// --- templates ---

// Templates returns a copy of the templates.
func (tx *Tx) Templates() []task.Template {
	out := make([]task.Template, len(tx.col.templates))
	copy(out, tx.col.templates)
	return out
}

// Template returns one template by id.
func (tx *Tx) Template(id task.ID) (task.Template, bool) {
	if i := tx.col.templateIndex(id); i >= 0 {
		return tx.col.templates[i], true
	}
	return task.Template{}, false
}

// PutTemplate inserts or replaces a template.
func (tx *Tx) PutTemplate(tp task.Template) {
	if i := tx.col.templateIndex(tp.ID); i >= 0 {
		tx.col.templates[i] = tp
	} else {
		tx.col.templates = append(tx.col.templates, tp)
	}
	tx.touch(tp.ID)
}

// RemoveTemplate deletes a template.
func (tx *Tx) RemoveTemplate(id task.ID) bool {
	i := tx.col.templateIndex(id)
	if i < 0 {
		return false
	}
	tx.col.templates = append(tx.col.templates[:i], tx.col.templates[i+1:]...)
	tx.forget(id)
	tx.touch(id)
	return true
}

// PromoteTemplate replaces a pending template id.
func (tx *Tx) PromoteTemplate(pending, remote task.ID) error {
	i := tx.col.templateIndex(pending)
	if i < 0 {
		return fmt.Errorf("promote template %s: %w", pending, ErrNotFound)
	}
	tx.col.templates[i].ID = remote
	for j := len(tx.col.templates) - 1; j >= 0; j-- {
		if j != i && tx.col.templates[j].ID == remote {
			tx.col.templates = append(tx.col.templates[:j], tx.col.templates[j+1:]...)
		}
	}
	tx.touch(pending, remote)
	return nil
}

// ReplaceTemplates swaps in a reconciled template collection.
func (tx *Tx) ReplaceTemplates(templates []task.Template) {
	tx.col.templates = append([]task.Template(nil), templates...)
}

// --- tombstones ---

// Tombstone records that a confirmed record of the given kind was purged
// locally and must not be resurrected by reconciliation until the remote
// delete lands.
func (tx *Tx) Tombstone(id task.ID, kind Kind) {
	tx.col.tombstones[id] = kind
}

// ClearTombstone forgets a tombstone.
func (tx *Tx) ClearTombstone(id task.ID) {
	delete(tx.col.tombstones, id)
}

// Tombstoned reports whether id is tombstoned.
func (tx *Tx) Tombstoned(id task.ID) bool {
	_, ok := tx.col.tombstones[id]
	return ok
}

// Tombstones returns every tombstoned id.
func (tx *Tx) Tombstones() []task.ID {
	out := make([]task.ID, 0, len(tx.col.tombstones))
	for id := range tx.col.tombstones {
		out = append(out, id)
	}
	return out
}
