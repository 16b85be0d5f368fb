package cache

import (
	"slices"
	"time"

	"github.com/GoCodeAlone/tickler/task"
)

// Kind names the collection a record belongs to.
type Kind string

const (
	KindTask     Kind = "task"
	KindList     Kind = "list"
	KindTemplate Kind = "template"
)

// Unsent is a confirmed record with local changes the remote store has not
// acknowledged. Tasks carry the accumulated patch; lists and templates are
// sent whole, so their Patch is empty.
type Unsent struct {
	ID    task.ID    `json:"id"`
	Kind  Kind       `json:"kind"`
	Patch task.Patch `json:"patch"`
}

// Completion is a completion not yet logged remotely.
type Completion struct {
	TaskID task.ID   `json:"task_id"`
	At     time.Time `json:"at"`
}

// Tombstone marks a confirmed record purged locally.
type Tombstone struct {
	ID   task.ID `json:"id"`
	Kind Kind    `json:"kind"`
}

// Backlog is everything one owner changed locally that the remote store has
// not acknowledged. It is saved with the snapshot, so it outlives the process.
type Backlog struct {
	Unsent      []Unsent
	Completions []Completion
	Tombstones  []Tombstone
}

// Len returns the number of entries in b.
func (b Backlog) Len() int { return len(b.Unsent) + len(b.Completions) + len(b.Tombstones) }

// Backlog returns owner's unacknowledged changes.
func (c *Cache) Backlog(owner string) Backlog {
	c.mu.Lock()
	defer c.mu.Unlock()
	col := c.collection(owner)
	return Backlog{
		Unsent:      col.unsentList(),
		Completions: slices.Clone(col.completions),
		Tombstones:  col.tombstoneList(),
	}
}

// MarkTask records p as owed to the remote store for the confirmed task id,
// on top of whatever is already owed. Pending ids are skipped: their create
// reads the whole record.
func (tx *Tx) MarkTask(id task.ID, p task.Patch) {
	if id.IsPending() || p.IsEmpty() {
		return
	}
	u := tx.col.unsent[id]
	u.ID, u.Kind = id, KindTask
	u.Patch = u.Patch.Merge(p)
	tx.col.unsent[id] = u
	tx.touch(id)
}

// Mark records that the confirmed list or template id must be sent again.
func (tx *Tx) Mark(id task.ID, kind Kind) {
	if id.IsPending() {
		return
	}
	tx.col.unsent[id] = Unsent{ID: id, Kind: kind}
	tx.touch(id)
}

// Unsent returns what is owed for id.
func (tx *Tx) Unsent(id task.ID) (Unsent, bool) {
	u, ok := tx.col.unsent[id]
	return u, ok
}

// HasUnsent reports whether id has changes the remote store has not
// acknowledged.
func (tx *Tx) HasUnsent(id task.ID) bool {
	_, ok := tx.col.unsent[id]
	return ok
}

// SettleTask drops the fields of id's unsent patch that sent delivered with
// the same value. Fields changed again since sent was read stay owed.
func (tx *Tx) SettleTask(id task.ID, sent task.Patch) {
	u, ok := tx.col.unsent[id]
	if !ok {
		return
	}
	u.Patch = u.Patch.Without(sent)
	if u.Patch.IsEmpty() {
		delete(tx.col.unsent, id)
	} else {
		tx.col.unsent[id] = u
	}
	tx.touch(id)
}

// Settle forgets everything owed for id.
func (tx *Tx) Settle(id task.ID) {
	if _, ok := tx.col.unsent[id]; !ok {
		return
	}
	delete(tx.col.unsent, id)
	tx.touch(id)
}

// QueueCompletion records a completion of task id to be logged remotely.
func (tx *Tx) QueueCompletion(id task.ID, at time.Time) {
	tx.col.completions = append(tx.col.completions, Completion{TaskID: id, At: at})
}

// HasCompletion reports whether the completion of id at at is still queued.
func (tx *Tx) HasCompletion(id task.ID, at time.Time) bool {
	return tx.col.completionIndex(id, at) >= 0
}

// AckCompletion removes a logged completion from the queue.
func (tx *Tx) AckCompletion(id task.ID, at time.Time) {
	if i := tx.col.completionIndex(id, at); i >= 0 {
		tx.col.completions = slices.Delete(tx.col.completions, i, i+1)
	}
}

// forget drops everything owed for a record that no longer exists locally.
func (tx *Tx) forget(id task.ID) {
	delete(tx.col.unsent, id)
	tx.col.completions = slices.DeleteFunc(tx.col.completions, func(c Completion) bool { return c.TaskID == id })
}

// Completions returns the completions still to be logged.
func (tx *Tx) Completions() []Completion { return slices.Clone(tx.col.completions) }

// Unsent returns what owner still owes the remote store for id.
func (c *Cache) Unsent(owner string, id task.ID) (Unsent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.collection(owner).unsent[id]
	return u, ok
}

// HasCompletion reports whether owner's completion of id at at is still
// queued.
func (c *Cache) HasCompletion(owner string, id task.ID, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection(owner).completionIndex(id, at) >= 0
}
