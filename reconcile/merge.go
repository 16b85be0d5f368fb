// Package reconcile folds a fresh copy of the remote collections into the
// local cache without losing records the remote store has not seen yet.
package reconcile

import (
	"github.com/GoCodeAlone/tickler/task"
)

// Options tunes a merge.
type Options struct {
	// Since is the cache sequence number read when the fetch started.
	Since uint64
	// Touched reports whether a record was mutated locally after a given
	// sequence number. Nil means nothing was.
	Touched func(id task.ID, since uint64) bool
	// Tombstoned reports whether a confirmed record was purged locally and
	// must not come back. Nil means nothing is.
	Tombstoned func(id task.ID) bool
}

func (o Options) touched(id task.ID) bool {
	return o.Touched != nil && o.Touched(id, o.Since)
}

func (o Options) tombstoned(id task.ID) bool {
	return o.Tombstoned != nil && o.Tombstoned(id)
}

// Merge returns the union of every remote task and every pending local task,
// ordered by position.
//
// A confirmed local task mutated after the fetch started keeps its local form
// and survives even when the fetch does not contain it; one removed after the
// fetch started stays removed. Tombstoned remote
// tasks are skipped. A remote task created under the client ref of a still
// pending local task is hidden; the pending record stands in for it until
// its create is acknowledged.
func Merge(local, remote []task.Task, opts Options) []task.Task {
	out := merge(local, remote, opts, func(t *task.Task) (task.ID, string) { return t.ID, t.ClientRef })
	for i := range out {
		out[i] = out[i].Clone()
	}
	task.Sort(out)
	return out
}

// MergeLists merges lists the same way. Remote order is kept.
func MergeLists(local, remote []task.List, opts Options) []task.List {
	return merge(local, remote, opts, func(l *task.List) (task.ID, string) { return l.ID, l.ClientRef })
}

// MergeTemplates merges templates the same way. Remote order is kept.
func MergeTemplates(local, remote []task.Template, opts Options) []task.Template {
	return merge(local, remote, opts, func(tp *task.Template) (task.ID, string) { return tp.ID, tp.ClientRef })
}

// PendingCount returns how many records in ids are pending.
func PendingCount(ids []task.ID) int {
	n := 0
	for _, id := range ids {
		if id.IsPending() {
			n++
		}
	}
	return n
}

func merge[T any](local, remote []T, opts Options, key func(*T) (task.ID, string)) []T {
	localByID := make(map[task.ID]int, len(local))
	pendingRefs := make(map[string]struct{})
	for i := range local {
		id, _ := key(&local[i])
		localByID[id] = i
		if id.IsPending() {
			pendingRefs[id.Token()] = struct{}{}
		}
	}

	out := make([]T, 0, len(remote)+len(local))
	seen := make(map[task.ID]struct{}, len(remote))
	for i := range remote {
		id, ref := key(&remote[i])
		if opts.tombstoned(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := pendingRefs[ref]; ok && ref != "" {
			continue
		}
		seen[id] = struct{}{}
		if opts.touched(id) {
			// The local copy is newer than the fetch; a missing one was
			// removed after the fetch started.
			if li, ok := localByID[id]; ok {
				out = append(out, local[li])
			}
			continue
		}
		out = append(out, remote[i])
	}

	for i := range local {
		id, _ := key(&local[i])
		if _, ok := seen[id]; ok {
			continue
		}
		switch {
		case id.IsPending():
			out = append(out, local[i])
		case opts.touched(id) && !opts.tombstoned(id):
			// Promoted or edited after the fetch started.
			out = append(out, local[i])
		}
	}
	return out
}
