package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GoCodeAlone/tickler/task"
)

func idsOf(tasks []task.Task) []task.ID {
	out := make([]task.ID, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestMerge_KeepsPendingAndRemote(t *testing.T) {
	pending := task.NewPendingID()
	local := []task.Task{
		{ID: task.RemoteID("1"), Title: "stale title", Position: 0},
		{ID: pending, Title: "offline create", Position: 5},
		{ID: task.RemoteID("gone"), Title: "deleted elsewhere", Position: 1},
	}
	remote := []task.Task{
		{ID: task.RemoteID("2"), Title: "from phone", Position: 1},
		{ID: task.RemoteID("1"), Title: "fresh title", Position: 0},
	}

	got := Merge(local, remote, Options{})
	assert.Equal(t, []task.ID{task.RemoteID("1"), task.RemoteID("2"), pending}, idsOf(got))
	assert.Equal(t, "fresh title", got[0].Title)
}

func TestMerge_PendingCountNeverDrops(t *testing.T) {
	var local []task.Task
	for i := range 5 {
		local = append(local, task.Task{ID: task.NewPendingID(), Title: "p", Position: i})
	}
	for _, remote := range [][]task.Task{nil, {}, {{ID: task.RemoteID("9")}}} {
		got := Merge(local, remote, Options{})
		assert.Equal(t, 5, PendingCount(idsOf(got)))
	}
}

func TestMerge_StaleGuard(t *testing.T) {
	edited := task.RemoteID("1")
	promoted := task.RemoteID("7")
	removed := task.RemoteID("3")
	local := []task.Task{
		{ID: edited, Title: "edited after fetch began", Position: 0},
		{ID: promoted, Title: "created after fetch began", Position: 2},
	}
	remote := []task.Task{
		{ID: edited, Title: "old", Position: 0},
		{ID: removed, Title: "purged after fetch began", Position: 1},
	}
	touched := map[task.ID]uint64{edited: 4, promoted: 5, removed: 5}
	opts := Options{
		Since:   3,
		Touched: func(id task.ID, since uint64) bool { return touched[id] > since },
	}

	got := Merge(local, remote, opts)
	assert.Equal(t, []task.ID{edited, promoted}, idsOf(got))
	assert.Equal(t, "edited after fetch began", got[0].Title)

	// Touches before the fetch started do not count.
	opts.Since = 5
	got = Merge(local, remote, opts)
	assert.Equal(t, []task.ID{edited, removed}, idsOf(got))
	assert.Equal(t, "old", got[0].Title)
}

func TestMerge_Tombstones(t *testing.T) {
	purged := task.RemoteID("1")
	remote := []task.Task{{ID: purged, Title: "x"}, {ID: task.RemoteID("2"), Title: "y"}}
	got := Merge(nil, remote, Options{Tombstoned: func(id task.ID) bool { return id == purged }})
	assert.Equal(t, []task.ID{task.RemoteID("2")}, idsOf(got))
}

func TestMerge_HidesRemoteCopyOfPendingCreate(t *testing.T) {
	pending := task.NewPendingID()
	local := []task.Task{{ID: pending, ClientRef: pending.Token(), Title: "mine"}}
	remote := []task.Task{{ID: task.RemoteID("5"), ClientRef: pending.Token(), Title: "mine"}}

	got := Merge(local, remote, Options{})
	assert.Equal(t, []task.ID{pending}, idsOf(got))
}

func TestMerge_OutputIsACopy(t *testing.T) {
	list := task.RemoteID("l")
	remote := []task.Task{{ID: task.RemoteID("1"), ListID: &list}}
	got := Merge(nil, remote, Options{})
	*got[0].ListID = task.RemoteID("other")
	assert.Equal(t, task.RemoteID("l"), *remote[0].ListID)
}

func TestMergeLists(t *testing.T) {
	pending := task.NewPendingID()
	local := []task.List{{ID: pending, Title: "New"}, {ID: task.RemoteID("a"), Title: "Old"}}
	remote := []task.List{{ID: task.RemoteID("b"), Title: "Work"}, {ID: task.RemoteID("a"), Title: "Home"}}

	got := MergeLists(local, remote, Options{})
	assert.Len(t, got, 3)
	assert.Equal(t, task.RemoteID("b"), got[0].ID)
	assert.Equal(t, "Home", got[1].Title)
	assert.Equal(t, pending, got[2].ID)
}

func TestMergeTemplates(t *testing.T) {
	remote := []task.Template{{ID: task.RemoteID("t1"), Title: "Report"}}
	got := MergeTemplates(nil, remote, Options{})
	assert.Equal(t, remote, got)
}
