package order

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/tickler/cache"
	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/remote/remotetest"
	"github.com/GoCodeAlone/tickler/task"
)

const owner = "alice"

func ids(names ...string) []task.ID {
	out := make([]task.ID, len(names))
	for i, n := range names {
		out[i] = task.RemoteID(n)
	}
	return out
}

func TestMove(t *testing.T) {
	in := ids("a", "b", "c", "d")

	got, err := Move(in, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, ids("b", "c", "a", "d"), got)
	assert.Equal(t, ids("a", "b", "c", "d"), in, "input must not change")

	got, err = Move(in, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, ids("d", "a", "b", "c"), got)

	same, err := Move(in, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, in, same)

	for _, bad := range [][2]int{{-1, 0}, {0, 4}, {4, 0}, {0, -1}} {
		_, err := Move(in, bad[0], bad[1])
		assert.ErrorIs(t, err, ErrOutOfRange, "move %v", bad)
	}
}

func TestMove_ReverseIsIdentity(t *testing.T) {
	in := ids("a", "b", "c", "d", "e")
	for from := range in {
		for to := range in {
			moved, err := Move(in, from, to)
			require.NoError(t, err)
			back, err := Move(moved, to, from)
			require.NoError(t, err)
			assert.Equal(t, in, back)
		}
	}
}

func setup(t *testing.T) (*cache.Cache, *remotetest.Gateway, []task.ID) {
	t.Helper()
	gw := remotetest.New()
	remoteIDs := gw.Seed(owner,
		task.Task{Title: "a", Position: 0},
		task.Task{Title: "b", Position: 1},
	)
	c := cache.New(nil, nil)
	pending := task.NewPendingID()
	visible := []task.ID{task.RemoteID(remoteIDs[0]), task.RemoteID(remoteIDs[1]), pending}
	require.NoError(t, c.Apply(owner, func(tx *cache.Tx) error {
		tx.PutTask(task.Task{ID: visible[0], Title: "a", Position: 0})
		tx.PutTask(task.Task{ID: visible[1], Title: "b", Position: 1})
		tx.PutTask(task.Task{ID: pending, Title: "p", Position: 7})
		return nil
	}))
	return c, gw, visible
}

func TestManager_ReorderDensePositions(t *testing.T) {
	c, gw, visible := setup(t)
	m := NewManager(c, gw, nil, nil)

	seq, err := m.Reorder(context.Background(), owner, visible, 2, 0)
	require.NoError(t, err)
	m.Wait()

	assert.Equal(t, []task.ID{visible[2], visible[0], visible[1]}, seq)
	for want, id := range seq {
		got, ok := c.Task(owner, id)
		require.True(t, ok)
		assert.Equal(t, want, got.Position, "position of %s", id)
	}

	// Only confirmed tasks are sent, with their new indices.
	assert.Equal(t, 1, gw.Calls("UpsertPositions"))
	rs, _ := visible[0].Remote()
	stored, _ := gw.Task(owner, rs)
	assert.Equal(t, 1, stored.Position)
	assert.Empty(t, c.Backlog(owner).Unsent, "acknowledged positions are settled")
}

func TestManager_FailureKeepsLocalOrder(t *testing.T) {
	c, gw, visible := setup(t)
	gw.FailOn("UpsertPositions", errors.New("503"))
	bus := notify.NewInMemoryBus()
	m := NewManager(c, gw, bus, nil)

	_, err := m.Reorder(context.Background(), owner, visible, 0, 1)
	require.NoError(t, err)
	m.Wait()

	a, _ := c.Task(owner, visible[0])
	assert.Equal(t, 1, a.Position)
	assert.Len(t, c.Backlog(owner).Unsent, 2, "both confirmed tasks still owe their position")

	hist, err := bus.History(owner, 10)
	require.NoError(t, err)
	var notices int
	for _, ev := range hist {
		if ev.Type == notify.TypeNotice {
			notices++
		}
	}
	assert.Equal(t, 1, notices)
}

func TestManager_OutOfRangeChangesNothing(t *testing.T) {
	c, gw, visible := setup(t)
	m := NewManager(c, gw, nil, nil)
	seq := c.Seq(owner)

	_, err := m.Reorder(context.Background(), owner, visible, 0, 3)
	require.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, seq, c.Seq(owner))
	assert.Zero(t, gw.Calls("UpsertPositions"))
}
