package reconcile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/tickler/cache"
	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/remote/remotetest"
	"github.com/GoCodeAlone/tickler/task"
)

const owner = "alice"

func put(t *testing.T, c *cache.Cache, tasks ...task.Task) {
	t.Helper()
	require.NoError(t, c.Apply(owner, func(tx *cache.Tx) error {
		for _, tk := range tasks {
			tx.PutTask(tk)
		}
		return nil
	}))
}

func TestEngine_ReconcileMergesRemote(t *testing.T) {
	gw := remotetest.New()
	gw.Seed(owner, task.Task{Title: "from phone", Position: 0})
	c := cache.New(nil, nil)
	pending := task.NewPendingID()
	put(t, c, task.Task{ID: pending, Title: "offline", Position: 1})

	bus := notify.NewInMemoryBus()
	e := New(c, gw, bus, nil)
	require.NoError(t, e.Reconcile(context.Background(), owner))

	tasks := c.Tasks(owner)
	require.Len(t, tasks, 2)
	assert.Equal(t, "from phone", tasks[0].Title)
	assert.Equal(t, pending, tasks[1].ID)

	hist, err := bus.History(owner, 10)
	require.NoError(t, err)
	assert.Equal(t, notify.TypeSynced, hist[len(hist)-1].Type)
}

func TestEngine_FetchFailureLeavesCacheUntouched(t *testing.T) {
	gw := remotetest.New()
	gw.SetOffline(true)
	c := cache.New(nil, nil)
	put(t, c, task.Task{ID: task.RemoteID("1"), Title: "cached"})
	seq := c.Seq(owner)

	e := New(c, gw, nil, nil)
	err := e.Reconcile(context.Background(), owner)
	require.ErrorIs(t, err, remotetest.ErrOffline)
	assert.Equal(t, seq, c.Seq(owner))
	assert.Len(t, c.Tasks(owner), 1)
}

func TestEngine_LocalEditDuringFetchWins(t *testing.T) {
	gw := remotetest.New()
	ids := gw.Seed(owner, task.Task{Title: "old title"})
	c := cache.New(nil, nil)
	e := New(c, gw, nil, nil)
	require.NoError(t, e.Reconcile(context.Background(), owner))

	// The user edits the task while the next fetch is in flight.
	gw.OnCall("ListTasks", func() {
		put(t, c, task.Task{ID: task.RemoteID(ids[0]), Title: "new title"})
	})
	require.NoError(t, e.Reconcile(context.Background(), owner))

	got, ok := c.Task(owner, task.RemoteID(ids[0]))
	require.True(t, ok)
	assert.Equal(t, "new title", got.Title)
}

func TestEngine_UnsentChangesSurviveUntilSettled(t *testing.T) {
	gw := remotetest.New()
	ids := gw.Seed(owner, task.Task{Title: "Call mom"})
	id := task.RemoteID(ids[0])
	c := cache.New(nil, nil)
	e := New(c, gw, nil, nil)
	require.NoError(t, e.Reconcile(context.Background(), owner))

	done := true
	require.NoError(t, c.Apply(owner, func(tx *cache.Tx) error {
		cur, _ := tx.Task(id)
		cur.Completed = true
		tx.PutTask(cur)
		tx.MarkTask(id, task.Patch{Completed: &done})
		return nil
	}))

	// Later reconciles still see the old remote copy.
	for range 2 {
		require.NoError(t, e.Reconcile(context.Background(), owner))
		got, ok := c.Task(owner, id)
		require.True(t, ok)
		assert.True(t, got.Completed)
	}

	require.NoError(t, c.Apply(owner, func(tx *cache.Tx) error {
		tx.SettleTask(id, task.Patch{Completed: &done})
		return nil
	}))
	require.NoError(t, e.Reconcile(context.Background(), owner))
	got, _ := c.Task(owner, id)
	assert.False(t, got.Completed, "settled records follow the remote store again")
}

func TestEngine_DropsOvertakenResult(t *testing.T) {
	gw := remotetest.New()
	gw.Seed(owner, task.Task{Title: "v1"})
	c := cache.New(nil, nil)
	e := New(c, gw, nil, nil)

	// While the first fetch is in flight, a second reconcile runs to
	// completion with newer data; the first result must be dropped.
	var nested atomic.Bool
	gw.OnCall("ListTemplates", func() {
		if nested.CompareAndSwap(false, true) {
			gw.OnCall("ListTemplates", nil)
			gw.Seed(owner, task.Task{Title: "v2", Position: 1})
			require.NoError(t, e.Reconcile(context.Background(), owner))
		}
	})
	require.NoError(t, e.Reconcile(context.Background(), owner))

	assert.Len(t, c.Tasks(owner), 2)
}

func TestEngine_TombstonesSuppressAndClear(t *testing.T) {
	gw := remotetest.New()
	ids := gw.Seed(owner, task.Task{Title: "purged locally"})
	purged := task.RemoteID(ids[0])
	c := cache.New(nil, nil)
	require.NoError(t, c.Apply(owner, func(tx *cache.Tx) error {
		tx.Tombstone(purged, cache.KindTask)
		return nil
	}))
	e := New(c, gw, nil, nil)

	require.NoError(t, e.Reconcile(context.Background(), owner))
	assert.Empty(t, c.Tasks(owner))

	// Once the remote delete lands the tombstone is forgotten.
	require.NoError(t, gw.DeleteTask(context.Background(), owner, ids[0]))
	require.NoError(t, e.Reconcile(context.Background(), owner))
	require.NoError(t, c.Apply(owner, func(tx *cache.Tx) error {
		assert.False(t, tx.Tombstoned(purged))
		return nil
	}))
}

type countingRetrier struct{ n atomic.Int32 }

func (r *countingRetrier) RetryPending(context.Context, string) { r.n.Add(1) }

func TestEngine_RunPollsWhileOnline(t *testing.T) {
	gw := remotetest.New()
	c := cache.New(nil, nil)
	e := New(c, gw, nil, nil)
	e.Interval = 5 * time.Millisecond
	retrier := &countingRetrier{}
	e.Retrier = retrier
	var online atomic.Bool
	e.Online = online.Load

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx, owner)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, gw.Calls("ListTasks"), "must not poll while offline")

	online.Store(true)
	require.Eventually(t, func() bool { return gw.Calls("ListTasks") >= 2 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, retrier.n.Load(), int32(2))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
