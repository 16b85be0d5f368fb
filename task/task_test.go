package task

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func addDays(current time.Time, f Frequency) (time.Time, error) {
	return current.AddDate(0, 0, 1), nil
}

func mustWall(t *testing.T, s string) *Wall {
	t.Helper()
	w, err := ParseWall(s)
	if err != nil {
		t.Fatalf("ParseWall(%q): %v", s, err)
	}
	return &w
}

func TestID_PendingAndRemote(t *testing.T) {
	p := NewPendingID()
	if !p.IsPending() {
		t.Fatal("NewPendingID is not pending")
	}
	if _, ok := p.Remote(); ok {
		t.Fatal("pending id exposed a remote value")
	}
	if p == NewPendingID() {
		t.Fatal("two pending ids compare equal")
	}

	r := RemoteID("42")
	if r.IsPending() {
		t.Fatal("remote id reported pending")
	}
	if got, ok := r.Remote(); !ok || got != "42" {
		t.Fatalf("Remote() = %q, %v; want 42, true", got, ok)
	}
}

func TestID_TextRoundTrip(t *testing.T) {
	for _, id := range []ID{NewPendingID(), RemoteID("abc"), {}} {
		b, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("marshal %v: %v", id, err)
		}
		var got ID
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if got != id {
			t.Errorf("round trip %v -> %s -> %v", id, b, got)
		}
	}
	if _, err := ParseID("local:"); err == nil {
		t.Error("expected error for empty pending token")
	}
}

func TestParseWall_Layouts(t *testing.T) {
	want := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-01-31T09:00", "2024-01-31T09:00:00", "2024-01-31 09:00", "2024-01-31T09:00:00+03:00"} {
		w, err := ParseWall(s)
		if err != nil {
			t.Fatalf("ParseWall(%q): %v", s, err)
		}
		if !w.Time.Equal(want) {
			t.Errorf("ParseWall(%q) = %v, want %v", s, w, want)
		}
	}
	if _, err := ParseWall("tomorrow"); err == nil {
		t.Error("expected error for unparseable wall time")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		task Task
		ok   bool
	}{
		{"ok", Task{Title: "Pay rent", Type: TypeEmail, Frequency: Monthly, Priority: PriorityHigh}, true},
		{"defaults", Task{Title: "x"}, true},
		{"blank title", Task{Title: "   "}, false},
		{"bad type", Task{Title: "x", Type: "fax"}, false},
		{"bad frequency", Task{Title: "x", Frequency: "hourly"}, false},
		{"bad priority", Task{Title: "x", Priority: 5}, false},
	}
	for _, tc := range cases {
		err := tc.task.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: err = %v, want ErrInvalid", tc.name, err)
		}
	}
}

func TestComplete_OnceFinishes(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	tk := Task{Title: "x", Frequency: Once, NextRun: mustWall(t, "2024-02-01T09:00")}
	if err := tk.Complete(now, addDays); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !tk.Completed {
		t.Fatal("once task not completed")
	}
	if BucketOf(&tk) != BucketCompleted {
		t.Errorf("bucket = %s, want completed", BucketOf(&tk))
	}
	if err := tk.Complete(now, addDays); !errors.Is(err, ErrCompleted) {
		t.Errorf("second Complete err = %v, want ErrCompleted", err)
	}
}

func TestComplete_RecurringAdvances(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	tk := Task{Title: "x", Frequency: Daily, NextRun: mustWall(t, "2024-02-01T09:00")}
	if err := tk.Complete(now, addDays); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if tk.Completed {
		t.Fatal("recurring task completed")
	}
	if got := tk.NextRun.String(); got != "2024-02-02T09:00:00" {
		t.Errorf("NextRun = %s, want 2024-02-02T09:00:00", got)
	}
	if tk.LastRun == nil || !tk.LastRun.Time.Equal(now) {
		t.Errorf("LastRun = %v, want %v", tk.LastRun, now)
	}
}

func TestComplete_RecurringWithoutScheduleFinishes(t *testing.T) {
	tk := Task{Title: "x", Frequency: Weekly}
	if err := tk.Complete(time.Now(), addDays); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !tk.Completed {
		t.Fatal("unscheduled weekly task should complete")
	}
}

func TestComplete_Deleted(t *testing.T) {
	tk := Task{Title: "x", IsDeleted: true}
	if err := tk.Complete(time.Now(), addDays); !errors.Is(err, ErrDeleted) {
		t.Fatalf("err = %v, want ErrDeleted", err)
	}
}

func TestSoftDeleteRestore_PreservesCompleted(t *testing.T) {
	for _, completed := range []bool{true, false} {
		tk := Task{Title: "x", Completed: completed}
		tk.SoftDelete()
		if BucketOf(&tk) != BucketDeleted {
			t.Fatalf("bucket = %s, want deleted", BucketOf(&tk))
		}
		if err := tk.Restore(); err != nil {
			t.Fatalf("Restore: %v", err)
		}
		if tk.Completed != completed {
			t.Errorf("Completed = %v after restore, want %v", tk.Completed, completed)
		}
		if BucketOf(&tk) == BucketDeleted {
			t.Error("task still in deleted bucket")
		}
	}
	active := Task{Title: "x"}
	if err := active.Restore(); !errors.Is(err, ErrNotDeleted) {
		t.Errorf("Restore active err = %v, want ErrNotDeleted", err)
	}
	if err := active.CanPurge(); !errors.Is(err, ErrNotDeleted) {
		t.Errorf("CanPurge active err = %v, want ErrNotDeleted", err)
	}
}

func TestPriorityFromLegacy(t *testing.T) {
	for in, want := range map[int]Priority{0: PriorityNone, 1: PriorityLow, 3: PriorityMedium, 5: PriorityHigh} {
		if got := PriorityFromLegacy(in); got != want {
			t.Errorf("PriorityFromLegacy(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestTemplateDraft(t *testing.T) {
	tp := Template{ID: RemoteID("t1"), Title: "Call mom", Description: "Sunday", Type: TypeCall, Owner: "u1"}
	d := tp.Draft()
	if d.Title != "Call mom" || d.Type != TypeCall || d.Frequency != Once || d.Owner != "u1" {
		t.Errorf("Draft = %+v", d)
	}
	if !d.ID.IsZero() || d.NextRun != nil || d.Completed {
		t.Errorf("Draft carried lifecycle state: %+v", d)
	}
}
