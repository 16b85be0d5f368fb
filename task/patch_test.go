package task

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDiffApplyPatch(t *testing.T) {
	list := RemoteID("l1")
	old := Task{ID: RemoteID("1"), Title: "a", Frequency: Once, NextRun: mustWall(t, "2024-01-01T08:00"), ListID: &list}
	cur := old.Clone()
	cur.Title = "b"
	cur.NextRun = nil
	cur.ListID = nil
	cur.IsFlagged = true
	cur.Position = 4

	p := Diff(old, cur)
	if p.IsEmpty() {
		t.Fatal("Diff returned empty patch")
	}
	if !p.ClearNextRun || !p.ClearList {
		t.Errorf("expected clears, got %+v", p)
	}

	got := old.Clone()
	got.ApplyPatch(p)
	if got.Title != "b" || got.NextRun != nil || got.ListID != nil || !got.IsFlagged || got.Position != 4 {
		t.Errorf("ApplyPatch result = %+v", got)
	}
	if !Diff(got, cur).IsEmpty() {
		t.Errorf("patched task still differs: %+v", Diff(got, cur))
	}
	if !Diff(old, old.Clone()).IsEmpty() {
		t.Error("Diff of a clone is not empty")
	}
}

func TestPatchJSON_SparseAndClears(t *testing.T) {
	title := "new"
	p := Patch{Title: &title, ClearNextRun: true}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"next_run":null`) || !strings.Contains(s, `"title":"new"`) {
		t.Errorf("marshal = %s", s)
	}
	if strings.Contains(s, "priority") {
		t.Errorf("unset field emitted: %s", s)
	}

	var back Patch
	if err := json.Unmarshal([]byte(`{"title":"x","list_id":null,"next_run":"2024-03-01T07:30","position":2}`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Title == nil || *back.Title != "x" {
		t.Errorf("Title = %v", back.Title)
	}
	if !back.ClearList {
		t.Error("list_id null did not clear")
	}
	if back.NextRun == nil || !back.NextRun.Time.Equal(time.Date(2024, 3, 1, 7, 30, 0, 0, time.UTC)) {
		t.Errorf("NextRun = %v", back.NextRun)
	}
	if back.Position == nil || *back.Position != 2 {
		t.Errorf("Position = %v", back.Position)
	}
	if back.Priority != nil {
		t.Error("absent priority was set")
	}
}

func TestPatchMerge_LaterFieldsWin(t *testing.T) {
	a, b := "a", "b"
	list := RemoteID("l1")
	flagged := true
	p := Patch{Title: &a, ListID: &list, IsFlagged: &flagged}
	q := Patch{Title: &b, ClearList: true, ClearNextRun: true}

	got := p.Merge(q)
	if got.Title == nil || *got.Title != "b" {
		t.Fatalf("title = %v, want b", got.Title)
	}
	if got.ListID != nil || !got.ClearList {
		t.Fatalf("list = %v clear=%v, want cleared", got.ListID, got.ClearList)
	}
	if !got.ClearNextRun {
		t.Fatal("next_run clear lost")
	}
	if got.IsFlagged == nil || !*got.IsFlagged {
		t.Fatal("untouched field lost")
	}

	refiled := got.Merge(Patch{ListID: &list})
	if refiled.ClearList || refiled.ListID == nil || *refiled.ListID != list {
		t.Fatalf("refile = %v clear=%v", refiled.ListID, refiled.ClearList)
	}
	b = "changed"
	if *got.Title != "b" {
		t.Fatal("merge must copy values")
	}
}

func TestPatchWithout_KeepsNewerValues(t *testing.T) {
	sentTitle, newTitle := "old", "new"
	pos := 3
	pending := NewPendingID()
	p := Patch{Title: &newTitle, Position: &pos, ListID: &pending}
	sent := Patch{Title: &sentTitle, Position: &pos}

	rest := p.Without(sent)
	if rest.Title == nil || *rest.Title != "new" {
		t.Fatalf("title = %v, want the newer value kept", rest.Title)
	}
	if rest.Position != nil {
		t.Fatal("acknowledged position must be dropped")
	}
	if rest.ListID == nil || *rest.ListID != pending {
		t.Fatal("unsent list must be kept")
	}

	rest = rest.Without(Patch{Title: &newTitle, ListID: &pending})
	if !rest.IsEmpty() {
		t.Fatalf("rest = %+v, want empty", rest)
	}
}
