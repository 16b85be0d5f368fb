package task

import (
	"encoding/json"
	"fmt"
)

// Patch is a partial task update. Nil fields are left alone; the Clear flags
// null out the nullable fields.
type Patch struct {
	Title        *string
	Description  *string
	Type         *Type
	Frequency    *Frequency
	NextRun      *Wall
	ClearNextRun bool
	LastRun      *Wall
	Priority     *Priority
	IsFlagged    *bool
	IsPaused     *bool
	Completed    *bool
	IsDeleted    *bool
	ListID       *ID
	ClearList    bool
	Position     *int
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Type == nil && p.Frequency == nil &&
		p.NextRun == nil && !p.ClearNextRun && p.LastRun == nil && p.Priority == nil &&
		p.IsFlagged == nil && p.IsPaused == nil && p.Completed == nil && p.IsDeleted == nil &&
		p.ListID == nil && !p.ClearList && p.Position == nil
}

// ApplyPatch applies p to t.
func (t *Task) ApplyPatch(p Patch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Frequency != nil {
		t.Frequency = *p.Frequency
	}
	if p.ClearNextRun {
		t.NextRun = nil
	} else if p.NextRun != nil {
		w := *p.NextRun
		t.NextRun = &w
	}
	if p.LastRun != nil {
		w := *p.LastRun
		t.LastRun = &w
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.IsFlagged != nil {
		t.IsFlagged = *p.IsFlagged
	}
	if p.IsPaused != nil {
		t.IsPaused = *p.IsPaused
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.IsDeleted != nil {
		t.IsDeleted = *p.IsDeleted
	}
	if p.ClearList {
		t.ListID = nil
	} else if p.ListID != nil {
		id := *p.ListID
		t.ListID = &id
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
}

// Merge returns p with every field q sets laid over it.
func (p Patch) Merge(q Patch) Patch {
	out := p
	out.Title = pick(q.Title, p.Title)
	out.Description = pick(q.Description, p.Description)
	out.Type = pick(q.Type, p.Type)
	out.Frequency = pick(q.Frequency, p.Frequency)
	switch {
	case q.ClearNextRun:
		out.NextRun, out.ClearNextRun = nil, true
	case q.NextRun != nil:
		out.NextRun, out.ClearNextRun = clonePtr(q.NextRun), false
	}
	out.LastRun = pick(q.LastRun, p.LastRun)
	out.Priority = pick(q.Priority, p.Priority)
	out.IsFlagged = pick(q.IsFlagged, p.IsFlagged)
	out.IsPaused = pick(q.IsPaused, p.IsPaused)
	out.Completed = pick(q.Completed, p.Completed)
	out.IsDeleted = pick(q.IsDeleted, p.IsDeleted)
	switch {
	case q.ClearList:
		out.ListID, out.ClearList = nil, true
	case q.ListID != nil:
		out.ListID, out.ClearList = clonePtr(q.ListID), false
	}
	out.Position = pick(q.Position, p.Position)
	return out
}

// Without returns p minus the fields sent carries with the same value. It is
// what is left to send after sent was acknowledged.
func (p Patch) Without(sent Patch) Patch {
	out := p
	if same(p.Title, sent.Title) {
		out.Title = nil
	}
	if same(p.Description, sent.Description) {
		out.Description = nil
	}
	if same(p.Type, sent.Type) {
		out.Type = nil
	}
	if same(p.Frequency, sent.Frequency) {
		out.Frequency = nil
	}
	if p.ClearNextRun && sent.ClearNextRun {
		out.ClearNextRun = false
	}
	if p.NextRun != nil && SameWall(p.NextRun, sent.NextRun) {
		out.NextRun = nil
	}
	if p.LastRun != nil && SameWall(p.LastRun, sent.LastRun) {
		out.LastRun = nil
	}
	if same(p.Priority, sent.Priority) {
		out.Priority = nil
	}
	if same(p.IsFlagged, sent.IsFlagged) {
		out.IsFlagged = nil
	}
	if same(p.IsPaused, sent.IsPaused) {
		out.IsPaused = nil
	}
	if same(p.Completed, sent.Completed) {
		out.Completed = nil
	}
	if same(p.IsDeleted, sent.IsDeleted) {
		out.IsDeleted = nil
	}
	if p.ClearList && sent.ClearList {
		out.ClearList = false
	}
	if same(p.ListID, sent.ListID) {
		out.ListID = nil
	}
	if same(p.Position, sent.Position) {
		out.Position = nil
	}
	return out
}

func pick[T any](over, base *T) *T {
	if over != nil {
		return clonePtr(over)
	}
	return base
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func same[T comparable](a, b *T) bool {
	return a != nil && b != nil && *a == *b
}

// Diff returns the patch that turns old into cur. Identity, ownership and
// timestamps are not part of a patch.
func Diff(old, cur Task) Patch {
	var p Patch
	if old.Title != cur.Title {
		p.Title = &cur.Title
	}
	if old.Description != cur.Description {
		p.Description = &cur.Description
	}
	if old.Type != cur.Type {
		p.Type = &cur.Type
	}
	if old.Frequency != cur.Frequency {
		p.Frequency = &cur.Frequency
	}
	if !SameWall(old.NextRun, cur.NextRun) {
		if cur.NextRun == nil {
			p.ClearNextRun = true
		} else {
			w := *cur.NextRun
			p.NextRun = &w
		}
	}
	if !SameWall(old.LastRun, cur.LastRun) && cur.LastRun != nil {
		w := *cur.LastRun
		p.LastRun = &w
	}
	if old.Priority != cur.Priority {
		p.Priority = &cur.Priority
	}
	if old.IsFlagged != cur.IsFlagged {
		p.IsFlagged = &cur.IsFlagged
	}
	if old.IsPaused != cur.IsPaused {
		p.IsPaused = &cur.IsPaused
	}
	if old.Completed != cur.Completed {
		p.Completed = &cur.Completed
	}
	if old.IsDeleted != cur.IsDeleted {
		p.IsDeleted = &cur.IsDeleted
	}
	if !old.InList(cur.ListID) {
		if cur.ListID == nil {
			p.ClearList = true
		} else {
			id := *cur.ListID
			p.ListID = &id
		}
	}
	if old.Position != cur.Position {
		p.Position = &cur.Position
	}
	return p
}

// MarshalJSON emits only the keys the patch sets; clears encode as null.
func (p Patch) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	put := func(key string, set bool, v any) {
		if set {
			m[key] = v
		}
	}
	put("title", p.Title != nil, p.Title)
	put("description", p.Description != nil, p.Description)
	put("type", p.Type != nil, p.Type)
	put("frequency", p.Frequency != nil, p.Frequency)
	put("next_run", p.NextRun != nil, p.NextRun)
	if p.ClearNextRun {
		m["next_run"] = nil
	}
	put("last_run", p.LastRun != nil, p.LastRun)
	put("priority", p.Priority != nil, p.Priority)
	put("is_flagged", p.IsFlagged != nil, p.IsFlagged)
	put("is_paused", p.IsPaused != nil, p.IsPaused)
	put("completed", p.Completed != nil, p.Completed)
	put("is_deleted", p.IsDeleted != nil, p.IsDeleted)
	put("list_id", p.ListID != nil, p.ListID)
	if p.ClearList {
		m["list_id"] = nil
	}
	put("position", p.Position != nil, p.Position)
	return json.Marshal(m)
}

// UnmarshalJSON reads a sparse object: absent keys stay unset and a null
// next_run or list_id becomes a clear.
func (p *Patch) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode patch: %w", err)
	}
	*p = Patch{}
	for key, val := range raw {
		isNull := string(val) == "null"
		var err error
		switch key {
		case "title":
			p.Title, err = decodeField[string](val)
		case "description":
			p.Description, err = decodeField[string](val)
		case "type":
			p.Type, err = decodeField[Type](val)
		case "frequency":
			p.Frequency, err = decodeField[Frequency](val)
		case "next_run":
			if isNull {
				p.ClearNextRun = true
			} else {
				p.NextRun, err = decodeField[Wall](val)
			}
		case "last_run":
			if !isNull {
				p.LastRun, err = decodeField[Wall](val)
			}
		case "priority":
			p.Priority, err = decodeField[Priority](val)
		case "is_flagged":
			p.IsFlagged, err = decodeField[bool](val)
		case "is_paused":
			p.IsPaused, err = decodeField[bool](val)
		case "completed":
			p.Completed, err = decodeField[bool](val)
		case "is_deleted":
			p.IsDeleted, err = decodeField[bool](val)
		case "list_id":
			if isNull {
				p.ClearList = true
			} else {
				p.ListID, err = decodeField[ID](val)
			}
		case "position":
			p.Position, err = decodeField[int](val)
		}
		if err != nil {
			return fmt.Errorf("decode patch field %s: %w", key, err)
		}
	}
	return nil
}

func decodeField[T any](raw json.RawMessage) (*T, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
