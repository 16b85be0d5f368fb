// Package task defines the reminder records shared by the local cache and the
// remote store: tasks, lists and templates, their identity, lifecycle and views.
package task

import (
	"fmt"
	"time"
)

// Type determines which external action a task offers.
type Type string

const (
	TypeReminder  Type = "reminder"
	TypeEmail     Type = "email"
	TypeWhatsApp  Type = "whatsapp"
	TypeWebSearch Type = "web_search"
	TypeCall      Type = "call"
	TypeCopy      Type = "copy"
)

// Types lists every supported task type.
var Types = []Type{TypeReminder, TypeEmail, TypeWhatsApp, TypeWebSearch, TypeCall, TypeCopy}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Frequency controls how a task recurs after completion.
type Frequency string

const (
	Once    Frequency = "once"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case Once, Daily, Weekly, Monthly:
		return true
	}
	return false
}

// Recurring reports whether completing a task with this frequency advances
// its schedule instead of finishing it.
func (f Frequency) Recurring() bool { return f != Once && f.Valid() }

// Priority is a severity from 0 (none) to 3 (high).
type Priority int

const (
	PriorityNone   Priority = 0
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

// PriorityFromLegacy maps the older 1/3/5 scale onto 1/2/3.
func PriorityFromLegacy(p int) Priority {
	switch {
	case p >= 5:
		return PriorityHigh
	case p == 4 || p == 3:
		return PriorityMedium
	case p <= 0:
		return PriorityNone
	default:
		return PriorityLow
	}
}

// Task is a reminder owned by a single user.
type Task struct {
	ID          ID        `json:"id"`
	ClientRef   string    `json:"client_ref,omitempty"` // pending token the record was created under
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        Type      `json:"type"`
	Frequency   Frequency `json:"frequency"`
	NextRun     *Wall     `json:"next_run"`
	LastRun     *Wall     `json:"last_run,omitempty"`
	Priority    Priority  `json:"priority"`
	IsFlagged   bool      `json:"is_flagged"`
	IsPaused    bool      `json:"is_paused"`
	Completed   bool      `json:"completed"`
	IsDeleted   bool      `json:"is_deleted"`
	ListID      *ID       `json:"list_id"`
	Position    int       `json:"position"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	if t.NextRun != nil {
		w := *t.NextRun
		t.NextRun = &w
	}
	if t.LastRun != nil {
		w := *t.LastRun
		t.LastRun = &w
	}
	if t.ListID != nil {
		id := *t.ListID
		t.ListID = &id
	}
	return t
}

// Normalize fills defaults for fields an older record or a sparse request may
// leave empty.
func (t *Task) Normalize() {
	if t.Type == "" {
		t.Type = TypeReminder
	}
	if t.Frequency == "" {
		t.Frequency = Once
	}
	if t.ListID != nil && t.ListID.IsZero() {
		t.ListID = nil
	}
}

// InList reports whether the task belongs to the given list; a nil list
// means "unfiled".
func (t *Task) InList(list *ID) bool {
	if list == nil || t.ListID == nil {
		return list == nil && t.ListID == nil
	}
	return *list == *t.ListID
}

func (t Task) String() string {
	return fmt.Sprintf("%s %q", t.ID, t.Title)
}

// List groups tasks. Lists have no ordering or nesting.
type List struct {
	ID        ID     `json:"id"`
	ClientRef string `json:"client_ref,omitempty"`
	Title     string `json:"title"`
	Owner     string `json:"owner"`
}

// Template is a reusable prototype for a task's content fields. It is never
// scheduled or completed itself.
type Template struct {
	ID          ID     `json:"id"`
	ClientRef   string `json:"client_ref,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        Type   `json:"type"`
	Owner       string `json:"owner"`
}

// Draft returns a new unscheduled task carrying the template's content.
func (tp Template) Draft() Task {
	typ := tp.Type
	if typ == "" {
		typ = TypeReminder
	}
	return Task{
		Title:       tp.Title,
		Description: tp.Description,
		Type:        typ,
		Frequency:   Once,
		Owner:       tp.Owner,
	}
}
