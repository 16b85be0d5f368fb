// Package notify carries change events and transient user notices from the
// sync engine to whatever is rendering the task list.
package notify

import (
	"context"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	TypeChanged EventType = "changed" // the local cache changed; re-render
	TypeNotice  EventType = "notice"  // a transient message for the user
	TypeSynced  EventType = "synced"  // a reconciliation pass was applied
)

// Event is a single notification.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Owner     string    `json:"owner"`
	Subject   string    `json:"subject"`
	Detail    string    `json:"detail,omitempty"`
	Record    string    `json:"record,omitempty"` // text form of the record id, if any
	Timestamp time.Time `json:"timestamp"`
}

// Handler processes a published event.
type Handler func(ctx context.Context, ev *Event) error

// Bus fans events out to subscribers. Subscribers register for one owner, or
// for every owner with AllOwners.
type Bus interface {
	// Publish delivers ev to the owner's subscribers and the AllOwners ones.
	Publish(ctx context.Context, ev *Event) error

	// Subscribe registers a handler and returns a function that removes it.
	Subscribe(owner string, handler Handler) (unsubscribe func())

	// History returns the most recent events for owner, oldest first.
	History(owner string, limit int) ([]*Event, error)
}

// AllOwners subscribes a handler to events for every owner.
const AllOwners = "*"

// Notice publishes a transient notice for owner built from err. A nil bus is
// allowed and drops the notice.
func Notice(ctx context.Context, bus Bus, owner, subject string, err error) {
	if bus == nil {
		return
	}
	ev := &Event{Type: TypeNotice, Owner: owner, Subject: subject}
	if err != nil {
		ev.Detail = err.Error()
	}
	_ = bus.Publish(ctx, ev)
}
