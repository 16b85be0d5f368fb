// Package remote talks to the authoritative multi-device store. It exposes one
// Gateway interface with a SQL implementation (SQLite or Postgres) and an
// HTTP client for the tickler server.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/tickler/task"
)

var (
	// ErrNotFound is returned when the addressed record does not exist for
	// the owner.
	ErrNotFound = errors.New("remote record not found")

	// ErrPendingID is returned when a pending id reaches the remote boundary.
	ErrPendingID = errors.New("pending id cannot be sent to the remote store")
)

// Position is one entry of a reorder batch.
type Position struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// Gateway is the remote store. Every call is scoped to one owner and is
// attempted once; retrying is the caller's business.
type Gateway interface {
	// ListTasks returns the owner's tasks ordered by position.
	ListTasks(ctx context.Context, owner string) ([]task.Task, error)
	// CreateTask stores t and returns the id the store assigned. A second
	// create carrying the same ClientRef returns the first record's id.
	CreateTask(ctx context.Context, owner string, t task.Task) (string, error)
	UpdateTask(ctx context.Context, owner, id string, p task.Patch) error
	DeleteTask(ctx context.Context, owner, id string) error
	UpsertPositions(ctx context.Context, owner string, positions []Position) error
	LogCompletion(ctx context.Context, owner, id string, at time.Time) error

	ListLists(ctx context.Context, owner string) ([]task.List, error)
	CreateList(ctx context.Context, owner string, l task.List) (string, error)
	RenameList(ctx context.Context, owner, id, title string) error
	// DeleteList removes the list and detaches its tasks.
	DeleteList(ctx context.Context, owner, id string) error

	ListTemplates(ctx context.Context, owner string) ([]task.Template, error)
	CreateTemplate(ctx context.Context, owner string, tp task.Template) (string, error)
	UpdateTemplate(ctx context.Context, owner, id string, tp task.Template) error
	DeleteTemplate(ctx context.Context, owner, id string) error
}

// RemoteOf returns the remote form of id or ErrPendingID.
func RemoteOf(id task.ID) (string, error) {
	r, ok := id.Remote()
	if !ok {
		return "", fmt.Errorf("%s: %w", id, ErrPendingID)
	}
	return r, nil
}

// checkOutgoing rejects a task whose references are still pending.
func checkOutgoing(t *task.Task) error {
	if t.ListID != nil && t.ListID.IsPending() {
		return fmt.Errorf("list %s: %w", t.ListID, ErrPendingID)
	}
	return nil
}

func checkPatch(p task.Patch) error {
	if p.ListID != nil && p.ListID.IsPending() {
		return fmt.Errorf("list %s: %w", p.ListID, ErrPendingID)
	}
	return nil
}
