package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalid is matched by every *ValidationError.
	ErrInvalid = errors.New("invalid record")

	ErrDeleted    = errors.New("task is deleted")
	ErrNotDeleted = errors.New("task is not in the deleted bucket")
	ErrCompleted  = errors.New("task is already completed")
)

// ValidationError reports a record field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalid) match.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Validate checks the fields a task needs before it is stored anywhere.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if t.Type != "" && !t.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", t.Type)}
	}
	if t.Frequency != "" && !t.Frequency.Valid() {
		return &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", t.Frequency)}
	}
	if t.Priority < PriorityNone || t.Priority > PriorityHigh {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("%d out of range 0-3", t.Priority)}
	}
	return nil
}

// Validate checks a list before it is stored.
func (l *List) Validate() error {
	if strings.TrimSpace(l.Title) == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	return nil
}

// Validate checks a template before it is stored.
func (tp *Template) Validate() error {
	if strings.TrimSpace(tp.Title) == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if tp.Type != "" && !tp.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", tp.Type)}
	}
	return nil
}

// NextFunc computes the next occurrence of a recurring schedule.
type NextFunc func(current time.Time, f Frequency) (time.Time, error)

// Complete marks the task done at now. A recurring task with a scheduled run
// stays active and advances NextRun through next; anything else becomes
// completed.
func (t *Task) Complete(now time.Time, next NextFunc) error {
	if t.IsDeleted {
		return ErrDeleted
	}
	if t.Completed {
		return ErrCompleted
	}
	if t.Frequency.Recurring() && t.NextRun != nil {
		n, err := next(t.NextRun.Time, t.Frequency)
		if err != nil {
			return fmt.Errorf("advance %s schedule: %w", t.Frequency, err)
		}
		t.NextRun = NewWall(n)
		t.LastRun = NewWall(now)
		return nil
	}
	t.Completed = true
	t.LastRun = NewWall(now)
	return nil
}

// Reopen returns a completed task to the active state.
func (t *Task) Reopen() error {
	if t.IsDeleted {
		return ErrDeleted
	}
	t.Completed = false
	return nil
}

// SoftDelete moves the task to the deleted bucket. Completed is untouched so
// Restore brings the task back to where it was.
func (t *Task) SoftDelete() { t.IsDeleted = true }

// Restore takes the task out of the deleted bucket.
func (t *Task) Restore() error {
	if !t.IsDeleted {
		return ErrNotDeleted
	}
	t.IsDeleted = false
	return nil
}

// CanPurge reports whether the task may be hard-deleted.
func (t *Task) CanPurge() error {
	if !t.IsDeleted {
		return ErrNotDeleted
	}
	return nil
}
