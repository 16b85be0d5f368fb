package task

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Bucket is the visibility bucket a task falls into. Exactly one applies.
type Bucket string

const (
	BucketScheduled   Bucket = "scheduled"
	BucketUnscheduled Bucket = "unscheduled"
	BucketCompleted   Bucket = "completed"
	BucketDeleted     Bucket = "deleted"
)

// BucketOf classifies t.
func BucketOf(t *Task) Bucket {
	switch {
	case t.IsDeleted:
		return BucketDeleted
	case t.Completed:
		return BucketCompleted
	case t.NextRun == nil:
		return BucketUnscheduled
	default:
		return BucketScheduled
	}
}

// View names a filtered task list.
type View string

const (
	ViewAll         View = "all"
	ViewToday       View = "today"
	ViewOverdue     View = "overdue"
	ViewUpcoming    View = "upcoming"
	ViewUnscheduled View = "unscheduled"
	ViewFlagged     View = "flagged"
	ViewCompleted   View = "completed"
	ViewDeleted     View = "deleted"
)

// Views lists every view in display order.
var Views = []View{ViewAll, ViewToday, ViewOverdue, ViewUpcoming, ViewUnscheduled, ViewFlagged, ViewCompleted, ViewDeleted}

// ParseView validates a view name; empty means ViewAll.
func ParseView(s string) (View, error) {
	if s == "" {
		return ViewAll, nil
	}
	v := View(s)
	if !slices.Contains(Views, v) {
		return "", fmt.Errorf("unknown view %q", s)
	}
	return v, nil
}

// Filter selects the tasks a screen shows.
type Filter struct {
	View View
	// Scoped restricts the result to List; a nil List then means unfiled.
	Scoped bool
	List   *ID
	Search string
	// Now is the reference wall clock for today/overdue/upcoming.
	Now time.Time
}

// Match reports whether t belongs in the filtered view.
func (f Filter) Match(t *Task) bool {
	if f.Scoped && !t.InList(f.List) {
		return false
	}
	if f.Search != "" {
		fold := cases.Fold() // Casers are stateful; one per call
		if !strings.Contains(fold.String(t.Title), fold.String(f.Search)) {
			return false
		}
	}

	bucket := BucketOf(t)
	switch f.View {
	case ViewDeleted:
		return bucket == BucketDeleted
	case ViewCompleted:
		return bucket == BucketCompleted
	}
	if bucket == BucketDeleted || bucket == BucketCompleted {
		return false
	}

	now := WallOf(f.Now).Time
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	tomorrowStart := todayStart.AddDate(0, 0, 1)

	switch f.View {
	case ViewToday:
		return bucket == BucketScheduled && !t.NextRun.Before(todayStart) && t.NextRun.Before(tomorrowStart)
	case ViewOverdue:
		return bucket == BucketScheduled && !t.IsPaused && t.NextRun.Before(now)
	case ViewUpcoming:
		return bucket == BucketScheduled && !t.NextRun.Before(tomorrowStart)
	case ViewUnscheduled:
		return bucket == BucketUnscheduled
	case ViewFlagged:
		return t.IsFlagged
	default:
		return true
	}
}

// Apply returns the matching tasks in display order.
func (f Filter) Apply(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for i := range tasks {
		if f.Match(&tasks[i]) {
			out = append(out, tasks[i])
		}
	}
	Sort(out)
	return out
}

// Sort orders tasks by position. The sort is stable so equal positions keep
// the order they currently have.
func Sort(tasks []Task) {
	slices.SortStableFunc(tasks, func(a, b Task) int { return a.Position - b.Position })
}
