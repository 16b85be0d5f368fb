package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/GoCodeAlone/tickler/task"
)

// parseWhen reads a --at value. Besides the layouts task.ParseWall accepts it
// understands "today" and "tomorrow", optionally followed by HH:MM.
func parseWhen(s string, now time.Time) (task.Wall, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	day, clock, _ := strings.Cut(s, " ")
	var base time.Time
	switch day {
	case "today":
		base = now
	case "tomorrow":
		base = now.AddDate(0, 0, 1)
	default:
		return task.ParseWall(s)
	}
	hour, minute := 9, 0
	if clock != "" {
		t, err := time.Parse("15:04", strings.TrimSpace(clock))
		if err != nil {
			return task.Wall{}, fmt.Errorf("parse time of day %q: want HH:MM", clock)
		}
		hour, minute = t.Hour(), t.Minute()
	}
	return task.WallOf(time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, time.UTC)), nil
}

var priorityNames = map[string]task.Priority{
	"none":   task.PriorityNone,
	"low":    task.PriorityLow,
	"medium": task.PriorityMedium,
	"high":   task.PriorityHigh,
}

// parsePriority accepts a name or 0-3.
func parsePriority(s string) (task.Priority, error) {
	if p, ok := priorityNames[strings.ToLower(s)]; ok {
		return p, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < int(task.PriorityNone) || n > int(task.PriorityHigh) {
		return 0, fmt.Errorf("invalid priority %q: use none, low, medium, high or 0-3", s)
	}
	return task.Priority(n), nil
}

func priorityMark(p task.Priority) string {
	return strings.Repeat("!", int(p))
}

// printTasks writes one row per task. Index is the 1-based position in the
// view, which is what `tickler mv` takes.
func printTasks(w io.Writer, tasks []task.Task, lists []task.List) error {
	titles := make(map[task.ID]string, len(lists))
	for _, l := range lists {
		titles[l.ID] = l.Title
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tTITLE\tDUE\tFREQ\tLIST\t") //nolint:errcheck
	for i, t := range tasks {
		due := "-"
		if t.NextRun != nil {
			due = t.NextRun.Format("2006-01-02 15:04")
		}
		list := ""
		if t.ListID != nil {
			list = titles[*t.ListID]
		}
		marks := priorityMark(t.Priority)
		if t.IsFlagged {
			marks += "*"
		}
		if t.IsPaused {
			marks += " (paused)"
		}
		id := shortID(t.ID)
		fmt.Fprintf(tw, "%d\t%s\t%s %s\t%s\t%s\t%s\t\n", i+1, id, t.Title, marks, due, t.Frequency, list) //nolint:errcheck
	}
	return tw.Flush()
}

// shortID trims an id to a prefix that is usually still unique for Resolve.
func shortID(id task.ID) string {
	s := id.String()
	n := 8
	if id.IsPending() {
		n += len(s) - len(id.Token())
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
