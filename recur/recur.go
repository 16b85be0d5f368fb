// Package recur computes the next occurrence of a repeating task.
//
// Monthly schedules clamp to the last day of a shorter target month: Jan 31
// becomes Feb 29 (or Feb 28), Mar 31 becomes Apr 30. The clamp does not
// remember the original day, so Jan 31 -> Feb 29 -> Mar 29.
package recur

import (
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/tickler/task"
)

// ErrNoRecurrence is returned for frequencies that do not repeat.
var ErrNoRecurrence = errors.New("frequency does not recur")

// Next returns the occurrence after current. Time of day is preserved and the
// result is always strictly later than current.
func Next(current time.Time, f task.Frequency) (time.Time, error) {
	switch f {
	case task.Daily:
		return current.AddDate(0, 0, 1), nil
	case task.Weekly:
		return current.AddDate(0, 0, 7), nil
	case task.Monthly:
		return addMonthClamped(current), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrNoRecurrence, f)
	}
}

// Series returns the n occurrences that follow start.
func Series(start time.Time, f task.Frequency, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	cur := start
	for range n {
		next, err := Next(cur, f)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		cur = next
	}
	return out, nil
}

func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	// First of the target month normalizes December into January.
	first := time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
