package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WallLayout is the text form of a Wall timestamp.
const WallLayout = "2006-01-02T15:04:05"

var wallLayouts = []string{
	WallLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Wall is a timezone-naive wall-clock timestamp. The wrapped time is always
// in UTC and its fields are read as the user's local wall clock; no zone
// conversion is ever applied. Cross-timezone correctness is out of scope.
type Wall struct {
	time.Time
}

// WallOf keeps the wall-clock fields of t and drops its zone.
func WallOf(t time.Time) Wall {
	return Wall{time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)}
}

// NewWall returns a pointer to the Wall for t, for optional fields.
func NewWall(t time.Time) *Wall {
	w := WallOf(t)
	return &w
}

// ParseWall accepts WallLayout, minute precision, a bare date, or RFC 3339;
// for RFC 3339 the offset is discarded and the wall fields kept.
func ParseWall(s string) (Wall, error) {
	s = strings.TrimSpace(s)
	for _, layout := range wallLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Wall{t}, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return WallOf(t), nil
	}
	return Wall{}, fmt.Errorf("parse wall time %q", s)
}

func (w Wall) String() string { return w.Format(WallLayout) }

// SameWall reports whether two optional walls are the same instant or both unset.
func SameWall(a, b *Wall) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Time.Equal(b.Time)
}

// MarshalJSON encodes the wall clock without a zone.
func (w Wall) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// UnmarshalJSON decodes any layout accepted by ParseWall.
func (w *Wall) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode wall time: %w", err)
	}
	parsed, err := ParseWall(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
