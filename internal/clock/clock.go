package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock returns the current time. Production code uses Wall; tests inject a
// Fixed clock to make last-writer-wins ordering deterministic.
type Clock interface {
	Now() time.Time
}

// Wall is the real UTC wall clock.
type Wall struct{}

// Now returns the current time in UTC.
func (Wall) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant. Useful for tests that need a
// stable "now".
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return time.Time(f) }

// Format renders t in the wire format "YYYY:MM:DD:HH:MM:SS", zero-padded,
// UTC.
func Format(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d:%02d:%02d:%02d:%02d:%02d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// Parse reads the wire format produced by Format. It requires exactly six
// colon-separated integer fields; producers zero-pad but parsers accept any
// width for each field.
func Parse(s string) (time.Time, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return time.Time{}, fmt.Errorf("clock: malformed timestamp %q: want 6 fields, got %d", s, len(parts))
	}
	vals := make([]int, 6)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("clock: malformed timestamp %q: %w", s, err)
		}
		vals[i] = v
	}
	return time.Date(vals[0], time.Month(vals[1]), vals[2], vals[3], vals[4], vals[5], 0, time.UTC), nil
}
