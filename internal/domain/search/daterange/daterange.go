// Package daterange holds the created_at lower bound of a search.
package daterange

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AllValue selects every document regardless of age.
const AllValue = "all"

// MaxDays caps the window to keep now-days representable.
const MaxDays = 36500

// Range is either "all" or a window of the last N days.
type Range struct {
	days int
}

// All returns the unbounded range.
func All() Range { return Range{} }

// Days returns a window of the last n days. Non-positive n yields All.
func Days(n int) Range {
	if n <= 0 {
		return Range{}
	}
	return Range{days: n}
}

// Parse accepts "all", an empty string, or a positive day count.
func Parse(s string) (Range, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == AllValue {
		return All(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return Range{}, fmt.Errorf("date_range must be %q or a positive number of days, got %q", AllValue, s)
	}
	if n > MaxDays {
		return Range{}, fmt.Errorf("date_range exceeds %d days", MaxDays)
	}
	return Range{days: n}, nil
}

// IsAll reports whether the range is unbounded.
func (r Range) IsAll() bool { return r.days == 0 }

// Days returns the window length (0 for all).
func (r Range) Days() int { return r.days }

// Since returns the inclusive lower bound relative to now (zero time for all).
func (r Range) Since(now time.Time) time.Time {
	if r.IsAll() {
		return time.Time{}
	}
	return now.AddDate(0, 0, -r.days)
}

// Contains reports whether createdAt falls inside the window ending at now.
func (r Range) Contains(createdAt, now time.Time) bool {
	if r.IsAll() {
		return true
	}
	return !createdAt.Before(r.Since(now))
}

func (r Range) String() string {
	if r.IsAll() {
		return AllValue
	}
	return strconv.Itoa(r.days)
}
