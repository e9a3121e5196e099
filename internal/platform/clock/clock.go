// Package clock provides calendar-date helpers. Inventory dates carry no
// time of day: every value is normalized to midnight UTC of its calendar day.
package clock

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// Func returns the current instant. Services accept one so tests can pin "today".
type Func func() time.Time

// Date returns t's calendar day in loc as midnight UTC. A nil loc uses t's own location.
func Date(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day as seen in loc.
func Today(now Func, loc *time.Location) time.Time {
	if now == nil {
		now = time.Now
	}
	return Date(now(), loc)
}

// Fixed returns a Func that always reports t.
func Fixed(t time.Time) Func {
	return func() time.Time { return t }
}

// ParseDate parses a YYYY-MM-DD string into a normalized date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// AddDays returns d shifted by n calendar days.
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// InMonth reports whether d falls in the given calendar year and month.
func InMonth(d time.Time, year, month int) bool {
	return d.Year() == year && int(d.Month()) == month
}

// MonthBounds returns the first day of the month and the first day of the next.
func MonthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
